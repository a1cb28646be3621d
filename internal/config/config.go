package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

// ErrInvalidConfig 配置取值非法
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix 环境变量前缀
const EnvPrefix = "CHARGEAUDIT_"

// AppConfig 应用配置
type AppConfig struct {
	Server  ServerConfig `toml:"server"`
	Data    DataConfig   `toml:"data"`
	Audit   AuditConfig  `toml:"audit"`
	Aliases AliasConfig  `toml:"aliases"`
	Log     LogConfig    `toml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int  `toml:"port"`
	DevMode     bool `toml:"dev_mode"`
	OpenBrowser bool `toml:"open_browser"`
}

// DataConfig 数据配置
type DataConfig struct {
	OutputDir string `toml:"output_dir"`
}

// AuditConfig 审计口径
type AuditConfig struct {
	BaseRent           float64 `toml:"base_rent" json:"baseRent"`
	VariationThreshold float64 `toml:"variation_threshold" json:"variationThreshold"`
	ProrationTolerance float64 `toml:"proration_tolerance" json:"prorationTolerance"`
	DepositPolicy      string  `toml:"deposit_policy" json:"depositPolicy"` // empty / non_positive
	ReportMode         string  `toml:"report_mode" json:"reportMode"`       // structured / passthrough
	BillingMonth       string  `toml:"billing_month" json:"billingMonth"`   // YYYY-MM，可选
	Workers            int     `toml:"workers" json:"workers"`
	FileTimeout        string  `toml:"file_timeout" json:"fileTimeout"` // 例如 30s
	PreviewRows        int     `toml:"preview_rows" json:"previewRows"`
}

// AliasConfig 列名别名配置；Fields 覆盖同名字段的内置别名
type AliasConfig struct {
	File   string              `toml:"file"`
	Fields map[string][]string `toml:"fields"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string // 实际读取的配置文件，未读取时为空
	PortSpecified bool
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:        20262,
			DevMode:     false,
			OpenBrowser: false,
		},
		Data: DataConfig{
			OutputDir: "audit-output",
		},
		Audit: AuditConfig{
			BaseRent:           420,
			VariationThreshold: 10,
			ProrationTolerance: 1,
			DepositPolicy:      string(model.DepositPolicyEmpty),
			ReportMode:         string(model.ReportModeStructured),
			Workers:            4,
			FileTimeout:        "30s",
			PreviewRows:        50,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultConfigPath 可执行文件同目录下的 config.toml
func DefaultConfigPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, "config.toml")
}

// LoadConfigWithInfo 加载配置：默认值 -> config.toml -> .env/环境变量
// path 为空时读取可执行文件同目录的 config.toml，文件不存在时使用默认配置
func LoadConfigWithInfo(path string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{}
	config := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.Path = path
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, err
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	if err := applyEnv(config); err != nil {
		return nil, info, err
	}
	if err := config.Validate(); err != nil {
		return nil, info, err
	}
	return config, info, nil
}

// LoadConfig 加载配置
func LoadConfig(path string) (*AppConfig, error) {
	config, _, err := LoadConfigWithInfo(path)
	return config, err
}

// applyEnv 环境变量覆盖（用于容器 / 本地运行）
func applyEnv(c *AppConfig) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, key, v)
		}
		*dst = n
		return nil
	}
	flt := func(key string, dst *float64) error {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, key, v)
		}
		*dst = f
		return nil
	}

	if err := num("PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := num("WORKERS", &c.Audit.Workers); err != nil {
		return err
	}
	if err := flt("BASE_RENT", &c.Audit.BaseRent); err != nil {
		return err
	}
	if err := flt("VARIATION_THRESHOLD", &c.Audit.VariationThreshold); err != nil {
		return err
	}
	if err := flt("PRORATION_TOLERANCE", &c.Audit.ProrationTolerance); err != nil {
		return err
	}
	str("DEPOSIT_POLICY", &c.Audit.DepositPolicy)
	str("REPORT_MODE", &c.Audit.ReportMode)
	str("BILLING_MONTH", &c.Audit.BillingMonth)
	str("FILE_TIMEOUT", &c.Audit.FileTimeout)
	str("ALIASES_FILE", &c.Aliases.File)
	str("OUTPUT_DIR", &c.Data.OutputDir)
	str("LOG_LEVEL", &c.Log.Level)
	return nil
}

// Validate 校验配置
func (c *AppConfig) Validate() error {
	a := c.Audit
	switch model.DepositPolicy(a.DepositPolicy) {
	case model.DepositPolicyEmpty, model.DepositPolicyNonPositive:
	default:
		return fmt.Errorf("%w: deposit_policy %q", ErrInvalidConfig, a.DepositPolicy)
	}
	switch model.ReportMode(a.ReportMode) {
	case model.ReportModeStructured, model.ReportModePassthrough:
	default:
		return fmt.Errorf("%w: report_mode %q", ErrInvalidConfig, a.ReportMode)
	}
	if a.BaseRent <= 0 {
		return fmt.Errorf("%w: base_rent must be positive", ErrInvalidConfig)
	}
	if a.VariationThreshold < 0 || a.ProrationTolerance < 0 {
		return fmt.Errorf("%w: thresholds must not be negative", ErrInvalidConfig)
	}
	if _, _, _, err := a.BillingPeriod(); err != nil {
		return err
	}
	if _, err := a.FileTimeoutDuration(); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

// BaseRentDecimal 基础地租
func (a AuditConfig) BaseRentDecimal() decimal.Decimal {
	return decimal.NewFromFloat(a.BaseRent)
}

// VariationThresholdDecimal 费用变动阈值
func (a AuditConfig) VariationThresholdDecimal() decimal.Decimal {
	return decimal.NewFromFloat(a.VariationThreshold)
}

// ProrationToleranceDecimal 折算租金误差
func (a AuditConfig) ProrationToleranceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(a.ProrationTolerance)
}

// BillingPeriod 解析账期；未配置时 ok=false
func (a AuditConfig) BillingPeriod() (year int, month time.Month, ok bool, err error) {
	if strings.TrimSpace(a.BillingMonth) == "" {
		return 0, 0, false, nil
	}
	t, err := time.Parse("2006-01", strings.TrimSpace(a.BillingMonth))
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: billing_month %q (want YYYY-MM)", ErrInvalidConfig, a.BillingMonth)
	}
	return t.Year(), t.Month(), true, nil
}

// FileTimeoutDuration 单文件超时；未配置时为 0
func (a AuditConfig) FileTimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(a.FileTimeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(a.FileTimeout))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: file_timeout %q", ErrInvalidConfig, a.FileTimeout)
	}
	return d, nil
}

// SaveConfig 保存配置到指定路径
func SaveConfig(config *AppConfig, path string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Write 以 TOML 格式输出配置
func Write(w io.Writer, config *AppConfig) error {
	return toml.NewEncoder(w).Encode(config)
}

// EnsureOutputDir 确保输出目录存在；相对路径基于 base
func EnsureOutputDir(config *AppConfig, base string) (string, error) {
	dir := config.Data.OutputDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(base, dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
