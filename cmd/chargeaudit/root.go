package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Apollack123/charge-audit-bot2/internal/calculator"
	"github.com/Apollack123/charge-audit-bot2/internal/config"
	"github.com/Apollack123/charge-audit-bot2/internal/importer"
	"github.com/Apollack123/charge-audit-bot2/internal/logging"
	"github.com/Apollack123/charge-audit-bot2/internal/metrics"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
	"github.com/Apollack123/charge-audit-bot2/internal/parser"
	"github.com/Apollack123/charge-audit-bot2/internal/service/audit"
	"github.com/Apollack123/charge-audit-bot2/internal/service/report"
)

// rootOptions 全局参数
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "chargeaudit",
		Short:         "Audit tenant charge breakdown spreadsheets",
		Long:          `chargeaudit normalizes charge breakdown spreadsheets of any layout and flags billing anomalies such as missing lot rent, missing utilities, missing deposits, charge swings and prorated rent mismatches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.toml (default: next to the executable)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newAuditCmd(opts), newServeCmd(opts), newConfigCmd(opts))
	return cmd
}

// app 已装配的组件
type app struct {
	cfg         *config.AppConfig
	logger      zerolog.Logger
	aliases     parser.AliasSet
	assembler   *report.Assembler
	coordinator *importer.Coordinator
	metrics     *metrics.Manager
}

func (o *rootOptions) loadConfig() (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// buildApp 按配置装配审计流水线
func buildApp(cfg *config.AppConfig, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Console: cfg.Log.Console, Out: logOut})

	aliases, err := loadAliases(cfg.Aliases)
	if err != nil {
		return nil, err
	}

	var calcOpts []calculator.Option
	if year, month, ok, _ := cfg.Audit.BillingPeriod(); ok {
		calcOpts = append(calcOpts, calculator.WithBillingMonth(year, month))
	}
	calc := calculator.NewCalculator(cfg.Audit.BaseRentDecimal(), calcOpts...)

	engine := audit.NewEngine(calc, audit.Options{
		VariationThreshold: cfg.Audit.VariationThresholdDecimal(),
		ProrationTolerance: cfg.Audit.ProrationToleranceDecimal(),
		DepositPolicy:      model.DepositPolicy(cfg.Audit.DepositPolicy),
	}, audit.WithLogger(logger.With().Str("component", "audit").Logger()))

	assembler := report.NewAssembler(engine, model.ReportMode(cfg.Audit.ReportMode), logger.With().Str("component", "report").Logger())

	timeout, _ := cfg.Audit.FileTimeoutDuration()
	m := metrics.NewManager()
	coordinator := importer.NewCoordinator(
		parser.NewFieldMapper(aliases),
		assembler,
		importer.Options{Workers: cfg.Audit.Workers, FileTimeout: timeout},
		importer.WithMetrics(m),
		importer.WithLogger(logger.With().Str("component", "importer").Logger()),
	)

	return &app{
		cfg:         cfg,
		logger:      logger,
		aliases:     aliases,
		assembler:   assembler,
		coordinator: coordinator,
		metrics:     m,
	}, nil
}

// loadAliases 内置别名 <- 别名文件 <- 配置内联别名
func loadAliases(ac config.AliasConfig) (parser.AliasSet, error) {
	aliases := parser.DefaultAliases()
	if ac.File != "" {
		fromFile, err := parser.LoadAliasesFile(ac.File)
		if err != nil {
			return nil, err
		}
		aliases = aliases.Merge(fromFile)
	}
	if len(ac.Fields) > 0 {
		inline, err := parser.AliasesFromMap(ac.Fields)
		if err != nil {
			return nil, err
		}
		aliases = aliases.Merge(inline)
	}
	return aliases, nil
}
