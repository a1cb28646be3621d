package parser

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

// AliasSet 规范字段 -> 列名别名（小写，子串匹配）
type AliasSet map[model.Field][]string

// DefaultAliases 内置别名表
func DefaultAliases() AliasSet {
	return AliasSet{
		model.FieldLotRent:         {"lotr", "lot rent", "base rent"},
		model.FieldTenant:          {"tenant", "resident"},
		model.FieldUnit:            {"unit"},
		model.FieldMoveInDate:      {"move_in_date", "move-in date", "move in date", "move-in", "move in"},
		model.FieldSecurityDeposit: {"security deposit", "sec dep", "deposit"},
		model.FieldSewerFee:        {"sewer"},
		model.FieldGarbageFee:      {"garbage", "trash"},
		model.FieldTotalCharges:    {"total charges", "total charge", "current charges"},
		model.FieldPreviousCharges: {"previous charges", "previous charge", "prior charges"},
	}
}

// Get 取字段别名
func (a AliasSet) Get(f model.Field) []string {
	return a[f]
}

// Merge 用 override 覆盖同名字段的别名列表，返回新集合
func (a AliasSet) Merge(override AliasSet) AliasSet {
	out := make(AliasSet, len(a)+len(override))
	for f, list := range a {
		out[f] = append([]string(nil), list...)
	}
	for f, list := range override {
		if len(list) == 0 {
			continue
		}
		out[f] = normalizeAliases(list)
	}
	return out
}

// AliasesFromMap 将配置中的字符串键转换为别名集合
func AliasesFromMap(raw map[string][]string) (AliasSet, error) {
	out := make(AliasSet, len(raw))
	for key, list := range raw {
		f, ok := model.ParseField(strings.TrimSpace(strings.ToLower(key)))
		if !ok {
			return nil, fmt.Errorf("unknown alias field %q", key)
		}
		out[f] = normalizeAliases(list)
	}
	return out, nil
}

// LoadAliasesFile 从 YAML 文件读取别名，格式：
//
//	lot_rent: ["lotr", "lot rent"]
//	unit: ["unit", "site"]
func LoadAliasesFile(path string) (AliasSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases file: %w", err)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse aliases file: %w", err)
	}
	return AliasesFromMap(raw)
}

func normalizeAliases(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.ToLower(Sanitize(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
