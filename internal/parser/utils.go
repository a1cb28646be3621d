package parser

import (
	"strings"
)

// NormalizeColumnName 规范化列名：清洗后转小写
func NormalizeColumnName(name string) string {
	return strings.ToLower(Sanitize(name))
}

// ContainsAny 检查字符串是否包含任意一个关键词
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// SanitizeRow 清洗整行
func SanitizeRow(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = Sanitize(v)
	}
	return out
}

// IsBlankRow 整行是否为空
func IsBlankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

// UnitKey 地块联表键
func UnitKey(unit string) string {
	return strings.ToLower(Sanitize(unit))
}
