package parser

import (
	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

// FieldMapping 字段映射结果
type FieldMapping struct {
	Field       model.Field `json:"field"`
	ColumnIndex int         `json:"columnIndex"` // 列索引
	ColumnName  string      `json:"columnName"`  // 清洗后的列名
	Alias       string      `json:"alias"`       // 命中的别名
}

// FieldMapper 列名 -> 规范字段映射器
type FieldMapper struct {
	aliases AliasSet
}

// NewFieldMapper 创建字段映射器；aliases 为空时使用内置别名
func NewFieldMapper(aliases AliasSet) *FieldMapper {
	if len(aliases) == 0 {
		aliases = DefaultAliases()
	}
	return &FieldMapper{aliases: aliases}
}

// Aliases 当前使用的别名表
func (m *FieldMapper) Aliases() AliasSet {
	return m.aliases
}

// HeaderTokens 表头定位关键词（地租别名）
func (m *FieldMapper) HeaderTokens() []string {
	return m.aliases.Get(model.FieldLotRent)
}

// Resolve 解析表头，返回字段 -> 列索引
func (m *FieldMapper) Resolve(header []string) model.HeaderMap {
	hm := make(model.HeaderMap)
	for _, mp := range m.Map(header) {
		hm[mp.Field] = mp.ColumnIndex
	}
	return hm
}

// Map 解析表头并返回映射明细；同一字段多列命中时取最左侧列
func (m *FieldMapper) Map(header []string) []FieldMapping {
	normalized := make([]string, len(header))
	for i, col := range header {
		normalized[i] = NormalizeColumnName(col)
	}

	mappings := make([]FieldMapping, 0, len(model.AllFields()))
	for _, field := range model.AllFields() {
		aliases := m.aliases.Get(field)
		if len(aliases) == 0 {
			continue
		}
		for idx, col := range normalized {
			if col == "" {
				continue
			}
			alias, ok := matchAlias(col, aliases)
			if !ok {
				continue
			}
			mappings = append(mappings, FieldMapping{
				Field:       field,
				ColumnIndex: idx,
				ColumnName:  header[idx],
				Alias:       alias,
			})
			break
		}
	}
	return mappings
}

func matchAlias(col string, aliases []string) (string, bool) {
	for _, a := range aliases {
		if a != "" && ContainsAny(col, []string{a}) {
			return a, true
		}
	}
	return "", false
}
