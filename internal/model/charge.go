package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field 规范字段（与源表列名无关的语义列）
type Field string

const (
	FieldLotRent         Field = "lot_rent"
	FieldTenant          Field = "tenant"
	FieldUnit            Field = "unit"
	FieldMoveInDate      Field = "move_in_date"
	FieldSecurityDeposit Field = "security_deposit"
	FieldSewerFee        Field = "sewer_fee"
	FieldGarbageFee      Field = "garbage_fee"
	FieldTotalCharges    Field = "total_charges"
	FieldPreviousCharges Field = "previous_charges"
)

// AllFields 规范字段的固定顺序（列解析按此顺序进行）
func AllFields() []Field {
	return []Field{
		FieldLotRent,
		FieldTenant,
		FieldUnit,
		FieldMoveInDate,
		FieldSecurityDeposit,
		FieldSewerFee,
		FieldGarbageFee,
		FieldTotalCharges,
		FieldPreviousCharges,
	}
}

// ParseField 校验字段名
func ParseField(s string) (Field, bool) {
	for _, f := range AllFields() {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// RawGrid 原始单元格网格（不假设表头）
type RawGrid [][]any

// HeaderMap 规范字段 -> 列索引；缺失字段不在 map 中
type HeaderMap map[Field]int

// Has 字段是否存在于表头
func (h HeaderMap) Has(f Field) bool {
	_, ok := h[f]
	return ok
}

// Verdict 审计结论
type Verdict string

const (
	VerdictPassed                    Verdict = "Passed"
	VerdictMissingLotRentColumn      Verdict = "MissingLotRentColumn"
	VerdictMissingLotRentCharge      Verdict = "MissingLotRentCharge"
	VerdictMissingSewerFee           Verdict = "MissingSewerFee"
	VerdictMissingGarbageFee         Verdict = "MissingGarbageFee"
	VerdictMissingSecurityDeposit    Verdict = "MissingSecurityDeposit"
	VerdictUnexpectedChargeVariation Verdict = "UnexpectedChargeVariation"
	VerdictProratedRentMismatch      Verdict = "ProratedRentMismatch"
)

// AllVerdicts 全部审计结论
func AllVerdicts() []Verdict {
	return []Verdict{
		VerdictPassed,
		VerdictMissingLotRentColumn,
		VerdictMissingLotRentCharge,
		VerdictMissingSewerFee,
		VerdictMissingGarbageFee,
		VerdictMissingSecurityDeposit,
		VerdictUnexpectedChargeVariation,
		VerdictProratedRentMismatch,
	}
}

// Record 单个租户/地块行
type Record struct {
	SourceRow int `json:"sourceRow"` // 源表行号（从 1 开始）

	Header  HeaderMap `json:"-"`
	Columns []string  `json:"-"` // 清洗后的表头（透传模式使用）
	Cells   []string  `json:"-"` // 清洗后的整行

	Values map[Field]string `json:"values"`

	// 关联补充（联表得到的入住日期）
	JoinedMoveIn *time.Time `json:"joinedMoveIn,omitempty"`

	// 审计派生字段
	MoveInDate           *time.Time       `json:"moveInDate,omitempty"`
	ExpectedProratedRent *decimal.Decimal `json:"expectedProratedRent,omitempty"`
	ChargeDifference     *decimal.Decimal `json:"chargeDifference,omitempty"`
	ProrationChecked     bool             `json:"prorationChecked"`
	ProrationMatched     bool             `json:"prorationMatched"`
	Verdict              Verdict          `json:"auditResult"`
	Fired                []Verdict        `json:"firedRules,omitempty"` // 按规则顺序记录所有命中的结论
	Notes                []string         `json:"notes,omitempty"`
}

// Value 取字段值；第二个返回值表示字段是否存在于表头
func (r *Record) Value(f Field) (string, bool) {
	if !r.Header.Has(f) {
		return "", false
	}
	return r.Values[f], true
}

// HasFired 某条规则是否命中过（可能已被后续规则覆盖）
func (r *Record) HasFired(v Verdict) bool {
	for _, f := range r.Fired {
		if f == v {
			return true
		}
	}
	return false
}

// AddNote 追加审计备注
func (r *Record) AddNote(note string) {
	r.Notes = append(r.Notes, note)
}

// MoveEvents 地块 -> 入住日期（只读共享输入）
type MoveEvents map[string]time.Time

// Lookup 按地块查找入住日期
func (m MoveEvents) Lookup(unitKey string) (time.Time, bool) {
	if m == nil {
		return time.Time{}, false
	}
	t, ok := m[unitKey]
	return t, ok
}

// Table 输出表
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}
