package report

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
	"github.com/Apollack123/charge-audit-bot2/internal/parser"
	"github.com/Apollack123/charge-audit-bot2/internal/service/audit"
)

// 派生列
const (
	ColExpectedProratedRent = "Expected Prorated Rent"
	ColChargeDifference     = "Charge Difference"
	ColAuditResult          = "Audit Result"
)

// NoDataPlaceholder 空结果占位
const NoDataPlaceholder = "No data available"

// StructuredColumns 固定结构模式的列
func StructuredColumns() []string {
	return []string{
		"Unit",
		"Tenant",
		"Move-In Date",
		"Lot Rent Charged",
		"Expected Prorated Rent",
		"Prorated Rent Status",
		"Security Deposit Charged?",
		"Missing Utilities?",
		"Unexpected Charge Variations?",
		"Audit Notes",
	}
}

// Assembler 报告组装：联表 -> 审计 -> 成表
type Assembler struct {
	engine *audit.Engine
	mode   model.ReportMode
	logger zerolog.Logger
}

// NewAssembler 创建组装器；mode 为空时使用结构化模式
func NewAssembler(engine *audit.Engine, mode model.ReportMode, logger zerolog.Logger) *Assembler {
	if mode == "" {
		mode = model.ReportModeStructured
	}
	return &Assembler{engine: engine, mode: mode, logger: logger}
}

// Mode 当前输出模式
func (a *Assembler) Mode() model.ReportMode {
	return a.mode
}

// WithMode 返回使用指定模式的副本；mode 为空时沿用当前模式
func (a *Assembler) WithMode(mode model.ReportMode) *Assembler {
	if mode == "" || mode == a.mode {
		return a
	}
	cp := *a
	cp.mode = mode
	return &cp
}

// Join 按地块左联入住日期，返回匹配条数；未匹配的记录保持原样
func (a *Assembler) Join(records []*model.Record, events model.MoveEvents) int {
	if len(events) == 0 {
		return 0
	}
	matched := 0
	for _, r := range records {
		unit, ok := r.Value(model.FieldUnit)
		if !ok || unit == "" {
			continue
		}
		t, ok := events.Lookup(parser.UnitKey(unit))
		if !ok {
			continue
		}
		moveIn := t
		r.JoinedMoveIn = &moveIn
		matched++
	}
	a.logger.Debug().Int("records", len(records)).Int("matched", matched).Msg("move events joined")
	return matched
}

// Assemble 联表后逐行审计并输出表格
func (a *Assembler) Assemble(records []*model.Record, events model.MoveEvents) model.Table {
	a.Join(records, events)
	a.engine.EvaluateAll(records)
	return a.Tabulate(records)
}

// Tabulate 按模式输出；无数据时输出单行占位
func (a *Assembler) Tabulate(records []*model.Record) model.Table {
	if a.mode == model.ReportModePassthrough {
		return passthroughTable(records)
	}
	return structuredTable(records)
}

func passthroughTable(records []*model.Record) model.Table {
	derived := []string{ColExpectedProratedRent, ColChargeDifference, ColAuditResult}

	var source []string
	if len(records) > 0 {
		source = records[0].Columns
	}
	columns := make([]string, 0, len(source)+len(derived))
	columns = append(columns, source...)
	columns = append(columns, derived...)

	if len(records) == 0 {
		return placeholder(columns)
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(columns))
		copy(row, r.Cells[:min(len(r.Cells), len(source))])
		n := len(source)
		row[n] = decimalCell(r.ExpectedProratedRent)
		row[n+1] = decimalCell(r.ChargeDifference)
		row[n+2] = string(r.Verdict)
		rows = append(rows, row)
	}
	return model.Table{Columns: columns, Rows: rows}
}

func structuredTable(records []*model.Record) model.Table {
	columns := StructuredColumns()
	if len(records) == 0 {
		return placeholder(columns)
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		unit, _ := r.Value(model.FieldUnit)
		tenant, _ := r.Value(model.FieldTenant)
		lotRent, _ := r.Value(model.FieldLotRent)

		moveIn := ""
		if r.MoveInDate != nil {
			moveIn = parser.FormatDate(*r.MoveInDate)
		}

		rows = append(rows, []string{
			unit,
			tenant,
			moveIn,
			lotRent,
			decimalCell(r.ExpectedProratedRent),
			prorationStatus(r),
			depositCharged(r),
			missingUtilities(r),
			chargeVariation(r),
			auditNotes(r),
		})
	}
	return model.Table{Columns: columns, Rows: rows}
}

func placeholder(columns []string) model.Table {
	if len(columns) == 0 {
		columns = []string{ColAuditResult}
	}
	row := make([]string, len(columns))
	row[0] = NoDataPlaceholder
	return model.Table{Columns: columns, Rows: [][]string{row}}
}

func prorationStatus(r *model.Record) string {
	switch {
	case !r.ProrationChecked:
		return "Not Checked"
	case r.ProrationMatched:
		return "Matched"
	default:
		return "Mismatch"
	}
}

func depositCharged(r *model.Record) string {
	if !r.Header.Has(model.FieldSecurityDeposit) || !r.Header.Has(model.FieldLotRent) {
		return "N/A"
	}
	if r.HasFired(model.VerdictMissingSecurityDeposit) {
		return "No"
	}
	return "Yes"
}

func missingUtilities(r *model.Record) string {
	var missing []string
	if r.HasFired(model.VerdictMissingSewerFee) {
		missing = append(missing, "Sewer")
	}
	if r.HasFired(model.VerdictMissingGarbageFee) {
		missing = append(missing, "Garbage")
	}
	if len(missing) == 0 {
		return "No"
	}
	return "Yes (" + strings.Join(missing, ", ") + ")"
}

func chargeVariation(r *model.Record) string {
	if r.ChargeDifference == nil {
		return "N/A"
	}
	if r.HasFired(model.VerdictUnexpectedChargeVariation) {
		return "Yes (" + r.ChargeDifference.StringFixed(2) + ")"
	}
	return "No"
}

func auditNotes(r *model.Record) string {
	if len(r.Notes) == 0 {
		return string(r.Verdict)
	}
	return string(r.Verdict) + ": " + strings.Join(r.Notes, "; ")
}

func decimalCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
