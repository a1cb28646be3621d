package audit

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Apollack123/charge-audit-bot2/internal/model"
	"github.com/Apollack123/charge-audit-bot2/internal/parser"
)

// OutcomeKind 单条规则的执行结果类型
type OutcomeKind int

const (
	NotApplicable OutcomeKind = iota // 规则不适用
	Applicable                       // 规则命中，给出结论
	ParseError                       // 取值解析失败，视为不适用
)

func (k OutcomeKind) String() string {
	switch k {
	case Applicable:
		return "applicable"
	case ParseError:
		return "parse_error"
	default:
		return "not_applicable"
	}
}

// Outcome 规则结果
type Outcome struct {
	Kind    OutcomeKind
	Verdict model.Verdict
	Note    string
	Err     error
}

func fire(v model.Verdict, format string, args ...any) Outcome {
	return Outcome{Kind: Applicable, Verdict: v, Note: fmt.Sprintf(format, args...)}
}

func skip() Outcome {
	return Outcome{Kind: NotApplicable}
}

func parseFailed(err error) Outcome {
	return Outcome{Kind: ParseError, Err: err}
}

// Rule 审计规则
type Rule struct {
	Name string
	// RequiresLotRent 为 true 时，地租列缺失则跳过
	RequiresLotRent bool
	Check           func(*evaluation) Outcome
}

// evaluation 单条记录的求值上下文
type evaluation struct {
	record *model.Record
	opts   Options
}

// amount 解析字段金额；字段缺失返回 present=false
func (ev *evaluation) amount(f model.Field) (d decimal.Decimal, present bool, err error) {
	raw, ok := ev.record.Value(f)
	if !ok {
		return decimal.Zero, false, nil
	}
	d, err = parser.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("%s: %w", f, err)
	}
	return d, true, nil
}

// DefaultRules 内置规则，顺序即优先级：后命中的结论覆盖先命中的
func DefaultRules() []Rule {
	return []Rule{
		{Name: "lot_rent_column", Check: checkLotRentColumn},
		{Name: "lot_rent_charge", RequiresLotRent: true, Check: checkLotRentCharge},
		{Name: "sewer_fee", RequiresLotRent: true, Check: checkEmptyField(model.FieldSewerFee, model.VerdictMissingSewerFee)},
		{Name: "garbage_fee", RequiresLotRent: true, Check: checkEmptyField(model.FieldGarbageFee, model.VerdictMissingGarbageFee)},
		{Name: "security_deposit", RequiresLotRent: true, Check: checkSecurityDeposit},
		{Name: "charge_variation", RequiresLotRent: true, Check: checkChargeVariation},
		{Name: "prorated_rent", RequiresLotRent: true, Check: checkProratedRent},
	}
}

func checkLotRentColumn(ev *evaluation) Outcome {
	if ev.record.Header.Has(model.FieldLotRent) {
		return skip()
	}
	return fire(model.VerdictMissingLotRentColumn, "lot rent column not found")
}

func checkLotRentCharge(ev *evaluation) Outcome {
	d, _, err := ev.amount(model.FieldLotRent)
	if err != nil {
		return parseFailed(err)
	}
	if !d.IsZero() {
		return skip()
	}
	return fire(model.VerdictMissingLotRentCharge, "lot rent charge is zero")
}

func checkEmptyField(f model.Field, v model.Verdict) func(*evaluation) Outcome {
	return func(ev *evaluation) Outcome {
		raw, ok := ev.record.Value(f)
		if !ok || raw != "" {
			return skip()
		}
		return fire(v, "%s is empty", f)
	}
}

func checkSecurityDeposit(ev *evaluation) Outcome {
	raw, ok := ev.record.Value(model.FieldSecurityDeposit)
	if !ok {
		return skip()
	}
	if raw == "" {
		return fire(model.VerdictMissingSecurityDeposit, "security deposit is empty")
	}
	if ev.opts.DepositPolicy != model.DepositPolicyNonPositive {
		return skip()
	}
	d, err := parser.ParseAmount(raw)
	if err != nil {
		return parseFailed(fmt.Errorf("%s: %w", model.FieldSecurityDeposit, err))
	}
	if d.IsPositive() {
		return skip()
	}
	return fire(model.VerdictMissingSecurityDeposit, "security deposit is %s", d.StringFixed(2))
}

func checkChargeVariation(ev *evaluation) Outcome {
	total, okTotal, err := ev.amount(model.FieldTotalCharges)
	if err != nil {
		return parseFailed(err)
	}
	prev, okPrev, err := ev.amount(model.FieldPreviousCharges)
	if err != nil {
		return parseFailed(err)
	}
	if !okTotal || !okPrev {
		return skip()
	}

	diff := total.Sub(prev)
	ev.record.ChargeDifference = &diff
	if diff.Abs().LessThanOrEqual(ev.opts.VariationThreshold) {
		return skip()
	}
	return fire(model.VerdictUnexpectedChargeVariation,
		"charges changed by %s (threshold %s)", diff.StringFixed(2), ev.opts.VariationThreshold.StringFixed(2))
}

func checkProratedRent(ev *evaluation) Outcome {
	r := ev.record
	if r.ExpectedProratedRent == nil {
		return skip()
	}
	actual, _, err := ev.amount(model.FieldLotRent)
	if err != nil {
		return parseFailed(err)
	}

	r.ProrationChecked = true
	if actual.Sub(*r.ExpectedProratedRent).Abs().LessThanOrEqual(ev.opts.ProrationTolerance) {
		r.ProrationMatched = true
		return skip()
	}
	return fire(model.VerdictProratedRentMismatch,
		"lot rent %s differs from expected prorated rent %s", actual.StringFixed(2), r.ExpectedProratedRent.StringFixed(2))
}

// resolveMoveIn 入住日期：表内日期优先，其次联表结果；表内日期无法解析且无联表结果时返回错误
func resolveMoveIn(r *model.Record) error {
	if raw, ok := r.Value(model.FieldMoveInDate); ok && raw != "" {
		t, err := parser.ParseDate(raw)
		if err == nil {
			r.MoveInDate = &t
			return nil
		}
		if r.JoinedMoveIn == nil {
			return fmt.Errorf("%s: %w", model.FieldMoveInDate, err)
		}
	}
	if r.JoinedMoveIn != nil {
		t := *r.JoinedMoveIn
		r.MoveInDate = &t
	}
	return nil
}
