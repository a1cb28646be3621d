package audit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apollack123/charge-audit-bot2/internal/calculator"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

// newRecord 按给定字段构造记录，字段顺序决定列索引
func newRecord(values map[model.Field]string) *model.Record {
	hm := make(model.HeaderMap)
	idx := 0
	for _, f := range model.AllFields() {
		if _, ok := values[f]; ok {
			hm[f] = idx
			idx++
		}
	}
	return &model.Record{SourceRow: 2, Header: hm, Values: values}
}

func newTestEngine(opts Options) *Engine {
	return NewEngine(calculator.NewCalculator(calculator.DefaultBaseRent), opts)
}

func TestEvaluate_DefaultPassed(t *testing.T) {
	t.Parallel()

	r := newRecord(map[model.Field]string{
		model.FieldLotRent:    "420.00",
		model.FieldSewerFee:   "35.10",
		model.FieldGarbageFee: "18",
	})
	assert.Equal(t, model.VerdictPassed, newTestEngine(DefaultOptions()).Evaluate(r))
	assert.Empty(t, r.Fired)
	assert.Nil(t, r.ChargeDifference)
}

func TestEvaluate_MissingLotRentColumnIsTerminal(t *testing.T) {
	t.Parallel()

	r := newRecord(map[model.Field]string{
		model.FieldTenant:          "J. Smith",
		model.FieldSewerFee:        "",
		model.FieldGarbageFee:      "",
		model.FieldSecurityDeposit: "",
		model.FieldTotalCharges:    "900",
		model.FieldPreviousCharges: "100",
		model.FieldMoveInDate:      "2024-04-16",
	})
	v := newTestEngine(DefaultOptions()).Evaluate(r)

	assert.Equal(t, model.VerdictMissingLotRentColumn, v)
	assert.Equal(t, []model.Verdict{model.VerdictMissingLotRentColumn}, r.Fired)
	assert.Nil(t, r.ChargeDifference)
	require.NotNil(t, r.ExpectedProratedRent)
	assert.False(t, r.ProrationChecked)
}

func TestEvaluate_LotRentCharge(t *testing.T) {
	t.Parallel()

	e := newTestEngine(DefaultOptions())

	zero := newRecord(map[model.Field]string{model.FieldLotRent: "0"})
	assert.Equal(t, model.VerdictMissingLotRentCharge, e.Evaluate(zero))

	zeroFormatted := newRecord(map[model.Field]string{model.FieldLotRent: "$0.00"})
	assert.Equal(t, model.VerdictMissingLotRentCharge, e.Evaluate(zeroFormatted))

	// 会计格式的零
	zeroDash := newRecord(map[model.Field]string{model.FieldLotRent: "$ -"})
	assert.Equal(t, model.VerdictMissingLotRentCharge, e.Evaluate(zeroDash))
	assert.Equal(t, []model.Verdict{model.VerdictMissingLotRentCharge}, zeroDash.Fired)

	// 空值无法解析，规则不适用
	empty := newRecord(map[model.Field]string{model.FieldLotRent: ""})
	assert.Equal(t, model.VerdictPassed, e.Evaluate(empty))
	require.Len(t, empty.Notes, 1)
	assert.Contains(t, empty.Notes[0], "lot_rent_charge skipped")

	placeholder := newRecord(map[model.Field]string{model.FieldLotRent: "N/A"})
	assert.Equal(t, model.VerdictPassed, e.Evaluate(placeholder))
}

func TestEvaluate_UtilitiesLastWriteWins(t *testing.T) {
	t.Parallel()

	r := newRecord(map[model.Field]string{
		model.FieldLotRent:    "420",
		model.FieldSewerFee:   "",
		model.FieldGarbageFee: "",
	})
	v := newTestEngine(DefaultOptions()).Evaluate(r)

	assert.Equal(t, model.VerdictMissingGarbageFee, v)
	assert.Equal(t, []model.Verdict{model.VerdictMissingSewerFee, model.VerdictMissingGarbageFee}, r.Fired)
	assert.True(t, r.HasFired(model.VerdictMissingSewerFee))
	assert.Len(t, r.Notes, 2)
}

func TestEvaluate_AbsentFieldDiffersFromEmpty(t *testing.T) {
	t.Parallel()

	// 排污费列不存在：不触发
	r := newRecord(map[model.Field]string{model.FieldLotRent: "420"})
	assert.Equal(t, model.VerdictPassed, newTestEngine(DefaultOptions()).Evaluate(r))
}

func TestEvaluate_SecurityDepositPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		policy  model.DepositPolicy
		deposit string
		want    model.Verdict
	}{
		{"empty policy flags empty", model.DepositPolicyEmpty, "", model.VerdictMissingSecurityDeposit},
		{"empty policy ignores zero", model.DepositPolicyEmpty, "0", model.VerdictPassed},
		{"non positive flags zero", model.DepositPolicyNonPositive, "0.00", model.VerdictMissingSecurityDeposit},
		{"non positive flags negative", model.DepositPolicyNonPositive, "(50)", model.VerdictMissingSecurityDeposit},
		{"non positive passes positive", model.DepositPolicyNonPositive, "250", model.VerdictPassed},
		{"non positive unparseable is skipped", model.DepositPolicyNonPositive, "waived", model.VerdictPassed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			opts := DefaultOptions()
			opts.DepositPolicy = tc.policy
			r := newRecord(map[model.Field]string{
				model.FieldLotRent:         "420",
				model.FieldSecurityDeposit: tc.deposit,
			})
			assert.Equal(t, tc.want, newTestEngine(opts).Evaluate(r))
		})
	}
}

func TestEvaluate_ChargeVariation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(DefaultOptions())

	r := newRecord(map[model.Field]string{
		model.FieldLotRent:         "420",
		model.FieldSewerFee:        "",
		model.FieldTotalCharges:    "1,250.00",
		model.FieldPreviousCharges: "1,230.00",
	})
	assert.Equal(t, model.VerdictUnexpectedChargeVariation, e.Evaluate(r))
	require.NotNil(t, r.ChargeDifference)
	assert.True(t, r.ChargeDifference.Equal(decimal.NewFromInt(20)))
	assert.True(t, r.HasFired(model.VerdictMissingSewerFee))

	small := newRecord(map[model.Field]string{
		model.FieldLotRent:         "420",
		model.FieldTotalCharges:    "500",
		model.FieldPreviousCharges: "510",
	})
	assert.Equal(t, model.VerdictPassed, e.Evaluate(small))
	require.NotNil(t, small.ChargeDifference)
	assert.True(t, small.ChargeDifference.Equal(decimal.NewFromInt(-10)))

	bad := newRecord(map[model.Field]string{
		model.FieldLotRent:         "420",
		model.FieldTotalCharges:    "",
		model.FieldPreviousCharges: "510",
	})
	assert.Equal(t, model.VerdictPassed, e.Evaluate(bad))
	assert.Nil(t, bad.ChargeDifference)
}

func TestEvaluate_ProratedRent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(DefaultOptions())

	matched := newRecord(map[model.Field]string{
		model.FieldLotRent:    "210.75",
		model.FieldMoveInDate: "04/16/2024",
	})
	assert.Equal(t, model.VerdictPassed, e.Evaluate(matched))
	assert.True(t, matched.ProrationChecked)
	assert.True(t, matched.ProrationMatched)
	require.NotNil(t, matched.ExpectedProratedRent)
	assert.Equal(t, "210.00", matched.ExpectedProratedRent.StringFixed(2))

	mismatch := newRecord(map[model.Field]string{
		model.FieldLotRent:    "420",
		model.FieldMoveInDate: "2024-04-16",
	})
	assert.Equal(t, model.VerdictProratedRentMismatch, e.Evaluate(mismatch))
	assert.False(t, mismatch.ProrationMatched)
}

func TestEvaluate_ProrationMatchKeepsEarlierVerdict(t *testing.T) {
	t.Parallel()

	r := newRecord(map[model.Field]string{
		model.FieldLotRent:    "420",
		model.FieldSewerFee:   "",
		model.FieldMoveInDate: "2024-04-01",
	})
	assert.Equal(t, model.VerdictMissingSewerFee, newTestEngine(DefaultOptions()).Evaluate(r))
	assert.True(t, r.ProrationMatched)
}

func TestEvaluate_JoinedMoveIn(t *testing.T) {
	t.Parallel()

	e := newTestEngine(DefaultOptions())
	joined := time.Date(2024, time.April, 16, 0, 0, 0, 0, time.UTC)

	r := newRecord(map[model.Field]string{model.FieldLotRent: "420"})
	r.JoinedMoveIn = &joined
	assert.Equal(t, model.VerdictProratedRentMismatch, e.Evaluate(r))

	// 表内日期优先于联表日期
	direct := newRecord(map[model.Field]string{
		model.FieldLotRent:    "420",
		model.FieldMoveInDate: "2024-04-01",
	})
	direct.JoinedMoveIn = &joined
	assert.Equal(t, model.VerdictPassed, e.Evaluate(direct))
	assert.Equal(t, 1, direct.MoveInDate.Day())

	// 无法解析时退回联表日期
	fallback := newRecord(map[model.Field]string{
		model.FieldLotRent:    "420",
		model.FieldMoveInDate: "TBD",
	})
	fallback.JoinedMoveIn = &joined
	assert.Equal(t, model.VerdictProratedRentMismatch, e.Evaluate(fallback))
}

func TestEvaluate_NoMoveInLeavesProrationUnset(t *testing.T) {
	t.Parallel()

	r := newRecord(map[model.Field]string{
		model.FieldLotRent:    "420",
		model.FieldMoveInDate: "",
	})
	assert.Equal(t, model.VerdictPassed, newTestEngine(DefaultOptions()).Evaluate(r))
	assert.Nil(t, r.ExpectedProratedRent)
	assert.False(t, r.ProrationChecked)
}

func TestEvaluate_Idempotent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(DefaultOptions())
	r := newRecord(map[model.Field]string{
		model.FieldLotRent:  "420",
		model.FieldSewerFee: "",
	})
	first := e.Evaluate(r)
	notes := append([]string(nil), r.Notes...)
	second := e.Evaluate(r)

	assert.Equal(t, first, second)
	assert.Equal(t, notes, r.Notes)
}

func TestEvaluateAll_Counts(t *testing.T) {
	t.Parallel()

	records := []*model.Record{
		newRecord(map[model.Field]string{model.FieldLotRent: "420"}),
		newRecord(map[model.Field]string{model.FieldLotRent: "0"}),
		newRecord(map[model.Field]string{model.FieldTenant: "A"}),
		newRecord(map[model.Field]string{model.FieldLotRent: "1"}),
	}
	counts := newTestEngine(DefaultOptions()).EvaluateAll(records)

	assert.Equal(t, 2, counts[model.VerdictPassed])
	assert.Equal(t, 1, counts[model.VerdictMissingLotRentCharge])
	assert.Equal(t, 1, counts[model.VerdictMissingLotRentColumn])
}

func TestWithRules_CustomOrder(t *testing.T) {
	t.Parallel()

	always := Rule{Name: "always", Check: func(*evaluation) Outcome {
		return fire(model.VerdictMissingSecurityDeposit, "forced")
	}}
	e := NewEngine(nil, DefaultOptions(), WithRules([]Rule{always}))

	r := newRecord(map[model.Field]string{model.FieldLotRent: "0"})
	assert.Equal(t, model.VerdictMissingSecurityDeposit, e.Evaluate(r))
	assert.Len(t, e.Rules(), 1)
}
