package audit

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Apollack123/charge-audit-bot2/internal/calculator"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

// Options 审计阈值与口径
type Options struct {
	VariationThreshold decimal.Decimal     // 本期与上期费用差额阈值
	ProrationTolerance decimal.Decimal     // 折算租金允许误差
	DepositPolicy      model.DepositPolicy // 押金缺失判定口径
}

// DefaultOptions 默认口径
func DefaultOptions() Options {
	return Options{
		VariationThreshold: decimal.NewFromInt(10),
		ProrationTolerance: decimal.NewFromInt(1),
		DepositPolicy:      model.DepositPolicyEmpty,
	}
}

// Engine 审计规则引擎
type Engine struct {
	rules  []Rule
	opts   Options
	calc   *calculator.Calculator
	logger zerolog.Logger
}

// EngineOption 引擎选项
type EngineOption func(*Engine)

// WithRules 替换规则列表
func WithRules(rules []Rule) EngineOption {
	return func(e *Engine) {
		e.rules = rules
	}
}

// WithLogger 设置日志
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine 创建审计引擎；calc 为空时使用默认基础地租
func NewEngine(calc *calculator.Calculator, opts Options, options ...EngineOption) *Engine {
	if calc == nil {
		calc = calculator.NewCalculator(calculator.DefaultBaseRent)
	}
	if opts.DepositPolicy == "" {
		opts.DepositPolicy = model.DepositPolicyEmpty
	}
	e := &Engine{
		rules:  DefaultRules(),
		opts:   opts,
		calc:   calc,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Rules 当前规则列表
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Options 当前口径
func (e *Engine) Options() Options {
	return e.opts
}

// Evaluate 依次执行规则，保留最后一个命中的结论；解析失败只记录，不中断
func (e *Engine) Evaluate(r *model.Record) model.Verdict {
	resetDerived(r)

	log := e.logger.With().Int("row", r.SourceRow).Logger()

	if err := resolveMoveIn(r); err != nil {
		log.Debug().Err(err).Msg("move-in date not usable")
		r.AddNote("move-in date could not be parsed")
	}
	if r.MoveInDate != nil {
		expected, err := e.calc.Expected(*r.MoveInDate)
		switch {
		case err == nil:
			r.ExpectedProratedRent = &expected
		case errors.Is(err, calculator.ErrNotApplicable):
			log.Debug().Time("move_in", *r.MoveInDate).Msg("proration not applicable")
		}
	}

	ev := &evaluation{record: r, opts: e.opts}
	lotRentPresent := r.Header.Has(model.FieldLotRent)

	for _, rule := range e.rules {
		if rule.RequiresLotRent && !lotRentPresent {
			continue
		}
		out := rule.Check(ev)
		switch out.Kind {
		case Applicable:
			r.Verdict = out.Verdict
			r.Fired = append(r.Fired, out.Verdict)
			if out.Note != "" {
				r.AddNote(out.Note)
			}
		case ParseError:
			log.Debug().Str("rule", rule.Name).Err(out.Err).Msg("rule skipped")
			r.AddNote(rule.Name + " skipped: " + out.Err.Error())
		}
	}
	return r.Verdict
}

// EvaluateAll 批量求值，返回各结论计数
func (e *Engine) EvaluateAll(records []*model.Record) map[model.Verdict]int {
	counts := make(map[model.Verdict]int)
	for _, r := range records {
		counts[e.Evaluate(r)]++
	}
	return counts
}

func resetDerived(r *model.Record) {
	r.Verdict = model.VerdictPassed
	r.Fired = nil
	r.Notes = nil
	r.MoveInDate = nil
	r.ExpectedProratedRent = nil
	r.ChargeDifference = nil
	r.ProrationChecked = false
	r.ProrationMatched = false
}
