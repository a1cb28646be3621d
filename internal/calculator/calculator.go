package calculator

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotApplicable 无法计算折算租金（日期缺失、越界或不在账期内）
var ErrNotApplicable = errors.New("proration not applicable")

const (
	minYear = 1900
	maxYear = 2100
)

// DefaultBaseRent 默认月基础地租
var DefaultBaseRent = decimal.NewFromInt(420)

// Calculator 入住月折算租金计算器
type Calculator struct {
	baseRent decimal.Decimal

	// 账期（可选）：设置后仅对入住日期落在该月的记录折算
	billingYear  int
	billingMonth time.Month
}

// Option 计算器选项
type Option func(*Calculator)

// WithBillingMonth 指定账期
func WithBillingMonth(year int, month time.Month) Option {
	return func(c *Calculator) {
		c.billingYear = year
		c.billingMonth = month
	}
}

// NewCalculator 创建计算器
func NewCalculator(baseRent decimal.Decimal, opts ...Option) *Calculator {
	c := &Calculator{baseRent: baseRent}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseRent 当前基础地租
func (c *Calculator) BaseRent() decimal.Decimal {
	return c.baseRent
}

// Expected 按账期规则计算折算租金
func (c *Calculator) Expected(moveIn time.Time) (decimal.Decimal, error) {
	if c.billingMonth != 0 && !moveIn.IsZero() {
		if moveIn.Year() != c.billingYear || moveIn.Month() != c.billingMonth {
			return decimal.Zero, ErrNotApplicable
		}
	}
	return ExpectedProratedRent(moveIn, c.baseRent)
}

// ExpectedProratedRent 入住当月应收租金：
// base - base/当月天数 * (入住日 - 1)，保留两位小数
func ExpectedProratedRent(moveIn time.Time, baseRent decimal.Decimal) (decimal.Decimal, error) {
	if moveIn.IsZero() || moveIn.Year() < minYear || moveIn.Year() > maxYear {
		return decimal.Zero, ErrNotApplicable
	}

	days := DaysInMonth(moveIn.Year(), moveIn.Month())
	notOccupied := decimal.NewFromInt(int64(moveIn.Day() - 1))
	daily := baseRent.Div(decimal.NewFromInt(int64(days)))

	return baseRent.Sub(daily.Mul(notOccupied)).Round(2), nil
}

// DaysInMonth 当月天数
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
