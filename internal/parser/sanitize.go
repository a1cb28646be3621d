package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrInvalidAmount 金额无法解析
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidDate 日期无法解析
	ErrInvalidDate = errors.New("invalid date")
)

// Sanitize 清洗单元格值：转为字符串、剔除不可打印字符、压缩空白
// nil 返回空串。幂等：Sanitize(Sanitize(x)) == Sanitize(x)
func Sanitize(value any) string {
	var s string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		s = v
	case []byte:
		s = string(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ""
		}
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case bool:
		s = strconv.FormatBool(v)
	case time.Time:
		if v.IsZero() {
			return ""
		}
		s = v.Format(dateLayout)
	case decimal.Decimal:
		s = v.String()
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\u00a0':
			pendingSpace = true
		case r > ' ' && r <= '~':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseAmount 解析金额：去除千分位逗号与货币符号，支持会计负数 "(12.50)"、尾随负号 "12.50-" 与会计零 "$ -"
func ParseAmount(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
		}
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}

	raw := Sanitize(value)
	s := strings.ReplaceAll(raw, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(s, "$")

	negative := false
	dashed := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		dashed = true
		s = s[1:]
	} else if strings.HasSuffix(s, "-") {
		// 尾随负号 "12.50-"
		negative = !negative
		dashed = true
		s = s[:len(s)-1]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "$")

	if s == "" {
		// 会计格式的零 "$ -"
		if dashed {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

const dateLayout = "2006-01-02"

// 文本日期格式（按顺序尝试）
var dateLayouts = []string{
	dateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"01-02-06",
	"1-2-06",
	// 日期时间单元格的显示文本（例如 "4/16/24 00:00"）
	"1/2/06 15:04",
	"1/2/06 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"01-02-06 15:04",
	"2006-01-02 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"02-Jan-06",
	"2 Jan 2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// 文本序列号：整数部分 + 可选小数（时间部分）
var serialText = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// minTextSerial 文本序列号下限，"5" 这类小整数不视为日期
const minTextSerial = 366

// ParseDate 解析日期：支持 time.Time、Excel 序列号与常见文本格式
func ParseDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrInvalidDate)
		}
		return truncateDay(v), nil
	case float64:
		return excelSerialToDate(v)
	case int:
		return excelSerialToDate(float64(v))
	case int64:
		return excelSerialToDate(float64(v))
	}

	s := Sanitize(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), nil
		}
	}
	// 文本形式的 Excel 序列号（例如 RawCellValue 读取）；只接受普通数字且大于一年的天数
	if serialText.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > minTextSerial {
			return excelSerialToDate(f)
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func excelSerialToDate(serial float64) (time.Time, error) {
	if serial <= 0 || math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, fmt.Errorf("%w: serial %v", ErrInvalidDate, serial)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return truncateDay(t), nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate 输出统一日期格式
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
