// Package parse 集中处理门户侧的各种字符串编码
// "71.21 / 77 GB"、"$ -0.29"、DD/MM/YYYY 这类值在门户返回里形状不稳定，
// 统一在这里解析，失败一律以 ok=false 返回，绝不 panic
// @author ygw
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/shopspring/decimal"
)

var (
	// "X / Y" 形式的用量对，单位后缀随意（"71.21 / 77 GB"、"0.5/15"）
	pairPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)`)

	// 开头的数字前缀（"15 GB" -> 15）
	leadingPattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)

	// DD/MM/YYYY 严格匹配
	dayMonthYearPattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

	// 紧跟容量单位的数字（"Used 500 MB of bundle" -> 500, MB）
	// 需要前瞻断言排除不带单位的数字，标准库 regexp 不支持，沿用 regexp2
	amountPattern = regexp2.MustCompile(`(\d+(?:\.\d+)?)(?=\s*(GB|MB)\b)`, regexp2.IgnoreCase)
)

// GBPair 解析 "X / Y" 形式的用量对，返回 (已用, 总量)
func GBPair(s string) (used, total float64, ok bool) {
	m := pairPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	used, err1 := strconv.ParseFloat(m[1], 64)
	total, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return used, total, true
}

// LeadingNumber 解析开头的数字前缀（"15 GB" -> 15，"15" -> 15）
func LeadingNumber(s string) (float64, bool) {
	m := leadingPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AmountWithUnit 提取第一个带 GB/MB 单位的数值
// 门户的 ConsumptionValue 会混入别的数字（日期、百分比），只认紧跟单位的那个
func AmountWithUnit(s string) (val float64, unit string, ok bool) {
	m, err := amountPattern.FindStringMatch(s)
	if err != nil || m == nil {
		return 0, "", false
	}
	groups := m.Groups()
	if len(groups) < 3 {
		return 0, "", false
	}
	v, perr := strconv.ParseFloat(groups[1].String(), 64)
	if perr != nil {
		return 0, "", false
	}
	return v, strings.ToUpper(groups[2].String()), true
}

// ToGB 按单位归一化为 GB，未知单位原样返回
func ToGB(val float64, unit string) float64 {
	if strings.EqualFold(unit, "MB") {
		return val / 1024
	}
	return val
}

// Balance 解析带货币符号的余额字符串（"$ -0.29"、"-0.29$"、"LBP 15,000"）
func Balance(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1 // 丢弃货币符号、空格、千分位逗号
		}
	}, s)
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// IsDayMonthYear 校验 DD/MM/YYYY 格式（只看形状，不管日期合法性）
func IsDayMonthYear(s string) bool {
	return dayMonthYearPattern.MatchString(strings.TrimSpace(s))
}

// DayMonthYear 解析 DD/MM/YYYY 为本地时区日期
func DayMonthYear(s string) (time.Time, bool) {
	t, err := time.ParseInLocation("02/01/2006", strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DaysUntil 计算 now 到 DD/MM/YYYY 的天数差，按本地零点对齐
// 过期日期返回负数；四舍五入吸收夏令时造成的 ±1 小时偏差
func DaysUntil(dateStr string, now time.Time) (int, bool) {
	target, ok := DayMonthYear(dateStr)
	if !ok {
		return 0, false
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	return int(math.Round(target.Sub(midnight).Hours() / 24)), true
}

// Timestamp 解析多种历史表示的时间戳字符串
// 支持：epoch 秒、epoch 毫秒、RFC3339/带时区格式
func Timestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return EpochHeuristic(n), true
	}
	return time.Time{}, false
}

// EpochHeuristic 按量级区分 epoch 秒和毫秒
// 1e12 以上按毫秒处理（秒级要到公元 33658 年才有这个量级）
func EpochHeuristic(n float64) time.Time {
	if n >= 1e12 {
		return time.UnixMilli(int64(n))
	}
	return time.Unix(int64(n), 0)
}
