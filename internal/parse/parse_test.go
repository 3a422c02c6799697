package parse

import (
	"testing"
	"time"
)

// TestGBPair 测试 "X / Y" 用量对解析
func TestGBPair(t *testing.T) {
	cases := []struct {
		input       string
		used, total float64
		ok          bool
	}{
		{"71.21 / 77 GB", 71.21, 77, true},
		{"0.5/15", 0.5, 15, true},
		{"12 / 15 GB used", 12, 15, true},
		{"15 GB", 0, 0, false},
		{"", 0, 0, false},
		{"abc / def", 0, 0, false},
	}

	for _, c := range cases {
		used, total, ok := GBPair(c.input)
		if ok != c.ok {
			t.Errorf("GBPair(%q) ok = %v, 期望 %v", c.input, ok, c.ok)
			continue
		}
		if ok && (used != c.used || total != c.total) {
			t.Errorf("GBPair(%q) = (%v, %v), 期望 (%v, %v)", c.input, used, total, c.used, c.total)
		}
	}
}

// TestLeadingNumber 测试数字前缀解析
func TestLeadingNumber(t *testing.T) {
	cases := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"15 GB", 15, true},
		{"15", 15, true},
		{"  7.5GB", 7.5, true},
		{"GB 15", 0, false},
		{"", 0, false},
	}

	for _, c := range cases {
		got, ok := LeadingNumber(c.input)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("LeadingNumber(%q) = (%v, %v), 期望 (%v, %v)", c.input, got, ok, c.want, c.ok)
		}
	}
}

// TestAmountWithUnit 测试带单位数值提取
func TestAmountWithUnit(t *testing.T) {
	cases := []struct {
		input string
		val   float64
		unit  string
		ok    bool
	}{
		{"71.21 GB", 71.21, "GB", true},
		{"500 MB", 500, "MB", true},
		{"Valid till 15/03/2025, used 1.5 GB", 1.5, "GB", true}, // 日期数字不能被当成用量
		{"1024mb", 1024, "MB", true},
		{"no amount here", 0, "", false},
		{"42", 0, "", false}, // 无单位不取
	}

	for _, c := range cases {
		val, unit, ok := AmountWithUnit(c.input)
		if ok != c.ok {
			t.Errorf("AmountWithUnit(%q) ok = %v, 期望 %v", c.input, ok, c.ok)
			continue
		}
		if ok && (val != c.val || unit != c.unit) {
			t.Errorf("AmountWithUnit(%q) = (%v, %s), 期望 (%v, %s)", c.input, val, unit, c.val, c.unit)
		}
	}
}

// TestToGB 测试 MB 到 GB 换算
func TestToGB(t *testing.T) {
	if got := ToGB(512, "MB"); got != 0.5 {
		t.Errorf("ToGB(512, MB) = %v, 期望 0.5", got)
	}
	if got := ToGB(7, "GB"); got != 7 {
		t.Errorf("ToGB(7, GB) = %v, 期望 7", got)
	}
	if got := ToGB(7, ""); got != 7 {
		t.Errorf("ToGB(7, \"\") = %v, 期望 7", got)
	}
}

// TestBalance 测试余额字符串解析
func TestBalance(t *testing.T) {
	cases := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"$ -0.29", -0.29, true},
		{"-0.29$", -0.29, true},
		{"LBP 15,000", 15000, true},
		{"0", 0, true},
		{"$", 0, false},
		{"", 0, false},
	}

	for _, c := range cases {
		got, ok := Balance(c.input)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("Balance(%q) = (%v, %v), 期望 (%v, %v)", c.input, got, ok, c.want, c.ok)
		}
	}
}

// TestDayMonthYear 测试 DD/MM/YYYY 解析与校验
func TestDayMonthYear(t *testing.T) {
	if !IsDayMonthYear("15/03/2025") {
		t.Error("15/03/2025 应通过格式校验")
	}
	if IsDayMonthYear("2025-03-15") || IsDayMonthYear("") || IsDayMonthYear("5/3/2025") {
		t.Error("非 DD/MM/YYYY 格式不应通过校验")
	}

	d, ok := DayMonthYear("15/03/2025")
	if !ok {
		t.Fatal("解析 15/03/2025 失败")
	}
	if d.Day() != 15 || d.Month() != time.March || d.Year() != 2025 {
		t.Errorf("解析结果错误: %v", d)
	}
	if _, ok := DayMonthYear("99/99/2025"); ok {
		t.Error("非法日期不应解析成功")
	}
}

// TestDaysUntil 测试按本地零点对齐的天数差
func TestDaysUntil(t *testing.T) {
	now := time.Date(2025, 3, 1, 18, 30, 0, 0, time.Local)

	days, ok := DaysUntil("21/03/2025", now)
	if !ok || days != 20 {
		t.Errorf("DaysUntil(21/03/2025) = (%d, %v), 期望 (20, true)", days, ok)
	}

	// 当天深夜也应算整天差（零点对齐）
	days, ok = DaysUntil("02/03/2025", now)
	if !ok || days != 1 {
		t.Errorf("DaysUntil(02/03/2025) = (%d, %v), 期望 (1, true)", days, ok)
	}

	// 过期返回负数
	days, ok = DaysUntil("27/02/2025", now)
	if !ok || days != -2 {
		t.Errorf("DaysUntil(27/02/2025) = (%d, %v), 期望 (-2, true)", days, ok)
	}

	if _, ok := DaysUntil("not a date", now); ok {
		t.Error("非法日期不应返回 ok")
	}
}

// TestTimestamp 测试多种时间戳表示的解析
func TestTimestamp(t *testing.T) {
	// RFC3339
	ts, ok := Timestamp("2025-03-01T10:00:00+02:00")
	if !ok || ts.UTC().Hour() != 8 {
		t.Errorf("RFC3339 解析错误: (%v, %v)", ts, ok)
	}

	// epoch 秒
	ts, ok = Timestamp("1740800000")
	if !ok || ts.Unix() != 1740800000 {
		t.Errorf("epoch 秒解析错误: (%v, %v)", ts, ok)
	}

	// epoch 毫秒
	ts, ok = Timestamp("1740800000000")
	if !ok || ts.UnixMilli() != 1740800000000 {
		t.Errorf("epoch 毫秒解析错误: (%v, %v)", ts, ok)
	}

	if _, ok := Timestamp(""); ok {
		t.Error("空串不应解析成功")
	}
	if _, ok := Timestamp("yesterday"); ok {
		t.Error("无法解析的字符串不应返回 ok")
	}
}
