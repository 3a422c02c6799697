package alfa

import (
	"testing"
)

const sampleUSharePage = `<!DOCTYPE html>
<html><body>
<div class="dashboard">
  <span class="account-balance">$ 12.30</span>
  <span class="validity-date">21/03/2025</span>
  <span class="expiration-days">15</span>
  <div class="consumption-circle" data-label="U-Share Total Bundle" data-used="40" data-total="77" data-unit="GB"></div>
  <div class="consumption-circle" data-label="U-Share Main" data-used="512" data-total="20480" data-unit="MB"></div>
  <table class="ushare-subscribers">
    <tr class="subscriber-row" data-phone="70111111" data-status="Active" data-consumption="1.2 / 5 GB"></tr>
    <tr class="subscriber-row" data-phone="70222222" data-status="Requested"></tr>
  </table>
</div>
</body></html>`

// TestScrapeUSharePage 测试 U-Share 页面解析
func TestScrapeUSharePage(t *testing.T) {
	page := scrapeUSharePage([]byte(sampleUSharePage))

	if page.Balance != "$ 12.30" {
		t.Errorf("余额 = %q, 期望 $ 12.30", page.Balance)
	}
	if page.ValidityDate != "21/03/2025" {
		t.Errorf("有效期 = %q, 期望 21/03/2025", page.ValidityDate)
	}
	if !page.HasExpiry || page.Expiration != 15 {
		t.Errorf("过期天数 = %d (set=%v), 期望 15", page.Expiration, page.HasExpiry)
	}

	if len(page.Circles) != 2 {
		t.Fatalf("圆环数 = %d, 期望 2", len(page.Circles))
	}
	if page.Circles[0]["label"] != "U-Share Total Bundle" {
		t.Errorf("圆环标签 = %v", page.Circles[0]["label"])
	}
	if page.Circles[1]["unit"] != "MB" {
		t.Errorf("圆环单位 = %v, 期望 MB", page.Circles[1]["unit"])
	}

	if !page.HasRoster {
		t.Error("应识别出名册表格")
	}
	if len(page.Subscribers) != 2 {
		t.Fatalf("副卡数 = %d, 期望 2", len(page.Subscribers))
	}
	if page.Subscribers[0]["phoneNumber"] != "70111111" {
		t.Errorf("副卡号码 = %v", page.Subscribers[0]["phoneNumber"])
	}
	if page.Subscribers[0]["consumption"] != "1.2 / 5 GB" {
		t.Errorf("副卡用量 = %v", page.Subscribers[0]["consumption"])
	}
	if page.Subscribers[1]["status"] != "Requested" {
		t.Errorf("副卡状态 = %v", page.Subscribers[1]["status"])
	}
}

// TestScrapeUSharePage_EmptyRoster 测试空名册页面
// 名册表格存在但没有行，是权威的"零副卡"信号
func TestScrapeUSharePage_EmptyRoster(t *testing.T) {
	body := `<html><body><table class="ushare-subscribers"></table></body></html>`
	page := scrapeUSharePage([]byte(body))

	if !page.HasRoster {
		t.Error("空名册表格也应识别为有名册")
	}
	if len(page.Subscribers) != 0 {
		t.Errorf("副卡数 = %d, 期望 0", len(page.Subscribers))
	}
}

// TestScrapeUSharePage_Malformed 测试残缺页面不崩溃
func TestScrapeUSharePage_Malformed(t *testing.T) {
	cases := []string{
		"",
		"not html at all",
		`<div class="consumption-circle"></div>`,                            // 没有 label 的圆环要跳过
		`<tr class="subscriber-row" data-status="Active"></tr>`,             // 没有号码的行要跳过
		`<span class="expiration-days">soon</span>`,                         // 非数字的过期天数
		`<div class="consumption-circle" data-label="x" data-used="abc">.`,  // 非数字属性
	}

	for _, body := range cases {
		page := scrapeUSharePage([]byte(body))
		if len(page.Circles) != 0 && page.Circles[0]["label"] == "" {
			t.Errorf("残缺圆环不应被收录: %q", body)
		}
		if len(page.Subscribers) != 0 {
			t.Errorf("残缺副卡行不应被收录: %q", body)
		}
		if page.HasExpiry {
			t.Errorf("非法过期天数不应置位: %q", body)
		}
	}
}
