package alfa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"alfa-admin/internal/logger"
)

// 门户抓取端点
// 路径来自门户前端实际调用的接口，随门户改版需要同步调整
const (
	pathLogin          = "/en/account/login"
	pathPrimaryDetails = "/en/account/getprimarypostpaiddetails"
	pathConsumption    = "/en/account/getconsumption"
	pathUShare         = "/en/account/ushare"
)

// FetchAccountSnapshot 抓取账号快照
// 登录门户后依次拉取主数据接口、用量接口和 U-Share 页面，
// 组装成 alfaData 载荷。接口级失败降级为缺字段，全部失败才报错
// @author ygw
func (c *Client) FetchAccountSnapshot(ctx context.Context, accountID, phone, password string) (json.RawMessage, error) {
	if phone == "" {
		return nil, fmt.Errorf("账号缺少门户手机号")
	}
	if password == "" {
		return nil, fmt.Errorf("账号缺少门户密码")
	}

	sess := c.newSession(accountID, phone)
	if err := sess.login(ctx, password); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{}
	var apiResponses []map[string]interface{}
	sources := 0

	// 主数据接口（primaryData 树）
	primaryURL := pathPrimaryDetails + "?msisdn=" + phone
	if body, err := sess.get(ctx, primaryURL); err != nil {
		logger.Warn("账号 %s 主数据接口抓取失败: %v", phone, err)
	} else if raw := asJSONObject(body); raw != nil {
		payload["primaryData"] = raw
		apiResponses = append(apiResponses, map[string]interface{}{
			"url":  primaryURL,
			"data": raw,
		})
		sources++
	}

	// 用量接口（totalConsumption / adminConsumption 等标量的来源之一）
	consumptionURL := pathConsumption + "?msisdn=" + phone
	if body, err := sess.get(ctx, consumptionURL); err != nil {
		logger.Warn("账号 %s 用量接口抓取失败: %v", phone, err)
	} else if raw := asJSONObject(body); raw != nil {
		apiResponses = append(apiResponses, map[string]interface{}{
			"url":  consumptionURL,
			"data": raw,
		})
		mergeConsumptionScalars(payload, raw)
		sources++
	}

	// U-Share 页面（用量圆环、名册、余额、有效期）
	if body, err := sess.get(ctx, pathUShare); err != nil {
		logger.Warn("账号 %s U-Share 页面抓取失败: %v", phone, err)
	} else {
		page := scrapeUSharePage(body)
		mergeScrapedPage(payload, page)
		sources++
	}

	if sources == 0 {
		return nil, fmt.Errorf("账号 %s 所有门户数据源均抓取失败", phone)
	}

	if len(apiResponses) > 0 {
		payload["apiResponses"] = apiResponses
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("组装快照失败: %w", err)
	}

	logger.Info("账号 %s 快照抓取完成 - 数据源: %d/3, 大小: %d 字节", phone, sources, len(data))
	return data, nil
}

// asJSONObject 校验响应体是合法 JSON 对象
// 门户偶尔对 JSON 接口返回 HTML 错误页，这里直接丢弃
func asJSONObject(body []byte) json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil
	}
	return json.RawMessage(trimmed)
}

// mergeConsumptionScalars 从用量接口应答中提取标量字段写入快照顶层
// 只搬运认识的键，形状交给对账层容错解析
func mergeConsumptionScalars(payload map[string]interface{}, raw json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}
	for _, key := range []string{
		"totalConsumption", "totalLimit", "adminConsumption",
		"subscribersCount", "subscribersActiveCount", "subscribersRequestedCount",
		"expiration", "validityDate", "subscriptionDate", "balance",
	} {
		if v, ok := fields[key]; ok {
			payload[key] = v
		}
	}
}

// mergeScrapedPage 将页面抓取结果合并进快照
// 接口给过的字段不覆盖，页面数据只做补充
func mergeScrapedPage(payload map[string]interface{}, page *scrapedPage) {
	if len(page.Circles) > 0 {
		payload["consumptions"] = page.Circles
	}
	if page.HasRoster {
		// 空名册也要写入：它是权威的"零副卡"信号
		subs := page.Subscribers
		if subs == nil {
			subs = []map[string]interface{}{}
		}
		payload["secondarySubscribers"] = subs
		active, requested := 0, 0
		for _, sub := range subs {
			switch status, _ := sub["status"].(string); strings.ToLower(status) {
			case "active":
				active++
			case "requested":
				requested++
			}
		}
		if _, ok := payload["subscribersCount"]; !ok {
			payload["subscribersCount"] = len(subs)
			payload["subscribersActiveCount"] = active
			payload["subscribersRequestedCount"] = requested
		}
	}
	if page.Balance != "" {
		if _, ok := payload["balance"]; !ok {
			payload["balance"] = page.Balance
		}
	}
	if page.ValidityDate != "" {
		if _, ok := payload["validityDate"]; !ok {
			payload["validityDate"] = page.ValidityDate
		}
	}
	if page.HasExpiry {
		if _, ok := payload["expiration"]; !ok {
			payload["expiration"] = page.Expiration
		}
	}
}
