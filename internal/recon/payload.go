// Package recon 实现对账引擎：把门户抓取的松散 JSON 快照
// 归一化为控制台使用的视图模型（状态、用量、名册、过期、刷新时间）
// 引擎全部为纯函数，任何解析失败都降级为"该来源无值"，从不向上抛错
package recon

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"alfa-admin/internal/models"
	"alfa-admin/internal/parse"
)

// flexString 兼容字符串/数字/布尔三种 JSON 表示的字符串字段
// 解析失败置空，不报错
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	// 数字、布尔等标量原样转为字符串
	*f = flexString(string(b))
	return nil
}

func (f flexString) String() string {
	return string(f)
}

// flexFloat 兼容数字和数字字符串的浮点字段，Set 区分缺失与零值
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		f.Value, f.Set = n, true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			f.Value, f.Set = v, true
		}
	}
	return nil
}

// flexInt 兼容数字和数字字符串的整型字段
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var ff flexFloat
	if err := ff.UnmarshalJSON(b); err != nil {
		return nil
	}
	if ff.Set {
		f.Value, f.Set = int(ff.Value), true
	}
	return nil
}

// primaryData 门户 API 原始树（只声明对账用到的分支）
type primaryData struct {
	ServiceInformationValue []serviceInformation `json:"ServiceInformationValue"`
}

type serviceInformation struct {
	ServiceNameValue               flexString       `json:"ServiceNameValue"`
	ServiceDetailsInformationValue []serviceDetails `json:"ServiceDetailsInformationValue"`
}

// name 规范化后的服务名（小写去空白）
func (s serviceInformation) name() string {
	return strings.ToLower(strings.TrimSpace(s.ServiceNameValue.String()))
}

type serviceDetails struct {
	PackageValue      flexString       `json:"PackageValue"`
	ConsumptionValue  flexString       `json:"ConsumptionValue"`
	ValidityDateValue flexString       `json:"ValidityDateValue"`
	SecondaryValue    []secondaryValue `json:"SecondaryValue"`
}

type secondaryValue struct {
	ServiceNameValue flexString `json:"ServiceNameValue"`
	MSISDNValue      flexString `json:"MSISDNValue"`
	ConsumptionValue flexString `json:"ConsumptionValue"`
	PackageValue     flexString `json:"PackageValue"`
	StatusValue      flexString `json:"StatusValue"`
}

// label 规范化后的子条目标签
func (s secondaryValue) label() string {
	return strings.ToLower(strings.TrimSpace(s.ServiceNameValue.String()))
}

// apiResponse 抓取时记录的单个接口应答
type apiResponse struct {
	URL  string          `json:"url"`
	Data json.RawMessage `json:"data"`
}

// consumptionCircle 门户首页的用量圆环
// 字段命名在不同抓取版本间漂移（used/usage、total/limit、label/name）
type consumptionCircle struct {
	Label flexString `json:"label"`
	Name  flexString `json:"name"`
	Phone flexString `json:"phoneNumber"`
	Used  flexFloat  `json:"used"`
	Usage flexFloat  `json:"usage"`
	Total flexFloat  `json:"total"`
	Limit flexFloat  `json:"limit"`
	Unit  flexString `json:"unit"`
}

func (c consumptionCircle) label() string {
	if l := strings.TrimSpace(c.Label.String()); l != "" {
		return strings.ToLower(l)
	}
	return strings.ToLower(strings.TrimSpace(c.Name.String()))
}

func (c consumptionCircle) used() (float64, bool) {
	if c.Used.Set {
		return parse.ToGB(c.Used.Value, c.Unit.String()), true
	}
	if c.Usage.Set {
		return parse.ToGB(c.Usage.Value, c.Unit.String()), true
	}
	return 0, false
}

func (c consumptionCircle) total() (float64, bool) {
	if c.Total.Set {
		return parse.ToGB(c.Total.Value, c.Unit.String()), true
	}
	if c.Limit.Set {
		return parse.ToGB(c.Limit.Value, c.Unit.String()), true
	}
	return 0, false
}

// secondarySubscriber 已确认副卡条目，字段命名同样不稳定
type secondarySubscriber struct {
	PhoneNumber flexString `json:"phoneNumber"`
	Phone       flexString `json:"phone"`
	MSISDN      flexString `json:"msisdn"`
	Status      flexString `json:"status"`
	Consumption flexString `json:"consumption"`
	Limit       flexFloat  `json:"limit"`
	Quota       flexString `json:"quota"`
}

func (s secondarySubscriber) phone() string {
	for _, v := range []flexString{s.PhoneNumber, s.Phone, s.MSISDN} {
		if p := strings.TrimSpace(v.String()); p != "" {
			return p
		}
	}
	return ""
}

// alfaPayload 解码后的 alfaData，全部字段可缺失
type alfaPayload struct {
	PrimaryData  *primaryData
	APIResponses []apiResponse
	Consumptions []consumptionCircle
	// SecondarySubscribers nil 表示门户未给出名册；非 nil 空数组是权威的"零副卡"
	SecondarySubscribers      []secondarySubscriber
	HasSecondarySubscribers   bool
	TotalConsumption          flexString
	TotalLimit                flexFloat
	AdminConsumption          flexString
	Balance                   flexString
	SubscribersCount          flexInt
	SubscribersActiveCount    flexInt
	SubscribersRequestedCount flexInt
	Expiration                flexInt
	ValidityDate              flexString
	SubscriptionDate          flexString
}

// decodePayload 容错解码 alfaData
// 整体解析失败或带 error 标记时返回空载荷，逐字段解析失败只丢弃该字段
func decodePayload(raw json.RawMessage) *alfaPayload {
	p := &alfaPayload{}
	if len(raw) == 0 {
		return p
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return p
	}

	// error 标记（任意非空形状）意味着这次抓取失败，整个载荷不可用
	if errField, ok := fields["error"]; ok {
		trimmed := strings.TrimSpace(string(errField))
		if trimmed != "" && trimmed != "null" && trimmed != "false" && trimmed != `""` {
			return p
		}
	}

	p.PrimaryData = decodePrimary(fields["primaryData"])

	if raw, ok := fields["apiResponses"]; ok {
		var responses []apiResponse
		if err := json.Unmarshal(raw, &responses); err == nil {
			p.APIResponses = responses
		}
	}
	if raw, ok := fields["consumptions"]; ok {
		var circles []consumptionCircle
		if err := json.Unmarshal(raw, &circles); err == nil {
			p.Consumptions = circles
		}
	}
	if raw, ok := fields["secondarySubscribers"]; ok {
		var subs []secondarySubscriber
		if err := json.Unmarshal(raw, &subs); err == nil {
			// 显式空数组也要记下来：它是权威的"没有副卡"
			p.SecondarySubscribers = subs
			p.HasSecondarySubscribers = true
		}
	}

	decodeScalar(fields, "totalConsumption", &p.TotalConsumption)
	decodeScalar(fields, "adminConsumption", &p.AdminConsumption)
	decodeScalar(fields, "balance", &p.Balance)
	decodeScalar(fields, "validityDate", &p.ValidityDate)
	decodeScalar(fields, "subscriptionDate", &p.SubscriptionDate)

	p.TotalLimit.UnmarshalJSON(fields["totalLimit"])
	p.SubscribersCount.UnmarshalJSON(fields["subscribersCount"])
	p.SubscribersActiveCount.UnmarshalJSON(fields["subscribersActiveCount"])
	p.SubscribersRequestedCount.UnmarshalJSON(fields["subscribersRequestedCount"])
	p.Expiration.UnmarshalJSON(fields["expiration"])

	return p
}

// decodePrimary 容错解析门户 API 树，失败返回 nil
func decodePrimary(raw json.RawMessage) *primaryData {
	if len(raw) == 0 {
		return nil
	}
	var pd primaryData
	if err := json.Unmarshal(raw, &pd); err != nil {
		return nil
	}
	if len(pd.ServiceInformationValue) == 0 {
		return nil
	}
	return &pd
}

func decodeScalar(fields map[string]json.RawMessage, key string, dst *flexString) {
	if raw, ok := fields[key]; ok {
		dst.UnmarshalJSON(raw)
	}
}

// decodeLocalRoster 解析本地维护的名册列表（pending/removed 覆盖层）
// 历史数据里条目形状和门户副卡一致，统一走 secondarySubscriber 归一化
func decodeLocalRoster(raw json.RawMessage) []models.RosterEntry {
	if len(raw) == 0 {
		return nil
	}
	var subs []secondarySubscriber
	if err := json.Unmarshal(raw, &subs); err != nil {
		return nil
	}
	entries := make([]models.RosterEntry, 0, len(subs))
	for _, s := range subs {
		entries = append(entries, normalizeSubscriber(s, models.RosterStatusRequested))
	}
	return entries
}

// normalizeSubscriber 把一个松散副卡条目归一化为名册条目
// defaultStatus 在条目未携带状态时使用
func normalizeSubscriber(s secondarySubscriber, defaultStatus string) models.RosterEntry {
	entry := models.RosterEntry{
		PhoneNumber: s.phone(),
		Status:      defaultStatus,
	}

	if st := strings.ToLower(strings.TrimSpace(s.Status.String())); st != "" {
		if strings.Contains(st, "request") || strings.Contains(st, "pend") {
			entry.Status = models.RosterStatusRequested
		} else {
			entry.Status = models.RosterStatusActive
		}
	}

	// consumption 可能是 "X / Y GB"、"X GB" 或纯数字
	cons := s.Consumption.String()
	if used, total, ok := parse.GBPair(cons); ok {
		entry.Consumption = used
		entry.Limit = total
	} else if v, unit, ok := parse.AmountWithUnit(cons); ok {
		entry.Consumption = parse.ToGB(v, unit)
	} else if v, ok := parse.LeadingNumber(cons); ok {
		entry.Consumption = v
	}

	if s.Limit.Set {
		entry.Limit = s.Limit.Value
	} else if entry.Limit == 0 {
		if v, ok := parse.LeadingNumber(s.Quota.String()); ok {
			entry.Limit = v
		}
	}

	return entry
}
