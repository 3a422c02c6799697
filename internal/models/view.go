package models

import "time"

// 账号对账状态
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// 副卡名册状态
const (
	RosterStatusActive    = "Active"
	RosterStatusRequested = "Requested"
)

// RosterEntry 表示名册中的一个副卡条目（已确认、待确认或已移除）
type RosterEntry struct {
	PhoneNumber string  `json:"phoneNumber"`
	Status      string  `json:"status"` // Active | Requested
	Consumption float64 `json:"consumption"`
	Limit       float64 `json:"limit"`
}

// SubscriberView 表示对账引擎的输出：一行表格/一个详情弹窗所需的全部数据
// 每次原始记录变化时整体重算，从不落库
type SubscriberView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`

	// Status 为 inactive 时除 adminConsumption/adminLimit 外全部清零/置空
	Status string `json:"status"`

	// 整个套餐的用量/额度（GB）
	TotalConsumption float64 `json:"totalConsumption"`
	TotalLimit       float64 `json:"totalLimit"`

	// 管理员自身份额的用量/额度（GB）
	// adminLimit 只来自录入的 quota，永远不取门户的消耗字符串
	AdminConsumption float64 `json:"adminConsumption"`
	AdminLimit       float64 `json:"adminLimit"`

	SubscribersActiveCount    int `json:"subscribersActiveCount"`
	SubscribersRequestedCount int `json:"subscribersRequestedCount"`

	Subscribers              []RosterEntry `json:"subscribers"`
	PendingSubscribers       []RosterEntry `json:"pendingSubscribers"`
	RemovedActiveSubscribers []RosterEntry `json:"removedActiveSubscribers"`

	// Balance 门户余额，带符号
	Balance float64 `json:"balance"`

	// Expiration 剩余天数，nil 表示门户未报告；<=0 视为已过期
	Expiration *int `json:"expiration"`

	// DD/MM/YYYY 或空串
	ValidityDate     string `json:"validityDate"`
	SubscriptionDate string `json:"subscriptionDate"`

	// LastUpdate 本账号已知的最近刷新时间（含本地乐观缓存）
	LastUpdate time.Time `json:"lastUpdate"`

	NotUShare bool `json:"notUShare"`
}

// CountRemovedActive 已移除但仍计入名册总数的副卡数量
func (v *SubscriberView) CountRemovedActive() int {
	return len(v.RemovedActiveSubscribers)
}
