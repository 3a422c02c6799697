package recon

import (
	"time"

	"alfa-admin/internal/models"
	"alfa-admin/internal/parse"
)

// Reconcile 把一条原始账号记录对账成一行视图模型
// 任何字段解析失败都降级处理，空记录也能得到一个可渲染的视图
func Reconcile(acc *models.Account, cache *RefreshCache) *models.SubscriberView {
	return ReconcileAt(acc, cache, time.Now())
}

// ReconcileAt 按给定时刻对账（时间只影响 lastUpdate 的兜底解析，便于测试）
// 流程：状态判定 → 名册重建 → 用量提取 → 后处理（停用/过期清零）→ 刷新时间合并
func ReconcileAt(acc *models.Account, cache *RefreshCache, now time.Time) *models.SubscriberView {
	p := decodePayload(acc.AlfaData)

	status := ResolveStatus(acc)
	roster := BuildRoster(acc)
	cons := ExtractConsumption(acc)

	// 名册口径的副卡计数；名册完全为空但门户直接报了数字时用门户的
	active := countByStatus(roster.Subscribers, models.RosterStatusActive)
	requested := countByStatus(roster.Subscribers, models.RosterStatusRequested) + len(roster.PendingSubscribers)
	if len(roster.Subscribers) == 0 && len(roster.PendingSubscribers) == 0 && !p.HasSecondarySubscribers {
		if p.SubscribersActiveCount.Set {
			active = p.SubscribersActiveCount.Value
		}
		if p.SubscribersRequestedCount.Set {
			requested = p.SubscribersRequestedCount.Value
		}
	}

	// 零副卡的管理员不可能消耗过共享配额，强制归零
	adminUsed := cons.AdminConsumption
	if active == 0 {
		adminUsed = 0
	}

	var expiration *int
	if p.Expiration.Set {
		v := p.Expiration.Value
		expiration = &v
	}

	balance, _ := parse.Balance(p.Balance.String())

	view := &models.SubscriberView{
		ID:                        acc.ID,
		Name:                      acc.Name,
		Phone:                     acc.Phone,
		Status:                    status,
		TotalConsumption:          cons.TotalConsumption,
		TotalLimit:                cons.TotalLimit,
		AdminConsumption:          adminUsed,
		AdminLimit:                cons.AdminLimit,
		SubscribersActiveCount:    active,
		SubscribersRequestedCount: requested,
		Subscribers:               roster.Subscribers,
		PendingSubscribers:        roster.PendingSubscribers,
		RemovedActiveSubscribers:  roster.RemovedActiveSubscribers,
		Balance:                   balance,
		Expiration:                expiration,
		ValidityDate:              validDateOrEmpty(p.ValidityDate.String()),
		SubscriptionDate:          validDateOrEmpty(p.SubscriptionDate.String()),
		NotUShare:                 acc.NotUShare,
	}

	// 显式报告已过期：只清套餐用量，管理员份额保留
	if expiration != nil && *expiration <= 0 {
		view.TotalConsumption = 0
		view.TotalLimit = 0
	}

	// 停用：除 adminConsumption/adminLimit 外全部清零/置空
	if status == models.StatusInactive {
		view.TotalConsumption = 0
		view.TotalLimit = 0
		view.SubscribersActiveCount = 0
		view.SubscribersRequestedCount = 0
		view.Subscribers = nil
		view.PendingSubscribers = nil
		view.RemovedActiveSubscribers = nil
		view.ValidityDate = ""
		view.SubscriptionDate = ""
	}

	var stored time.Time
	if acc.LastRefreshTimestamp != nil {
		stored, _ = parse.Timestamp(*acc.LastRefreshTimestamp)
	}
	updatedAt, _ := parse.Timestamp(acc.UpdatedAt)
	view.LastUpdate = ReconcileLastUpdate(acc.ID, stored, updatedAt, cache)

	return view
}

// validDateOrEmpty 只透传形状合法的 DD/MM/YYYY，其余置空
func validDateOrEmpty(s string) string {
	if parse.IsDayMonthYear(s) {
		return s
	}
	return ""
}

// UsedPercent 套餐用量百分比（渲染辅助）
// 有效值与额度差在 0.01 以内按 100% 显示，吸收浮点误差
// 注意：这里只影响显示，不回写任何提取值，管理员份额始终展示真实值
func UsedPercent(v *models.SubscriberView) float64 {
	if v.TotalLimit <= 0 {
		return 0
	}
	if v.TotalConsumption >= v.TotalLimit-0.01 {
		return 100
	}
	return v.TotalConsumption / v.TotalLimit * 100
}
