package recon

import (
	"time"

	"alfa-admin/internal/models"
	"alfa-admin/internal/parse"
)

// minValidityDays 可售余位要求的最少剩余有效天数
const minValidityDays = 20

// maxRosterSize 名册容量上限（在用 + 待确认 + 已移除仍计费）
const maxRosterSize = 3

// excludedRosterShapes 运营口径上"对外已满"的名册形状 (在用, 待确认, 已移除)
// 这些组合即使按人数没满也不能再售，规则来自运营经验，保持字面量，不要归纳成公式
var excludedRosterShapes = [][3]int{
	{1, 2, 0},
	{0, 3, 0},
	{3, 0, 0},
	{2, 1, 0},
	{1, 0, 2},
	{2, 0, 1},
	{1, 1, 1},
	{0, 2, 1},
	{0, 1, 2},
}

// IsEligible 判断账号当前是否还有可售副卡余位（"Available Services"）
func IsEligible(v *models.SubscriberView) bool {
	return IsEligibleAt(v, time.Now())
}

// IsEligibleAt 按给定时刻判定，全部条件同时成立才可售：
//   - 账号在用
//   - 名册形状不在排除表里
//   - 名册总数未达上限
//   - 有效期剩余天数可解析且 >= 20 天
// 只依赖视图字段，不回查原始记录
func IsEligibleAt(v *models.SubscriberView, now time.Time) bool {
	if v.Status != models.StatusActive {
		return false
	}

	active := v.SubscribersActiveCount
	requested := v.SubscribersRequestedCount
	removed := v.CountRemovedActive()

	for _, shape := range excludedRosterShapes {
		if active == shape[0] && requested == shape[1] && removed == shape[2] {
			return false
		}
	}

	if active+requested+removed >= maxRosterSize {
		return false
	}

	days, ok := parse.DaysUntil(v.ValidityDate, now)
	if !ok || days < minValidityDays {
		return false
	}

	return true
}
