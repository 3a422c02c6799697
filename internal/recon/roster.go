package recon

import (
	"strings"

	"alfa-admin/internal/models"

	"github.com/samber/lo"
)

// Roster 名册重建结果
type Roster struct {
	Subscribers              []models.RosterEntry
	PendingSubscribers       []models.RosterEntry
	RemovedActiveSubscribers []models.RosterEntry
}

// secondaryBundleMarker 副卡套餐条目的标签特征
const secondaryBundleMarker = "secondary"

// BuildRoster 重建副卡名册
// 已确认名册按来源优先级取第一个非空来源，高优先级来源一旦存在即
// 屏蔽后续来源（硬规则，不做合并）：
//  1. alfaData.secondarySubscribers —— 数组存在即权威，显式空数组代表
//     门户确认零副卡，并且压制本地 pending 列表
//  2. apiResponses 里用量接口应答的 SecondaryValue 副卡套餐条目
//  3. consumptions[] 里的副卡圆环
// removedActiveSubscribers 原样透传，永不被确认名册去重掉
func BuildRoster(acc *models.Account) Roster {
	p := decodePayload(acc.AlfaData)

	removed := decodeLocalRoster(acc.RemovedSubscribers)
	removedActive := decodeLocalRoster(acc.RemovedActiveSubscribers)

	var confirmed []models.RosterEntry
	vendorAuthoritative := false

	switch {
	case p.HasSecondarySubscribers:
		vendorAuthoritative = true
		for _, s := range p.SecondarySubscribers {
			confirmed = append(confirmed, normalizeSubscriber(s, models.RosterStatusActive))
		}
	default:
		if entries, ok := rosterFromAPIResponses(p.APIResponses); ok {
			confirmed = entries
		} else if entries, ok := rosterFromCircles(p.Consumptions); ok {
			confirmed = entries
		}
	}

	// 同号多条保留先出现的（门户翻页抓取会重复）
	confirmed = lo.UniqBy(confirmed, func(e models.RosterEntry) string {
		return e.PhoneNumber
	})

	// pending 只在门户名册不权威的轮次里展示，且不含已移除的号码
	var pending []models.RosterEntry
	if !vendorAuthoritative {
		pending = lo.Filter(decodeLocalRoster(acc.PendingSubscribers), func(e models.RosterEntry, _ int) bool {
			return !rosterContains(removed, e.PhoneNumber)
		})
		pending = lo.UniqBy(pending, func(e models.RosterEntry) string {
			return e.PhoneNumber
		})
	}

	return Roster{
		Subscribers:              confirmed,
		PendingSubscribers:       pending,
		RemovedActiveSubscribers: removedActive,
	}
}

// rosterFromAPIResponses 来源 2：用量接口应答里的副卡套餐条目
func rosterFromAPIResponses(responses []apiResponse) ([]models.RosterEntry, bool) {
	for _, resp := range responses {
		if !strings.Contains(strings.ToLower(resp.URL), consumptionEndpointMarker) {
			continue
		}
		pd := decodePrimary(resp.Data)
		if pd == nil {
			continue
		}
		var entries []models.RosterEntry
		for _, svc := range pd.ServiceInformationValue {
			for _, det := range svc.ServiceDetailsInformationValue {
				for _, sec := range det.SecondaryValue {
					if !strings.Contains(sec.label(), secondaryBundleMarker) {
						continue
					}
					entries = append(entries, normalizeSubscriber(secondarySubscriber{
						PhoneNumber: sec.MSISDNValue,
						Status:      sec.StatusValue,
						Consumption: sec.ConsumptionValue,
						Quota:       sec.PackageValue,
					}, models.RosterStatusActive))
				}
			}
		}
		if len(entries) > 0 {
			return entries, true
		}
	}
	return nil, false
}

// rosterFromCircles 来源 3：副卡用量圆环
func rosterFromCircles(circles []consumptionCircle) ([]models.RosterEntry, bool) {
	var entries []models.RosterEntry
	for _, c := range circles {
		if !strings.Contains(c.label(), secondaryBundleMarker) {
			continue
		}
		entry := models.RosterEntry{
			PhoneNumber: strings.TrimSpace(c.Phone.String()),
			Status:      models.RosterStatusActive,
		}
		if v, ok := c.used(); ok {
			entry.Consumption = v
		}
		if v, ok := c.total(); ok {
			entry.Limit = v
		}
		entries = append(entries, entry)
	}
	return entries, len(entries) > 0
}

func rosterContains(entries []models.RosterEntry, phone string) bool {
	if phone == "" {
		return false
	}
	return lo.ContainsBy(entries, func(e models.RosterEntry) bool {
		return e.PhoneNumber == phone
	})
}

// countByStatus 统计名册里指定状态的条目数
func countByStatus(entries []models.RosterEntry, status string) int {
	return lo.CountBy(entries, func(e models.RosterEntry) bool {
		return e.Status == status
	})
}
