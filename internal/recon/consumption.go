package recon

import (
	"strings"

	"alfa-admin/internal/models"
	"alfa-admin/internal/parse"
)

// Consumption 用量提取结果，单位 GB
type Consumption struct {
	TotalConsumption float64
	TotalLimit       float64
	AdminConsumption float64
	AdminLimit       float64
}

// ExtractConsumption 从原始记录提取套餐用量与管理员份额用量
// adminLimit 永远取录入的 quota，门户字符串即使长得像 "已用 / 额度" 也不采信
// 各回退链首个成功来源生效；本函数不做在用/过期等后处理（见 Reconcile）
func ExtractConsumption(acc *models.Account) Consumption {
	p := decodePayload(acc.AlfaData)

	adminLimit, _ := parse.LeadingNumber(acc.Quota)
	totalUsed, totalLimit := extractTotal(p)
	adminUsed := extractAdmin(p, adminLimit)

	return Consumption{
		TotalConsumption: totalUsed,
		TotalLimit:       totalLimit,
		AdminConsumption: adminUsed,
		AdminLimit:       adminLimit,
	}
}

// extractTotal 套餐整体用量回退链：
//  a. alfaData.totalConsumption（"X / Y" 对，或纯数字配单独的 totalLimit 字段）
//  b. primaryData 明细遍历：PackageValue 取最大值当总额度（完整套餐必然
//     大于任何单服务配额），ConsumptionValue 取首个可解析值当已用量，
//     有 "u-share total"/"total bundle" 标签的子条目优先
//  c. 兜底累加 consumptions[] 圆环
func extractTotal(p *alfaPayload) (used, limit float64) {
	if u, l, ok := totalFromField(p); ok {
		return u, l
	}
	if u, l, ok := totalFromPrimary(p.PrimaryData); ok {
		return u, l
	}
	if u, l, ok := totalFromCircles(p.Consumptions); ok {
		return u, l
	}
	return 0, 0
}

func totalFromField(p *alfaPayload) (used, limit float64, ok bool) {
	raw := strings.TrimSpace(p.TotalConsumption.String())
	if raw == "" {
		return 0, 0, false
	}
	if u, l, ok := parse.GBPair(raw); ok {
		return u, l, true
	}
	// 纯数字只给出已用量，额度看单独上报的 totalLimit
	if u, ok := parse.LeadingNumber(raw); ok {
		if p.TotalLimit.Set {
			return u, p.TotalLimit.Value, true
		}
		return u, 0, true
	}
	return 0, 0, false
}

func totalFromPrimary(pd *primaryData) (used, limit float64, ok bool) {
	if pd == nil {
		return 0, 0, false
	}

	var haveUsed, haveLimit bool
	var preferredUsed float64
	var havePreferred bool

	for _, svc := range pd.ServiceInformationValue {
		for _, det := range svc.ServiceDetailsInformationValue {
			if v, pok := parse.LeadingNumber(det.PackageValue.String()); pok {
				if !haveLimit || v > limit {
					limit = v
				}
				haveLimit = true
			}

			// 带 "总量" 标签的子条目是最可信的已用量来源
			for _, sec := range det.SecondaryValue {
				label := sec.label()
				if !strings.Contains(label, "u-share total") && !strings.Contains(label, "total bundle") {
					continue
				}
				if v, unit, cok := parse.AmountWithUnit(sec.ConsumptionValue.String()); cok && !havePreferred {
					preferredUsed = parse.ToGB(v, unit)
					havePreferred = true
				}
			}

			if v, unit, cok := parse.AmountWithUnit(det.ConsumptionValue.String()); cok && !haveUsed {
				used = parse.ToGB(v, unit)
				haveUsed = true
			}
		}
	}

	if havePreferred {
		used = preferredUsed
		haveUsed = true
	}
	if !haveUsed && !haveLimit {
		return 0, 0, false
	}
	return used, limit, true
}

func totalFromCircles(circles []consumptionCircle) (used, limit float64, ok bool) {
	if len(circles) == 0 {
		return 0, 0, false
	}
	for _, c := range circles {
		if u, uok := c.used(); uok {
			used += u
			ok = true
		}
		if t, tok := c.total(); tok {
			limit += t
			ok = true
		}
	}
	return used, limit, ok
}

// extractAdmin 管理员份额用量回退链：
//  a. alfaData.adminConsumption；若字符串带额度且额度大于 adminLimit，
//     说明这串其实是套餐总量（门户偶发串字段），丢弃继续往下走
//  b. consumptions[] 里标签含 "u-share main" 的圆环，缺省取第一个
//  c. primaryData 遍历，跳过 mobile internet（它报的是套餐总量），取首个
//     "u-share" 服务的 ConsumptionValue，名字带 "main" 的优先
func extractAdmin(p *alfaPayload, adminLimit float64) float64 {
	if v, ok := adminFromField(p, adminLimit); ok {
		return v
	}
	if v, ok := adminFromCircles(p.Consumptions); ok {
		return v
	}
	if v, ok := adminFromPrimary(p.PrimaryData); ok {
		return v
	}
	return 0
}

func adminFromField(p *alfaPayload, adminLimit float64) (float64, bool) {
	raw := strings.TrimSpace(p.AdminConsumption.String())
	if raw == "" {
		return 0, false
	}

	if used, limit, ok := parse.GBPair(raw); ok {
		if limit > adminLimit {
			// 额度比管理员配额还大，这串编码的是套餐总量，不能当份额用量
			return 0, false
		}
		return used, true
	}
	if v, unit, ok := parse.AmountWithUnit(raw); ok {
		return parse.ToGB(v, unit), true
	}
	if v, ok := parse.LeadingNumber(raw); ok {
		return v, true
	}
	return 0, false
}

func adminFromCircles(circles []consumptionCircle) (float64, bool) {
	if len(circles) == 0 {
		return 0, false
	}
	for _, c := range circles {
		if !strings.Contains(c.label(), serviceUShareMain) {
			continue
		}
		if v, ok := c.used(); ok {
			return v, true
		}
	}
	// 没有带标签的就取第一个圆环
	return circles[0].used()
}

func adminFromPrimary(pd *primaryData) (float64, bool) {
	if pd == nil {
		return 0, false
	}

	var fallback float64
	var haveFallback bool

	for _, svc := range pd.ServiceInformationValue {
		name := svc.name()
		if name == serviceMobileInternet {
			continue // 它的用量是整个套餐的，不是管理员份额
		}
		if !strings.Contains(name, "u-share") {
			continue
		}
		for _, det := range svc.ServiceDetailsInformationValue {
			v, unit, ok := parse.AmountWithUnit(det.ConsumptionValue.String())
			if !ok {
				continue
			}
			gb := parse.ToGB(v, unit)
			if strings.Contains(name, "main") {
				return gb, true
			}
			if !haveFallback {
				fallback = gb
				haveFallback = true
			}
		}
	}

	return fallback, haveFallback
}
