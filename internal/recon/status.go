package recon

import (
	"strings"

	"alfa-admin/internal/models"
	"alfa-admin/internal/parse"
)

// 门户服务名标记
const (
	// serviceUShareMain U-Share 主服务，出现即代表账号在用
	serviceUShareMain = "u-share main"
	// serviceMobileInternet 普通流量服务，需叠加有效期才算在用
	serviceMobileInternet = "mobile internet"
	// consumptionEndpointMarker 抓取应答里用量接口的 URL 特征
	consumptionEndpointMarker = "consumption"
)

// ResolveStatus 判定账号在用/停用
// 规则按序匹配，首个命中生效，全部落空则为 inactive：
//  1. primaryData 服务列表里有 U-Share 主服务
//  2. 有 mobile internet 服务且任一明细带合法 DD/MM/YYYY 有效期
//  3. 在 apiResponses 里找用量接口应答，对其载荷重跑规则 1-2
//  4. 兜底看旧版自由文本 status 字段是否含 "active"
func ResolveStatus(acc *models.Account) string {
	p := decodePayload(acc.AlfaData)

	if st, ok := statusFromPrimary(p.PrimaryData); ok {
		return st
	}

	for _, resp := range p.APIResponses {
		if !strings.Contains(strings.ToLower(resp.URL), consumptionEndpointMarker) {
			continue
		}
		if st, ok := statusFromPrimary(decodePrimary(resp.Data)); ok {
			return st
		}
	}

	if strings.Contains(strings.ToLower(acc.Status), "active") {
		return models.StatusActive
	}

	return models.StatusInactive
}

// statusFromPrimary 对单个门户 API 树应用规则 1-2
// 只会给出 active；未命中返回 ok=false 交给下一来源
func statusFromPrimary(pd *primaryData) (string, bool) {
	if pd == nil {
		return "", false
	}

	for _, svc := range pd.ServiceInformationValue {
		if svc.name() == serviceUShareMain {
			return models.StatusActive, true
		}
	}

	for _, svc := range pd.ServiceInformationValue {
		if svc.name() != serviceMobileInternet {
			continue
		}
		for _, det := range svc.ServiceDetailsInformationValue {
			if parse.IsDayMonthYear(det.ValidityDateValue.String()) {
				return models.StatusActive, true
			}
		}
	}

	return "", false
}
