package recon

import (
	"testing"

	"alfa-admin/internal/models"
)

// TestBuildRoster 测试名册来源优先级与本地覆盖层
func TestBuildRoster(t *testing.T) {
	t.Run("显式空数组压制pending", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"secondarySubscribers": []interface{}{},
			}),
			PendingSubscribers: mustRaw(t, []map[string]interface{}{
				{"phoneNumber": "70111111"},
			}),
		}
		r := BuildRoster(acc)
		if len(r.Subscribers) != 0 {
			t.Errorf("已确认名册 = %d 条, 期望 0", len(r.Subscribers))
		}
		if len(r.PendingSubscribers) != 0 {
			t.Errorf("pending = %d 条, 期望 0（门户确认零副卡时压制本地列表）", len(r.PendingSubscribers))
		}
	})

	t.Run("门户名册归一化", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"secondarySubscribers": []map[string]interface{}{
					{"phoneNumber": "70111111", "status": "Active", "consumption": "1.2 / 5 GB"},
					{"msisdn": "70222222", "status": "Requested"},
				},
			}),
		}
		r := BuildRoster(acc)
		if len(r.Subscribers) != 2 {
			t.Fatalf("已确认名册 = %d 条, 期望 2", len(r.Subscribers))
		}
		first := r.Subscribers[0]
		if first.PhoneNumber != "70111111" || first.Status != models.RosterStatusActive {
			t.Errorf("条目1 = %+v", first)
		}
		if !almostEqual(first.Consumption, 1.2) || !almostEqual(first.Limit, 5) {
			t.Errorf("条目1用量 = (%v, %v), 期望 (1.2, 5)", first.Consumption, first.Limit)
		}
		if r.Subscribers[1].Status != models.RosterStatusRequested {
			t.Errorf("条目2状态 = %s, 期望 Requested", r.Subscribers[1].Status)
		}
	})

	t.Run("来源2接口应答里的副卡条目", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"apiResponses": []map[string]interface{}{
					{
						"url": "https://portal.example/api/getConsumptionDetails",
						"data": map[string]interface{}{
							"ServiceInformationValue": []map[string]interface{}{
								{
									"ServiceNameValue": "Mobile Internet",
									"ServiceDetailsInformationValue": []map[string]interface{}{
										{
											"SecondaryValue": []map[string]interface{}{
												{"ServiceNameValue": "U-Share Secondary", "MSISDNValue": "70333333", "ConsumptionValue": "2 GB"},
												{"ServiceNameValue": "U-Share Total Bundle", "ConsumptionValue": "30 GB"},
											},
										},
									},
								},
							},
						},
					},
				},
			}),
		}
		r := BuildRoster(acc)
		if len(r.Subscribers) != 1 {
			t.Fatalf("已确认名册 = %d 条, 期望 1（只取 secondary 标签条目）", len(r.Subscribers))
		}
		if r.Subscribers[0].PhoneNumber != "70333333" || !almostEqual(r.Subscribers[0].Consumption, 2) {
			t.Errorf("条目 = %+v", r.Subscribers[0])
		}
	})

	t.Run("来源3副卡圆环", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"consumptions": []map[string]interface{}{
					{"label": "U-Share Main", "used": 4.0},
					{"label": "U-Share Secondary", "phoneNumber": "70444444", "used": 1.5, "total": 5.0},
				},
			}),
		}
		r := BuildRoster(acc)
		if len(r.Subscribers) != 1 {
			t.Fatalf("已确认名册 = %d 条, 期望 1", len(r.Subscribers))
		}
		e := r.Subscribers[0]
		if e.PhoneNumber != "70444444" || !almostEqual(e.Consumption, 1.5) || !almostEqual(e.Limit, 5) {
			t.Errorf("条目 = %+v", e)
		}
	})

	t.Run("pending过滤已移除号码", func(t *testing.T) {
		acc := &models.Account{
			PendingSubscribers: mustRaw(t, []map[string]interface{}{
				{"phoneNumber": "70111111"},
				{"phoneNumber": "70222222"},
			}),
			RemovedSubscribers: mustRaw(t, []map[string]interface{}{
				{"phoneNumber": "70222222"},
			}),
		}
		r := BuildRoster(acc)
		if len(r.PendingSubscribers) != 1 || r.PendingSubscribers[0].PhoneNumber != "70111111" {
			t.Errorf("pending = %+v, 期望只剩 70111111", r.PendingSubscribers)
		}
	})

	t.Run("同号去重保留先出现的", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"secondarySubscribers": []map[string]interface{}{
					{"phoneNumber": "70111111", "consumption": "1 GB"},
					{"phoneNumber": "70111111", "consumption": "9 GB"},
				},
			}),
		}
		r := BuildRoster(acc)
		if len(r.Subscribers) != 1 {
			t.Fatalf("已确认名册 = %d 条, 期望 1", len(r.Subscribers))
		}
		if !almostEqual(r.Subscribers[0].Consumption, 1) {
			t.Errorf("去重未保留先出现的条目: %+v", r.Subscribers[0])
		}
	})

	t.Run("removedActive原样透传", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"secondarySubscribers": []map[string]interface{}{
					{"phoneNumber": "70555555", "status": "Active"},
				},
			}),
			RemovedActiveSubscribers: mustRaw(t, []map[string]interface{}{
				{"phoneNumber": "70555555", "status": "Active"},
			}),
		}
		r := BuildRoster(acc)
		if len(r.RemovedActiveSubscribers) != 1 {
			t.Errorf("removedActive = %d 条, 期望 1（不与确认名册去重）", len(r.RemovedActiveSubscribers))
		}
	})
}
