package recon

import (
	"testing"
	"time"

	"alfa-admin/internal/models"
)

// TestReconcile 测试对账主流程的后处理规则
func TestReconcile(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("在用账号完整视图", func(t *testing.T) {
		acc := &models.Account{
			ID:    "acc-1",
			Name:  "示例客户",
			Phone: "71000000",
			Quota: "20",
			AlfaData: mustRaw(t, map[string]interface{}{
				"primaryData": map[string]interface{}{
					"ServiceInformationValue": []map[string]interface{}{
						{"ServiceNameValue": "U-Share Main"},
					},
				},
				"totalConsumption": "40 / 77 GB",
				"adminConsumption": "5 / 20 GB",
				"balance":          "$ 12.30",
				"expiration":       15,
				"validityDate":     "21/03/2025",
				"secondarySubscribers": []map[string]interface{}{
					{"phoneNumber": "70111111", "status": "Active"},
					{"phoneNumber": "70222222", "status": "Requested"},
				},
			}),
		}
		v := ReconcileAt(acc, nil, now)
		if v.Status != models.StatusActive {
			t.Fatalf("状态 = %s, 期望 active", v.Status)
		}
		if !almostEqual(v.TotalConsumption, 40) || !almostEqual(v.TotalLimit, 77) {
			t.Errorf("总量 = (%v, %v), 期望 (40, 77)", v.TotalConsumption, v.TotalLimit)
		}
		if !almostEqual(v.AdminConsumption, 5) || !almostEqual(v.AdminLimit, 20) {
			t.Errorf("管理员份额 = (%v, %v), 期望 (5, 20)", v.AdminConsumption, v.AdminLimit)
		}
		if v.SubscribersActiveCount != 1 || v.SubscribersRequestedCount != 1 {
			t.Errorf("计数 = (%d, %d), 期望 (1, 1)", v.SubscribersActiveCount, v.SubscribersRequestedCount)
		}
		if !almostEqual(v.Balance, 12.30) {
			t.Errorf("余额 = %v, 期望 12.30", v.Balance)
		}
		if v.Expiration == nil || *v.Expiration != 15 {
			t.Errorf("剩余天数 = %v, 期望 15", v.Expiration)
		}
		if v.ValidityDate != "21/03/2025" {
			t.Errorf("有效期 = %q, 期望 21/03/2025", v.ValidityDate)
		}
	})

	t.Run("停用清零但保留管理员份额", func(t *testing.T) {
		acc := &models.Account{
			ID:    "acc-2",
			Quota: "15",
			AlfaData: mustRaw(t, map[string]interface{}{
				"totalConsumption": "10 / 77 GB",
				"adminConsumption": "3 / 15 GB",
				"validityDate":     "21/03/2025",
				"secondarySubscribers": []map[string]interface{}{
					{"phoneNumber": "70111111", "status": "Active"},
				},
			}),
		}
		v := ReconcileAt(acc, nil, now)
		if v.Status != models.StatusInactive {
			t.Fatalf("状态 = %s, 期望 inactive（载荷里没有任何在用信号）", v.Status)
		}
		if v.TotalConsumption != 0 || v.TotalLimit != 0 {
			t.Errorf("总量 = (%v, %v), 期望清零", v.TotalConsumption, v.TotalLimit)
		}
		if v.SubscribersActiveCount != 0 || v.SubscribersRequestedCount != 0 || v.Subscribers != nil {
			t.Errorf("名册未清空: 计数 (%d, %d), %d 条", v.SubscribersActiveCount, v.SubscribersRequestedCount, len(v.Subscribers))
		}
		if v.ValidityDate != "" || v.SubscriptionDate != "" {
			t.Errorf("日期未置空: %q / %q", v.ValidityDate, v.SubscriptionDate)
		}
		if !almostEqual(v.AdminConsumption, 3) || !almostEqual(v.AdminLimit, 15) {
			t.Errorf("管理员份额 = (%v, %v), 期望保留 (3, 15)", v.AdminConsumption, v.AdminLimit)
		}
	})

	t.Run("显式过期只清套餐用量", func(t *testing.T) {
		acc := &models.Account{
			ID:    "acc-3",
			Quota: "20",
			AlfaData: mustRaw(t, map[string]interface{}{
				"primaryData": map[string]interface{}{
					"ServiceInformationValue": []map[string]interface{}{
						{"ServiceNameValue": "U-Share Main"},
					},
				},
				"totalConsumption": "40 / 77 GB",
				"adminConsumption": "5 / 20 GB",
				"expiration":       0,
				"secondarySubscribers": []map[string]interface{}{
					{"phoneNumber": "70111111", "status": "Active"},
				},
			}),
		}
		v := ReconcileAt(acc, nil, now)
		if v.TotalConsumption != 0 || v.TotalLimit != 0 {
			t.Errorf("总量 = (%v, %v), 期望清零", v.TotalConsumption, v.TotalLimit)
		}
		if !almostEqual(v.AdminConsumption, 5) {
			t.Errorf("管理员已用 = %v, 期望 5（过期只影响套餐用量）", v.AdminConsumption)
		}
		if v.SubscribersActiveCount != 1 {
			t.Errorf("在用计数 = %d, 期望 1", v.SubscribersActiveCount)
		}
	})

	t.Run("零在用副卡强制管理员归零", func(t *testing.T) {
		acc := &models.Account{
			ID:    "acc-4",
			Quota: "20",
			AlfaData: mustRaw(t, map[string]interface{}{
				"primaryData": map[string]interface{}{
					"ServiceInformationValue": []map[string]interface{}{
						{"ServiceNameValue": "U-Share Main"},
					},
				},
				"adminConsumption":     "5 / 20 GB",
				"secondarySubscribers": []interface{}{},
			}),
		}
		v := ReconcileAt(acc, nil, now)
		if v.AdminConsumption != 0 {
			t.Errorf("管理员已用 = %v, 期望 0（零副卡不可能消耗共享配额）", v.AdminConsumption)
		}
		if !almostEqual(v.AdminLimit, 20) {
			t.Errorf("管理员额度 = %v, 期望 20", v.AdminLimit)
		}
	})

	t.Run("名册为空时采用门户直报计数", func(t *testing.T) {
		acc := &models.Account{
			ID: "acc-5",
			AlfaData: mustRaw(t, map[string]interface{}{
				"primaryData": map[string]interface{}{
					"ServiceInformationValue": []map[string]interface{}{
						{"ServiceNameValue": "U-Share Main"},
					},
				},
				"subscribersActiveCount":    2,
				"subscribersRequestedCount": 1,
			}),
		}
		v := ReconcileAt(acc, nil, now)
		if v.SubscribersActiveCount != 2 || v.SubscribersRequestedCount != 1 {
			t.Errorf("计数 = (%d, %d), 期望 (2, 1)", v.SubscribersActiveCount, v.SubscribersRequestedCount)
		}
	})

	t.Run("空记录不panic", func(t *testing.T) {
		v := ReconcileAt(&models.Account{ID: "acc-6"}, NewRefreshCache(), now)
		if v.Status != models.StatusInactive {
			t.Errorf("状态 = %s, 期望 inactive", v.Status)
		}
	})

	t.Run("对账是幂等的", func(t *testing.T) {
		acc := &models.Account{
			ID:    "acc-7",
			Quota: "20",
			AlfaData: mustRaw(t, map[string]interface{}{
				"primaryData": map[string]interface{}{
					"ServiceInformationValue": []map[string]interface{}{
						{"ServiceNameValue": "U-Share Main"},
					},
				},
				"totalConsumption": "40 / 77 GB",
			}),
		}
		first := ReconcileAt(acc, nil, now)
		second := ReconcileAt(acc, nil, now)
		if first.TotalConsumption != second.TotalConsumption ||
			first.Status != second.Status ||
			first.SubscribersActiveCount != second.SubscribersActiveCount {
			t.Errorf("两次对账结果不一致: %+v vs %+v", first, second)
		}
	})
}

// TestUsedPercent 测试用量百分比渲染
func TestUsedPercent(t *testing.T) {
	tests := []struct {
		name        string
		used, limit float64
		want        float64
	}{
		{"额度为零", 10, 0, 0},
		{"半量", 38.5, 77, 50},
		{"误差内按满量", 76.995, 77, 100},
		{"超量封顶", 80, 77, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &models.SubscriberView{TotalConsumption: tt.used, TotalLimit: tt.limit}
			if got := UsedPercent(v); !almostEqual(got, tt.want) {
				t.Errorf("UsedPercent = %v, 期望 %v", got, tt.want)
			}
		})
	}
}
