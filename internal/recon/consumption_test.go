package recon

import (
	"math"
	"testing"

	"alfa-admin/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestExtractConsumptionTotal 测试套餐整体用量回退链
func TestExtractConsumptionTotal(t *testing.T) {
	t.Run("直报字段是对形式", func(t *testing.T) {
		acc := &models.Account{
			Quota:    "20",
			AlfaData: mustRaw(t, map[string]interface{}{"totalConsumption": "71.21 / 77 GB"}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.TotalConsumption, 71.21) || !almostEqual(c.TotalLimit, 77) {
			t.Errorf("总量 = (%v, %v), 期望 (71.21, 77)", c.TotalConsumption, c.TotalLimit)
		}
	})

	t.Run("直报字段纯数字配独立额度", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"totalConsumption": "12.5",
				"totalLimit":       77,
			}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.TotalConsumption, 12.5) || !almostEqual(c.TotalLimit, 77) {
			t.Errorf("总量 = (%v, %v), 期望 (12.5, 77)", c.TotalConsumption, c.TotalLimit)
		}
	})

	t.Run("primaryData取最大套餐额度和总量标签", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"primaryData": map[string]interface{}{
					"ServiceInformationValue": []map[string]interface{}{
						{
							"ServiceNameValue": "U-Share Main",
							"ServiceDetailsInformationValue": []map[string]interface{}{
								{"PackageValue": "15 GB", "ConsumptionValue": "3 GB"},
							},
						},
						{
							"ServiceNameValue": "Mobile Internet",
							"ServiceDetailsInformationValue": []map[string]interface{}{
								{
									"PackageValue":     "77 GB",
									"ConsumptionValue": "8 GB",
									"SecondaryValue": []map[string]interface{}{
										{"ServiceNameValue": "U-Share Total Bundle", "ConsumptionValue": "30 GB"},
									},
								},
							},
						},
					},
				},
			}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.TotalLimit, 77) {
			t.Errorf("总额度 = %v, 期望 77（取各 PackageValue 最大值）", c.TotalLimit)
		}
		if !almostEqual(c.TotalConsumption, 30) {
			t.Errorf("总已用 = %v, 期望 30（带总量标签的子条目优先）", c.TotalConsumption)
		}
	})

	t.Run("MB单位换算", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"primaryData": map[string]interface{}{
					"ServiceInformationValue": []map[string]interface{}{
						{
							"ServiceNameValue": "Mobile Internet",
							"ServiceDetailsInformationValue": []map[string]interface{}{
								{"PackageValue": "77 GB", "ConsumptionValue": "512 MB"},
							},
						},
					},
				},
			}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.TotalConsumption, 0.5) {
			t.Errorf("总已用 = %v, 期望 0.5", c.TotalConsumption)
		}
	})

	t.Run("圆环兜底累加", func(t *testing.T) {
		acc := &models.Account{
			AlfaData: mustRaw(t, map[string]interface{}{
				"consumptions": []map[string]interface{}{
					{"label": "U-Share Main", "used": 1.0, "total": 10.0},
					{"label": "U-Share Secondary", "used": 2.5, "total": 5.0},
				},
			}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.TotalConsumption, 3.5) || !almostEqual(c.TotalLimit, 15) {
			t.Errorf("总量 = (%v, %v), 期望 (3.5, 15)", c.TotalConsumption, c.TotalLimit)
		}
	})

	t.Run("全部落空归零", func(t *testing.T) {
		c := ExtractConsumption(&models.Account{})
		if c.TotalConsumption != 0 || c.TotalLimit != 0 {
			t.Errorf("总量 = (%v, %v), 期望 (0, 0)", c.TotalConsumption, c.TotalLimit)
		}
	})
}

// TestExtractConsumptionAdmin 测试管理员份额用量回退链
func TestExtractConsumptionAdmin(t *testing.T) {
	t.Run("adminLimit只认录入的quota", func(t *testing.T) {
		acc := &models.Account{
			Quota:    "20 GB",
			AlfaData: mustRaw(t, map[string]interface{}{"adminConsumption": "5.5 / 20 GB"}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.AdminLimit, 20) {
			t.Errorf("管理员额度 = %v, 期望 20", c.AdminLimit)
		}
		if !almostEqual(c.AdminConsumption, 5.5) {
			t.Errorf("管理员已用 = %v, 期望 5.5", c.AdminConsumption)
		}
	})

	t.Run("串字段歧义丢弃后走圆环", func(t *testing.T) {
		// "71.21 / 77" 的额度 77 超过管理员配额 20，
		// 说明门户把套餐总量串进了 adminConsumption，不能采信
		acc := &models.Account{
			Quota: "20",
			AlfaData: mustRaw(t, map[string]interface{}{
				"adminConsumption": "71.21 / 77 GB",
				"consumptions": []map[string]interface{}{
					{"label": "U-Share Main", "used": 3.2},
				},
			}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.AdminConsumption, 3.2) {
			t.Errorf("管理员已用 = %v, 期望 3.2（串字段应被丢弃）", c.AdminConsumption)
		}
	})

	t.Run("串字段歧义且无兜底归零", func(t *testing.T) {
		acc := &models.Account{
			Quota:    "20",
			AlfaData: mustRaw(t, map[string]interface{}{"adminConsumption": "71.21 / 77 GB"}),
		}
		c := ExtractConsumption(acc)
		if c.AdminConsumption != 0 {
			t.Errorf("管理员已用 = %v, 期望 0", c.AdminConsumption)
		}
	})

	t.Run("圆环按主服务标签选取", func(t *testing.T) {
		acc := &models.Account{
			Quota: "15",
			AlfaData: mustRaw(t, map[string]interface{}{
				"consumptions": []map[string]interface{}{
					{"label": "Secondary 1", "used": 9.0},
					{"label": "U-Share Main", "used": 4.5},
				},
			}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.AdminConsumption, 4.5) {
			t.Errorf("管理员已用 = %v, 期望 4.5", c.AdminConsumption)
		}
	})

	t.Run("primaryData跳过MobileInternet", func(t *testing.T) {
		acc := &models.Account{
			Quota: "15",
			AlfaData: mustRaw(t, map[string]interface{}{
				"primaryData": map[string]interface{}{
					"ServiceInformationValue": []map[string]interface{}{
						{
							"ServiceNameValue": "Mobile Internet",
							"ServiceDetailsInformationValue": []map[string]interface{}{
								{"ConsumptionValue": "60 GB"},
							},
						},
						{
							"ServiceNameValue": "U-Share Main",
							"ServiceDetailsInformationValue": []map[string]interface{}{
								{"ConsumptionValue": "6 GB"},
							},
						},
					},
				},
			}),
		}
		c := ExtractConsumption(acc)
		if !almostEqual(c.AdminConsumption, 6) {
			t.Errorf("管理员已用 = %v, 期望 6（Mobile Internet 报的是套餐总量）", c.AdminConsumption)
		}
	})

	t.Run("提取是幂等的", func(t *testing.T) {
		acc := &models.Account{
			Quota: "20",
			AlfaData: mustRaw(t, map[string]interface{}{
				"totalConsumption": "40 / 77 GB",
				"adminConsumption": "5 / 20 GB",
			}),
		}
		first := ExtractConsumption(acc)
		second := ExtractConsumption(acc)
		if first != second {
			t.Errorf("两次提取结果不一致: %+v vs %+v", first, second)
		}
	})
}
