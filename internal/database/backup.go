package database

import (
	"context"
	"encoding/json"
	"fmt"

	"alfa-admin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BackupData 备份所有数据
func (db *DB) BackupData(ctx context.Context) (map[string]interface{}, error) {
	backup := make(map[string]interface{})

	// 备份账号（转换为 map 格式以便 JSON 序列化和反序列化）
	accounts, err := db.ListAccounts(ctx, "", "created_at", false)
	if err != nil {
		return nil, err
	}
	accountsData := make([]map[string]interface{}, len(accounts))
	for i, acc := range accounts {
		accMap := map[string]interface{}{
			"id":              acc.ID,
			"name":            acc.Name,
			"phone":           acc.Phone,
			"quota":           acc.Quota,
			"status":          acc.Status,
			"portal_password": acc.PortalPassword,
			"owner_id":        acc.OwnerID,
			"not_ushare":      acc.NotUShare,
			"created_at":      acc.CreatedAt,
			"updated_at":      acc.UpdatedAt,
		}
		if len(acc.AlfaData) > 0 {
			accMap["alfaData"] = json.RawMessage(acc.AlfaData)
		}
		if len(acc.PendingSubscribers) > 0 {
			accMap["pendingSubscribers"] = json.RawMessage(acc.PendingSubscribers)
		}
		if len(acc.RemovedSubscribers) > 0 {
			accMap["removedSubscribers"] = json.RawMessage(acc.RemovedSubscribers)
		}
		if len(acc.RemovedActiveSubscribers) > 0 {
			accMap["removedActiveSubscribers"] = json.RawMessage(acc.RemovedActiveSubscribers)
		}
		if acc.LastRefreshTimestamp != nil {
			accMap["last_refresh_timestamp"] = *acc.LastRefreshTimestamp
		}
		if acc.LastRefreshStatus != nil {
			accMap["last_refresh_status"] = *acc.LastRefreshStatus
		}
		accountsData[i] = accMap
	}
	backup["accounts"] = accountsData

	// 备份设置（完整备份所有设置项）
	settings, err := db.backupAllSettings(ctx)
	if err != nil {
		return nil, err
	}
	backup["settings"] = settings

	// 备份操作员
	var users []*models.User
	if err := db.gorm.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	backup["users"] = users

	// 备份代理池
	proxies, err := db.GetProxies(ctx)
	if err != nil {
		return nil, err
	}
	backup["proxies"] = proxies

	// 备份版本信息
	backup["backup_version"] = 2
	backup["backup_time"] = models.CurrentTime()

	return backup, nil
}

// backupAllSettings 导出 settings 表的全部键值对
func (db *DB) backupAllSettings(ctx context.Context) (map[string]string, error) {
	var settingsList []models.Setting
	if err := db.gorm.WithContext(ctx).Find(&settingsList).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settingsList))
	for _, s := range settingsList {
		out[s.Key] = s.Value
	}
	return out, nil
}

// RestoreData 恢复数据（覆盖现有数据）
func (db *DB) RestoreData(ctx context.Context, data map[string]interface{}) error {
	return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 清空现有数据
		if err := tx.Where("1 = 1").Delete(&models.Account{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.Setting{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.User{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.Proxy{}).Error; err != nil {
			return err
		}

		// 恢复账号（支持 []interface{} 和 []map[string]interface{} 两种格式）
		var accountsData []interface{}
		switch v := data["accounts"].(type) {
		case []interface{}:
			accountsData = v
		case []map[string]interface{}:
			accountsData = make([]interface{}, len(v))
			for i, m := range v {
				accountsData[i] = m
			}
		}
		for _, item := range accountsData {
			accMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}

			phone := getString(accMap, "phone")
			if phone == "" {
				continue
			}

			// 如果没有 ID，使用 UUID 生成
			accID := getString(accMap, "id")
			if accID == "" {
				accID = uuid.New().String()
			}

			createdAt := getStringFallback(accMap, "created_at", "createdAt")
			if createdAt == "" {
				createdAt = models.CurrentTime()
			}
			updatedAt := getStringFallback(accMap, "updated_at", "updatedAt")
			if updatedAt == "" {
				updatedAt = createdAt
			}

			acc := &models.Account{
				ID:                       accID,
				Name:                     getString(accMap, "name"),
				Phone:                    phone,
				Quota:                    getString(accMap, "quota"),
				Status:                   getString(accMap, "status"),
				PortalPassword:           getStringFallback(accMap, "portal_password", "portalPassword"),
				OwnerID:                  getStringFallback(accMap, "owner_id", "ownerId"),
				NotUShare:                getBool(accMap, "not_ushare") || getBool(accMap, "notUShare"),
				CreatedAt:                createdAt,
				UpdatedAt:                updatedAt,
				LastRefreshTimestamp:     getStringPtrFallback(accMap, "last_refresh_timestamp", "lastRefreshTimestamp"),
				LastRefreshStatus:        getStringPtrFallback(accMap, "last_refresh_status", "lastRefreshStatus"),
				AlfaData:                 rawField(accMap, "alfaData", "alfa_data"),
				PendingSubscribers:       rawField(accMap, "pendingSubscribers", "pending_subscribers"),
				RemovedSubscribers:       rawField(accMap, "removedSubscribers", "removed_subscribers"),
				RemovedActiveSubscribers: rawField(accMap, "removedActiveSubscribers", "removed_active_subscribers"),
			}

			if err := tx.Create(acc).Error; err != nil {
				return err
			}
		}

		// 恢复设置
		if settingsData, ok := data["settings"].(map[string]interface{}); ok {
			// 驼峰到下划线的映射（兼容旧版本备份）
			keyMapping := map[string]string{
				"adminPassword":      "admin_password",
				"debugLog":           "debug_log",
				"enableRequestLog":   "enable_request_log",
				"logRetentionDays":   "log_retention_days",
				"enableIPRateLimit":  "enable_ip_rate_limit",
				"ipRateLimitWindow":  "ip_rate_limit_window",
				"ipRateLimitMax":     "ip_rate_limit_max",
				"layoutFullWidth":    "layout_full_width",
				"httpProxy":          "http_proxy",
				"proxyPoolEnabled":   "proxy_pool_enabled",
				"proxyPoolStrategy":  "proxy_pool_strategy",
				"refreshConcurrency": "refresh_concurrency",
				"refreshRateLimit":   "refresh_rate_limit",
			}
			for key, value := range settingsData {
				// 转换驼峰格式为下划线格式
				dbKey := key
				if mapped, ok := keyMapping[key]; ok {
					dbKey = mapped
				}
				// 端口跟随当前部署环境，不从备份恢复
				if dbKey == "schema_version" || dbKey == "port" {
					continue
				}
				var strValue string
				switch v := value.(type) {
				case string:
					strValue = v
				case bool:
					strValue = boolToString(v)
				case float64:
					strValue = fmt.Sprintf("%v", v)
				default:
					strValue = fmt.Sprintf("%v", v)
				}
				setting := models.Setting{Key: dbKey, Value: strValue}
				if err := tx.Create(&setting).Error; err != nil {
					return err
				}
			}
		}

		// 恢复操作员
		if usersData, ok := data["users"].([]interface{}); ok {
			for _, item := range usersData {
				userMap, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				id := getString(userMap, "id")
				name := getString(userMap, "name")
				if id == "" || name == "" {
					continue
				}
				user := models.User{
					ID:        id,
					Name:      name,
					Email:     getStringPtr(userMap, "email"),
					Password:  getString(userMap, "password"),
					CreatedAt: getStringFallback(userMap, "created_at", "createdAt"),
					UpdatedAt: getStringFallback(userMap, "updated_at", "updatedAt"),
					Enabled:   getBool(userMap, "enabled"),
					IsAdmin:   getBool(userMap, "is_admin") || getBool(userMap, "isAdmin"),
					Notes:     getStringPtr(userMap, "notes"),
				}
				if err := tx.Create(&user).Error; err != nil {
					return err
				}
			}
		}

		// 恢复代理池
		if proxiesData, ok := data["proxies"].([]interface{}); ok {
			for _, item := range proxiesData {
				proxyMap, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				url := getString(proxyMap, "url")
				if url == "" {
					continue
				}
				proxy := models.Proxy{
					URL:       url,
					Name:      getString(proxyMap, "name"),
					Enabled:   getBool(proxyMap, "enabled"),
					Weight:    getInt(proxyMap, "weight"),
					CreatedAt: getStringFallback(proxyMap, "created_at", "createdAt"),
					UpdatedAt: getStringFallback(proxyMap, "updated_at", "updatedAt"),
				}
				if proxy.Weight == 0 {
					proxy.Weight = 1
				}
				if err := tx.Create(&proxy).Error; err != nil {
					return err
				}
			}
		}

		return nil
	})
}

// rawField 从备份 map 取嵌套 JSON 字段并重新编码为原始 JSON
func rawField(m map[string]interface{}, keys ...string) json.RawMessage {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if raw, ok := v.(json.RawMessage); ok {
			return raw
		}
		if b, err := json.Marshal(v); err == nil {
			return b
		}
	}
	return nil
}

// getString 从 map 中获取字符串
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getStringPtr 从 map 中获取字符串指针
func getStringPtr(m map[string]interface{}, key string) *string {
	if v, ok := m[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

// getBool 从 map 中获取布尔值
func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// getInt 从 map 中获取整数
func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

// getStringFallback 从 map 中获取字符串（支持多个 key）
func getStringFallback(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v := getString(m, key); v != "" {
			return v
		}
	}
	return ""
}

// getStringPtrFallback 从 map 中获取字符串指针（支持多个 key）
func getStringPtrFallback(m map[string]interface{}, keys ...string) *string {
	for _, key := range keys {
		if v := getStringPtr(m, key); v != nil {
			return v
		}
	}
	return nil
}
