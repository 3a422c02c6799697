package database

import (
	"context"
	"fmt"
	"strconv"

	"alfa-admin/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetSettings 获取系统设置
func (db *DB) GetSettings(ctx context.Context) (*models.Settings, error) {
	settings := &models.Settings{
		AdminPassword:      "admin",
		DebugLog:           false,
		EnableRequestLog:   false,
		LogRetentionDays:   7,
		EnableIPRateLimit:  false,
		IPRateLimitWindow:  1,
		IPRateLimitMax:     100,
		Port:               db.cfg.Port,
		LayoutFullWidth:    false,
		ProxyPoolStrategy:  "round_robin",
		RefreshConcurrency: db.cfg.RefreshConcurrency,
		RefreshRateLimit:   db.cfg.RefreshRateLimit,
	}

	var settingsList []models.Setting
	if err := db.gorm.WithContext(ctx).Find(&settingsList).Error; err != nil {
		return settings, nil
	}

	for _, s := range settingsList {
		switch s.Key {
		case "admin_password":
			settings.AdminPassword = s.Value
			db.cfg.AdminPassword = s.Value
		case "debug_log":
			settings.DebugLog = s.Value == "true"
		case "enable_request_log":
			settings.EnableRequestLog = s.Value == "true"
		case "log_retention_days":
			fmt.Sscanf(s.Value, "%d", &settings.LogRetentionDays)
		case "enable_ip_rate_limit":
			settings.EnableIPRateLimit = s.Value == "true"
		case "ip_rate_limit_window":
			fmt.Sscanf(s.Value, "%d", &settings.IPRateLimitWindow)
		case "ip_rate_limit_max":
			fmt.Sscanf(s.Value, "%d", &settings.IPRateLimitMax)
		case "port":
			if v, err := strconv.Atoi(s.Value); err == nil && v > 0 {
				settings.Port = v
				settings.PortConfigured = true
				db.cfg.Port = v
			}
		case "layout_full_width":
			settings.LayoutFullWidth = s.Value != "false"
		case "http_proxy":
			settings.HTTPProxy = s.Value
			db.cfg.HTTPProxy = s.Value
		case "proxy_pool_enabled":
			settings.ProxyPoolEnabled = s.Value == "true"
			db.cfg.ProxyPoolEnabled = s.Value == "true"
		case "proxy_pool_strategy":
			if s.Value != "" {
				settings.ProxyPoolStrategy = s.Value
				db.cfg.ProxyPoolStrategy = s.Value
			}
		case "refresh_concurrency":
			if v, err := strconv.Atoi(s.Value); err == nil && v >= 1 && v <= 20 {
				settings.RefreshConcurrency = v
				db.cfg.RefreshConcurrency = v
			}
		case "refresh_rate_limit":
			if v, err := strconv.Atoi(s.Value); err == nil && v >= 1 {
				settings.RefreshRateLimit = v
				db.cfg.RefreshRateLimit = v
			}
		}
	}

	return settings, nil
}

// UpdateSettings 更新系统设置
func (db *DB) UpdateSettings(ctx context.Context, updates *models.SettingsUpdate) error {
	return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsertSetting := func(key, value string) error {
			setting := models.Setting{Key: key, Value: value}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "setting_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"setting_value"}),
			}).Create(&setting).Error
		}

		if updates.AdminPassword != nil {
			if err := upsertSetting("admin_password", *updates.AdminPassword); err != nil {
				return err
			}
			db.cfg.AdminPassword = *updates.AdminPassword
		}

		if updates.DebugLog != nil {
			if err := upsertSetting("debug_log", boolToString(*updates.DebugLog)); err != nil {
				return err
			}
		}

		if updates.EnableRequestLog != nil {
			if err := upsertSetting("enable_request_log", boolToString(*updates.EnableRequestLog)); err != nil {
				return err
			}
		}

		if updates.LogRetentionDays != nil {
			if err := upsertSetting("log_retention_days", fmt.Sprintf("%d", *updates.LogRetentionDays)); err != nil {
				return err
			}
		}

		if updates.EnableIPRateLimit != nil {
			if err := upsertSetting("enable_ip_rate_limit", boolToString(*updates.EnableIPRateLimit)); err != nil {
				return err
			}
		}

		if updates.IPRateLimitWindow != nil {
			if err := upsertSetting("ip_rate_limit_window", fmt.Sprintf("%d", *updates.IPRateLimitWindow)); err != nil {
				return err
			}
		}

		if updates.IPRateLimitMax != nil {
			if err := upsertSetting("ip_rate_limit_max", fmt.Sprintf("%d", *updates.IPRateLimitMax)); err != nil {
				return err
			}
		}

		if updates.Port != nil {
			port := *updates.Port
			if port < 1 || port > 65535 {
				port = 62311
			}
			if err := upsertSetting("port", fmt.Sprintf("%d", port)); err != nil {
				return err
			}
			db.cfg.Port = port
		}

		if updates.LayoutFullWidth != nil {
			if err := upsertSetting("layout_full_width", boolToString(*updates.LayoutFullWidth)); err != nil {
				return err
			}
		}

		if updates.HTTPProxy != nil {
			if err := upsertSetting("http_proxy", *updates.HTTPProxy); err != nil {
				return err
			}
			db.cfg.HTTPProxy = *updates.HTTPProxy
		}

		if updates.ProxyPoolEnabled != nil {
			if err := upsertSetting("proxy_pool_enabled", boolToString(*updates.ProxyPoolEnabled)); err != nil {
				return err
			}
			db.cfg.ProxyPoolEnabled = *updates.ProxyPoolEnabled
		}

		if updates.ProxyPoolStrategy != nil {
			if err := upsertSetting("proxy_pool_strategy", *updates.ProxyPoolStrategy); err != nil {
				return err
			}
			db.cfg.ProxyPoolStrategy = *updates.ProxyPoolStrategy
		}

		if updates.RefreshConcurrency != nil {
			v := *updates.RefreshConcurrency
			if v < 1 {
				v = 1
			}
			if v > 20 {
				v = 20
			}
			if err := upsertSetting("refresh_concurrency", fmt.Sprintf("%d", v)); err != nil {
				return err
			}
			db.cfg.RefreshConcurrency = v
		}

		if updates.RefreshRateLimit != nil {
			v := *updates.RefreshRateLimit
			if v < 1 {
				v = 1
			}
			if err := upsertSetting("refresh_rate_limit", fmt.Sprintf("%d", v)); err != nil {
				return err
			}
			db.cfg.RefreshRateLimit = v
		}

		return nil
	})
}

// boolToString 将布尔值转换为字符串
func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
