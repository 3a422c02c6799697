package api

import (
	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"

	"github.com/gin-gonic/gin"
)

// handleGetSettings 获取系统设置
func (s *Server) handleGetSettings(c *gin.Context) {
	logger.Info("获取系统设置 - 请求来源: %s", c.ClientIP())

	settings, err := s.db.GetSettings(c.Request.Context())
	if err != nil {
		logger.Error("获取系统设置失败: %v", err)
		c.JSON(500, gin.H{"error": "获取系统设置失败"})
		return
	}

	// 使用轻量级查询获取账号数量，避免重复查询完整账号列表
	currentAccountCount, _ := s.db.GetAccountCount(c.Request.Context())

	logger.Info("成功获取系统设置")
	c.JSON(200, gin.H{
		"adminPassword":     settings.AdminPassword,
		"debugLog":          settings.DebugLog,
		"enableRequestLog":  settings.EnableRequestLog,
		"logRetentionDays":  settings.LogRetentionDays,
		"enableIPRateLimit": settings.EnableIPRateLimit,
		"ipRateLimitWindow": settings.IPRateLimitWindow,
		"ipRateLimitMax":    settings.IPRateLimitMax,
		"port":              settings.Port,
		"layoutFullWidth":   settings.LayoutFullWidth,
		// 代理配置
		"httpProxy":         settings.HTTPProxy,
		"proxyPoolEnabled":  settings.ProxyPoolEnabled,
		"proxyPoolStrategy": settings.ProxyPoolStrategy,
		// 刷新配置
		"refreshConcurrency": settings.RefreshConcurrency,
		"refreshRateLimit":   settings.RefreshRateLimit,
		// 版本信息
		"maxAccounts":         s.cfg.GetMaxAccounts(),
		"currentAccountCount": currentAccountCount,
		"version":             s.version,
	})
}

// handleUpdateSettings 更新系统设置
// @author ygw
func (s *Server) handleUpdateSettings(c *gin.Context) {
	logger.Info("更新系统设置 - 请求来源: %s", c.ClientIP())

	var updates models.SettingsUpdate
	if err := c.ShouldBindJSON(&updates); err != nil {
		logger.Warn("更新设置失败 - 无效的请求格式: %v", err)
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	if err := s.db.UpdateSettings(c.Request.Context(), &updates); err != nil {
		logger.Error("更新系统设置失败: %v", err)
		c.JSON(500, gin.H{"error": "更新系统设置失败"})
		return
	}

	// 使设置缓存失效
	s.InvalidateSettingsCache()

	// 动态更新服务器配置
	if updates.AdminPassword != nil && *updates.AdminPassword != "" {
		s.cfg.AdminPassword = *updates.AdminPassword
		logger.Info("管理员密码已动态更新")
	}

	if updates.DebugLog != nil {
		logger.SetDebugEnabled(*updates.DebugLog)
		logger.Info("调试日志开关已动态更新: %v", *updates.DebugLog)
	}

	// 代理配置变更时重建代理池，立即对后续刷新生效
	proxyChanged := false
	if updates.HTTPProxy != nil {
		s.cfg.HTTPProxy = *updates.HTTPProxy
		proxyChanged = true
	}
	if updates.ProxyPoolEnabled != nil {
		s.cfg.ProxyPoolEnabled = *updates.ProxyPoolEnabled
		proxyChanged = true
	}
	if updates.ProxyPoolStrategy != nil {
		s.cfg.ProxyPoolStrategy = *updates.ProxyPoolStrategy
		proxyChanged = true
	}
	if proxyChanged {
		s.reloadProxyPool()
		logger.Info("代理配置已动态更新并重建代理池")
	}

	if updates.RefreshConcurrency != nil || updates.RefreshRateLimit != nil {
		logger.Info("刷新配置已更新，将在下次刷新时生效")
	}

	logger.Info("系统设置更新成功")
	settings, _ := s.db.GetSettings(c.Request.Context())
	c.JSON(200, settings)
}
