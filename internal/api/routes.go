package api

import (
	"io/fs"
	"net/http"
	"strings"

	"alfa-admin/frontend"

	"github.com/gin-gonic/gin"
)

// staticCacheMiddleware 根据文件类型设置缓存策略
// @author ygw
func staticCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		switch {
		case strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".css"):
			c.Header("Cache-Control", "public, max-age=3600")
		case strings.HasSuffix(path, ".png") || strings.HasSuffix(path, ".jpg") ||
			strings.HasSuffix(path, ".gif") || strings.HasSuffix(path, ".ico") ||
			strings.HasSuffix(path, ".svg") || strings.HasSuffix(path, ".webp"):
			c.Header("Cache-Control", "public, max-age=604800")
		default:
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		}

		c.Next()
	}
}

// setupRoutes 配置所有 HTTP 路由
func (s *Server) setupRoutes(r *gin.Engine) {
	// 健康检查
	r.GET("/healthz", s.handleHealthCheck)

	// 版本信息
	r.GET("/version", s.handleVersion)

	embeddedFS, _ := fs.Sub(frontend.StaticFiles, ".")
	r.Group("/frontend").Use(staticCacheMiddleware()).StaticFS("/", http.FS(embeddedFS))

	// 登录页面（无需鉴权）
	r.GET("/login", s.handleLoginPage)
	r.POST("/api/login", s.handleLogin)
	r.POST("/api/logout", s.handleLogout)

	// 需要鉴权的页面
	r.GET("/", s.requirePageAuth, s.handleAccountsPage)
	r.GET("/accounts", s.requirePageAuth, s.handleAccountsPage)

	// 账号管理（操作员可见自己名下的账号）
	accountsGroup := r.Group("/v2/accounts")
	accountsGroup.Use(s.requireAuth)
	{
		accountsGroup.GET("", s.handleListAccounts)
		accountsGroup.POST("", s.handleCreateAccount)
		accountsGroup.GET("/export", s.handleExportAccounts)
		accountsGroup.POST("/refresh-all", s.handleRefreshAllAccounts)
		accountsGroup.GET("/stream", s.handleAccountsStream)
		accountsGroup.GET("/:id", s.handleGetAccount)
		accountsGroup.PATCH("/:id", s.handleUpdateAccount)
		accountsGroup.DELETE("/:id", s.handleDeleteAccount)
		accountsGroup.POST("/:id/refresh", s.handleRefreshAccount)
		accountsGroup.POST("/:id/subscribers", s.handleAddSubscriber)
		accountsGroup.PATCH("/:id/subscribers", s.handleEditSubscriber)
		accountsGroup.POST("/:id/subscribers/remove", s.handleRemoveSubscribers)
		accountsGroup.POST("/:id/removed-active/clear", s.handleClearRemovedActive)
	}

	// 设置管理
	settingsGroup := r.Group("/v2/settings")
	settingsGroup.Use(s.requireAdmin)
	{
		settingsGroup.GET("", s.handleGetSettings)
		settingsGroup.PUT("", s.handleUpdateSettings)
	}

	// 代理池管理
	proxiesGroup := r.Group("/v2/proxies")
	proxiesGroup.Use(s.requireAdmin)
	{
		proxiesGroup.GET("", s.handleListProxies)
		proxiesGroup.POST("", s.handleCreateProxy)
		proxiesGroup.PUT("/:id", s.handleUpdateProxy)
		proxiesGroup.DELETE("/:id", s.handleDeleteProxy)
		proxiesGroup.POST("/:id/toggle", s.handleToggleProxy)
	}

	// 数据备份和恢复
	backupGroup := r.Group("/v2/backup")
	backupGroup.Use(s.requireAdmin)
	{
		backupGroup.GET("/export", s.handleBackupExport)
		backupGroup.POST("/import", s.handleBackupImport)
	}

	// 操作日志管理
	logsGroup := r.Group("/v2/logs")
	logsGroup.Use(s.requireAdmin)
	{
		logsGroup.GET("", s.handleGetLogs)
		logsGroup.GET("/stats", s.handleGetStats)
		logsGroup.POST("/cleanup", s.handleCleanupLogs)
		logsGroup.DELETE("", s.handleDeleteAllLogs)
	}

	// 服务日志流（SSE）
	r.GET("/v2/server-logs/stream", s.requireAdmin, s.handleServerLogsStream)

	// 操作员管理
	usersGroup := r.Group("/v2/users")
	usersGroup.Use(s.requireAdmin)
	{
		usersGroup.POST("", s.handleCreateUser)
		usersGroup.GET("", s.handleListUsers)
		usersGroup.GET("/:id", s.handleGetUser)
		usersGroup.PATCH("/:id", s.handleUpdateUser)
		usersGroup.DELETE("/:id", s.handleDeleteUser)
	}
}

// handleHealthCheck 返回服务健康状态
func (s *Server) handleHealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// handleVersion 返回版本信息
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(200, gin.H{"version": s.version})
}

// handleLoginPage 提供登录页面
func (s *Server) handleLoginPage(c *gin.Context) {
	data, err := s.readFrontendFile("login.html")
	if err != nil {
		c.String(500, "加载页面失败")
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(200, "text/html; charset=utf-8", data)
}

// handleAccountsPage 提供账号管理页面
func (s *Server) handleAccountsPage(c *gin.Context) {
	data, err := s.readFrontendFile("index.html")
	if err != nil {
		c.String(500, "加载页面失败")
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(200, "text/html; charset=utf-8", data)
}

func (s *Server) readFrontendFile(name string) ([]byte, error) {
	return frontend.StaticFiles.ReadFile(name)
}
