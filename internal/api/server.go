package api

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"alfa-admin/internal/alfa"
	"alfa-admin/internal/config"
	"alfa-admin/internal/database"
	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"
	"alfa-admin/internal/proxy"
	"alfa-admin/internal/ratelimit"
	"alfa-admin/internal/recon"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Server 表示控制台 API 服务器
type Server struct {
	cfg        *config.Config
	db         *database.DB
	alfaClient *alfa.Client
	proxyPool  *proxy.ProxyPool

	// refreshCache 刷新乐观标记，喂给对账引擎算 lastUpdate
	refreshCache *recon.RefreshCache

	settingsCache *SettingsCache

	// sessions 登录会话（token -> authSession）
	sessions sync.Map

	logChan chan *models.RequestLog
	logWg   sync.WaitGroup
	closing atomic.Bool

	// 双重限流器（IP + 门户刷新）@author ygw
	rateLimiter *ratelimit.DualLimiter

	version string
}

// sessionTTL 登录会话有效期
const sessionTTL = 30 * 24 * time.Hour

// authSession 一次控制台登录
type authSession struct {
	UserID    string // 空表示主管理员（系统密码登录）
	IsAdmin   bool
	CreatedAt time.Time
}

// NewServer 创建 API 服务器
func NewServer(cfg *config.Config, db *database.DB, version string) *Server {
	s := &Server{
		cfg:           cfg,
		db:            db,
		alfaClient:    alfa.NewClient(cfg),
		refreshCache:  recon.NewRefreshCache(),
		settingsCache: NewSettingsCache(db, 30*time.Second),
		logChan:       make(chan *models.RequestLog, 1000),
		rateLimiter:   ratelimit.NewDualLimiter(time.Minute),
		version:       version,
	}
	s.reloadProxyPool()
	s.startLogWorker()

	return s
}

// reloadProxyPool 重新加载代理池
func (s *Server) reloadProxyPool() {
	if !s.cfg.ProxyPoolEnabled {
		s.proxyPool = nil
		s.alfaClient.SetProxyPool(nil)
		return
	}
	proxies, err := s.db.GetProxies(context.Background())
	if err != nil {
		logger.Error("加载代理池失败: %v", err)
		return
	}
	if s.proxyPool == nil {
		s.proxyPool = proxy.NewProxyPool(s.cfg.ProxyPoolStrategy)
	}
	s.proxyPool.Reload(proxies)
	s.proxyPool.SetStrategy(s.cfg.ProxyPoolStrategy)
	s.alfaClient.SetProxyPool(s.proxyPool)
	logger.Info("代理池已加载，共 %d 个代理，策略: %s", len(proxies), s.cfg.ProxyPoolStrategy)
}

// GetCachedSettings 读取设置（带 30 秒缓存）
func (s *Server) GetCachedSettings(ctx context.Context) (*models.Settings, error) {
	return s.settingsCache.Get(ctx)
}

// InvalidateSettingsCache 使设置缓存失效（设置变更时调用）
// @author ygw
func (s *Server) InvalidateSettingsCache() {
	s.settingsCache.Invalidate()
}

// StartCaches 启动缓存后台刷新任务
func (s *Server) StartCaches(ctx context.Context) {
	s.settingsCache.Start(ctx)
	logger.Info("缓存系统已启动 - 设置缓存TTL: 30s")
}

func (s *Server) Router() *gin.Engine {
	if s.cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()        // 使用 gin.New() 替代 gin.Default()，避免重复日志
	r.Use(gin.Recovery()) // 只保留 Recovery 中间件

	// 操作日志中间件
	r.Use(s.requestLogMiddleware())

	// 日志中间件
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		// 跳过前端静态资源的日志
		if strings.HasPrefix(path, "/frontend/") {
			return
		}

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()

		logger.LogRequest(method, path, clientIP, statusCode, duration)
	})

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "*")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	s.setupRoutes(r)

	return r
}

// ==================== 登录与会话 ====================

func (s *Server) handleLogin(c *gin.Context) {
	logger.Info("登录尝试 - 来源: %s", c.ClientIP())

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("登录失败 - 无效的请求格式 - 来源: %s", c.ClientIP())
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	// 登录接口限流，防爆破
	settings, _ := s.GetCachedSettings(c.Request.Context())
	if settings != nil && settings.EnableIPRateLimit {
		if result := s.rateLimiter.CheckIP(c.ClientIP(), settings.IPRateLimitMax); !result.Allowed {
			logger.Warn("登录被限流 - 来源: %s, 窗口内请求数: %d", c.ClientIP(), result.Count)
			c.JSON(429, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
	}

	sess := authSession{CreatedAt: time.Now()}
	switch {
	case req.Username == "":
		// 系统管理员登录
		adminPassword := s.cfg.AdminPassword
		if settings != nil && settings.AdminPassword != "" {
			adminPassword = settings.AdminPassword
		}
		if req.Password != adminPassword {
			logger.Warn("登录失败 - 管理员密码错误 - 来源: %s", c.ClientIP())
			c.JSON(200, gin.H{"success": false, "message": "密码错误"})
			return
		}
		sess.IsAdmin = true
	default:
		// 操作员登录
		user, err := s.db.GetUserByName(c.Request.Context(), req.Username)
		if err != nil || user == nil || !user.Enabled || user.Password != req.Password {
			logger.Warn("登录失败 - 操作员 %s 凭证无效 - 来源: %s", req.Username, c.ClientIP())
			c.JSON(200, gin.H{"success": false, "message": "用户名或密码错误"})
			return
		}
		sess.UserID = user.ID
		sess.IsAdmin = user.IsAdmin
	}

	token := uuid.New().String()
	s.sessions.Store(token, sess)

	logger.Info("登录成功 - 来源: %s, 管理员: %v", c.ClientIP(), sess.IsAdmin)
	c.SetCookie("admin_session", token, 86400*30, "/", "", false, true)
	c.JSON(200, gin.H{"success": true, "message": "登录成功", "token": token})
}

func (s *Server) handleLogout(c *gin.Context) {
	logger.Info("退出登录 - 来源: %s", c.ClientIP())
	if token := s.extractToken(c); token != "" {
		s.sessions.Delete(token)
	}
	c.SetCookie("admin_session", "", -1, "/", "", false, true)
	c.JSON(200, gin.H{"success": true})
}

// extractToken 从请求中取会话令牌
// 优先 Authorization header，SSE 等场景支持 URL 参数，页面访问用 Cookie
func (s *Server) extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if token := c.Query("token"); token != "" {
		return token
	}
	if token, err := c.Cookie("admin_session"); err == nil {
		return token
	}
	return ""
}

// lookupSession 校验会话令牌
func (s *Server) lookupSession(token string) (authSession, bool) {
	if token == "" {
		return authSession{}, false
	}
	v, ok := s.sessions.Load(token)
	if !ok {
		return authSession{}, false
	}
	sess := v.(authSession)
	if time.Since(sess.CreatedAt) > sessionTTL {
		s.sessions.Delete(token)
		return authSession{}, false
	}
	return sess, true
}

// requireAuth 中间件：任何已登录的操作员或管理员
func (s *Server) requireAuth(c *gin.Context) {
	sess, ok := s.lookupSession(s.extractToken(c))
	if !ok {
		logger.Warn("认证失败 - 无效会话 - 来源: %s", c.ClientIP())
		c.JSON(401, gin.H{"error": "未授权访问", "code": "UNAUTHORIZED"})
		c.Abort()
		return
	}
	c.Set("session", sess)
	c.Next()
}

// requireAdmin 中间件：仅管理员
func (s *Server) requireAdmin(c *gin.Context) {
	sess, ok := s.lookupSession(s.extractToken(c))
	if !ok {
		logger.Warn("管理员认证失败 - 无效会话 - 来源: %s", c.ClientIP())
		c.JSON(401, gin.H{"error": "未授权访问", "code": "UNAUTHORIZED"})
		c.Abort()
		return
	}
	if !sess.IsAdmin {
		logger.Warn("管理员认证失败 - 权限不足 - 来源: %s", c.ClientIP())
		c.JSON(403, gin.H{"error": "需要管理员权限", "code": "FORBIDDEN"})
		c.Abort()
		return
	}
	c.Set("session", sess)
	c.Next()
}

// requirePageAuth 页面访问鉴权中间件
func (s *Server) requirePageAuth(c *gin.Context) {
	token, err := c.Cookie("admin_session")
	if err != nil {
		c.Redirect(302, "/login")
		c.Abort()
		return
	}
	if _, ok := s.lookupSession(token); !ok {
		c.Redirect(302, "/login")
		c.Abort()
		return
	}
	c.Next()
}

// getSession 取当前请求的会话
func getSession(c *gin.Context) authSession {
	if v, exists := c.Get("session"); exists {
		if sess, ok := v.(authSession); ok {
			return sess
		}
	}
	return authSession{}
}

// ownerScope 当前会话的租户范围
// 管理员返回空串（看全部），普通操作员只看自己名下的账号
func ownerScope(c *gin.Context) string {
	sess := getSession(c)
	if sess.IsAdmin {
		return ""
	}
	return sess.UserID
}

// canAccessAccount 当前会话是否可以操作该账号
func canAccessAccount(c *gin.Context, acc *models.Account) bool {
	sess := getSession(c)
	return sess.IsAdmin || acc.OwnerID == sess.UserID
}

// ==================== 操作日志 ====================

// requestLogMiddleware 记录会触达门户的操作
// 处理器通过 c.Set("operation", ...) 标记操作类型，没标记的请求不入库
func (s *Server) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		operation, exists := c.Get("operation")
		if !exists {
			return
		}
		opStr, ok := operation.(string)
		if !ok || opStr == "" {
			return
		}

		settings, _ := s.GetCachedSettings(c.Request.Context())
		if settings == nil || !settings.EnableRequestLog {
			return
		}

		duration := time.Since(startTime)
		statusCode := c.Writer.Status()

		log := &models.RequestLog{
			ID:         uuid.New().String(),
			Timestamp:  models.CurrentTime(),
			ClientIP:   c.ClientIP(),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			Operation:  &opStr,
			StatusCode: statusCode,
			IsSuccess:  statusCode >= 200 && statusCode < 300,
			DurationMs: duration.Milliseconds(),
			UserAgent:  strPtr(c.Request.UserAgent()),
		}

		if accountID, exists := c.Get("log_account_id"); exists {
			if id, ok := accountID.(string); ok && id != "" {
				log.AccountID = &id
			}
		}
		if sess := getSession(c); sess.UserID != "" {
			log.UserID = &sess.UserID
		}
		if errorMsg, exists := c.Get("error_message"); exists {
			if errStr, ok := errorMsg.(string); ok && errStr != "" {
				log.ErrorMessage = &errStr
			}
		}

		select {
		case s.logChan <- log:
		default:
			logger.Warn("日志通道已满，丢弃日志")
		}
	}
}

// startLogWorker 启动日志写入worker
func (s *Server) startLogWorker() {
	s.logWg.Add(1)
	go func() {
		defer s.logWg.Done()
		batch := make([]*models.RequestLog, 0, 100)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case log, ok := <-s.logChan:
				if !ok {
					if len(batch) > 0 {
						s.flushLogs(batch)
					}
					return
				}
				batch = append(batch, log)
				if len(batch) >= 100 {
					s.flushLogs(batch)
					batch = make([]*models.RequestLog, 0, 100)
				}
			case <-ticker.C:
				if len(batch) > 0 {
					s.flushLogs(batch)
					batch = make([]*models.RequestLog, 0, 100)
				}
			}
		}
	}()
}

// flushLogs 批量写入日志
// @author ygw
func (s *Server) flushLogs(logs []*models.RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.db.BatchCreateRequestLogs(ctx, logs); err != nil {
		logger.Debug("批量写入操作日志失败: %v - 日志数量: %d", err, len(logs))
	} else {
		logger.Debug("批量写入操作日志成功 - 日志数量: %d", len(logs))
	}
}

// StopLogWorker 停止日志worker
func (s *Server) StopLogWorker() {
	s.closing.Store(true)
	close(s.logChan)
	s.logWg.Wait()
}

// StopRateLimiter 停止限流器后台清理
func (s *Server) StopRateLimiter() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

func strPtr(s string) *string {
	return &s
}
