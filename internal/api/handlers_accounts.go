package api

import (
	"fmt"
	"io"
	"time"

	"alfa-admin/internal/alfa"
	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"
	"alfa-admin/internal/parse"
	"alfa-admin/internal/recon"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// accountView 列表/详情接口返回的一行账号数据
// 对账视图 + 录入信息 + 派生标记
type accountView struct {
	*models.SubscriberView
	Quota             string  `json:"quota"`
	OwnerID           string  `json:"ownerId"`
	Eligible          bool    `json:"eligible"`
	UsedPercent       float64 `json:"usedPercent"`
	LastRefreshStatus *string `json:"lastRefreshStatus"`
}

// buildAccountView 对一条原始记录跑对账引擎
func (s *Server) buildAccountView(acc *models.Account) *accountView {
	view := recon.Reconcile(acc, s.refreshCache)
	return &accountView{
		SubscriberView:    view,
		Quota:             acc.Quota,
		OwnerID:           acc.OwnerID,
		Eligible:          recon.IsEligible(view),
		UsedPercent:       recon.UsedPercent(view),
		LastRefreshStatus: acc.LastRefreshStatus,
	}
}

func (s *Server) handleListAccounts(c *gin.Context) {
	logger.Debug("获取账号列表 - 来源: %s", c.ClientIP())

	page := 1
	pageSize := 50
	if p := c.Query("page"); p != "" {
		fmt.Sscanf(p, "%d", &page)
	}
	if ps := c.Query("page_size"); ps != "" {
		fmt.Sscanf(ps, "%d", &pageSize)
	}
	orderBy := c.DefaultQuery("order_by", "created_at")
	orderDesc := c.DefaultQuery("order_desc", "true") == "true"
	search := c.Query("search")
	statusFilter := c.Query("status")

	scope := ownerScope(c)

	// 状态是对账引擎算出来的，带状态过滤时只能全量对账后在内存里筛
	if statusFilter != "" {
		accounts, err := s.db.ListAccounts(c.Request.Context(), scope, orderBy, orderDesc)
		if err != nil {
			logger.Error("获取账号列表失败: %v", err)
			c.JSON(500, gin.H{"error": "获取账号列表失败"})
			return
		}

		views := lo.Map(accounts, func(acc *models.Account, _ int) *accountView {
			return s.buildAccountView(acc)
		})
		views = lo.Filter(views, func(v *accountView, _ int) bool {
			switch statusFilter {
			case "not_ushare":
				return v.NotUShare
			default:
				return !v.NotUShare && v.SubscriberView.Status == statusFilter
			}
		})

		total := len(views)
		start := (page - 1) * pageSize
		if start < 0 {
			start = 0
		}
		if start > total {
			start = total
		}
		end := start + pageSize
		if end > total {
			end = total
		}

		c.JSON(200, gin.H{
			"accounts": views[start:end],
			"pagination": gin.H{
				"page":        page,
				"page_size":   pageSize,
				"total":       total,
				"total_pages": (total + pageSize - 1) / pageSize,
			},
		})
		return
	}

	accounts, pagination, err := s.db.ListAccountsWithPagination(
		c.Request.Context(), scope, search, orderBy, orderDesc, page, pageSize)
	if err != nil {
		logger.Error("获取账号列表失败: %v", err)
		c.JSON(500, gin.H{"error": "获取账号列表失败"})
		return
	}

	views := lo.Map(accounts, func(acc *models.Account, _ int) *accountView {
		return s.buildAccountView(acc)
	})

	c.JSON(200, gin.H{"accounts": views, "pagination": pagination})
}

func (s *Server) handleCreateAccount(c *gin.Context) {
	logger.Info("创建新账号 - 请求来源: %s", c.ClientIP())

	var req models.AccountCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("创建账号失败 - 无效的请求格式: %v", err)
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	// 检查账号数量限制
	maxAccounts := s.cfg.GetMaxAccounts()
	count, err := s.db.GetAccountCount(c.Request.Context())
	if err != nil {
		logger.Error("获取账号数量失败: %v", err)
		c.JSON(500, gin.H{"error": "获取账号数量失败"})
		return
	}
	if count >= maxAccounts {
		logger.Warn("创建账号失败 - 已达账号数量上限 %d", maxAccounts)
		c.JSON(403, gin.H{
			"error": fmt.Sprintf("已达账号数量上限 %d", maxAccounts),
			"code":  "ACCOUNT_LIMIT_REACHED",
		})
		return
	}

	// 手机号查重
	if existing, _ := s.db.GetAccountByPhone(c.Request.Context(), req.Phone); existing != nil {
		logger.Warn("创建账号失败 - 手机号已存在: %s", req.Phone)
		c.JSON(409, gin.H{"error": "该手机号已存在", "code": "PHONE_EXISTS"})
		return
	}

	sess := getSession(c)
	ownerID := req.OwnerID
	if !sess.IsAdmin {
		// 操作员创建的账号归自己
		ownerID = sess.UserID
	}

	notUShare := false
	if req.NotUShare != nil {
		notUShare = *req.NotUShare
	}

	account := &models.Account{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Phone:          req.Phone,
		Quota:          req.Quota,
		PortalPassword: req.PortalPassword,
		OwnerID:        ownerID,
		NotUShare:      notUShare,
		CreatedAt:      models.CurrentTime(),
		UpdatedAt:      models.CurrentTime(),
	}

	logger.Info("正在创建账号 - ID: %s, 手机号: %s", account.ID, account.Phone)

	if err := s.db.CreateAccount(c.Request.Context(), account); err != nil {
		logger.Error("在数据库中创建账号失败 - ID: %s, 错误: %v", account.ID, err)
		c.JSON(500, gin.H{"error": "创建账号失败"})
		return
	}

	logger.Info("账号创建成功 - ID: %s", account.ID)
	c.JSON(200, s.buildAccountView(account))
}

// loadAccessibleAccount 读取账号并检查租户权限
func (s *Server) loadAccessibleAccount(c *gin.Context) *models.Account {
	accountID := c.Param("id")

	account, err := s.db.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		logger.Error("从数据库获取账号 %s 失败: %v", accountID, err)
		c.JSON(500, gin.H{"error": "从数据库获取账号失败"})
		return nil
	}
	if account == nil {
		logger.Warn("账号未找到 - ID: %s", accountID)
		c.JSON(404, gin.H{"error": "账号不存在"})
		return nil
	}
	if !canAccessAccount(c, account) {
		logger.Warn("越权访问账号 - ID: %s, 来源: %s", accountID, c.ClientIP())
		c.JSON(404, gin.H{"error": "账号不存在"})
		return nil
	}
	return account
}

func (s *Server) handleGetAccount(c *gin.Context) {
	account := s.loadAccessibleAccount(c)
	if account == nil {
		return
	}

	logger.Debug("获取账号详情 - ID: %s", account.ID)
	c.JSON(200, s.buildAccountView(account))
}

func (s *Server) handleUpdateAccount(c *gin.Context) {
	account := s.loadAccessibleAccount(c)
	if account == nil {
		return
	}
	logger.Info("更新账号 - ID: %s, 请求来源: %s", account.ID, c.ClientIP())

	var patch models.AccountPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		logger.Warn("更新账号失败 - 无效的请求格式: %v", err)
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	// 只有管理员可以改归属
	if patch.OwnerID != nil && !getSession(c).IsAdmin {
		patch.OwnerID = nil
	}

	if err := s.db.PatchAccount(c.Request.Context(), account.ID, &patch); err != nil {
		logger.Error("在数据库中更新账号 %s 失败: %v", account.ID, err)
		c.JSON(500, gin.H{"error": "更新账号失败"})
		return
	}

	logger.Info("账号更新成功 - ID: %s", account.ID)
	updated, _ := s.db.GetAccount(c.Request.Context(), account.ID)
	if updated == nil {
		updated = account
	}
	c.JSON(200, s.buildAccountView(updated))
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	account := s.loadAccessibleAccount(c)
	if account == nil {
		return
	}
	logger.Info("删除账号 - ID: %s, 请求来源: %s", account.ID, c.ClientIP())

	if err := s.db.DeleteAccount(c.Request.Context(), account.ID); err != nil {
		logger.Error("从数据库删除账号 %s 失败: %v", account.ID, err)
		c.JSON(500, gin.H{"error": "删除账号失败"})
		return
	}

	logger.Info("账号删除成功 - ID: %s", account.ID)
	c.JSON(200, gin.H{"success": true})
}

// ==================== 刷新 ====================

func (s *Server) handleRefreshAccount(c *gin.Context) {
	account := s.loadAccessibleAccount(c)
	if account == nil {
		return
	}
	c.Set("operation", "refresh")
	c.Set("log_account_id", account.ID)

	logger.Info("刷新账号快照 - ID: %s, 手机号: %s", account.ID, account.Phone)

	settings, _ := s.GetCachedSettings(c.Request.Context())
	rateLimit := s.cfg.RefreshRateLimit
	if settings != nil {
		rateLimit = settings.RefreshRateLimit
	}
	if result := s.rateLimiter.CheckRefresh(account.ID, rateLimit); !result.Allowed {
		logger.Warn("刷新被限流 - 账号: %s, 窗口内次数: %d", account.ID, result.Count)
		c.JSON(429, gin.H{"error": "刷新过于频繁，请稍后再试", "code": "REFRESH_THROTTLED"})
		return
	}

	data, err := s.alfaClient.FetchAccountSnapshot(
		c.Request.Context(), account.ID, account.Phone, account.PortalPassword)
	if err != nil {
		c.Set("error_message", err.Error())
		logger.Error("账号 %s 快照抓取失败: %v", account.ID, err)

		// 失败也记录刷新状态，方便表格里标红
		s.db.UpdateAccountSnapshot(c.Request.Context(), account.ID, nil, "failed")

		if alfa.IsNonRetriable(err) {
			nrErr := err.(*alfa.NonRetriableError)
			c.JSON(502, gin.H{"error": nrErr.Message, "hint": nrErr.Hint, "code": nrErr.Code})
			return
		}
		c.JSON(502, gin.H{"error": "门户抓取失败，请稍后重试"})
		return
	}

	if err := s.db.UpdateAccountSnapshot(c.Request.Context(), account.ID, data, "success"); err != nil {
		logger.Error("写入账号 %s 快照失败: %v", account.ID, err)
		c.JSON(500, gin.H{"error": "保存快照失败"})
		return
	}

	// 乐观标记：详情弹窗立刻显示刚刚刷新
	s.refreshCache.MarkRefreshed(account.ID, time.Now())

	updated, _ := s.db.GetAccount(c.Request.Context(), account.ID)
	if updated == nil {
		updated = account
	}
	logger.Info("账号刷新成功 - ID: %s", account.ID)
	c.JSON(200, s.buildAccountView(updated))
}

func (s *Server) handleRefreshAllAccounts(c *gin.Context) {
	c.Set("operation", "refresh_all")
	logger.Info("批量刷新账号 - 来源: %s", c.ClientIP())

	accounts, err := s.db.ListAccounts(c.Request.Context(), ownerScope(c), "created_at", false)
	if err != nil {
		logger.Error("获取账号列表失败: %v", err)
		c.JSON(500, gin.H{"error": "获取账号列表失败"})
		return
	}

	// 只刷有门户凭证的账号
	targets := make([]alfa.Credentials, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Phone == "" || acc.PortalPassword == "" {
			continue
		}
		targets = append(targets, alfa.Credentials{
			AccountID: acc.ID,
			Phone:     acc.Phone,
			Password:  acc.PortalPassword,
		})
	}
	if len(targets) == 0 {
		c.JSON(200, gin.H{"total": 0, "success": 0, "failed": 0})
		return
	}

	settings, _ := s.GetCachedSettings(c.Request.Context())
	concurrency := s.cfg.RefreshConcurrency
	if settings != nil && settings.RefreshConcurrency > 0 {
		concurrency = settings.RefreshConcurrency
	}

	results := s.alfaClient.RefreshAccounts(c.Request.Context(), targets, concurrency)

	success, failed := 0, 0
	now := time.Now()
	for _, result := range results {
		if result.Err != nil {
			failed++
			s.db.UpdateAccountSnapshot(c.Request.Context(), result.AccountID, nil, "failed")
			continue
		}
		if err := s.db.UpdateAccountSnapshot(c.Request.Context(), result.AccountID, result.Data, "success"); err != nil {
			logger.Error("写入账号 %s 快照失败: %v", result.AccountID, err)
			failed++
			continue
		}
		s.refreshCache.MarkRefreshed(result.AccountID, now)
		success++
	}

	logger.Info("批量刷新结束 - 总数: %d, 成功: %d, 失败: %d", len(results), success, failed)
	c.JSON(200, gin.H{"total": len(results), "success": success, "failed": failed})
}

// ==================== 名册操作 ====================

func (s *Server) portalCredentials(acc *models.Account) (alfa.Credentials, bool) {
	if acc.Phone == "" || acc.PortalPassword == "" {
		return alfa.Credentials{}, false
	}
	return alfa.Credentials{
		AccountID: acc.ID,
		Phone:     acc.Phone,
		Password:  acc.PortalPassword,
	}, true
}

func (s *Server) handleAddSubscriber(c *gin.Context) {
	account := s.loadAccessibleAccount(c)
	if account == nil {
		return
	}
	c.Set("operation", "add_subscriber")
	c.Set("log_account_id", account.ID)

	var req struct {
		Phone string `json:"phone" binding:"required"`
		Quota string `json:"quota"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	creds, ok := s.portalCredentials(account)
	if !ok {
		c.JSON(400, gin.H{"error": "账号缺少门户凭证，无法操作名册"})
		return
	}

	logger.Info("添加副卡 - 账号: %s, 目标号码: %s", account.ID, req.Phone)

	if err := s.alfaClient.AddSubscriber(c.Request.Context(), creds, req.Phone, req.Quota); err != nil {
		c.Set("error_message", err.Error())
		logger.Error("账号 %s 添加副卡失败: %v", account.ID, err)
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}

	// 门户是异步确认的，先落本地待确认名册
	entry := models.RosterEntry{
		PhoneNumber: req.Phone,
		Status:      models.RosterStatusRequested,
	}
	if limit, ok := parse.LeadingNumber(req.Quota); ok {
		entry.Limit = limit
	}
	if err := s.db.AppendPendingSubscriber(c.Request.Context(), account.ID, entry); err != nil {
		logger.Warn("账号 %s 待确认名册写入失败: %v", account.ID, err)
	}

	updated, _ := s.db.GetAccount(c.Request.Context(), account.ID)
	if updated == nil {
		updated = account
	}
	c.JSON(200, s.buildAccountView(updated))
}

func (s *Server) handleEditSubscriber(c *gin.Context) {
	account := s.loadAccessibleAccount(c)
	if account == nil {
		return
	}
	c.Set("operation", "edit_subscriber")
	c.Set("log_account_id", account.ID)

	var req struct {
		Phone string `json:"phone" binding:"required"`
		Quota string `json:"quota" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	creds, ok := s.portalCredentials(account)
	if !ok {
		c.JSON(400, gin.H{"error": "账号缺少门户凭证，无法操作名册"})
		return
	}

	logger.Info("修改副卡配额 - 账号: %s, 目标号码: %s, 配额: %s", account.ID, req.Phone, req.Quota)

	if err := s.alfaClient.EditSubscriber(c.Request.Context(), creds, req.Phone, req.Quota); err != nil {
		c.Set("error_message", err.Error())
		logger.Error("账号 %s 修改副卡失败: %v", account.ID, err)
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{"success": true})
}

// removeSubscriberItem 批量移除请求中的一个号码
// wasActive 表示该副卡在当前计费周期内处于激活状态，移除后仍计费
type removeSubscriberItem struct {
	Phone     string `json:"phone"`
	WasActive bool   `json:"wasActive"`
}

func (s *Server) handleRemoveSubscribers(c *gin.Context) {
	account := s.loadAccessibleAccount(c)
	if account == nil {
		return
	}
	c.Set("operation", "remove_subscriber")
	c.Set("log_account_id", account.ID)

	var req struct {
		Subscribers []removeSubscriberItem `json:"subscribers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Subscribers) == 0 {
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	creds, ok := s.portalCredentials(account)
	if !ok {
		c.JSON(400, gin.H{"error": "账号缺少门户凭证，无法操作名册"})
		return
	}

	phones := lo.Map(req.Subscribers, func(sub removeSubscriberItem, _ int) string {
		return sub.Phone
	})

	logger.Info("批量移除副卡 - 账号: %s, 数量: %d", account.ID, len(phones))

	results := s.alfaClient.BatchRemoveSubscribers(c.Request.Context(), creds, phones)

	// 门户确认成功的号码同步进本地移除名册
	failed := 0
	for i, result := range results {
		if result.Error != "" {
			failed++
			continue
		}
		wasActive := req.Subscribers[i].WasActive
		if err := s.db.RemoveSubscriberLocally(c.Request.Context(), account.ID, result.Phone, wasActive); err != nil {
			logger.Warn("账号 %s 本地移除名册写入失败: %v", account.ID, err)
		}
	}
	if failed > 0 {
		c.Set("error_message", fmt.Sprintf("%d 个号码移除失败", failed))
	}

	updated, _ := s.db.GetAccount(c.Request.Context(), account.ID)
	if updated == nil {
		updated = account
	}
	c.JSON(200, gin.H{
		"results": results,
		"account": s.buildAccountView(updated),
	})
}

func (s *Server) handleClearRemovedActive(c *gin.Context) {
	account := s.loadAccessibleAccount(c)
	if account == nil {
		return
	}
	logger.Info("清空仍计费名册 - 账号: %s", account.ID)

	if err := s.db.ClearRemovedActiveSubscribers(c.Request.Context(), account.ID); err != nil {
		logger.Error("账号 %s 清空仍计费名册失败: %v", account.ID, err)
		c.JSON(500, gin.H{"error": "清空失败"})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// ==================== 导出与变更流 ====================

func (s *Server) handleExportAccounts(c *gin.Context) {
	logger.Info("导出账号 - 来源: %s", c.ClientIP())

	accounts, err := s.db.ListAccounts(c.Request.Context(), ownerScope(c), "created_at", false)
	if err != nil {
		logger.Error("导出账号失败: %v", err)
		c.JSON(500, gin.H{"error": "导出账号失败"})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=accounts_export.json")
	c.JSON(200, gin.H{"accounts": accounts, "count": len(accounts)})
}

// handleAccountsStream 账号变更 SSE 流
// 前端收到事件后增量刷新对应行，避免整表轮询
func (s *Server) handleAccountsStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("connected", "ok")
	c.Writer.Flush()

	sess := getSession(c)
	ch := s.db.SubscribeChanges()
	defer s.db.UnsubscribeChanges(ch)

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			// 租户隔离：操作员看不到别人账号的变更
			if !sess.IsAdmin && ev.OwnerID != sess.UserID {
				return true
			}
			c.SSEvent("change", gin.H{"accountId": ev.AccountID, "kind": ev.Kind})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
