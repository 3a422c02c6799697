package api

import (
	"fmt"
	"io"
	"time"

	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"

	"github.com/gin-gonic/gin"
)

// buildLogFilters 从查询参数构造日志筛选条件
// 前端传 RFC3339 时间，统一转换为本地时间格式后再比较
func buildLogFilters(c *gin.Context) *models.LogFilters {
	filters := &models.LogFilters{}
	if startTime := c.Query("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			localTime := t.Local().Format(models.TimeFormat)
			filters.StartTime = &localTime
		} else {
			filters.StartTime = &startTime
		}
	}
	if endTime := c.Query("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			localTime := t.Local().Format(models.TimeFormat)
			filters.EndTime = &localTime
		} else {
			filters.EndTime = &endTime
		}
	}
	if clientIP := c.Query("client_ip"); clientIP != "" {
		filters.ClientIP = &clientIP
	}
	if accountID := c.Query("account_id"); accountID != "" {
		filters.AccountID = &accountID
	}
	if operation := c.Query("operation"); operation != "" {
		filters.Operation = &operation
	}
	if isSuccess := c.Query("is_success"); isSuccess != "" {
		success := isSuccess == "true" || isSuccess == "1"
		filters.IsSuccess = &success
	}
	return filters
}

// handleGetLogs 获取操作日志
func (s *Server) handleGetLogs(c *gin.Context) {
	logger.Info("获取操作日志 - 来源: %s", c.ClientIP())

	limit := 100
	offset := 0
	if l := c.Query("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}
	if o := c.Query("offset"); o != "" {
		fmt.Sscanf(o, "%d", &offset)
	}

	filters := buildLogFilters(c)

	logs, err := s.db.GetRequestLogs(c.Request.Context(), filters, limit, offset)
	if err != nil {
		logger.Error("获取操作日志失败: %v", err)
		c.JSON(500, gin.H{"error": "获取操作日志失败"})
		return
	}

	// 收集所有用户ID，批量查询用户信息
	userIDs := make(map[string]bool)
	for _, log := range logs {
		if log.UserID != nil && *log.UserID != "" {
			userIDs[*log.UserID] = true
		}
	}

	// 批量获取用户信息（性能优化：一次查询所有用户）
	userMap := make(map[string]*models.User)
	if len(userIDs) > 0 {
		ids := make([]string, 0, len(userIDs))
		for id := range userIDs {
			ids = append(ids, id)
		}
		users, _ := s.db.GetUsersByIDs(c.Request.Context(), ids)
		for _, u := range users {
			userMap[u.ID] = u
		}
	}

	// 填充操作人名称，UserID 为空表示主管理员
	adminName := "管理员"
	for i := range logs {
		if logs[i].UserID != nil && *logs[i].UserID != "" {
			if user, ok := userMap[*logs[i].UserID]; ok {
				logs[i].UserName = &user.Name
			}
		} else {
			logs[i].UserName = &adminName
		}
	}

	total, err := s.db.GetRequestLogsCount(c.Request.Context(), filters)
	if err != nil {
		logger.Error("获取日志总数失败: %v", err)
		total = 0
	}

	c.JSON(200, gin.H{"logs": logs, "total": total, "limit": limit, "offset": offset})
}

// handleGetStats 获取操作统计（支持完整筛选条件）
// @author ygw
func (s *Server) handleGetStats(c *gin.Context) {
	logger.Debug("获取操作统计 - 来源: %s", c.ClientIP())

	filters := buildLogFilters(c)

	// 未指定时间范围时默认统计最近24小时
	if filters.StartTime == nil {
		defaultStart := time.Now().Add(-24 * time.Hour).Format(models.TimeFormat)
		filters.StartTime = &defaultStart
	}
	if filters.EndTime == nil {
		defaultEnd := models.CurrentTime()
		filters.EndTime = &defaultEnd
	}

	stats, err := s.db.GetRequestStats(c.Request.Context(), filters)
	if err != nil {
		logger.Error("获取操作统计失败: %v", err)
		c.JSON(500, gin.H{"error": "获取操作统计失败"})
		return
	}

	c.JSON(200, stats)
}

// handleCleanupLogs 清理旧日志
func (s *Server) handleCleanupLogs(c *gin.Context) {
	logger.Info("清理旧日志 - 来源: %s", c.ClientIP())

	var req struct {
		DaysToKeep int `json:"days_to_keep"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.DaysToKeep <= 0 {
		// 默认按设置里的保留天数清理
		settings, serr := s.GetCachedSettings(c.Request.Context())
		if serr == nil && settings.LogRetentionDays > 0 {
			req.DaysToKeep = settings.LogRetentionDays
		} else {
			req.DaysToKeep = 30
		}
	}

	count, err := s.db.CleanupOldLogs(c.Request.Context(), req.DaysToKeep)
	if err != nil {
		logger.Error("清理旧日志失败: %v", err)
		c.JSON(500, gin.H{"error": "清理旧日志失败"})
		return
	}

	logger.Info("清理旧日志成功 - 删除数量: %d", count)
	c.JSON(200, gin.H{"deleted": count, "message": fmt.Sprintf("已删除 %d 条日志", count)})
}

// handleDeleteAllLogs 清空全部日志
func (s *Server) handleDeleteAllLogs(c *gin.Context) {
	logger.Info("清空全部日志 - 来源: %s", c.ClientIP())

	if err := s.db.DeleteAllRequestLogs(c.Request.Context()); err != nil {
		logger.Error("清空日志失败: %v", err)
		c.JSON(500, gin.H{"error": "清空日志失败"})
		return
	}

	logger.Info("全部日志已清空")
	c.JSON(200, gin.H{"message": "全部日志已清空"})
}

// handleServerLogsStream 实时推送服务日志（SSE）
func (s *Server) handleServerLogsStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// 发送连接成功消息
	c.SSEvent("connected", "ok")
	c.Writer.Flush()

	logCh := logger.Subscribe()
	defer logger.Unsubscribe(logCh)

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-logCh:
			if !ok {
				return false
			}
			c.SSEvent("log", msg)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
