package api

import (
	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleCreateUser 创建新操作员
func (s *Server) handleCreateUser(c *gin.Context) {
	logger.Info("创建操作员 - 请求来源: %s", c.ClientIP())

	var req models.UserCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("创建操作员失败 - 请求格式错误: %v", err)
		c.JSON(400, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	// 用户名不允许重复，否则登录时无法区分
	if existing, err := s.db.GetUserByName(c.Request.Context(), req.Name); err == nil && existing != nil {
		logger.Warn("创建操作员失败 - 用户名已存在: %s", req.Name)
		c.JSON(409, gin.H{"error": "用户名已存在", "code": "NAME_EXISTS"})
		return
	}

	// 设置默认值
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	isAdmin := false
	if req.IsAdmin != nil {
		isAdmin = *req.IsAdmin
	}

	user := &models.User{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		CreatedAt: models.CurrentTime(),
		UpdatedAt: models.CurrentTime(),
		Enabled:   enabled,
		IsAdmin:   isAdmin,
		Notes:     req.Notes,
	}

	if err := s.db.CreateUser(c.Request.Context(), user); err != nil {
		logger.Error("创建操作员失败: %v", err)
		c.JSON(500, gin.H{"error": "创建操作员失败"})
		return
	}

	logger.Info("操作员已创建: %s (%s)", user.Name, user.ID)
	c.JSON(200, user)
}

// handleListUsers 列出所有操作员（附带名下账号数量）
func (s *Server) handleListUsers(c *gin.Context) {
	logger.Debug("获取操作员列表 - 请求来源: %s", c.ClientIP())

	// 可选的过滤参数
	var enabled *bool
	if enabledStr := c.Query("enabled"); enabledStr != "" {
		e := enabledStr == "true" || enabledStr == "1"
		enabled = &e
	}

	users, err := s.db.ListUsers(c.Request.Context(), enabled)
	if err != nil {
		logger.Error("获取操作员列表失败: %v", err)
		c.JSON(500, gin.H{"error": "获取操作员列表失败"})
		return
	}

	if users == nil {
		users = []*models.User{}
	}

	// 各操作员名下托管账号数量（一次查询全部）
	accountCounts, err := s.db.CountAccountsByOwner(c.Request.Context())
	if err != nil {
		logger.Warn("统计操作员账号数量失败: %v", err)
		accountCounts = map[string]int64{}
	}

	type userWithAccounts struct {
		*models.User
		AccountCount int64 `json:"account_count"`
	}

	result := make([]userWithAccounts, 0, len(users))
	for _, u := range users {
		result = append(result, userWithAccounts{
			User:         u,
			AccountCount: accountCounts[u.ID],
		})
	}

	c.JSON(200, gin.H{"users": result, "total": len(result)})
}

// handleGetUser 获取单个操作员信息
func (s *Server) handleGetUser(c *gin.Context) {
	id := c.Param("id")

	user, err := s.db.GetUser(c.Request.Context(), id)
	if err != nil {
		logger.Warn("获取操作员失败 - ID: %s, 错误: %v", id, err)
		c.JSON(404, gin.H{"error": "操作员不存在"})
		return
	}

	c.JSON(200, user)
}

// handleUpdateUser 更新操作员信息
func (s *Server) handleUpdateUser(c *gin.Context) {
	id := c.Param("id")
	logger.Info("更新操作员 - ID: %s, 请求来源: %s", id, c.ClientIP())

	var updates models.UserUpdate
	if err := c.ShouldBindJSON(&updates); err != nil {
		logger.Warn("更新操作员失败 - 请求格式错误: %v", err)
		c.JSON(400, gin.H{"error": "请求格式错误"})
		return
	}

	if err := s.db.UpdateUser(c.Request.Context(), id, &updates); err != nil {
		logger.Error("更新操作员失败 - ID: %s, 错误: %v", id, err)
		c.JSON(500, gin.H{"error": "更新操作员失败"})
		return
	}

	user, err := s.db.GetUser(c.Request.Context(), id)
	if err != nil {
		c.JSON(404, gin.H{"error": "操作员不存在"})
		return
	}

	logger.Info("操作员更新成功 - ID: %s", id)
	c.JSON(200, user)
}

// handleDeleteUser 删除操作员
// 名下账号不会级联删除，归属会被释放给主管理员
func (s *Server) handleDeleteUser(c *gin.Context) {
	id := c.Param("id")
	logger.Info("删除操作员 - ID: %s, 请求来源: %s", id, c.ClientIP())

	if err := s.db.DeleteUser(c.Request.Context(), id); err != nil {
		logger.Error("删除操作员失败 - ID: %s, 错误: %v", id, err)
		c.JSON(500, gin.H{"error": "删除操作员失败"})
		return
	}

	// 已登录的会话立即失效
	s.sessions.Range(func(key, value interface{}) bool {
		if sess, ok := value.(authSession); ok && sess.UserID == id {
			s.sessions.Delete(key)
		}
		return true
	})

	logger.Info("操作员删除成功 - ID: %s", id)
	c.JSON(200, gin.H{"message": "操作员删除成功"})
}
