package api

import (
	"fmt"

	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"
	"alfa-admin/internal/proxy"

	"github.com/gin-gonic/gin"
)

// handleListProxies 获取代理列表
func (s *Server) handleListProxies(c *gin.Context) {
	logger.Info("获取代理列表 - 来源: %s", c.ClientIP())

	proxies, err := s.db.GetProxies(c.Request.Context())
	if err != nil {
		logger.Error("获取代理列表失败: %v", err)
		c.JSON(500, gin.H{"error": "获取代理列表失败"})
		return
	}

	c.JSON(200, gin.H{"proxies": proxies, "total": len(proxies)})
}

// handleCreateProxy 创建代理
// @author ygw
func (s *Server) handleCreateProxy(c *gin.Context) {
	logger.Info("创建代理 - 来源: %s", c.ClientIP())

	var req models.ProxyCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("创建代理失败 - 无效的请求格式: %v", err)
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	// 验证代理 URL 格式
	if err := proxy.ValidateProxyURL(req.URL); err != nil {
		logger.Warn("创建代理失败 - URL 格式错误: %v", err)
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	p := &models.Proxy{
		URL:     req.URL,
		Name:    req.Name,
		Enabled: true,
		Weight:  1,
	}
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}
	if req.Weight != nil && *req.Weight > 0 {
		p.Weight = *req.Weight
	}

	if err := s.db.CreateProxy(c.Request.Context(), p); err != nil {
		logger.Error("创建代理失败: %v", err)
		c.JSON(500, gin.H{"error": "创建代理失败"})
		return
	}

	// 重新加载代理池
	s.reloadProxyPool()

	logger.Info("代理创建成功 - ID: %d, URL: %s", p.ID, p.URL)
	c.JSON(200, gin.H{"message": "代理创建成功", "proxy": p})
}

// handleUpdateProxy 更新代理
// @author ygw
func (s *Server) handleUpdateProxy(c *gin.Context) {
	idStr := c.Param("id")
	var id int64
	fmt.Sscanf(idStr, "%d", &id)

	logger.Info("更新代理 - ID: %d, 来源: %s", id, c.ClientIP())

	var req models.ProxyUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("更新代理失败 - 无效的请求格式: %v", err)
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	updates := make(map[string]interface{})
	if req.URL != nil {
		// 验证代理 URL 格式
		if err := proxy.ValidateProxyURL(*req.URL); err != nil {
			logger.Warn("更新代理失败 - URL 格式错误: %v", err)
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		updates["url"] = *req.URL
	}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.Weight != nil {
		updates["weight"] = *req.Weight
	}

	if len(updates) == 0 {
		c.JSON(400, gin.H{"error": "没有要更新的字段"})
		return
	}

	if err := s.db.UpdateProxy(c.Request.Context(), id, updates); err != nil {
		logger.Error("更新代理失败 - ID: %d, 错误: %v", id, err)
		c.JSON(500, gin.H{"error": "更新代理失败"})
		return
	}

	// 重新加载代理池
	s.reloadProxyPool()

	logger.Info("代理更新成功 - ID: %d", id)
	c.JSON(200, gin.H{"message": "代理更新成功"})
}

// handleDeleteProxy 删除代理
// @author ygw
func (s *Server) handleDeleteProxy(c *gin.Context) {
	idStr := c.Param("id")
	var id int64
	fmt.Sscanf(idStr, "%d", &id)

	logger.Info("删除代理 - ID: %d, 来源: %s", id, c.ClientIP())

	if err := s.db.DeleteProxy(c.Request.Context(), id); err != nil {
		logger.Error("删除代理失败 - ID: %d, 错误: %v", id, err)
		c.JSON(500, gin.H{"error": "删除代理失败"})
		return
	}

	// 重新加载代理池
	s.reloadProxyPool()

	logger.Info("代理删除成功 - ID: %d", id)
	c.JSON(200, gin.H{"message": "代理删除成功"})
}

// handleToggleProxy 切换代理启用状态
// @author ygw
func (s *Server) handleToggleProxy(c *gin.Context) {
	idStr := c.Param("id")
	var id int64
	fmt.Sscanf(idStr, "%d", &id)

	logger.Info("切换代理状态 - ID: %d, 来源: %s", id, c.ClientIP())

	p, err := s.db.GetProxyByID(c.Request.Context(), id)
	if err != nil {
		logger.Error("获取代理失败 - ID: %d, 错误: %v", id, err)
		c.JSON(500, gin.H{"error": "获取代理失败"})
		return
	}

	newEnabled := !p.Enabled
	if err := s.db.UpdateProxy(c.Request.Context(), id, map[string]interface{}{"enabled": newEnabled}); err != nil {
		logger.Error("切换代理状态失败 - ID: %d, 错误: %v", id, err)
		c.JSON(500, gin.H{"error": "切换代理状态失败"})
		return
	}

	// 重新加载代理池
	s.reloadProxyPool()

	logger.Info("代理状态切换成功 - ID: %d, 新状态: %v", id, newEnabled)
	c.JSON(200, gin.H{"message": "代理状态切换成功", "enabled": newEnabled})
}
