package api

import (
	"alfa-admin/internal/logger"

	"github.com/gin-gonic/gin"
)

// handleBackupExport 导出数据库备份
func (s *Server) handleBackupExport(c *gin.Context) {
	logger.Info("导出数据备份 - 来源: %s", c.ClientIP())

	data, err := s.db.BackupData(c.Request.Context())
	if err != nil {
		logger.Error("导出备份失败: %v", err)
		c.JSON(500, gin.H{"error": "导出备份失败"})
		return
	}

	logger.Info("数据备份导出成功 - 来源: %s", c.ClientIP())
	c.Header("Content-Disposition", "attachment; filename=alfa-admin-backup.json")
	c.JSON(200, data)
}

// handleBackupImport 导入数据库备份
func (s *Server) handleBackupImport(c *gin.Context) {
	logger.Info("导入数据备份 - 来源: %s", c.ClientIP())

	var data map[string]interface{}
	if err := c.ShouldBindJSON(&data); err != nil {
		logger.Warn("导入备份失败 - 无效的请求格式: %v", err)
		c.JSON(400, gin.H{"error": "无效的请求格式"})
		return
	}

	if err := s.db.RestoreData(c.Request.Context(), data); err != nil {
		logger.Error("导入备份失败: %v", err)
		c.JSON(500, gin.H{"error": "导入备份失败"})
		return
	}

	// 设置可能被备份覆盖
	s.InvalidateSettingsCache()
	s.reloadProxyPool()

	logger.Info("数据备份导入成功 - 来源: %s", c.ClientIP())
	c.JSON(200, gin.H{"success": true, "message": "备份导入成功"})
}
