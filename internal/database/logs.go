package database

import (
	"context"
	"time"

	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"

	"gorm.io/gorm"
)

// CreateRequestLog 创建操作日志
func (db *DB) CreateRequestLog(ctx context.Context, log *models.RequestLog) error {
	return db.gorm.WithContext(ctx).Create(log).Error
}

// BatchCreateRequestLogs 批量写入操作日志（使用事务，大幅提升写入性能）
func (db *DB) BatchCreateRequestLogs(ctx context.Context, logs []*models.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}

	return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, log := range logs {
			if err := tx.Create(log).Error; err != nil {
				logger.Debug("批量写入日志失败（单条）: %v", err)
				// 继续处理其他日志，不因单条失败而中断
			}
		}
		return nil
	})
}

// GetRequestLogs 查询操作日志
func (db *DB) GetRequestLogs(ctx context.Context, filters *models.LogFilters, limit, offset int) ([]*models.RequestLog, error) {
	query := db.gorm.WithContext(ctx).Model(&models.RequestLog{})

	query = applyLogFiltersGorm(query, filters)
	query = query.Order("timestamp DESC").Limit(limit).Offset(offset)

	var logs []*models.RequestLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}

	return logs, nil
}

// applyLogFiltersGorm 应用日志过滤条件到 GORM 查询
func applyLogFiltersGorm(query *gorm.DB, filters *models.LogFilters) *gorm.DB {
	if filters == nil {
		return query
	}

	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}
	if filters.ClientIP != nil {
		query = query.Where("client_ip = ?", *filters.ClientIP)
	}
	if filters.AccountID != nil {
		query = query.Where("account_id = ?", *filters.AccountID)
	}
	if filters.Operation != nil {
		query = query.Where("operation = ?", *filters.Operation)
	}
	if filters.IsSuccess != nil {
		query = query.Where("is_success = ?", *filters.IsSuccess)
	}

	return query
}

// GetRequestLogsCount 获取操作日志总数
func (db *DB) GetRequestLogsCount(ctx context.Context, filters *models.LogFilters) (int64, error) {
	query := db.gorm.WithContext(ctx).Model(&models.RequestLog{})
	query = applyLogFiltersGorm(query, filters)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GetRequestStats 获取操作统计（支持完整筛选条件）
// @author ygw
func (db *DB) GetRequestStats(ctx context.Context, filters *models.LogFilters) (*models.RequestStats, error) {
	stats := &models.RequestStats{}

	// 基本统计
	type basicStats struct {
		TotalRequests   int64
		SuccessRequests int64
		FailedRequests  int64
		AvgDurationMs   float64
	}
	var basic basicStats

	query := db.gorm.WithContext(ctx).Model(&models.RequestLog{}).
		Select(`COUNT(*) as total_requests,
			COALESCE(SUM(CASE WHEN is_success = true THEN 1 ELSE 0 END), 0) as success_requests,
			COALESCE(SUM(CASE WHEN is_success = false THEN 1 ELSE 0 END), 0) as failed_requests,
			COALESCE(AVG(duration_ms), 0) as avg_duration_ms`)
	query = applyLogFiltersGorm(query, filters)
	query.Scan(&basic)

	stats.TotalRequests = basic.TotalRequests
	stats.SuccessRequests = basic.SuccessRequests
	stats.FailedRequests = basic.FailedRequests
	stats.AvgDurationMs = basic.AvgDurationMs

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessRequests) / float64(stats.TotalRequests) * 100
	}

	// 操作最频繁的账号
	var topAccounts []models.AccountStat
	queryAccounts := db.gorm.WithContext(ctx).Model(&models.RequestLog{}).
		Select("account_id, COUNT(*) as request_count").
		Where("account_id IS NOT NULL")
	queryAccounts = applyLogFiltersGorm(queryAccounts, filters)
	queryAccounts.Group("account_id").
		Order("request_count DESC").
		Limit(10).
		Scan(&topAccounts)
	stats.TopAccounts = topAccounts

	return stats, nil
}

// CheckIPRateLimit 检查IP频率限制
func (db *DB) CheckIPRateLimit(ctx context.Context, ip string, windowMinutes int, maxRequests int) (bool, error) {
	var count int64

	// 计算时间窗口
	windowStart := time.Now().Add(-time.Duration(windowMinutes) * time.Minute).Format(models.TimeFormat)

	if err := db.gorm.WithContext(ctx).Model(&models.RequestLog{}).
		Where("client_ip = ? AND timestamp >= ?", ip, windowStart).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count < int64(maxRequests), nil
}

// GetTotalRequestCount 获取总操作次数
func (db *DB) GetTotalRequestCount(ctx context.Context) (int64, error) {
	var count int64
	if err := db.gorm.WithContext(ctx).Model(&models.RequestLog{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteAllRequestLogs 删除所有操作日志
func (db *DB) DeleteAllRequestLogs(ctx context.Context) error {
	logger.Debug("数据库: 删除所有操作日志")

	if err := db.gorm.WithContext(ctx).Where("1 = 1").Delete(&models.RequestLog{}).Error; err != nil {
		logger.Debug("数据库: 删除操作日志失败: %v", err)
		return err
	}

	logger.Debug("数据库: 所有操作日志已删除")
	return nil
}

// CleanupOldLogs 清理旧日志
func (db *DB) CleanupOldLogs(ctx context.Context, daysToKeep int) (int64, error) {
	cutoffTime := time.Now().AddDate(0, 0, -daysToKeep).Format(models.TimeFormat)

	result := db.gorm.WithContext(ctx).Where("timestamp < ?", cutoffTime).Delete(&models.RequestLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
