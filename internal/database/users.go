package database

import (
	"context"
	"fmt"

	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateUser 创建新操作员
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := models.CurrentTime()
	if user.CreatedAt == "" {
		user.CreatedAt = now
	}
	if user.UpdatedAt == "" {
		user.UpdatedAt = now
	}

	logger.Debug("数据库: 创建操作员 - ID: %s, 名称: %s", user.ID, user.Name)

	if err := db.gorm.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("创建操作员失败: %w", err)
	}

	logger.Info("操作员已创建: %s (%s)", user.Name, user.ID)
	return nil
}

// GetUser 根据 ID 获取操作员
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := db.gorm.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("操作员不存在: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询操作员失败: %w", err)
	}
	return &user, nil
}

// GetUserByName 根据登录名获取操作员
func (db *DB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	err := db.gorm.WithContext(ctx).Where("name = ?", name).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询操作员失败: %w", err)
	}
	return &user, nil
}

// ListUsers 列出所有操作员（可选过滤启用状态）
func (db *DB) ListUsers(ctx context.Context, enabled *bool) ([]*models.User, error) {
	query := db.gorm.WithContext(ctx).Model(&models.User{}).Order("created_at DESC")

	if enabled != nil {
		query = query.Where("enabled = ?", *enabled)
	}

	var users []*models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("查询操作员列表失败: %w", err)
	}

	return users, nil
}

// GetUsersByIDs 批量获取操作员（用于日志归属查询，性能优化）
// @author ygw
func (db *DB) GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*models.User
	if err := db.gorm.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("批量查询操作员失败: %w", err)
	}
	return users, nil
}

// UpdateUser 更新操作员信息
func (db *DB) UpdateUser(ctx context.Context, id string, updates *models.UserUpdate) error {
	logger.Debug("数据库: 更新操作员 - ID: %s", id)

	updateMap := map[string]interface{}{
		"updated_at": models.CurrentTime(),
	}

	if updates.Name != nil {
		updateMap["name"] = *updates.Name
	}
	if updates.Email != nil {
		updateMap["email"] = *updates.Email
	}
	if updates.Password != nil && *updates.Password != "" {
		updateMap["password"] = *updates.Password
	}
	if updates.Enabled != nil {
		updateMap["enabled"] = *updates.Enabled
	}
	if updates.IsAdmin != nil {
		updateMap["is_admin"] = *updates.IsAdmin
	}
	if updates.Notes != nil {
		updateMap["notes"] = *updates.Notes
	}

	result := db.gorm.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updateMap)
	if result.Error != nil {
		return fmt.Errorf("更新操作员失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("操作员不存在: %s", id)
	}

	logger.Info("操作员已更新: %s", id)
	return nil
}

// DeleteUser 删除操作员并释放名下账号的租户归属
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	logger.Debug("数据库: 删除操作员 - ID: %s", id)

	// 开启事务
	return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 名下账号回归未分配状态，不跟随删除
		if err := tx.Model(&models.Account{}).Where("owner_id = ?", id).
			Update("owner_id", "").Error; err != nil {
			return fmt.Errorf("释放操作员名下账号失败: %w", err)
		}

		result := tx.Where("id = ?", id).Delete(&models.User{})
		if result.Error != nil {
			return fmt.Errorf("删除操作员失败: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("操作员不存在: %s", id)
		}

		logger.Info("操作员已删除: %s", id)
		return nil
	})
}

// CountAccountsByOwner 统计各操作员名下的账号数量
// 返回 map[ownerID]count
// @author ygw
func (db *DB) CountAccountsByOwner(ctx context.Context) (map[string]int64, error) {
	type ownerCount struct {
		OwnerID string
		Count   int64
	}

	var counts []ownerCount
	err := db.gorm.WithContext(ctx).Model(&models.Account{}).
		Select("owner_id, COUNT(*) as count").
		Where("owner_id != ''").
		Group("owner_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("统计账号归属失败: %w", err)
	}

	result := make(map[string]int64)
	for _, c := range counts {
		result[c.OwnerID] = c.Count
	}
	return result, nil
}
