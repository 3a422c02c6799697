package database

import (
	"context"

	"alfa-admin/internal/models"
)

// GetProxies 获取所有抓取出口代理
// @author ygw
func (db *DB) GetProxies(ctx context.Context) ([]*models.Proxy, error) {
	var proxies []*models.Proxy
	err := db.gorm.WithContext(ctx).Order("id ASC").Find(&proxies).Error
	return proxies, err
}

// GetEnabledProxies 获取启用的代理，代理池加载用
func (db *DB) GetEnabledProxies(ctx context.Context) ([]*models.Proxy, error) {
	var proxies []*models.Proxy
	err := db.gorm.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&proxies).Error
	return proxies, err
}

// GetProxyByID 根据ID获取代理
func (db *DB) GetProxyByID(ctx context.Context, id int64) (*models.Proxy, error) {
	var proxy models.Proxy
	if err := db.gorm.WithContext(ctx).First(&proxy, id).Error; err != nil {
		return nil, err
	}
	return &proxy, nil
}

// CreateProxy 创建代理
// @author ygw
func (db *DB) CreateProxy(ctx context.Context, proxy *models.Proxy) error {
	proxy.CreatedAt = models.CurrentTime()
	proxy.UpdatedAt = models.CurrentTime()
	return db.RetryOnLock(ctx, 3, func() error {
		return db.gorm.WithContext(ctx).Create(proxy).Error
	})
}

// UpdateProxy 按字段更新代理
func (db *DB) UpdateProxy(ctx context.Context, id int64, updates map[string]interface{}) error {
	updates["updated_at"] = models.CurrentTime()
	return db.RetryOnLock(ctx, 3, func() error {
		return db.gorm.WithContext(ctx).Model(&models.Proxy{}).Where("id = ?", id).Updates(updates).Error
	})
}

// DeleteProxy 删除代理
func (db *DB) DeleteProxy(ctx context.Context, id int64) error {
	return db.RetryOnLock(ctx, 3, func() error {
		return db.gorm.WithContext(ctx).Delete(&models.Proxy{}, id).Error
	})
}

// DeleteAllProxies 清空代理表（备份导入前调用）
func (db *DB) DeleteAllProxies(ctx context.Context) error {
	return db.gorm.WithContext(ctx).Where("1 = 1").Delete(&models.Proxy{}).Error
}
