package api

import (
	"context"
	"time"

	"alfa-admin/internal/database"
	"alfa-admin/internal/logger"
	"alfa-admin/internal/models"

	gocache "github.com/patrickmn/go-cache"
)

const settingsCacheKey = "settings"

// SettingsCache 系统设置缓存
// 设置几乎每个请求都要读，挡掉绝大部分数据库查询
// @author ygw
type SettingsCache struct {
	cache *gocache.Cache
	ttl   time.Duration
	db    *database.DB
}

// NewSettingsCache 创建设置缓存
func NewSettingsCache(db *database.DB, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SettingsCache{
		cache: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
		db:    db,
	}
}

// Get 获取设置（自动刷新过期缓存）
func (c *SettingsCache) Get(ctx context.Context) (*models.Settings, error) {
	if v, ok := c.cache.Get(settingsCacheKey); ok {
		return v.(*models.Settings), nil
	}
	return c.refresh(ctx)
}

// refresh 刷新缓存
func (c *SettingsCache) refresh(ctx context.Context) (*models.Settings, error) {
	settings, err := c.db.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(settingsCacheKey, settings, c.ttl)
	logger.Debug("设置缓存已刷新")
	return settings, nil
}

// Invalidate 使缓存失效（设置变更后调用）
func (c *SettingsCache) Invalidate() {
	c.cache.Delete(settingsCacheKey)
}

// Start 启动后台刷新任务
func (c *SettingsCache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refresh(ctx)
			}
		}
	}()
}
