package recon

import (
	"time"

	"alfa-admin/internal/logger"

	gocache "github.com/patrickmn/go-cache"
)

// 手动刷新标记的存活窗口：刷新写库和变更通知之间有十几秒的竞态窗口，
// 超过这个窗口的标记不再可信
const (
	refreshMarkTTL           = 20 * time.Second
	refreshMarkSweepInterval = 5 * time.Second
)

// refreshMark 一次成功手动刷新的乐观标记
// 条目自带归属账号 ID，读取时校验，防止串号（老版本出过同形对象混用的 bug）
type refreshMark struct {
	AccountID string
	Timestamp time.Time
}

// RefreshCache 按账号缓存最近一次手动刷新时间
// 显式注入给对账调用方，不做包级单例；过期条目由 go-cache 周期清扫
type RefreshCache struct {
	entries *gocache.Cache
}

// NewRefreshCache 创建刷新标记缓存
func NewRefreshCache() *RefreshCache {
	return &RefreshCache{
		entries: gocache.New(refreshMarkTTL, refreshMarkSweepInterval),
	}
}

// MarkRefreshed 记录一次成功的手动刷新
// 只有刷新动作本身写入，对账只读
func (c *RefreshCache) MarkRefreshed(accountID string, ts time.Time) {
	c.entries.Set(accountID, refreshMark{AccountID: accountID, Timestamp: ts}, gocache.DefaultExpiration)
}

// recent 读取账号的新鲜刷新标记
// 归属 ID 不匹配的条目一律丢弃并记日志，这是数据正确性问题而不是异常
func (c *RefreshCache) recent(accountID string) (time.Time, bool) {
	v, ok := c.entries.Get(accountID)
	if !ok {
		return time.Time{}, false
	}
	mark, ok := v.(refreshMark)
	if !ok {
		return time.Time{}, false
	}
	if mark.AccountID != accountID {
		logger.Warn("刷新缓存串号: 条目归属 %s, 请求方 %s, 已丢弃", mark.AccountID, accountID)
		return time.Time{}, false
	}
	return mark.Timestamp, true
}

// ReconcileLastUpdate 合并乐观缓存与落库时间，得出账号的最近刷新时间
// 规则：两者都有取较新的（迟到的外部通知不能覆盖刚完成的手动刷新）；
// 只有一个取那个；都没有退回记录的 updatedAt
// 对给定 (accountID, stored, 缓存状态) 结果确定，且绝不返回别的账号的时间
func ReconcileLastUpdate(accountID string, stored, updatedAt time.Time, cache *RefreshCache) time.Time {
	var cached time.Time
	var haveCached bool
	if cache != nil {
		cached, haveCached = cache.recent(accountID)
	}

	haveStored := !stored.IsZero()

	switch {
	case haveCached && haveStored:
		if cached.After(stored) {
			return cached
		}
		return stored
	case haveCached:
		return cached
	case haveStored:
		return stored
	default:
		return updatedAt
	}
}
