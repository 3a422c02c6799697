// Package ratelimit 提供滑动窗口限流器实现
// 用于控制IP请求频率和门户刷新频率
// @author ygw
package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// cleanupInterval 后台清理空闲键的间隔
const cleanupInterval = 5 * time.Minute

// SlidingWindowLimiter 滑动窗口限流器
// 滑动日志算法，每个键保留窗口内全部请求时间戳，计数是精确的
type SlidingWindowLimiter struct {
	mu         sync.RWMutex
	windowSize time.Duration
	buckets    map[string]*bucket
	done       chan struct{}
}

// bucket 单个限流键的请求记录
// timestamps 按写入顺序保存（Unix纳秒），天然有序
type bucket struct {
	mu         sync.Mutex
	timestamps []int64
}

// prune 丢弃窗口起点之前的时间戳，调用方需持有 b.mu
func (b *bucket) prune(windowStart int64) {
	idx := sort.Search(len(b.timestamps), func(i int) bool {
		return b.timestamps[i] > windowStart
	})
	if idx > 0 {
		b.timestamps = append(b.timestamps[:0], b.timestamps[idx:]...)
	}
}

// NewSlidingWindowLimiter 创建新的滑动窗口限流器
// windowSize: 滑动窗口大小，默认60秒
func NewSlidingWindowLimiter(windowSize time.Duration) *SlidingWindowLimiter {
	if windowSize <= 0 {
		windowSize = 60 * time.Second
	}

	limiter := &SlidingWindowLimiter{
		windowSize: windowSize,
		buckets:    make(map[string]*bucket),
		done:       make(chan struct{}),
	}

	go limiter.cleanupLoop()

	return limiter
}

// Allow 检查是否允许请求
// key: 限流键（IP地址或刷新键）
// limit: 窗口内允许的最大请求数，0 或负数表示不限制
// 返回: (是否允许, 当前窗口内请求数, 窗口内剩余配额)
func (l *SlidingWindowLimiter) Allow(key string, limit int) (allowed bool, count int, remaining int) {
	if limit <= 0 {
		return true, 0, -1
	}

	now := time.Now().UnixNano()
	windowStart := now - int64(l.windowSize)

	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{timestamps: make([]int64, 0, limit)}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(windowStart)

	count = len(b.timestamps)
	remaining = limit - count

	if count >= limit {
		return false, count, 0
	}

	b.timestamps = append(b.timestamps, now)
	return true, count + 1, remaining - 1
}

// GetCount 获取指定key在当前窗口内的请求数
func (l *SlidingWindowLimiter) GetCount(key string) int {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if !exists {
		return 0
	}

	windowStart := time.Now().UnixNano() - int64(l.windowSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(windowStart)
	return len(b.timestamps)
}

// Reset 重置指定key的计数
func (l *SlidingWindowLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// cleanupLoop 后台清理空闲键
func (l *SlidingWindowLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.done:
			return
		}
	}
}

// cleanup 删除整个窗口内都没有请求的键，防止 map 无限增长
func (l *SlidingWindowLimiter) cleanup() {
	windowStart := time.Now().UnixNano() - int64(l.windowSize)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		b.mu.Lock()
		b.prune(windowStart)
		empty := len(b.timestamps) == 0
		b.mu.Unlock()
		if empty {
			delete(l.buckets, key)
		}
	}
}

// Stop 停止限流器的后台清理
func (l *SlidingWindowLimiter) Stop() {
	close(l.done)
}

// Stats 返回限流器的统计信息
func (l *SlidingWindowLimiter) Stats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return map[string]interface{}{
		"window_size_seconds": l.windowSize.Seconds(),
		"active_keys":         len(l.buckets),
	}
}

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed   bool   // 是否允许
	Count     int    // 当前请求数
	Limit     int    // 限制数
	Remaining int    // 剩余配额
	Key       string // 限流键
	Type      string // 限流类型（ip/refresh）
}

// DualLimiter 双重限流器（IP + 门户刷新）
// 门户侧对频繁登录很敏感，刷新维度单独限流，避免批量刷新把账号刷进风控
type DualLimiter struct {
	ipLimiter      *SlidingWindowLimiter
	refreshLimiter *SlidingWindowLimiter
}

// NewDualLimiter 创建双重限流器
func NewDualLimiter(windowSize time.Duration) *DualLimiter {
	return &DualLimiter{
		ipLimiter:      NewSlidingWindowLimiter(windowSize),
		refreshLimiter: NewSlidingWindowLimiter(windowSize),
	}
}

// CheckIP 检查IP限流
func (d *DualLimiter) CheckIP(ip string, limit int) RateLimitResult {
	allowed, count, remaining := d.ipLimiter.Allow(ip, limit)
	return RateLimitResult{
		Allowed:   allowed,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		Key:       ip,
		Type:      "ip",
	}
}

// CheckRefresh 检查门户刷新限流
// key 一般用 "global"，也可以按账号区分
func (d *DualLimiter) CheckRefresh(key string, limit int) RateLimitResult {
	allowed, count, remaining := d.refreshLimiter.Allow(key, limit)
	return RateLimitResult{
		Allowed:   allowed,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		Key:       key,
		Type:      "refresh",
	}
}

// GetIPCount 获取IP当前请求数
func (d *DualLimiter) GetIPCount(ip string) int {
	return d.ipLimiter.GetCount(ip)
}

// GetRefreshCount 获取刷新键当前请求数
func (d *DualLimiter) GetRefreshCount(key string) int {
	return d.refreshLimiter.GetCount(key)
}

// ResetIP 重置IP计数
func (d *DualLimiter) ResetIP(ip string) {
	d.ipLimiter.Reset(ip)
}

// ResetRefresh 重置刷新键计数
func (d *DualLimiter) ResetRefresh(key string) {
	d.refreshLimiter.Reset(key)
}

// Stop 停止双重限流器
func (d *DualLimiter) Stop() {
	d.ipLimiter.Stop()
	d.refreshLimiter.Stop()
}

// Stats 返回双重限流器的统计信息
func (d *DualLimiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"ip_limiter":      d.ipLimiter.Stats(),
		"refresh_limiter": d.refreshLimiter.Stats(),
	}
}
