// Package proxy 管理门户抓取的出口代理池
// 门户风控对 IP 漂移敏感，同一账号的请求应尽量固定走同一出口
package proxy

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"alfa-admin/internal/models"
)

// ProxyPool 代理池管理器
// @author ygw
type ProxyPool struct {
	mu       sync.RWMutex
	proxies  []*models.Proxy
	cursor   uint32
	strategy string
}

// NewProxyPool 创建代理池
// strategy 可选 round_robin / random / weighted，空值按 round_robin 处理
func NewProxyPool(strategy string) *ProxyPool {
	if strategy == "" {
		strategy = "round_robin"
	}
	return &ProxyPool{strategy: strategy}
}

// GetProxy 为指定账号挑选一个出口代理
// 返回派生后的代理地址，空字符串表示当前没有可用代理
// @author ygw
func (p *ProxyPool) GetProxy(accountID string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	enabled := p.enabledLocked()
	if len(enabled) == 0 {
		return ""
	}

	var selected *models.Proxy
	switch p.strategy {
	case "random":
		selected = enabled[rand.Intn(len(enabled))]
	case "weighted":
		selected = pickWeighted(enabled)
	default: // round_robin
		idx := atomic.AddUint32(&p.cursor, 1) - 1
		selected = enabled[idx%uint32(len(enabled))]
	}

	return DeriveProxyURL(selected.URL, accountID)
}

// enabledLocked 过滤出启用的代理，调用方需持有读锁
func (p *ProxyPool) enabledLocked() []*models.Proxy {
	var enabled []*models.Proxy
	for _, proxy := range p.proxies {
		if proxy.Enabled {
			enabled = append(enabled, proxy)
		}
	}
	return enabled
}

// pickWeighted 加权随机选择，全零权重退化为取第一个
func pickWeighted(proxies []*models.Proxy) *models.Proxy {
	totalWeight := 0
	for _, proxy := range proxies {
		totalWeight += proxy.Weight
	}
	if totalWeight == 0 {
		return proxies[0]
	}
	r := rand.Intn(totalWeight)
	for _, proxy := range proxies {
		r -= proxy.Weight
		if r < 0 {
			return proxy
		}
	}
	return proxies[0]
}

// Reload 用数据库里的最新代理列表替换当前池
// @author ygw
func (p *ProxyPool) Reload(proxies []*models.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxies = proxies
}

// SetStrategy 切换选择策略，立即对后续请求生效
func (p *ProxyPool) SetStrategy(strategy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strategy = strategy
}

// Count 代理总数
func (p *ProxyPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

// EnabledCount 启用的代理数量
func (p *ProxyPool) EnabledCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.enabledLocked())
}

// DeriveProxyURL 派生代理地址
// URL 中的 % 占位符替换为账号 ID 的 hash，住宅代理服务商用它做
// sticky session：同一账号永远命中同一个出口 IP
// @author ygw
func DeriveProxyURL(proxyURL, accountID string) string {
	if !strings.Contains(proxyURL, "%") {
		return proxyURL
	}
	h := fnv.New32a()
	h.Write([]byte(accountID))
	sessionID := strconv.FormatUint(uint64(h.Sum32()), 10)
	return strings.ReplaceAll(proxyURL, "%", sessionID)
}

// ValidateProxyURL 验证代理 URL 格式
// @author ygw
func ValidateProxyURL(proxyURL string) error {
	if proxyURL == "" {
		return fmt.Errorf("代理地址不能为空")
	}

	// 临时替换 % 占位符以便解析
	testURL := strings.ReplaceAll(proxyURL, "%", "session")

	parsed, err := url.Parse(testURL)
	if err != nil {
		return fmt.Errorf("代理地址格式错误: %v", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" && parsed.Scheme != "socks5" {
		return fmt.Errorf("不支持的代理协议: %s (仅支持 http/https/socks5)", parsed.Scheme)
	}

	if parsed.Hostname() == "" {
		return fmt.Errorf("代理地址缺少主机名")
	}

	if parsed.Port() == "" {
		return fmt.Errorf("代理地址缺少端口")
	}

	return nil
}
