// Package alfa 实现运营商门户客户端
// 负责登录门户、抓取账号快照（JSON 接口 + HTML 页面）以及副卡名册操作
// @author ygw
package alfa

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"alfa-admin/internal/config"
	"alfa-admin/internal/logger"
	proxypool "alfa-admin/internal/proxy"

	"golang.org/x/net/proxy"
)

// HTTP 连接池配置常量
// 门户抓取是低并发长耗时场景，不需要太大的连接池
const (
	DefaultMaxIdleConns        = 50
	DefaultMaxIdleConnsPerHost = 20
	DefaultIdleConnTimeout     = 120 * time.Second
	DefaultTLSHandshakeTimeout = 15 * time.Second

	// DefaultRetryCount 配置缺省时的重试次数
	DefaultRetryCount = 2
	// RetryDelay 重试基础间隔（按尝试次数线性退避）
	RetryDelay = 800 * time.Millisecond

	// 响应体读取上限，门户页面不会超过这个大小
	maxResponseBytes = 4 << 20
)

// Client 表示门户客户端
type Client struct {
	cfg           *config.Config
	proxyPool     *proxypool.ProxyPool
	baseTransport *http.Transport // 基础 Transport（无代理配置）
	timeout       time.Duration
	retryCount    int
	baseURL       string
}

// NewClient 创建门户客户端
func NewClient(cfg *config.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = DefaultMaxIdleConns
	transport.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	transport.IdleConnTimeout = DefaultIdleConnTimeout
	transport.TLSHandshakeTimeout = DefaultTLSHandshakeTimeout
	transport.ForceAttemptHTTP2 = true

	timeout := time.Duration(cfg.Alfa.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	retryCount := cfg.Alfa.RetryCount
	if retryCount <= 0 {
		retryCount = DefaultRetryCount
	}
	baseURL := strings.TrimRight(cfg.Alfa.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.alfa.com.lb"
	}

	return &Client{
		cfg:           cfg,
		baseTransport: transport,
		timeout:       timeout,
		retryCount:    retryCount,
		baseURL:       baseURL,
	}
}

// SetProxyPool 设置代理池
// @author ygw
func (c *Client) SetProxyPool(pool *proxypool.ProxyPool) {
	c.proxyPool = pool
	if pool != nil {
		logger.Info("门户客户端代理池已设置 - 代理数量: %d, 启用数量: %d", pool.Count(), pool.EnabledCount())
	}
}

// transportForAccount 按账号构造 Transport
// 启用代理池时按账号 ID 派生代理地址，保证同一账号的出口稳定
func (c *Client) transportForAccount(accountID string) *http.Transport {
	transport := c.baseTransport.Clone()

	proxyURL := ""
	if c.cfg.ProxyPoolEnabled && c.proxyPool != nil {
		proxyURL = c.proxyPool.GetProxy(accountID)
	}
	if proxyURL == "" {
		proxyURL = c.cfg.HTTPProxy
	}
	if proxyURL == "" {
		return transport
	}

	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		logger.Error("代理 URL 解析失败: %v, 直连门户", err)
		return transport
	}

	if parsedURL.Scheme == "socks5" {
		dialer, err := proxy.FromURL(parsedURL, proxy.Direct)
		if err != nil {
			logger.Error("SOCKS5 代理配置失败: %v, 直连门户", err)
			return transport
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	} else {
		transport.Proxy = http.ProxyURL(parsedURL)
	}

	logger.Debug("账号 %s 门户出口使用代理: %s", accountID, proxyURL)
	return transport
}

// session 一次登录会话
// 门户靠 Cookie 维持登录态，每次抓取用独立的 CookieJar，会话间互不串号
type session struct {
	client  *Client
	http    *http.Client
	phone   string
	baseURL string
}

// newSession 创建未登录的会话
func (c *Client) newSession(accountID, phone string) *session {
	jar, _ := cookiejar.New(nil)
	return &session{
		client: c,
		http: &http.Client{
			Transport: c.transportForAccount(accountID),
			Jar:       jar,
			Timeout:   c.timeout,
		},
		phone:   phone,
		baseURL: c.baseURL,
	}
}

// login 登录门户
func (s *session) login(ctx context.Context, password string) error {
	form := url.Values{}
	form.Set("username", s.phone)
	form.Set("password", password)

	body, _, err := s.postForm(ctx, "/en/account/login", form)
	if err != nil {
		return fmt.Errorf("门户登录失败: %w", err)
	}

	// 登录失败门户返回 200 + 错误页，靠响应体判断
	if nrErr := checkNonRetriableError(string(body)); nrErr != nil {
		return nrErr
	}
	return nil
}

// get 发送 GET 请求（带重试）
func (s *session) get(ctx context.Context, path string) ([]byte, error) {
	return s.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "GET", s.baseURL+path, nil)
	})
}

// postForm 发送表单 POST 请求（带重试）
// 返回响应体和状态码
func (s *session) postForm(ctx context.Context, path string, form url.Values) ([]byte, int, error) {
	encoded := form.Encode()
	statusCode := 0
	body, err := s.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err == nil {
		statusCode = http.StatusOK
	}
	return body, statusCode, err
}

// do 执行请求并读取响应体，网络级错误和 5xx 按线性退避重试
func (s *session) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	maxAttempts := s.client.retryCount + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("构造门户请求失败: %w", err)
		}
		req.Header.Set("User-Agent", portalUserAgent)
		req.Header.Set("Accept", "text/html,application/json")

		startTime := time.Now()
		resp, err := s.http.Do(req)
		duration := time.Since(startTime)

		if err != nil {
			lastErr = err
			logger.Warn("门户请求失败 - 尝试: %d/%d, 耗时: %v, 错误: %v, URL: %s",
				attempt, maxAttempts, duration, err, req.URL.Path)

			if attempt < maxAttempts && isRetriableError(err) {
				select {
				case <-time.After(RetryDelay * time.Duration(attempt)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			return nil, fmt.Errorf("门户请求失败（共尝试 %d 次）: %w", attempt, err)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < maxAttempts {
				continue
			}
			return nil, fmt.Errorf("读取门户响应失败: %w", readErr)
		}

		logger.Debug("门户响应 - 路径: %s, 状态码: %d, 耗时: %v, 大小: %d 字节",
			req.URL.Path, resp.StatusCode, duration, len(body))

		if resp.StatusCode >= 400 {
			bodyStr := string(body)
			if nrErr := checkNonRetriableError(bodyStr); nrErr != nil {
				logger.Warn("门户返回不可重试错误: %s - %s", nrErr.Code, nrErr.Message)
				return nil, nrErr
			}
			if resp.StatusCode >= 500 && attempt < maxAttempts {
				logger.Info("门户服务器错误 (%d)，等待 %v 后重试...", resp.StatusCode, RetryDelay*time.Duration(attempt))
				select {
				case <-time.After(RetryDelay * time.Duration(attempt)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			return nil, fmt.Errorf("门户返回错误状态码 %d: %s", resp.StatusCode, truncate(bodyStr, 200))
		}

		return body, nil
	}

	return nil, fmt.Errorf("门户请求失败（共尝试 %d 次），最后错误: %w", maxAttempts, lastErr)
}

const portalUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
