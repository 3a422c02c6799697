package alfa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"alfa-admin/internal/logger"
)

// 名册操作端点
const (
	pathSubscriberAdd    = "/en/account/ushare/add"
	pathSubscriberEdit   = "/en/account/ushare/edit"
	pathSubscriberRemove = "/en/account/ushare/remove"
)

// Credentials 门户登录凭证
type Credentials struct {
	AccountID string // 本地账号 ID（用于代理派生）
	Phone     string // 门户登录手机号
	Password  string // 门户密码
}

// AddSubscriber 向 U-Share 组添加副卡
// 门户侧是异步确认的，成功只代表请求已受理（状态 Requested）
func (c *Client) AddSubscriber(ctx context.Context, creds Credentials, subscriberPhone, quota string) error {
	form := url.Values{}
	form.Set("msisdn", subscriberPhone)
	if quota != "" {
		form.Set("quota", quota)
	}
	return c.rosterOp(ctx, creds, pathSubscriberAdd, form, "添加副卡")
}

// EditSubscriber 修改副卡配额
func (c *Client) EditSubscriber(ctx context.Context, creds Credentials, subscriberPhone, quota string) error {
	form := url.Values{}
	form.Set("msisdn", subscriberPhone)
	form.Set("quota", quota)
	return c.rosterOp(ctx, creds, pathSubscriberEdit, form, "修改副卡")
}

// RemoveSubscriber 从 U-Share 组移除副卡
func (c *Client) RemoveSubscriber(ctx context.Context, creds Credentials, subscriberPhone string) error {
	form := url.Values{}
	form.Set("msisdn", subscriberPhone)
	return c.rosterOp(ctx, creds, pathSubscriberRemove, form, "移除副卡")
}

// rosterOp 执行一次名册操作：登录、提交表单、判定结果
func (c *Client) rosterOp(ctx context.Context, creds Credentials, path string, form url.Values, opName string) error {
	sess := c.newSession(creds.AccountID, creds.Phone)
	if err := sess.login(ctx, creds.Password); err != nil {
		return err
	}

	body, _, err := sess.postForm(ctx, path, form)
	if err != nil {
		return fmt.Errorf("%s失败: %w", opName, err)
	}
	if err := checkOpResult(body); err != nil {
		logger.Warn("账号 %s %s被门户拒绝: %v", creds.Phone, opName, err)
		return err
	}

	logger.Info("账号 %s %s成功 - 目标号码: %s", creds.Phone, opName, form.Get("msisdn"))
	return nil
}

// checkOpResult 判定名册操作的门户应答
// 门户对失败也返回 200，靠响应体里的 success 标记和错误样式识别
func checkOpResult(body []byte) error {
	if nrErr := checkNonRetriableError(string(body)); nrErr != nil {
		return nrErr
	}

	var result struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		// 非 JSON 应答（HTML 成功页）视为成功，错误样式已在上面排除
		return nil
	}
	if result.Success != nil && !*result.Success {
		if result.Message != "" {
			return fmt.Errorf("门户拒绝了本次操作: %s", result.Message)
		}
		return fmt.Errorf("门户拒绝了本次操作")
	}
	return nil
}

// RosterOpResult 批量名册操作中单个号码的结果
type RosterOpResult struct {
	Phone string `json:"phone"`
	Error string `json:"error,omitempty"`
}

// BatchRemoveSubscribers 批量移除副卡
// 共用一次登录会话并发提交，单个号码失败不影响其余号码
// @author ygw
func (c *Client) BatchRemoveSubscribers(ctx context.Context, creds Credentials, phones []string) []RosterOpResult {
	results := make([]RosterOpResult, len(phones))

	sess := c.newSession(creds.AccountID, creds.Phone)
	if err := sess.login(ctx, creds.Password); err != nil {
		// 登录失败所有号码统一失败
		for i, phone := range phones {
			results[i] = RosterOpResult{Phone: phone, Error: err.Error()}
		}
		return results
	}

	var wg sync.WaitGroup
	for i, phone := range phones {
		wg.Add(1)
		go func(i int, phone string) {
			defer wg.Done()

			form := url.Values{}
			form.Set("msisdn", phone)

			result := RosterOpResult{Phone: phone}
			body, _, err := sess.postForm(ctx, pathSubscriberRemove, form)
			if err != nil {
				result.Error = err.Error()
			} else if err := checkOpResult(body); err != nil {
				result.Error = err.Error()
			}
			results[i] = result
		}(i, phone)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	logger.Info("账号 %s 批量移除完成 - 总数: %d, 失败: %d", creds.Phone, len(phones), failed)

	return results
}
