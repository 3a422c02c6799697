package alfa

import (
	"context"
	"encoding/json"
	"sync"

	"alfa-admin/internal/logger"
)

// RefreshResult 单个账号的刷新结果
type RefreshResult struct {
	AccountID string
	Phone     string
	Data      json.RawMessage
	Err       error
}

// RefreshAccounts 批量刷新账号快照
// 按 concurrency 限制并发扇出，单个账号失败不影响其余账号，
// 结果顺序与入参一致
// @author ygw
func (c *Client) RefreshAccounts(ctx context.Context, targets []Credentials, concurrency int) []RefreshResult {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]RefreshResult, len(targets))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Credentials) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result := RefreshResult{AccountID: target.AccountID, Phone: target.Phone}
			if ctx.Err() != nil {
				result.Err = ctx.Err()
				results[i] = result
				return
			}

			data, err := c.FetchAccountSnapshot(ctx, target.AccountID, target.Phone, target.Password)
			result.Data = data
			result.Err = err
			results[i] = result
		}(i, target)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("批量刷新完成 - 总数: %d, 失败: %d, 并发: %d", len(targets), failed, concurrency)

	return results
}
