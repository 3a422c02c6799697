// Package api 接口测试
// 覆盖登录会话、账号增删改查、租户隔离、设置权限与门户刷新链路
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"alfa-admin/internal/config"
	"alfa-admin/internal/database"

	"github.com/gin-gonic/gin"
)

// newTestServer 创建基于内存数据库的测试服务器
func newTestServer(t *testing.T, portalURL string) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Type: config.DatabaseTypeSQLite,
			SQLite: config.SQLiteConfig{
				Path: ":memory:",
			},
		},
		AdminPassword:      "admin",
		RefreshConcurrency: 4,
		RefreshRateLimit:   30,
	}
	cfg.Alfa.BaseURL = portalURL

	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}

	s := NewServer(cfg, db, "test")
	t.Cleanup(func() {
		s.StopLogWorker()
		s.StopRateLimiter()
		db.Close()
	})

	return s, s.Router()
}

// doJSON 发送 JSON 请求并返回响应
func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// login 登录并返回 token
func login(t *testing.T, r *gin.Engine, username, password string) string {
	t.Helper()
	w := doJSON(r, "POST", "/api/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if w.Code != 200 {
		t.Fatalf("登录失败 - 状态码: %d, 响应: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Success || resp.Token == "" {
		t.Fatalf("登录响应异常: %s", w.Body.String())
	}
	return resp.Token
}

// TestLoginFlow 测试登录、鉴权和登出
func TestLoginFlow(t *testing.T) {
	_, r := newTestServer(t, "")

	// 未登录访问受保护接口应返回 401
	w := doJSON(r, "GET", "/v2/accounts", "", nil)
	if w.Code != 401 {
		t.Errorf("未登录访问应返回 401，实际: %d", w.Code)
	}

	// 错误密码应被拒绝
	w = doJSON(r, "POST", "/api/login", "", map[string]string{"password": "wrong"})
	var failResp struct {
		Success bool `json:"success"`
	}
	json.Unmarshal(w.Body.Bytes(), &failResp)
	if w.Code != 200 || failResp.Success {
		t.Errorf("错误密码不应登录成功 - 状态码: %d, 响应: %s", w.Code, w.Body.String())
	}

	// 管理员密码登录（用户名留空）
	token := login(t, r, "", "admin")

	w = doJSON(r, "GET", "/v2/accounts", token, nil)
	if w.Code != 200 {
		t.Errorf("登录后访问应返回 200，实际: %d", w.Code)
	}

	// 登出后 token 立即失效
	w = doJSON(r, "POST", "/api/logout", token, nil)
	if w.Code != 200 {
		t.Errorf("登出应返回 200，实际: %d", w.Code)
	}
	w = doJSON(r, "GET", "/v2/accounts", token, nil)
	if w.Code != 401 {
		t.Errorf("登出后访问应返回 401，实际: %d", w.Code)
	}

	t.Logf("✅ 登录/登出流程正常")
}

// TestAccountCRUDOverHTTP 测试账号接口的完整增删改查
func TestAccountCRUDOverHTTP(t *testing.T) {
	_, r := newTestServer(t, "")
	token := login(t, r, "", "admin")

	// 创建账号
	w := doJSON(r, "POST", "/v2/accounts", token, map[string]interface{}{
		"name":  "测试主卡",
		"phone": "96170123456",
		"quota": "15 GB",
	})
	if w.Code != 200 {
		t.Fatalf("创建账号失败 - 状态码: %d, 响应: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Quota string `json:"quota"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("创建账号未返回 ID")
	}
	if created.Quota != "15 GB" {
		t.Errorf("quota 应为 '15 GB'，实际: %s", created.Quota)
	}

	// 重复手机号应返回 409
	w = doJSON(r, "POST", "/v2/accounts", token, map[string]interface{}{
		"name":  "重复号码",
		"phone": "96170123456",
	})
	if w.Code != 409 {
		t.Errorf("重复手机号应返回 409，实际: %d", w.Code)
	}

	// 列表应包含新账号
	w = doJSON(r, "GET", "/v2/accounts", token, nil)
	var list struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Pagination.Total != 1 || len(list.Accounts) != 1 {
		t.Errorf("列表应有 1 个账号，实际 total=%d len=%d", list.Pagination.Total, len(list.Accounts))
	}

	// 更新备注
	w = doJSON(r, "PATCH", "/v2/accounts/"+created.ID, token, map[string]interface{}{
		"name": "改名后的主卡",
	})
	if w.Code != 200 {
		t.Fatalf("更新账号失败 - 状态码: %d", w.Code)
	}
	var patched struct {
		Name string `json:"name"`
	}
	json.Unmarshal(w.Body.Bytes(), &patched)
	if patched.Name != "改名后的主卡" {
		t.Errorf("更新后名称应为 '改名后的主卡'，实际: %s", patched.Name)
	}

	// 获取详情
	w = doJSON(r, "GET", "/v2/accounts/"+created.ID, token, nil)
	if w.Code != 200 {
		t.Errorf("获取账号详情失败 - 状态码: %d", w.Code)
	}

	// 删除
	w = doJSON(r, "DELETE", "/v2/accounts/"+created.ID, token, nil)
	if w.Code != 200 {
		t.Errorf("删除账号失败 - 状态码: %d", w.Code)
	}
	w = doJSON(r, "GET", "/v2/accounts/"+created.ID, token, nil)
	if w.Code != 404 {
		t.Errorf("删除后访问应返回 404，实际: %d", w.Code)
	}

	t.Logf("✅ 账号增删改查正常")
}

// TestTenantIsolation 测试操作员只能看到自己名下的账号
func TestTenantIsolation(t *testing.T) {
	_, r := newTestServer(t, "")
	adminToken := login(t, r, "", "admin")

	// 创建操作员
	w := doJSON(r, "POST", "/v2/users", adminToken, map[string]interface{}{
		"name":     "operator1",
		"password": "op-pass",
	})
	if w.Code != 200 {
		t.Fatalf("创建操作员失败 - 状态码: %d, 响应: %s", w.Code, w.Body.String())
	}
	var op struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &op)

	// 管理员创建两个账号：一个归属操作员，一个无归属
	w = doJSON(r, "POST", "/v2/accounts", adminToken, map[string]interface{}{
		"name": "操作员的账号", "phone": "96170000001", "ownerId": op.ID,
	})
	if w.Code != 200 {
		t.Fatalf("创建归属账号失败: %s", w.Body.String())
	}
	var owned struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &owned)

	w = doJSON(r, "POST", "/v2/accounts", adminToken, map[string]interface{}{
		"name": "管理员的账号", "phone": "96170000002",
	})
	var foreign struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &foreign)

	// 操作员登录
	opToken := login(t, r, "operator1", "op-pass")

	// 操作员列表只能看到自己的账号
	w = doJSON(r, "GET", "/v2/accounts", opToken, nil)
	var list struct {
		Accounts []struct {
			ID      string `json:"id"`
			OwnerID string `json:"ownerId"`
		} `json:"accounts"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Accounts) != 1 || list.Accounts[0].ID != owned.ID {
		t.Errorf("操作员应只看到 1 个归属账号，实际: %d", len(list.Accounts))
	}

	// 访问他人账号应返回 404 而不是 403，避免暴露账号存在性
	w = doJSON(r, "GET", "/v2/accounts/"+foreign.ID, opToken, nil)
	if w.Code != 404 {
		t.Errorf("访问他人账号应返回 404，实际: %d", w.Code)
	}

	// 操作员创建账号时归属被强制为自己
	w = doJSON(r, "POST", "/v2/accounts", opToken, map[string]interface{}{
		"name": "操作员自建", "phone": "96170000003", "ownerId": "someone-else",
	})
	if w.Code != 200 {
		t.Fatalf("操作员创建账号失败: %s", w.Body.String())
	}
	var selfCreated struct {
		OwnerID string `json:"ownerId"`
	}
	json.Unmarshal(w.Body.Bytes(), &selfCreated)
	if selfCreated.OwnerID != op.ID {
		t.Errorf("操作员创建的账号归属应被强制为自己，实际: %s", selfCreated.OwnerID)
	}

	// 操作员访问管理员接口应返回 403
	w = doJSON(r, "GET", "/v2/settings", opToken, nil)
	if w.Code != 403 {
		t.Errorf("操作员访问设置应返回 403，实际: %d", w.Code)
	}
	w = doJSON(r, "GET", "/v2/users", opToken, nil)
	if w.Code != 403 {
		t.Errorf("操作员访问用户管理应返回 403，实际: %d", w.Code)
	}

	t.Logf("✅ 租户隔离正常")
}

// TestSettingsUpdate 测试设置读写与动态生效
func TestSettingsUpdate(t *testing.T) {
	s, r := newTestServer(t, "")
	token := login(t, r, "", "admin")

	w := doJSON(r, "GET", "/v2/settings", token, nil)
	if w.Code != 200 {
		t.Fatalf("获取设置失败 - 状态码: %d", w.Code)
	}

	w = doJSON(r, "PUT", "/v2/settings", token, map[string]interface{}{
		"refreshConcurrency": 8,
		"adminPassword":      "new-pass",
	})
	if w.Code != 200 {
		t.Fatalf("更新设置失败 - 状态码: %d, 响应: %s", w.Code, w.Body.String())
	}
	var updated struct {
		RefreshConcurrency int    `json:"refreshConcurrency"`
		AdminPassword      string `json:"adminPassword"`
	}
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.RefreshConcurrency != 8 {
		t.Errorf("refreshConcurrency 应为 8，实际: %d", updated.RefreshConcurrency)
	}

	// 管理员密码动态更新后，新密码立即可登录
	if s.cfg.AdminPassword != "new-pass" {
		t.Errorf("配置中的管理员密码应已更新，实际: %s", s.cfg.AdminPassword)
	}
	login(t, r, "", "new-pass")

	t.Logf("✅ 设置读写正常")
}

// newStubPortal 模拟门户：登录校验 + 两个 JSON 数据源
func newStubPortal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/en/account/login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("password") != "good" {
			fmt.Fprint(w, `<html><body>Invalid username or password</body></html>`)
			return
		}
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/en/account/getprimarypostpaiddetails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"balance":"10.5","validityDate":"21/03/2027","subscriptionDate":"01/01/2024"}`)
	})
	mux.HandleFunc("/en/account/getconsumption", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"totalConsumption":"3.25","totalLimit":"15","subscribersCount":2,"expiration":30}`)
	})
	mux.HandleFunc("/en/account/ushare", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", 500)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestRefreshAccount 测试门户刷新链路：抓取快照、落库、对账视图
func TestRefreshAccount(t *testing.T) {
	portal := newStubPortal(t)
	_, r := newTestServer(t, portal.URL)
	token := login(t, r, "", "admin")

	w := doJSON(r, "POST", "/v2/accounts", token, map[string]interface{}{
		"name":           "刷新测试",
		"phone":          "96170555555",
		"quota":          "15",
		"portalPassword": "good",
	})
	if w.Code != 200 {
		t.Fatalf("创建账号失败: %s", w.Body.String())
	}
	var acc struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &acc)

	w = doJSON(r, "POST", "/v2/accounts/"+acc.ID+"/refresh", token, nil)
	if w.Code != 200 {
		t.Fatalf("刷新账号失败 - 状态码: %d, 响应: %s", w.Code, w.Body.String())
	}
	var view struct {
		TotalConsumption  float64 `json:"totalConsumption"`
		TotalLimit        float64 `json:"totalLimit"`
		Balance           float64 `json:"balance"`
		Status            string  `json:"status"`
		LastRefreshStatus *string `json:"lastRefreshStatus"`
	}
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.TotalConsumption != 3.25 {
		t.Errorf("totalConsumption 应为 3.25，实际: %v", view.TotalConsumption)
	}
	if view.TotalLimit != 15 {
		t.Errorf("totalLimit 应为 15，实际: %v", view.TotalLimit)
	}
	if view.Balance != 10.5 {
		t.Errorf("balance 应为 10.5，实际: %v", view.Balance)
	}
	if view.LastRefreshStatus == nil || *view.LastRefreshStatus != "success" {
		t.Errorf("刷新状态应为 success，实际: %v", view.LastRefreshStatus)
	}

	t.Logf("✅ 门户刷新链路正常")
}

// TestRefreshBadCredentials 测试凭证错误时的错误码透传
func TestRefreshBadCredentials(t *testing.T) {
	portal := newStubPortal(t)
	_, r := newTestServer(t, portal.URL)
	token := login(t, r, "", "admin")

	w := doJSON(r, "POST", "/v2/accounts", token, map[string]interface{}{
		"name":           "密码错误",
		"phone":          "96170666666",
		"portalPassword": "bad",
	})
	var acc struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &acc)

	w = doJSON(r, "POST", "/v2/accounts/"+acc.ID+"/refresh", token, nil)
	if w.Code != 502 {
		t.Fatalf("凭证错误刷新应返回 502，实际: %d, 响应: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code string `json:"code"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != "INVALID_CREDENTIALS" {
		t.Errorf("错误码应为 INVALID_CREDENTIALS，实际: %s", resp.Code)
	}

	// 刷新失败也要落状态，方便表格标红
	w = doJSON(r, "GET", "/v2/accounts/"+acc.ID, token, nil)
	var view struct {
		LastRefreshStatus *string `json:"lastRefreshStatus"`
	}
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.LastRefreshStatus == nil || *view.LastRefreshStatus != "failed" {
		t.Errorf("刷新状态应为 failed，实际: %v", view.LastRefreshStatus)
	}
}

// TestRefreshThrottle 测试单账号刷新限流
func TestRefreshThrottle(t *testing.T) {
	portal := newStubPortal(t)
	s, r := newTestServer(t, portal.URL)
	token := login(t, r, "", "admin")

	// 把限流阈值降到每分钟 1 次
	w := doJSON(r, "PUT", "/v2/settings", token, map[string]interface{}{
		"refreshRateLimit": 1,
	})
	if w.Code != 200 {
		t.Fatalf("更新限流设置失败: %s", w.Body.String())
	}
	s.InvalidateSettingsCache()

	w = doJSON(r, "POST", "/v2/accounts", token, map[string]interface{}{
		"name":           "限流测试",
		"phone":          "96170777777",
		"portalPassword": "good",
	})
	var acc struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &acc)

	w = doJSON(r, "POST", "/v2/accounts/"+acc.ID+"/refresh", token, nil)
	if w.Code != 200 {
		t.Fatalf("第一次刷新应成功，实际: %d", w.Code)
	}

	w = doJSON(r, "POST", "/v2/accounts/"+acc.ID+"/refresh", token, nil)
	if w.Code != 429 {
		t.Errorf("第二次刷新应被限流返回 429，实际: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "REFRESH_THROTTLED") {
		t.Errorf("限流响应应包含错误码，实际: %s", w.Body.String())
	}

	t.Logf("✅ 刷新限流正常")
}

// TestHealthAndVersion 测试公开端点
func TestHealthAndVersion(t *testing.T) {
	_, r := newTestServer(t, "")

	w := doJSON(r, "GET", "/healthz", "", nil)
	if w.Code != 200 {
		t.Errorf("健康检查应返回 200，实际: %d", w.Code)
	}

	w = doJSON(r, "GET", "/version", "", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), "test") {
		t.Errorf("版本接口异常 - 状态码: %d, 响应: %s", w.Code, w.Body.String())
	}
}
