package alfa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"alfa-admin/internal/config"
)

// newTestClient 创建指向测试服务器的门户客户端
func newTestClient(serverURL string) *Client {
	cfg := config.Load()
	cfg.Alfa.BaseURL = serverURL
	cfg.Alfa.TimeoutSeconds = 5
	cfg.Alfa.RetryCount = 1
	return NewClient(cfg)
}

// newStubPortal 搭建一个行为正常的门户模拟服务
func newStubPortal(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(pathLogin, func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("password") != "good" {
			w.Write([]byte("Invalid username or password"))
			return
		}
		w.Write([]byte("<html>welcome</html>"))
	})
	mux.HandleFunc(pathPrimaryDetails, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ServiceInformationValue":[{"ServiceNameValue":"U-Share Main"}]}`))
	})
	mux.HandleFunc(pathConsumption, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"totalConsumption":"40 / 77 GB","adminConsumption":"5.5 / 20 GB","expiration":15}`))
	})
	mux.HandleFunc(pathUShare, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleUSharePage))
	})
	mux.HandleFunc(pathSubscriberRemove, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("msisdn") == "70999999" {
			w.Write([]byte(`{"success":false,"message":"subscriber not found"}`))
			return
		}
		w.Write([]byte(`{"success":true}`))
	})

	return httptest.NewServer(mux)
}

// TestFetchAccountSnapshot 测试快照抓取和组装
func TestFetchAccountSnapshot(t *testing.T) {
	server := newStubPortal(t)
	defer server.Close()

	client := newTestClient(server.URL)
	data, err := client.FetchAccountSnapshot(context.Background(), "acc-1", "71000001", "good")
	if err != nil {
		t.Fatalf("抓取快照失败: %v", err)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("快照不是合法 JSON: %v", err)
	}

	for _, key := range []string{"primaryData", "apiResponses", "consumptions", "secondarySubscribers", "totalConsumption", "adminConsumption", "expiration", "balance", "validityDate"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("快照缺少字段 %s", key)
		}
	}

	// 接口给过的标量不被页面覆盖：expiration 来自用量接口（15），页面上也是 15
	var expiration int
	json.Unmarshal(payload["expiration"], &expiration)
	if expiration != 15 {
		t.Errorf("expiration = %d, 期望 15", expiration)
	}

	var responses []map[string]interface{}
	json.Unmarshal(payload["apiResponses"], &responses)
	if len(responses) != 2 {
		t.Errorf("apiResponses 条数 = %d, 期望 2", len(responses))
	}
}

// TestFetchAccountSnapshot_BadCredentials 测试凭证错误
func TestFetchAccountSnapshot_BadCredentials(t *testing.T) {
	server := newStubPortal(t)
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchAccountSnapshot(context.Background(), "acc-1", "71000001", "wrong")
	if err == nil {
		t.Fatal("凭证错误应返回错误")
	}
	if !IsCredentialError(err) {
		t.Errorf("应识别为凭证错误, got %v", err)
	}
}

// TestFetchAccountSnapshot_PartialFailure 测试部分数据源失败时降级
func TestFetchAccountSnapshot_PartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathLogin, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	// 主数据接口返回 HTML 错误页
	mux.HandleFunc(pathPrimaryDetails, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	})
	mux.HandleFunc(pathConsumption, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalConsumption":"40 / 77 GB"}`))
	})
	mux.HandleFunc(pathUShare, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	data, err := client.FetchAccountSnapshot(context.Background(), "acc-1", "71000001", "good")
	if err != nil {
		t.Fatalf("部分失败不应整体报错: %v", err)
	}

	var payload map[string]json.RawMessage
	json.Unmarshal(data, &payload)
	if _, ok := payload["primaryData"]; ok {
		t.Error("HTML 错误页不应当作 primaryData")
	}
	if _, ok := payload["totalConsumption"]; !ok {
		t.Error("存活的数据源应正常写入")
	}
}

// TestBatchRemoveSubscribers 测试批量移除的逐号结果
func TestBatchRemoveSubscribers(t *testing.T) {
	server := newStubPortal(t)
	defer server.Close()

	client := newTestClient(server.URL)
	creds := Credentials{AccountID: "acc-1", Phone: "71000001", Password: "good"}

	results := client.BatchRemoveSubscribers(context.Background(), creds, []string{"70111111", "70999999", "70222222"})
	if len(results) != 3 {
		t.Fatalf("结果数 = %d, 期望 3", len(results))
	}
	if results[0].Error != "" || results[2].Error != "" {
		t.Errorf("正常号码不应失败: %+v", results)
	}
	if results[1].Error == "" {
		t.Error("门户拒绝的号码应记录失败")
	}
	if results[1].Phone != "70999999" {
		t.Errorf("结果顺序应与入参一致: %+v", results[1])
	}
}

// TestBatchRemoveSubscribers_LoginFailure 测试登录失败时全部失败
func TestBatchRemoveSubscribers_LoginFailure(t *testing.T) {
	server := newStubPortal(t)
	defer server.Close()

	client := newTestClient(server.URL)
	creds := Credentials{AccountID: "acc-1", Phone: "71000001", Password: "wrong"}

	results := client.BatchRemoveSubscribers(context.Background(), creds, []string{"70111111", "70222222"})
	for _, r := range results {
		if r.Error == "" {
			t.Errorf("登录失败后号码 %s 不应成功", r.Phone)
		}
	}
}

// TestCheckNonRetriableError 测试门户错误样式表
func TestCheckNonRetriableError(t *testing.T) {
	cases := []struct {
		body     string
		wantCode string
	}{
		{"Error: Invalid username or password. Try again.", "INVALID_CREDENTIALS"},
		{"Your ACCOUNT IS LOCKED due to failed attempts", "ACCOUNT_LOCKED"},
		{"please solve the CAPTCHA to continue", "CAPTCHA_REQUIRED"},
		{"your session has expired, please login", "SESSION_EXPIRED"},
		{"The portal is under maintenance", "PORTAL_MAINTENANCE"},
		{"everything is fine", ""},
	}

	for _, tc := range cases {
		err := checkNonRetriableError(tc.body)
		if tc.wantCode == "" {
			if err != nil {
				t.Errorf("%q 不应匹配错误样式, got %s", tc.body, err.Code)
			}
			continue
		}
		if err == nil || err.Code != tc.wantCode {
			t.Errorf("%q 应匹配 %s, got %v", tc.body, tc.wantCode, err)
		}
	}
}
