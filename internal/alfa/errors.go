package alfa

import "strings"

// NonRetriableError 表示不应重试的门户错误
type NonRetriableError struct {
	Code            string // 错误代码
	Message         string // 中文友好提示
	Hint            string // 解决建议
	IsCredentialErr bool   // true 表示凭证问题（换代理/重试都没用），false 表示门户侧临时问题
}

func (e *NonRetriableError) Error() string {
	return e.Message
}

// IsNonRetriable 检查错误是否为不可重试错误
func IsNonRetriable(err error) bool {
	_, ok := err.(*NonRetriableError)
	return ok
}

// IsCredentialError 检查是否为凭证错误（需要人工更新门户密码）
func IsCredentialError(err error) bool {
	if nrErr, ok := err.(*NonRetriableError); ok {
		return nrErr.IsCredentialErr
	}
	return false
}

// 定义不可重试的错误映射 - 按匹配优先级排列
// IsCredentialErr=true 表示账号凭证的问题（重试没用），false 表示门户侧问题
var nonRetriableErrors = []struct {
	Pattern string
	Error   NonRetriableError
}{
	// ===== 凭证相关错误（重试没用，需要人工处理）=====
	{
		Pattern: "Invalid username or password",
		Error: NonRetriableError{
			Code:            "INVALID_CREDENTIALS",
			Message:         "门户登录凭证无效",
			Hint:            "账号的门户密码不正确或已被修改，请在账号编辑里更新门户密码后重试。",
			IsCredentialErr: true,
		},
	},
	{
		Pattern: "account is locked",
		Error: NonRetriableError{
			Code:            "ACCOUNT_LOCKED",
			Message:         "门户账号已被锁定",
			Hint:            "多次登录失败后门户锁定了该账号，请稍后或联系运营商解锁后再刷新。",
			IsCredentialErr: true,
		},
	},
	{
		Pattern: "captcha",
		Error: NonRetriableError{
			Code:            "CAPTCHA_REQUIRED",
			Message:         "门户要求人机验证",
			Hint:            "当前出口 IP 被门户风控，要求验证码。请更换代理或降低刷新频率后重试。",
			IsCredentialErr: false,
		},
	},
	// ===== 门户侧错误 =====
	{
		Pattern: "session has expired",
		Error: NonRetriableError{
			Code:            "SESSION_EXPIRED",
			Message:         "门户会话已过期",
			Hint:            "登录会话在抓取中途失效，请重新发起刷新。",
			IsCredentialErr: false,
		},
	},
	{
		Pattern: "under maintenance",
		Error: NonRetriableError{
			Code:            "PORTAL_MAINTENANCE",
			Message:         "门户正在维护",
			Hint:            "运营商门户暂时维护中，请稍后再刷新。",
			IsCredentialErr: false,
		},
	},
	{
		Pattern: "exceeded the allowed number of requests",
		Error: NonRetriableError{
			Code:            "PORTAL_THROTTLED",
			Message:         "门户请求频率受限",
			Hint:            "刷新过于频繁被门户限流，请调低刷新并发或每分钟刷新上限。",
			IsCredentialErr: false,
		},
	},
	{
		Pattern: "not eligible for this service",
		Error: NonRetriableError{
			Code:            "SERVICE_NOT_ELIGIBLE",
			Message:         "该号码不支持此服务",
			Hint:            "门户拒绝了本次名册操作，目标号码可能不满足 U-Share 条件。",
			IsCredentialErr: false,
		},
	},
}

// checkNonRetriableError 检查响应体是否包含不可重试的错误
func checkNonRetriableError(bodyStr string) *NonRetriableError {
	lower := strings.ToLower(bodyStr)
	for _, item := range nonRetriableErrors {
		if strings.Contains(lower, strings.ToLower(item.Pattern)) {
			e := item.Error
			return &e
		}
	}
	return nil
}

// isRetriableError 判断错误是否可重试
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	// EOF、连接重置和临时网络错误时重试
	return strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "i/o timeout")
}
