package models

// RequestLog 控制台操作日志
// 记录刷新、名册编辑等会触达门户的操作
type RequestLog struct {
	ID           string  `gorm:"primaryKey;size:36" json:"id"`
	Timestamp    string  `gorm:"size:50;index:idx_logs_timestamp;index:idx_logs_account_time,priority:2" json:"timestamp"`
	ClientIP     string  `gorm:"column:client_ip;size:45" json:"client_ip"`
	Method       string  `gorm:"size:10" json:"method"`
	Path         string  `gorm:"size:255" json:"path"`
	Operation    *string `gorm:"column:operation;size:50" json:"operation,omitempty"` // refresh / add_subscriber / edit_subscriber / remove_subscriber
	AccountID    *string `gorm:"column:account_id;size:36;index:idx_logs_account_time,priority:1" json:"account_id,omitempty"`
	UserID       *string `gorm:"column:user_id;size:36;index:idx_logs_user_time" json:"user_id,omitempty"`
	StatusCode   int     `gorm:"column:status_code" json:"status_code"`
	IsSuccess    bool    `gorm:"column:is_success;index:idx_logs_success" json:"is_success"`
	DurationMs   int64   `gorm:"column:duration_ms" json:"duration_ms"`
	ErrorMessage *string `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	UserAgent    *string `gorm:"column:user_agent;size:500" json:"user_agent,omitempty"`

	// 查询时填充，不落库
	UserName *string `gorm:"-" json:"user_name,omitempty"`
}

// TableName 指定表名
func (RequestLog) TableName() string {
	return "request_logs"
}

// RequestStats 操作统计
type RequestStats struct {
	TotalRequests   int64         `json:"total_requests"`
	SuccessRequests int64         `json:"success_requests"`
	FailedRequests  int64         `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgDurationMs   float64       `json:"avg_duration_ms"`
	TopAccounts     []AccountStat `json:"top_accounts"`
}

// AccountStat 账号维度统计
type AccountStat struct {
	AccountID    string `json:"account_id"`
	RequestCount int64  `json:"request_count"`
}

// LogFilters 日志查询过滤器
type LogFilters struct {
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	ClientIP  *string `json:"client_ip"`
	AccountID *string `json:"account_id"`
	Operation *string `json:"operation"`
	IsSuccess *bool   `json:"is_success"`
}
