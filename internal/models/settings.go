package models

// Setting 表示数据库中的键值对设置
// 注意：使用 setting_key 而不是 key，因为 key 是 MySQL 保留字
type Setting struct {
	Key   string `gorm:"column:setting_key;primaryKey;size:100" json:"key"`
	Value string `gorm:"column:setting_value;type:text" json:"value"`
}

// TableName 指定表名
func (Setting) TableName() string {
	return "settings"
}

// Settings 表示系统配置（用于 API 响应）
type Settings struct {
	AdminPassword     string `json:"adminPassword"`
	DebugLog          bool   `json:"debugLog"`
	EnableRequestLog  bool   `json:"enableRequestLog"`
	LogRetentionDays  int    `json:"logRetentionDays"`
	EnableIPRateLimit bool   `json:"enableIPRateLimit"`
	IPRateLimitWindow int    `json:"ipRateLimitWindow"`
	IPRateLimitMax    int    `json:"ipRateLimitMax"`
	Port              int    `json:"port"`
	PortConfigured    bool   `json:"-"` // 标记用户是否配置过端口（不序列化到JSON）
	LayoutFullWidth   bool   `json:"layoutFullWidth"`
	// 代理配置
	HTTPProxy string `json:"httpProxy"` // HTTP/HTTPS/SOCKS5 代理地址
	// 代理池配置
	ProxyPoolEnabled  bool   `json:"proxyPoolEnabled"`
	ProxyPoolStrategy string `json:"proxyPoolStrategy"` // 代理选择策略: round_robin, random, weighted
	// 刷新配置
	RefreshConcurrency int `json:"refreshConcurrency"` // 批量刷新并发数 (1-20)
	RefreshRateLimit   int `json:"refreshRateLimit"`   // 单账号每分钟允许的手动刷新次数
}

// SettingsUpdate 表示更新设置的数据
type SettingsUpdate struct {
	AdminPassword     *string `json:"adminPassword"`
	DebugLog          *bool   `json:"debugLog"`
	EnableRequestLog  *bool   `json:"enableRequestLog"`
	LogRetentionDays  *int    `json:"logRetentionDays"`
	EnableIPRateLimit *bool   `json:"enableIPRateLimit"`
	IPRateLimitWindow *int    `json:"ipRateLimitWindow"`
	IPRateLimitMax    *int    `json:"ipRateLimitMax"`
	Port              *int    `json:"port"`
	LayoutFullWidth   *bool   `json:"layoutFullWidth"`
	// 代理配置
	HTTPProxy *string `json:"httpProxy"`
	// 代理池配置
	ProxyPoolEnabled  *bool   `json:"proxyPoolEnabled"`
	ProxyPoolStrategy *string `json:"proxyPoolStrategy"`
	// 刷新配置
	RefreshConcurrency *int `json:"refreshConcurrency"`
	RefreshRateLimit   *int `json:"refreshRateLimit"`
}
