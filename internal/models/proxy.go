package models

// Proxy 门户抓取的出口代理记录
// URL 中的 % 占位符在请求时替换为账号哈希，实现代理商的 sticky session
// @author ygw
type Proxy struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	URL     string `gorm:"column:url;type:text;not null" json:"url"`
	Name    string `gorm:"column:name;size:100" json:"name"`
	Enabled bool   `gorm:"column:enabled;default:true" json:"enabled"`
	// Weight 加权轮换时的相对权重
	Weight    int    `gorm:"column:weight;default:1" json:"weight"`
	CreatedAt string `gorm:"column:created_at;size:50" json:"created_at"`
	UpdatedAt string `gorm:"column:updated_at;size:50" json:"updated_at"`
}

// TableName 指定表名
func (Proxy) TableName() string {
	return "proxies"
}

// ProxyCreate 创建代理请求
// @author ygw
type ProxyCreate struct {
	URL     string `json:"url" binding:"required"`
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled"`
	Weight  *int   `json:"weight"`
}

// ProxyUpdate 更新代理请求
// @author ygw
type ProxyUpdate struct {
	URL     *string `json:"url"`
	Name    *string `json:"name"`
	Enabled *bool   `json:"enabled"`
	Weight  *int    `json:"weight"`
}
