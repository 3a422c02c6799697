package models

import (
	"encoding/json"
	"time"
)

// Account 表示一个 Alfa U-Share 管理员账号（主卡）
// 注意：alfaData 等嵌套字段以原始 JSON 存储，形状由门户返回决定，
// 应用层（recon 包）负责容错解析，不在此做任何校验
type Account struct {
	ID    string `gorm:"primaryKey;size:36" json:"id"`
	Name  string `gorm:"size:255" json:"name"`
	Phone string `gorm:"size:50;index" json:"phone"`
	// Quota 管理员自身配额，原样保存录入值（"15 GB" 或纯数字）
	Quota string `gorm:"size:50" json:"quota"`
	// Status 旧版自由文本状态字段，仅作兜底信号
	Status string `gorm:"size:50" json:"status"`
	// PortalPassword 门户登录凭证，用于刷新账号快照
	PortalPassword string `gorm:"column:portal_password;size:255" json:"-"`
	// OwnerID 租户归属（控制台操作员 ID），空表示未分配
	OwnerID string `gorm:"column:owner_id;size:36;index" json:"owner_id"`

	// AlfaData 门户抓取的原始快照，形状不保证稳定
	AlfaData json.RawMessage `gorm:"column:alfa_data;type:text" json:"alfaData,omitempty"`

	// 本地维护的名册覆盖层（门户数据缺失时的回退来源）
	PendingSubscribers       json.RawMessage `gorm:"column:pending_subscribers;type:text" json:"pendingSubscribers,omitempty"`
	RemovedSubscribers       json.RawMessage `gorm:"column:removed_subscribers;type:text" json:"removedSubscribers,omitempty"`
	RemovedActiveSubscribers json.RawMessage `gorm:"column:removed_active_subscribers;type:text" json:"removedActiveSubscribers,omitempty"`

	// NotUShare 固定归入独立展示分组，不参与 U-Share 规则
	NotUShare bool `gorm:"column:not_ushare;default:false" json:"notUShare"`

	CreatedAt string `gorm:"column:created_at;size:50;index" json:"created_at"`
	UpdatedAt string `gorm:"column:updated_at;size:50" json:"updated_at"`
	// LastRefreshTimestamp 最近一次成功刷新时间
	// 历史数据存在 epoch 秒/毫秒/ISO 多种表示，解析统一走 parse.Timestamp
	LastRefreshTimestamp *string `gorm:"column:last_refresh_timestamp;size:50" json:"last_refresh_timestamp"`
	LastRefreshStatus    *string `gorm:"column:last_refresh_status;size:50" json:"last_refresh_status"`
}

// TableName 指定表名
func (Account) TableName() string {
	return "accounts"
}

// AccountCreate 表示创建新账号的数据
type AccountCreate struct {
	Name           string `json:"name" binding:"required"`
	Phone          string `json:"phone" binding:"required"`
	Quota          string `json:"quota"`
	PortalPassword string `json:"portalPassword"`
	OwnerID        string `json:"ownerId"`
	NotUShare      *bool  `json:"notUShare"`
}

// AccountPatch 表示账号的局部更新，nil 字段不触碰
type AccountPatch struct {
	Name                     *string                `json:"name"`
	Phone                    *string                `json:"phone"`
	Quota                    *string                `json:"quota"`
	Status                   *string                `json:"status"`
	PortalPassword           *string                `json:"portalPassword"`
	OwnerID                  *string                `json:"ownerId"`
	NotUShare                *bool                  `json:"notUShare"`
	AlfaData                 map[string]interface{} `json:"alfaData"`
	PendingSubscribers       []RosterEntry          `json:"pendingSubscribers"`
	RemovedSubscribers       []RosterEntry          `json:"removedSubscribers"`
	RemovedActiveSubscribers []RosterEntry          `json:"removedActiveSubscribers"`
	LastRefreshTimestamp     *string                `json:"lastRefreshTimestamp"`
	LastRefreshStatus        *string                `json:"lastRefreshStatus"`
}

// TimeFormat 时间格式（带时区）
const TimeFormat = "2006-01-02T15:04:05Z07:00"

// CurrentTime 返回当前本地时间的格式字符串
func CurrentTime() string {
	return time.Now().Format(TimeFormat)
}
