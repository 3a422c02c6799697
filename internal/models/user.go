package models

// User 表示控制台操作员
// 操作员 ID 同时作为账号的租户归属（Account.OwnerID）
// @author ygw
type User struct {
	ID        string  `gorm:"primaryKey;size:36" json:"id"`
	Name      string  `gorm:"size:255;not null" json:"name"`
	Email     *string `gorm:"size:255" json:"email,omitempty"`
	Password  string  `gorm:"size:255;not null" json:"-"`
	CreatedAt string  `gorm:"column:created_at;size:50;not null;index" json:"created_at"`
	UpdatedAt string  `gorm:"column:updated_at;size:50;not null" json:"updated_at"`
	Enabled   bool    `gorm:"default:true;index" json:"enabled"`
	// IsAdmin 管理员可见全部租户的账号
	IsAdmin bool    `gorm:"column:is_admin;default:false" json:"is_admin"`
	Notes   *string `gorm:"type:text" json:"notes,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// UserCreate 表示创建操作员的请求体
// @author ygw
type UserCreate struct {
	Name     string  `json:"name" binding:"required"`
	Email    *string `json:"email"`
	Password string  `json:"password" binding:"required"`
	Enabled  *bool   `json:"enabled"`
	IsAdmin  *bool   `json:"is_admin"`
	Notes    *string `json:"notes"`
}

// UserUpdate 表示更新操作员的请求体
// @author ygw
type UserUpdate struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Enabled  *bool   `json:"enabled"`
	IsAdmin  *bool   `json:"is_admin"`
	Notes    *string `json:"notes"`
}
