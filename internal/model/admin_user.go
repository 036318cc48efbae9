package model

import "time"

// 管理员角色
const (
	AdminRoleAdmin      = "admin"
	AdminRoleSuperAdmin = "superadmin"
)

// AdminUser 是按邮箱维护的管理员白名单。
type AdminUser struct {
	Email     string    `gorm:"type:varchar(255);primaryKey" json:"email"`
	Role      string    `gorm:"type:varchar(32);not null;default:admin" json:"role"`
	CreatedBy *string   `gorm:"type:varchar(64)" json:"createdBy"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}
