package repository

import (
	"context"

	"fundraising-school-go/internal/model"

	"gorm.io/gorm"
)

// AdminUserRepository 接口定义了管理员白名单的持久化操作。
type AdminUserRepository interface {
	Create(ctx context.Context, admin *model.AdminUser) error
	FindByEmail(ctx context.Context, email string) (*model.AdminUser, error)
	FindAll(ctx context.Context) ([]model.AdminUser, error)
}

// adminUserRepository 是 AdminUserRepository 接口的 GORM 实现。
type adminUserRepository struct {
	db *gorm.DB
}

// NewAdminUserRepository 创建一个新的 AdminUserRepository 实例。
func NewAdminUserRepository(db *gorm.DB) AdminUserRepository {
	return &adminUserRepository{db: db}
}

// Create 写入一个管理员，邮箱重复时返回 ErrDuplicate。
func (r *adminUserRepository) Create(ctx context.Context, admin *model.AdminUser) error {
	return translate(r.db.WithContext(ctx).Create(admin).Error)
}

// FindByEmail 根据邮箱查找管理员。
func (r *adminUserRepository) FindByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	var admin model.AdminUser
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&admin).Error; err != nil {
		return nil, translate(err)
	}
	return &admin, nil
}

// FindAll 按创建时间倒序返回所有管理员。
func (r *adminUserRepository) FindAll(ctx context.Context) ([]model.AdminUser, error) {
	var admins []model.AdminUser
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&admins).Error
	return admins, translate(err)
}
