package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/repository"
)

// AdminAccess 描述当前用户的后台权限。
type AdminAccess struct {
	Admin        *model.AdminUser
	IsSuperAdmin bool
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	// Authorize 检查用户是否在管理员白名单中，超级管理员邮箱总是通过。
	Authorize(ctx context.Context, user *model.AuthUser) (*AdminAccess, error)
	ListAdmins(ctx context.Context) ([]model.AdminUser, error)
	AddAdmin(ctx context.Context, email, role string, creator *model.AuthUser) (*model.AdminUser, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	adminRepo       repository.AdminUserRepository
	superAdminEmail string
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(adminRepo repository.AdminUserRepository, superAdminEmail string) AdminService {
	return &adminService{
		adminRepo:       adminRepo,
		superAdminEmail: normalizeEmail(superAdminEmail),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *adminService) isSuperAdmin(email string) bool {
	return s.superAdminEmail != "" && normalizeEmail(email) == s.superAdminEmail
}

func (s *adminService) Authorize(ctx context.Context, user *model.AuthUser) (*AdminAccess, error) {
	if user == nil {
		return nil, ErrUnauthorized
	}
	email := normalizeEmail(user.Email)
	if email == "" {
		return nil, ErrForbidden
	}

	admin, err := s.adminRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("查询管理员失败: %w", err)
	}
	super := s.isSuperAdmin(email) || (admin != nil && admin.Role == model.AdminRoleSuperAdmin)
	if admin == nil && !super {
		return nil, ErrForbidden
	}
	if admin == nil {
		admin = &model.AdminUser{Email: email, Role: model.AdminRoleSuperAdmin}
	}
	return &AdminAccess{Admin: admin, IsSuperAdmin: super}, nil
}

func (s *adminService) ListAdmins(ctx context.Context) ([]model.AdminUser, error) {
	return s.adminRepo.FindAll(ctx)
}

func (s *adminService) AddAdmin(ctx context.Context, email, role string, creator *model.AuthUser) (*model.AdminUser, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrAdminEmailInvalid
	}
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case "":
		role = model.AdminRoleAdmin
	case model.AdminRoleAdmin, model.AdminRoleSuperAdmin:
	default:
		return nil, ErrAdminRoleInvalid
	}

	admin := &model.AdminUser{Email: email, Role: role}
	if creator != nil {
		admin.CreatedBy = creator.UserIDPtr()
	}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAdminDuplicate
		}
		return nil, fmt.Errorf("创建管理员失败: %w", err)
	}
	return admin, nil
}
