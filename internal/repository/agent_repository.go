package repository

import (
	"context"

	"fundraising-school-go/internal/model"

	"gorm.io/gorm"
)

// AgentRepository 定义了 agent 配置分组的持久化操作。
type AgentRepository interface {
	// Ensure 按 slug 查找，不存在时用 defaults 创建，重复调用是幂等的。
	Ensure(ctx context.Context, defaults model.Agent) (*model.Agent, error)
	FindBySlug(ctx context.Context, slug string) (*model.Agent, error)
	List(ctx context.Context) ([]model.Agent, error)
}

type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository 创建一个新的 AgentRepository 实例。
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) Ensure(ctx context.Context, defaults model.Agent) (*model.Agent, error) {
	var a model.Agent
	err := r.db.WithContext(ctx).
		Where(model.Agent{Slug: defaults.Slug}).
		Attrs(model.Agent{Name: defaults.Name, Description: defaults.Description}).
		FirstOrCreate(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *agentRepository) FindBySlug(ctx context.Context, slug string) (*model.Agent, error) {
	var a model.Agent
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *agentRepository) List(ctx context.Context) ([]model.Agent, error) {
	var agents []model.Agent
	err := r.db.WithContext(ctx).Order("created_at ASC").Order("slug ASC").Find(&agents).Error
	return agents, translate(err)
}
