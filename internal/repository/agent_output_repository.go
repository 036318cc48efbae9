package repository

import (
	"context"

	"fundraising-school-go/internal/model"

	"gorm.io/gorm"
)

// AgentOutputRepository 定义了评估结论的持久化操作。
type AgentOutputRepository interface {
	// ReplaceForConversation 在一个事务里删除该对话已有的结论并写入新结论，返回被替换掉的 id。
	ReplaceForConversation(ctx context.Context, output *model.AgentOutput) ([]string, error)
	FindByID(ctx context.Context, id string) (*model.AgentOutput, error)
	// FindByIDs 按传入顺序返回存在的记录。
	FindByIDs(ctx context.Context, ids []string) ([]model.AgentOutput, error)
	List(ctx context.Context, agentSlug string, limit int) ([]model.AgentOutput, error)
	// Search 用 LIKE 在公司名、创始人、邮箱、摘要、引荐人里做模糊匹配。
	Search(ctx context.Context, agentSlug, query string, limit int) ([]model.AgentOutput, error)
	Save(ctx context.Context, output *model.AgentOutput) error
}

type agentOutputRepository struct {
	db *gorm.DB
}

// NewAgentOutputRepository 创建一个新的 AgentOutputRepository 实例。
func NewAgentOutputRepository(db *gorm.DB) AgentOutputRepository {
	return &agentOutputRepository{db: db}
}

func (r *agentOutputRepository) ReplaceForConversation(ctx context.Context, output *model.AgentOutput) ([]string, error) {
	var replaced []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if output.ConversationID != nil {
			if err := tx.Model(&model.AgentOutput{}).
				Where("conversation_id = ?", *output.ConversationID).
				Pluck("id", &replaced).Error; err != nil {
				return err
			}
			if len(replaced) > 0 {
				if err := tx.Where("id IN ?", replaced).Delete(&model.AgentOutput{}).Error; err != nil {
					return err
				}
			}
		}
		return tx.Create(output).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return replaced, nil
}

func (r *agentOutputRepository) FindByID(ctx context.Context, id string) (*model.AgentOutput, error) {
	var o model.AgentOutput
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *agentOutputRepository) FindByIDs(ctx context.Context, ids []string) ([]model.AgentOutput, error) {
	if len(ids) == 0 {
		return []model.AgentOutput{}, nil
	}
	var rows []model.AgentOutput
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	byID := make(map[string]model.AgentOutput, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]model.AgentOutput, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

func (r *agentOutputRepository) List(ctx context.Context, agentSlug string, limit int) ([]model.AgentOutput, error) {
	var rows []model.AgentOutput
	err := r.db.WithContext(ctx).
		Where("agent_slug = ?", agentSlug).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, translate(err)
}

func (r *agentOutputRepository) Search(ctx context.Context, agentSlug, query string, limit int) ([]model.AgentOutput, error) {
	var rows []model.AgentOutput
	like := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Where("agent_slug = ?", agentSlug).
		Where("company_name LIKE ? OR founder_name LIKE ? OR founder_email LIKE ? OR summary LIKE ? OR connectors LIKE ?",
			like, like, like, like, like).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, translate(err)
}

func (r *agentOutputRepository) Save(ctx context.Context, output *model.AgentOutput) error {
	return translate(r.db.WithContext(ctx).Save(output).Error)
}
