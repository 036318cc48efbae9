package repository

import (
	"context"

	"fundraising-school-go/internal/model"

	"gorm.io/gorm"
)

// AiEventRepository 定义了审计事件的写入与查询，事件只追加。
type AiEventRepository interface {
	Create(ctx context.Context, event *model.AiEvent) error
	ListByConversation(ctx context.Context, conversationID string) ([]model.AiEvent, error)
}

type aiEventRepository struct {
	db *gorm.DB
}

// NewAiEventRepository 创建一个新的 AiEventRepository 实例。
func NewAiEventRepository(db *gorm.DB) AiEventRepository {
	return &aiEventRepository{db: db}
}

func (r *aiEventRepository) Create(ctx context.Context, event *model.AiEvent) error {
	return translate(r.db.WithContext(ctx).Create(event).Error)
}

func (r *aiEventRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.AiEvent, error) {
	var events []model.AiEvent
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&events).Error
	return events, translate(err)
}
