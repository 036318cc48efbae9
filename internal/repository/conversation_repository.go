package repository

import (
	"context"
	"time"

	"fundraising-school-go/internal/model"

	"gorm.io/gorm"
)

// ConversationMeta 是每轮对话后需要刷新的可变字段。
type ConversationMeta struct {
	// Title 只在对话还没有标题时写入
	Title            string
	PromptVersion    string
	AgentSlug        string
	LastInteractedAt time.Time
}

// ConversationRepository 定义了对话线程的持久化操作。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	// FindByID 查找对话，ownerID 为 nil 时不做归属过滤。
	FindByID(ctx context.Context, id string, ownerID *string) (*model.Conversation, error)
	ListByOwner(ctx context.Context, ownerID, agentSlug string) ([]model.Conversation, error)
	UpdateMeta(ctx context.Context, id string, meta ConversationMeta) error
	// Delete 在一个事务里删除对话及其消息，并解除 agent 输出的关联。
	Delete(ctx context.Context, id string, ownerID *string) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return translate(r.db.WithContext(ctx).Create(conv).Error)
}

func scopeOwner(db *gorm.DB, ownerID *string) *gorm.DB {
	if ownerID == nil {
		return db
	}
	return db.Where("user_id = ?", *ownerID)
}

func (r *conversationRepository) FindByID(ctx context.Context, id string, ownerID *string) (*model.Conversation, error) {
	var conv model.Conversation
	err := scopeOwner(r.db.WithContext(ctx).Where("id = ?", id), ownerID).First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

// ListByOwner 按最近交互时间倒序返回用户的对话，agentSlug 为空时不过滤。
func (r *conversationRepository) ListByOwner(ctx context.Context, ownerID, agentSlug string) ([]model.Conversation, error) {
	var convs []model.Conversation
	q := r.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if agentSlug != "" {
		q = q.Where("agent_slug = ?", agentSlug)
	}
	err := q.Order("last_interacted_at DESC").
		Order("updated_at DESC").
		Order("created_at DESC").
		Find(&convs).Error
	return convs, translate(err)
}

func (r *conversationRepository) UpdateMeta(ctx context.Context, id string, meta ConversationMeta) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"last_interacted_at": meta.LastInteractedAt,
			"updated_at":         tx.NowFunc(),
		}
		if meta.PromptVersion != "" {
			updates["prompt_version"] = meta.PromptVersion
		}
		if meta.AgentSlug != "" {
			updates["agent_slug"] = meta.AgentSlug
		}
		if err := tx.Model(&model.Conversation{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if meta.Title == "" {
			return nil
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ? AND (title = '' OR title IS NULL)", id).
			Update("title", meta.Title).Error
	})
}

func (r *conversationRepository) Delete(ctx context.Context, id string, ownerID *string) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := scopeOwner(tx.Where("id = ?", id), ownerID).First(&conv).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		// agent 输出保留给管理员，只解除关联
		if err := tx.Model(&model.AgentOutput{}).
			Where("conversation_id = ?", id).
			Update("conversation_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Conversation{}, "id = ?", id).Error
	}))
}
