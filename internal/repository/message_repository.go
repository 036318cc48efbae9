package repository

import (
	"context"
	"errors"
	"time"

	"fundraising-school-go/internal/model"

	"gorm.io/gorm"
)

// 并发写同一对话时 (conversation_id, sequence) 唯一索引可能冲突，重试几次即可
const appendRetries = 3

// MessageRepository 定义了对话消息的持久化操作。
type MessageRepository interface {
	// Append 以 max(sequence)+1 写入消息，并回填 msg.Sequence。
	Append(ctx context.Context, msg *model.Message) error
	// Create 按调用方给定的 sequence 写入。
	Create(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	// CountAssistantSince 统计 since 之后的助手消息数，userID 非空时只统计该用户的对话。
	CountAssistantSince(ctx context.Context, userID *string, since time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Append(ctx context.Context, msg *model.Message) error {
	var err error
	for i := 0; i < appendRetries; i++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var maxSeq int
			if err := tx.Model(&model.Message{}).
				Where("conversation_id = ?", msg.ConversationID).
				Select("COALESCE(MAX(sequence), 0)").
				Scan(&maxSeq).Error; err != nil {
				return err
			}
			msg.Sequence = maxSeq + 1
			return tx.Create(msg).Error
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		msg.ID = ""
	}
	return translate(err)
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	return translate(r.db.WithContext(ctx).Create(msg).Error)
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sequence ASC").
		Find(&msgs).Error
	return msgs, translate(err)
}

func (r *messageRepository) CountAssistantSince(ctx context.Context, userID *string, since time.Time) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("messages.role = ? AND messages.created_at >= ?", model.RoleAssistant, since)
	if userID != nil {
		q = q.Joins("JOIN conversations ON conversations.id = messages.conversation_id").
			Where("conversations.user_id = ?", *userID)
	}
	err := q.Count(&count).Error
	return count, translate(err)
}
