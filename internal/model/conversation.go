// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation 代表一次与某个 agent 的对话线程。
type Conversation struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           *string   `gorm:"type:varchar(64);index" json:"userId"`
	Title            string    `gorm:"type:varchar(255)" json:"title"`
	PromptVersion    string    `gorm:"type:varchar(64);not null;default:v1" json:"promptVersion"`
	AgentSlug        string    `gorm:"type:varchar(64);not null;default:sales-coach;index" json:"agentSlug"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
	LastInteractedAt time.Time `gorm:"index" json:"lastInteractedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// BeforeCreate 在插入前补齐 ID 与最近交互时间。
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.LastInteractedAt.IsZero() {
		c.LastInteractedAt = tx.NowFunc()
	}
	return nil
}

// Message 是对话中的一条消息，Sequence 在同一对话内唯一且严格递增。
type Message struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_messages_conversation_sequence" json:"conversationId"`
	Role           string         `gorm:"type:varchar(16);not null" json:"role"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Sequence       int            `gorm:"not null;uniqueIndex:idx_messages_conversation_sequence" json:"sequence"`
	Model          *string        `gorm:"type:varchar(128)" json:"model"`
	TokenUsage     datatypes.JSON `json:"tokenUsage"`
	LatencyMs      *int           `json:"latencyMs"`
	Metadata       datatypes.JSON `json:"metadata"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
