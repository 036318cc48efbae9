package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 审计事件类型与状态
const (
	EventStream        = "friendly_vc_stream"
	EventCompletion    = "friendly_vc_completion"
	EventEvaluation    = "friendly_vc_evaluation"
	EventPromptCreated = "prompt_created"
	EventStatusOpen    = "open"
	EventStatusSuccess = "success"
	EventStatusError   = "error"
)

// AiEvent 是一次请求生命周期中某个阶段的审计记录，只追加不修改。
type AiEvent struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	RequestID      string         `gorm:"type:varchar(64);index" json:"requestId"`
	UserID         *string        `gorm:"type:varchar(64)" json:"userId"`
	ConversationID *string        `gorm:"type:varchar(36);index" json:"conversationId"`
	EventType      string         `gorm:"type:varchar(64);not null" json:"eventType"`
	Status         string         `gorm:"type:varchar(32);not null" json:"status"`
	Model          *string        `gorm:"type:varchar(128)" json:"model"`
	LatencyMs      *int           `json:"latencyMs"`
	TokenUsage     datatypes.JSON `json:"tokenUsage"`
	Metadata       datatypes.JSON `json:"metadata"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (AiEvent) TableName() string {
	return "ai_events"
}

func (e *AiEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
