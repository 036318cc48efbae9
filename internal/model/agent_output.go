package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AgentOutput 保存评估器对一次对话的结构化结论，每个对话最多一条。
// ConversationID 是弱引用：对话删除后置空，记录本身保留给管理员。
// 评估得到的文本字段长度不可控，统一用 text 列。
type AgentOutput struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID *string        `gorm:"type:varchar(36);index" json:"conversationId"`
	AgentSlug      string         `gorm:"type:varchar(64);not null;index" json:"agentSlug"`
	Summary        string         `gorm:"type:text;not null" json:"summary"`
	FitLabel       *string        `gorm:"type:text" json:"fitLabel"`
	CompanyName    *string        `gorm:"type:text" json:"companyName"`
	FounderName    *string        `gorm:"type:text" json:"founderName"`
	FounderEmail   *string        `gorm:"type:text" json:"founderEmail"`
	FounderPhone   *string        `gorm:"type:text" json:"founderPhone"`
	Connectors     *string        `gorm:"type:text" json:"connectors"`
	Metadata       datatypes.JSON `json:"metadata"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (AgentOutput) TableName() string {
	return "agent_outputs"
}

func (o *AgentOutput) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
