package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Prompt 是某个 agent 的一条不可变 system prompt 版本。
// (agent_slug, version) 唯一，最新创建的一条即为当前生效版本。
type Prompt struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	AgentSlug      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_prompts_agent_version" json:"agentSlug"`
	Version        string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_prompts_agent_version" json:"version"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedBy      *string   `gorm:"type:varchar(64)" json:"createdBy"`
	CreatedByEmail *string   `gorm:"type:varchar(255)" json:"createdByEmail"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Prompt) TableName() string {
	return "prompts"
}

func (p *Prompt) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Agent 是一个带 slug 的配置分组，首次引用时自动创建。
type Agent struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Slug        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"slug"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Agent) TableName() string {
	return "agents"
}

func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
