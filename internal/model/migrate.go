package model

import "gorm.io/gorm"

// AutoMigrate 创建或更新所有业务表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Conversation{},
		&Message{},
		&Prompt{},
		&Agent{},
		&AgentOutput{},
		&AiEvent{},
		&AdminUser{},
	)
}
