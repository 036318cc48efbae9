package service

import (
	"context"
	"encoding/json"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/repository"
	"fundraising-school-go/pkg/log"

	"gorm.io/datatypes"
)

// EventRecord 描述一条待写入的审计事件。
type EventRecord struct {
	RequestID      string
	UserID         *string
	ConversationID *string
	EventType      string
	Status         string
	Model          string
	LatencyMs      *int
	TokenUsage     any
	Metadata       map[string]any
}

// EventService 写入 AiEvent。写入失败只记日志，不影响调用方。
type EventService interface {
	Log(ctx context.Context, rec EventRecord)
}

type eventService struct {
	repo repository.AiEventRepository
}

// NewEventService 创建一个新的 EventService 实例。
func NewEventService(repo repository.AiEventRepository) EventService {
	return &eventService{repo: repo}
}

func (s *eventService) Log(ctx context.Context, rec EventRecord) {
	event := &model.AiEvent{
		RequestID:      rec.RequestID,
		UserID:         rec.UserID,
		ConversationID: rec.ConversationID,
		EventType:      rec.EventType,
		Status:         rec.Status,
		LatencyMs:      rec.LatencyMs,
		TokenUsage:     toJSON(rec.TokenUsage),
		Metadata:       toJSON(rec.Metadata),
	}
	if rec.Model != "" {
		m := rec.Model
		event.Model = &m
	}
	if err := s.repo.Create(ctx, event); err != nil {
		log.Errorw("写入 AiEvent 失败", "eventType", rec.EventType, "status", rec.Status, "requestId", rec.RequestID, "error", err)
	}
}

// toJSON 把任意值编码为 JSON 列，nil 或编码失败时返回 nil。
func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return datatypes.JSON(b)
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
