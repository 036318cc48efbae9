package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/repository"
)

const titleMaxRunes = 80

// ConversationService 负责对话线程及其消息。
type ConversationService interface {
	Start(ctx context.Context, agentSlug, promptVersion string, ownerID *string, firstContent string) (*model.Conversation, error)
	// Get 按 id 查找，ownerID 为 nil 时不做归属过滤。
	Get(ctx context.Context, id string, ownerID *string) (*model.Conversation, error)
	GetWithMessages(ctx context.Context, id string, ownerID *string) (*model.Conversation, []model.Message, error)
	List(ctx context.Context, ownerID, agentSlug string) ([]model.Conversation, error)
	History(ctx context.Context, id string) ([]model.Message, error)
	AppendMessage(ctx context.Context, msg *model.Message) error
	SaveMessage(ctx context.Context, msg *model.Message) error
	Touch(ctx context.Context, id string, meta repository.ConversationMeta) error
	Delete(ctx context.Context, id, ownerID string) error
	Agents() []model.AgentProfile
}

type conversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(conversations repository.ConversationRepository, messages repository.MessageRepository) ConversationService {
	return &conversationService{conversations: conversations, messages: messages}
}

// DeriveTitle 用首条消息生成标题：合并空白、去掉首尾空白、最多保留 80 个字符。
func DeriveTitle(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	runes := []rune(collapsed)
	if len(runes) > titleMaxRunes {
		runes = runes[:titleMaxRunes]
	}
	return string(runes)
}

func (s *conversationService) Start(ctx context.Context, agentSlug, promptVersion string, ownerID *string, firstContent string) (*model.Conversation, error) {
	conv := &model.Conversation{
		UserID:           ownerID,
		Title:            DeriveTitle(firstContent),
		PromptVersion:    promptVersion,
		AgentSlug:        agentSlug,
		LastInteractedAt: time.Now().UTC(),
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, id string, ownerID *string) (*model.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, id, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return conv, err
}

func (s *conversationService) GetWithMessages(ctx context.Context, id string, ownerID *string) (*model.Conversation, []model.Message, error) {
	conv, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func (s *conversationService) List(ctx context.Context, ownerID, agentSlug string) ([]model.Conversation, error) {
	return s.conversations.ListByOwner(ctx, ownerID, agentSlug)
}

func (s *conversationService) History(ctx context.Context, id string) ([]model.Message, error) {
	return s.messages.ListByConversation(ctx, id)
}

func (s *conversationService) AppendMessage(ctx context.Context, msg *model.Message) error {
	return s.messages.Append(ctx, msg)
}

func (s *conversationService) SaveMessage(ctx context.Context, msg *model.Message) error {
	return s.messages.Create(ctx, msg)
}

func (s *conversationService) Touch(ctx context.Context, id string, meta repository.ConversationMeta) error {
	if meta.LastInteractedAt.IsZero() {
		meta.LastInteractedAt = time.Now().UTC()
	}
	return s.conversations.UpdateMeta(ctx, id, meta)
}

func (s *conversationService) Delete(ctx context.Context, id, ownerID string) error {
	err := s.conversations.Delete(ctx, id, &ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// Agents 返回内置 agent 目录，包含客户端渲染开场白所需的 greeting。
func (s *conversationService) Agents() []model.AgentProfile {
	slugs := model.DefaultAgentSlugs()
	out := make([]model.AgentProfile, 0, len(slugs))
	for _, slug := range slugs {
		if p, ok := model.LookupAgentProfile(slug); ok {
			out = append(out, p)
		}
	}
	return out
}
