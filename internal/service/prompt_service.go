package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/repository"

	"github.com/google/uuid"
)

// Prompt 来源
const (
	PromptSourceDatabase = "database"
	PromptSourceFallback = "fallback"
)

// ResolvedPrompt 是一轮对话实际使用的 system prompt。
type ResolvedPrompt struct {
	AgentSlug string `json:"agentSlug"`
	Version   string `json:"version"`
	Content   string `json:"content"`
	Source    string `json:"source"`
}

// PromptAdminView 是后台 prompt 管理页需要的数据。
type PromptAdminView struct {
	Prompts       []model.Prompt `json:"prompts"`
	CurrentPrompt *model.Prompt  `json:"currentPrompt"`
	Agents        []model.Agent  `json:"agents"`
	AgentSlug     string         `json:"agentSlug"`
}

// PromptService 负责 agent 的 prompt 解析与版本管理。
type PromptService interface {
	Resolve(ctx context.Context, agentSlug string) (*ResolvedPrompt, error)
	EnsureAgent(ctx context.Context, slug string) (*model.Agent, error)
	ListForAdmin(ctx context.Context, agentSlug string) (*PromptAdminView, error)
	Create(ctx context.Context, agentSlug, version, content string, creator *model.AuthUser) (*model.Prompt, error)
}

type promptService struct {
	prompts        repository.PromptRepository
	agents         repository.AgentRepository
	events         EventService
	defaultVersion string
}

// NewPromptService 创建一个新的 PromptService 实例。
func NewPromptService(prompts repository.PromptRepository, agents repository.AgentRepository, events EventService, defaultVersion string) PromptService {
	if defaultVersion == "" {
		defaultVersion = "v1"
	}
	return &promptService{prompts: prompts, agents: agents, events: events, defaultVersion: defaultVersion}
}

// EnsureAgent 保证 agent 记录存在，内置 agent 使用目录里的名称和描述，未知 slug 用 slug 本身。
func (s *promptService) EnsureAgent(ctx context.Context, slug string) (*model.Agent, error) {
	defaults := model.Agent{Slug: slug, Name: slug}
	if p, ok := model.LookupAgentProfile(slug); ok {
		defaults.Name = p.Name
		desc := p.Description
		defaults.Description = &desc
	}
	return s.agents.Ensure(ctx, defaults)
}

// Resolve 返回 agent 最新的 prompt，数据库里没有时使用内置兜底 prompt。
func (s *promptService) Resolve(ctx context.Context, agentSlug string) (*ResolvedPrompt, error) {
	if _, err := s.EnsureAgent(ctx, agentSlug); err != nil {
		return nil, fmt.Errorf("初始化 agent 失败: %w", err)
	}

	p, err := s.prompts.Latest(ctx, agentSlug)
	if err == nil {
		return &ResolvedPrompt{AgentSlug: agentSlug, Version: p.Version, Content: p.Content, Source: PromptSourceDatabase}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("查询 prompt 失败: %w", err)
	}

	profile := model.AgentProfileOrDefault(agentSlug)
	return &ResolvedPrompt{
		AgentSlug: agentSlug,
		Version:   s.defaultVersion,
		Content:   profile.FallbackPrompt,
		Source:    PromptSourceFallback,
	}, nil
}

func (s *promptService) ListForAdmin(ctx context.Context, agentSlug string) (*PromptAdminView, error) {
	for _, slug := range model.DefaultAgentSlugs() {
		if _, err := s.EnsureAgent(ctx, slug); err != nil {
			return nil, err
		}
	}
	agents, err := s.agents.List(ctx)
	if err != nil {
		return nil, err
	}

	active := model.AgentSalesCoach
	for _, a := range agents {
		if a.Slug == agentSlug {
			active = agentSlug
			break
		}
	}

	prompts, err := s.prompts.ListByAgent(ctx, active)
	if err != nil {
		return nil, err
	}
	view := &PromptAdminView{Prompts: prompts, Agents: agents, AgentSlug: active}
	if len(prompts) > 0 {
		view.CurrentPrompt = &prompts[0]
	}
	return view, nil
}

func (s *promptService) Create(ctx context.Context, agentSlug, version, content string, creator *model.AuthUser) (*model.Prompt, error) {
	version = strings.TrimSpace(version)
	content = strings.TrimSpace(content)
	if version == "" || content == "" {
		return nil, ErrPromptFieldsRequired
	}
	agentSlug = strings.ToLower(strings.TrimSpace(agentSlug))
	if agentSlug == "" {
		agentSlug = model.AgentSalesCoach
	}
	if _, err := s.EnsureAgent(ctx, agentSlug); err != nil {
		return nil, err
	}

	p := &model.Prompt{AgentSlug: agentSlug, Version: version, Content: content}
	if creator != nil {
		p.CreatedBy = creator.UserIDPtr()
		if creator.Email != "" {
			p.CreatedByEmail = strPtr(creator.Email)
		}
	}
	if err := s.prompts.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPromptDuplicate
		}
		return nil, fmt.Errorf("创建 prompt 失败: %w", err)
	}

	s.events.Log(ctx, EventRecord{
		RequestID: uuid.NewString(),
		UserID:    p.CreatedBy,
		EventType: model.EventPromptCreated,
		Status:    model.EventStatusSuccess,
		Metadata:  map[string]any{"agentSlug": agentSlug, "version": version},
	})
	return p, nil
}
