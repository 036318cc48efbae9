package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"fundraising-school-go/internal/config"
	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/repository"
	"fundraising-school-go/pkg/llm"
	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/tasks"
)

// TurnInput 是一轮对话的请求参数。
type TurnInput struct {
	Content        string
	AgentSlug      string
	ConversationID string
	Email          string
	User           *model.AuthUser
}

// TurnMeta 是 SSE 流的第一条 meta 事件。
type TurnMeta struct {
	ConversationID string    `json:"conversationId"`
	PromptVersion  string    `json:"promptVersion"`
	AgentSlug      string    `json:"agentSlug"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Turn 是已经开始流式输出的一轮对话。调用方必须消费 Stream.Events() 或调用 Stream.Close()。
type Turn struct {
	Meta   TurnMeta
	Stream *llm.Stream
}

// EvaluationDispatcher 把评估任务交给进程内执行器或 Kafka。
type EvaluationDispatcher interface {
	Dispatch(ctx context.Context, task tasks.EvaluationTask) error
}

// ChatService 定义了一轮对话的编排。
type ChatService interface {
	StartTurn(ctx context.Context, in TurnInput) (*Turn, error)
}

type chatService struct {
	conversations ConversationService
	prompts       PromptService
	limiter       RateLimiter
	events        EventService
	llmClient     llm.Client
	runner        *tasks.Runner
	dispatcher    EvaluationDispatcher
	chatCfg       config.ChatConfig
	llmCfg        config.LLMConfig
}

// ChatDeps 汇总 ChatService 的依赖。
type ChatDeps struct {
	Conversations ConversationService
	Prompts       PromptService
	Limiter       RateLimiter
	Events        EventService
	LLM           llm.Client
	Runner        *tasks.Runner
	Dispatcher    EvaluationDispatcher
	ChatConfig    config.ChatConfig
	LLMConfig     config.LLMConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(d ChatDeps) ChatService {
	if d.ChatConfig.MaxContentLength <= 0 {
		d.ChatConfig.MaxContentLength = 4000
	}
	if d.ChatConfig.DefaultAgentSlug == "" {
		d.ChatConfig.DefaultAgentSlug = model.AgentSalesCoach
	}
	return &chatService{
		conversations: d.Conversations,
		prompts:       d.Prompts,
		limiter:       d.Limiter,
		events:        d.Events,
		llmClient:     d.LLM,
		runner:        d.Runner,
		dispatcher:    d.Dispatcher,
		chatCfg:       d.ChatConfig,
		llmCfg:        d.LLMConfig,
	}
}

// normalizeInput 校验并规整请求参数。
func (s *chatService) normalizeInput(in TurnInput) (TurnInput, error) {
	in.Content = strings.TrimSpace(in.Content)
	n := utf8.RuneCountInString(in.Content)
	if n == 0 {
		return in, NewRequestError(http.StatusBadRequest, "invalid_request", "Message content is required.")
	}
	if n > s.chatCfg.MaxContentLength {
		return in, NewRequestError(http.StatusBadRequest, "invalid_request", fmt.Sprintf("Message content must be at most %d characters.", s.chatCfg.MaxContentLength))
	}
	in.AgentSlug = strings.ToLower(strings.TrimSpace(in.AgentSlug))
	if in.AgentSlug == "" {
		in.AgentSlug = s.chatCfg.DefaultAgentSlug
	}
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.Email = strings.TrimSpace(in.Email)
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		return in, NewRequestError(http.StatusBadRequest, "invalid_request", "A valid email is required.")
	}
	return in, nil
}

// StartTurn 完成同步部分：限流、解析 prompt、写入用户消息并打开上游流。
// 返回后由后台任务收集完整回复并落库，调用方只负责转发 Stream。
func (s *chatService) StartTurn(ctx context.Context, in TurnInput) (*Turn, error) {
	in, err := s.normalizeInput(in)
	if err != nil {
		return nil, err
	}
	userID := in.User.UserIDPtr()

	if err := s.limiter.CheckAndAdmit(ctx, userID); err != nil {
		return nil, err
	}

	prompt, err := s.prompts.Resolve(ctx, in.AgentSlug)
	if err != nil {
		return nil, err
	}

	var conv *model.Conversation
	var history []model.Message
	if in.ConversationID != "" {
		// 登录用户只能续写自己的对话
		conv, err = s.conversations.Get(ctx, in.ConversationID, userID)
		if err != nil {
			return nil, err
		}
		if conv.AgentSlug != in.AgentSlug {
			return nil, ErrAgentMismatch
		}
		if history, err = s.conversations.History(ctx, conv.ID); err != nil {
			return nil, err
		}
	} else {
		conv, err = s.conversations.Start(ctx, in.AgentSlug, prompt.Version, userID, in.Content)
		if err != nil {
			return nil, err
		}
	}

	userMsg := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        in.Content,
	}
	if in.Email != "" {
		userMsg.Metadata = toJSON(map[string]any{"email": in.Email})
	}
	if err := s.conversations.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("写入用户消息失败: %w", err)
	}
	if err := s.conversations.Touch(ctx, conv.ID, repository.ConversationMeta{
		Title:         DeriveTitle(in.Content),
		PromptVersion: prompt.Version,
		AgentSlug:     in.AgentSlug,
	}); err != nil {
		return nil, fmt.Errorf("更新对话信息失败: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: model.RoleSystem, Content: prompt.Content})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: model.RoleUser, Content: in.Content})

	req := llm.Request{Messages: messages, MaxTokens: s.llmCfg.Generation.StreamMaxTokens}
	if t := s.llmCfg.Generation.StreamTemperature; t > 0 {
		req.Temperature = &t
	}

	startedAt := time.Now()
	stream, err := s.llmClient.StreamComplete(ctx, req)
	if err != nil {
		return nil, err
	}

	s.events.Log(ctx, EventRecord{
		RequestID:      stream.RequestID,
		UserID:         userID,
		ConversationID: &conv.ID,
		EventType:      model.EventStream,
		Status:         model.EventStatusOpen,
		Model:          s.llmCfg.Model,
		Metadata:       map[string]any{"agentSlug": in.AgentSlug, "promptVersion": prompt.Version},
	})

	rec := turnRecord{
		requestID:      stream.RequestID,
		userID:         userID,
		conversationID: conv.ID,
		agentSlug:      in.AgentSlug,
		promptVersion:  prompt.Version,
		userSequence:   userMsg.Sequence,
		startedAt:      startedAt,
	}
	s.runner.Go("finish-turn", func(bg context.Context) error {
		return s.finishTurn(bg, rec, stream)
	})

	return &Turn{
		Meta: TurnMeta{
			ConversationID: conv.ID,
			PromptVersion:  prompt.Version,
			AgentSlug:      in.AgentSlug,
			CreatedAt:      conv.CreatedAt,
		},
		Stream: stream,
	}, nil
}

type turnRecord struct {
	requestID      string
	userID         *string
	conversationID string
	agentSlug      string
	promptVersion  string
	userSequence   int
	startedAt      time.Time
}

// finishTurn 在后台等待完整回复：写入助手消息、记录审计事件，分析师 agent 再派发评估任务。
func (s *chatService) finishTurn(ctx context.Context, rec turnRecord, stream *llm.Stream) error {
	res, err := stream.Collect(ctx)
	latency := int(time.Since(rec.startedAt).Milliseconds())
	if err != nil {
		s.events.Log(ctx, EventRecord{
			RequestID:      rec.requestID,
			UserID:         rec.userID,
			ConversationID: &rec.conversationID,
			EventType:      model.EventCompletion,
			Status:         model.EventStatusError,
			Model:          s.llmCfg.Model,
			LatencyMs:      intPtr(latency),
			Metadata:       map[string]any{"error": err.Error(), "latencyMs": latency},
		})
		return fmt.Errorf("收集回复失败: %w", err)
	}

	modelName := res.Model
	if modelName == "" {
		modelName = s.llmCfg.Model
	}
	assistant := &model.Message{
		ConversationID: rec.conversationID,
		Role:           model.RoleAssistant,
		Content:        res.Content,
		Sequence:       rec.userSequence + 1,
		Model:          strPtr(modelName),
		TokenUsage:     toJSON(res.Usage),
		LatencyMs:      intPtr(latency),
	}
	if err := s.conversations.SaveMessage(ctx, assistant); err != nil {
		s.events.Log(ctx, EventRecord{
			RequestID:      rec.requestID,
			UserID:         rec.userID,
			ConversationID: &rec.conversationID,
			EventType:      model.EventCompletion,
			Status:         model.EventStatusError,
			Model:          modelName,
			LatencyMs:      intPtr(latency),
			Metadata:       map[string]any{"error": err.Error(), "stage": "persist"},
		})
		return fmt.Errorf("写入助手消息失败: %w", err)
	}
	if err := s.conversations.Touch(ctx, rec.conversationID, repository.ConversationMeta{
		PromptVersion: rec.promptVersion,
		AgentSlug:     rec.agentSlug,
	}); err != nil {
		log.Warnw("更新对话最近交互时间失败", "conversationId", rec.conversationID, "error", err)
	}

	s.events.Log(ctx, EventRecord{
		RequestID:      rec.requestID,
		UserID:         rec.userID,
		ConversationID: &rec.conversationID,
		EventType:      model.EventCompletion,
		Status:         model.EventStatusSuccess,
		Model:          modelName,
		LatencyMs:      intPtr(latency),
		TokenUsage:     res.Usage,
		Metadata:       map[string]any{"agentSlug": rec.agentSlug, "finishReason": res.FinishReason},
	})

	if !model.IsEvaluatedAgent(rec.agentSlug) || s.dispatcher == nil {
		return nil
	}
	task := tasks.EvaluationTask{
		RequestID:      rec.requestID,
		ConversationID: rec.conversationID,
		AgentSlug:      rec.agentSlug,
		CompletionText: res.Content,
		EnqueuedAt:     time.Now().UnixMilli(),
	}
	if rec.userID != nil {
		task.UserID = *rec.userID
	}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		return fmt.Errorf("派发评估任务失败: %w", err)
	}
	return nil
}
