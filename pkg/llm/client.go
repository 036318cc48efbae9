// Package llm 封装 OpenAI 兼容的 chat-completion 接口，提供流式与一次性两种调用。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fundraising-school-go/internal/config"
	"fundraising-school-go/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultStreamMaxTokens     = 800
	defaultStreamTemperature   = 0.7
	defaultCompleteTemperature = 0.3
	defaultMaxAttempts         = 3
	defaultTimeout             = 120 * time.Second
)

// Client 定义了 LLM 客户端的接口。
type Client interface {
	// StreamComplete 发起流式调用，返回可以边转发边等待最终结果的 Stream。
	StreamComplete(ctx context.Context, req Request) (*Stream, error)
	// Complete 发起一次性调用，返回去掉首尾空白的完整回复。
	Complete(ctx context.Context, req Request) (*Result, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage 沿用 OpenAI 的 token 统计结构。
type Usage = openai.Usage

// Request 是一次调用的参数，零值字段使用客户端默认值。
type Request struct {
	Messages    []Message
	Model       string
	Temperature *float32
	MaxTokens   int
}

// Result 是一次调用的最终结果。
type Result struct {
	RequestID    string `json:"requestId"`
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finishReason,omitempty"`
	Usage        *Usage `json:"usage"`
	Attempts     int    `json:"-"`
}

// Option 用于定制客户端。
type Option func(*client)

// WithHTTPClient 替换底层 http.Client。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithMetrics 注入指标。
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *client) { c.metrics = m }
}

// WithBackoff 替换重试退避函数，attempt 为刚失败的那次尝试的序号（从 0 开始）。
func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(c *client) { c.backoff = f }
}

type client struct {
	cfg         config.LLMConfig
	endpoint    string
	http        *http.Client
	metrics     *metrics.Metrics
	backoff     func(attempt int) time.Duration
	timeout     time.Duration
	maxAttempts int
}

// NewClient 根据配置创建客户端。
func NewClient(cfg config.LLMConfig, opts ...Option) Client {
	c := &client{
		cfg:         cfg,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		http:        &http.Client{},
		backoff:     ExponentialBackoff,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) model(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.cfg.Model
}

func (c *client) buildPayload(req Request, stream bool) ([]byte, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	payload := openai.ChatCompletionRequest{
		Model:    c.model(req),
		Messages: msgs,
		Stream:   stream,
	}

	temperature := float32(defaultCompleteTemperature)
	if c.cfg.Generation.CompleteTemperature != 0 {
		temperature = c.cfg.Generation.CompleteTemperature
	}
	payload.MaxTokens = defaultStreamMaxTokens
	if stream {
		temperature = defaultStreamTemperature
		if c.cfg.Generation.StreamTemperature != 0 {
			temperature = c.cfg.Generation.StreamTemperature
		}
		if c.cfg.Generation.StreamMaxTokens != 0 {
			payload.MaxTokens = c.cfg.Generation.StreamMaxTokens
		}
		payload.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}
	payload.Temperature = temperature

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	return b, nil
}

// Complete 一次性调用。
func (c *client) Complete(ctx context.Context, req Request) (*Result, error) {
	payload, err := c.buildPayload(req, false)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	start := time.Now()
	resp, release, attempts, err := c.execute(ctx, "complete", payload, requestID)
	if err != nil {
		return nil, err
	}
	defer release()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}
	c.metrics.RecordCompletionAttempt("complete", "ok", time.Since(start))

	var parsed openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{Status: http.StatusBadGateway, Message: "OpenAI returned malformed JSON", Body: string(body)}
	}

	result := &Result{
		RequestID: requestID,
		Model:     parsed.Model,
		Attempts:  attempts,
	}
	if result.Model == "" {
		result.Model = c.model(req)
	}
	if len(parsed.Choices) > 0 {
		result.Content = strings.TrimSpace(parsed.Choices[0].Message.Content)
		result.FinishReason = string(parsed.Choices[0].FinishReason)
	}
	if parsed.Usage.TotalTokens > 0 || parsed.Usage.PromptTokens > 0 {
		usage := parsed.Usage
		result.Usage = &usage
	}
	return result, nil
}

// newRequest 构造一次尝试的 HTTP 请求，同一次调用的所有重试共享 requestID。
func (c *client) newRequest(ctx context.Context, payload []byte, requestID string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Request-Id", requestID)
	return req, nil
}
