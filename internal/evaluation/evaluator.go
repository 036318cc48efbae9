// Package evaluation 把分析师对话转写成结构化的投资评估结论。
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/pkg/llm"
)

const (
	evaluationTemperature = 0.2
	evaluationMaxTokens   = 700
)

// Completer 是评估器依赖的一次性补全能力，llm.Client 满足该接口。
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Result, error)
}

// Evaluation 是一次评估调用的结果。
type Evaluation struct {
	Raw       map[string]any `json:"raw"`
	Content   string         `json:"content"`
	Model     string         `json:"model"`
	Usage     *llm.Usage     `json:"usage"`
	RequestID string         `json:"requestId"`
}

// EvaluationError 表示模型回复为空或无法解析为 JSON 对象。
type EvaluationError struct {
	Message string
	Content string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Evaluator 对完整对话打分。
type Evaluator interface {
	Evaluate(ctx context.Context, messages []model.Message, promptOverride string) (*Evaluation, error)
}

type evaluator struct {
	completer Completer
	model     string
}

// NewEvaluator 创建评估器，modelName 为空时交给客户端的默认模型。
func NewEvaluator(completer Completer, modelName string) Evaluator {
	return &evaluator{completer: completer, model: modelName}
}

// Evaluate 发起一次非流式调用，返回解析后的 JSON 对象。
func (e *evaluator) Evaluate(ctx context.Context, messages []model.Message, promptOverride string) (*Evaluation, error) {
	system := strings.TrimSpace(promptOverride)
	if system == "" {
		system = DefaultPrompt
	}

	temperature := float32(evaluationTemperature)
	res, err := e.completer.Complete(ctx, llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			{Role: model.RoleSystem, Content: system},
			{Role: model.RoleUser, Content: "Conversation transcript:\n\n" + BuildTranscript(messages) + "\n\nReturn valid JSON now."},
		},
		Temperature: &temperature,
		MaxTokens:   evaluationMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	text := stripCodeFence(res.Content)
	if text == "" {
		return nil, &EvaluationError{Message: "Evaluation prompt produced no output."}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &EvaluationError{Message: "Failed to parse evaluation JSON", Content: text, Err: err}
	}
	if raw == nil {
		return nil, &EvaluationError{Message: "Evaluation JSON is not an object", Content: text}
	}

	return &Evaluation{
		Raw:       raw,
		Content:   text,
		Model:     res.Model,
		Usage:     res.Usage,
		RequestID: res.RequestID,
	}, nil
}

// BuildTranscript 生成 "ROLE: content" 格式的对话转写，消息之间空一行。
func BuildTranscript(messages []model.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, strings.ToUpper(m.Role)+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}

// stripCodeFence 去掉模型偶尔包在外面的 markdown 代码块。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
