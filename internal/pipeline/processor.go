// Package pipeline 定义了评估任务的处理流程与派发方式。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"fundraising-school-go/internal/evaluation"
	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/service"
	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/metrics"
	"fundraising-school-go/pkg/tasks"
)

// Processor 封装了评估任务的所有依赖和逻辑。
type Processor struct {
	conversations service.ConversationService
	outputs       service.AgentOutputService
	events        service.EventService
	evaluator     evaluation.Evaluator
	metrics       *metrics.Metrics
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	conversations service.ConversationService,
	outputs service.AgentOutputService,
	events service.EventService,
	evaluator evaluation.Evaluator,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		conversations: conversations,
		outputs:       outputs,
		events:        events,
		evaluator:     evaluator,
		metrics:       m,
	}
}

// Process 是评估任务的主函数：读取完整对话、调用评估器、规整后写入 agent 输出。
// 评估失败时用本轮助手回复原文生成兜底结论，保证线索不会丢失。
func (p *Processor) Process(ctx context.Context, task tasks.EvaluationTask) error {
	log.Infof("[Processor] 开始评估对话, ConversationID: %s, RequestID: %s", task.ConversationID, task.RequestID)

	var userID *string
	if task.UserID != "" {
		userID = &task.UserID
	}
	convID := task.ConversationID

	// 1. 读取完整对话
	history, err := p.conversations.History(ctx, task.ConversationID)
	if err != nil {
		return fmt.Errorf("读取对话历史失败: %w", err)
	}

	// 2. 调用评估器
	start := time.Now()
	ev, err := p.evaluator.Evaluate(ctx, history, "")
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		log.Warnf("[Processor] 评估失败，使用兜底结论, ConversationID: %s, Error: %v", task.ConversationID, err)
		p.metrics.RecordEvaluation("auto", "fallback")
		p.events.Log(ctx, service.EventRecord{
			RequestID:      task.RequestID,
			UserID:         userID,
			ConversationID: &convID,
			EventType:      model.EventEvaluation,
			Status:         model.EventStatusError,
			LatencyMs:      &latency,
			Metadata:       map[string]any{"error": err.Error(), "agentSlug": task.AgentSlug},
		})

		fallback := evaluation.FallbackFromCompletion(task.CompletionText)
		_, upsertErr := p.outputs.Upsert(ctx, task.ConversationID, task.AgentSlug, fallback, map[string]any{
			"source":          "fallback",
			"evaluationError": err.Error(),
		})
		if upsertErr != nil {
			return fmt.Errorf("写入兜底结论失败: %w", upsertErr)
		}
		return nil
	}

	// 3. 规整并写入
	normalized := evaluation.Normalize(ev.Raw, evaluation.FallbackSummary)
	output, err := p.outputs.Upsert(ctx, task.ConversationID, task.AgentSlug, normalized, map[string]any{
		"source":     "auto",
		"evaluation": ev.Raw,
		"normalized": normalized,
		"usage":      ev.Usage,
	})
	if err != nil {
		p.metrics.RecordEvaluation("auto", "error")
		return fmt.Errorf("写入评估结论失败: %w", err)
	}
	p.metrics.RecordEvaluation("auto", "success")

	p.events.Log(ctx, service.EventRecord{
		RequestID:      task.RequestID,
		UserID:         userID,
		ConversationID: &convID,
		EventType:      model.EventEvaluation,
		Status:         model.EventStatusSuccess,
		Model:          ev.Model,
		LatencyMs:      &latency,
		TokenUsage:     ev.Usage,
		Metadata:       map[string]any{"agentSlug": task.AgentSlug, "outputId": output.ID, "fitLabel": normalized.FitLabel},
	})

	log.Infof("[Processor] 评估完成, ConversationID: %s, FitLabel: %q", task.ConversationID, normalized.FitLabel)
	return nil
}
