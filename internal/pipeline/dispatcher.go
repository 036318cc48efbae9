package pipeline

import (
	"context"

	"fundraising-school-go/pkg/tasks"
)

// InlineDispatcher 在进程内的后台执行器上运行评估任务，未启用 Kafka 时使用。
type InlineDispatcher struct {
	runner    *tasks.Runner
	processor *Processor
}

// NewInlineDispatcher 创建进程内派发器。
func NewInlineDispatcher(runner *tasks.Runner, processor *Processor) *InlineDispatcher {
	return &InlineDispatcher{runner: runner, processor: processor}
}

// Dispatch 提交任务后立即返回，任务的错误由 Runner 记录。
func (d *InlineDispatcher) Dispatch(_ context.Context, task tasks.EvaluationTask) error {
	d.runner.Go("evaluation", func(ctx context.Context) error {
		return d.processor.Process(ctx, task)
	})
	return nil
}
