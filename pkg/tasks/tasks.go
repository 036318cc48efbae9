// Package tasks 定义后台任务的载荷，以及带错误边界的后台执行器。
package tasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/metrics"
)

// EvaluationTask 是一次评估任务，既可以在进程内执行，也可以经 Kafka 投递。
type EvaluationTask struct {
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
	AgentSlug      string `json:"agent_slug"`
	UserID         string `json:"user_id,omitempty"`
	// CompletionText 是本轮助手回复原文，评估失败时作为兜底摘要。
	CompletionText string `json:"completion_text"`
	EnqueuedAt     int64  `json:"enqueued_at"`
}

// Key 用于重试计数等需要幂等键的场景。
func (t EvaluationTask) Key() string {
	return t.ConversationID + ":" + t.RequestID
}

// Runner 在独立 goroutine 中运行任务：每个任务有自己的超时与 panic 恢复，
// 失败只会被记录，不会影响发起它的请求。
type Runner struct {
	wg      sync.WaitGroup
	timeout time.Duration
	metrics *metrics.Metrics
	base    context.Context
	stop    context.CancelFunc
}

// NewRunner 创建 Runner。timeout<=0 表示不设超时。
func NewRunner(timeout time.Duration, m *metrics.Metrics) *Runner {
	base, stop := context.WithCancel(context.Background())
	return &Runner{timeout: timeout, metrics: m, base: base, stop: stop}
}

// Go 提交一个任务。fn 拿到的 ctx 与任何 HTTP 请求的生命周期无关。
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx := r.base
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(r.base, r.timeout)
			defer cancel()
		}

		start := time.Now()
		err := r.safeRun(ctx, name, fn)
		if err != nil {
			r.metrics.RecordBackgroundTask(name, "error")
			log.Errorw("后台任务执行失败", "task", name, "latency", time.Since(start).String(), "error", err)
			return
		}
		r.metrics.RecordBackgroundTask(name, "ok")
	}()
}

func (r *Runner) safeRun(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.RecordBackgroundTask(name, "panic")
			err = fmt.Errorf("task %s panicked: %v\n%s", name, p, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Wait 阻塞直到所有已提交任务结束。
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown 等待任务结束，超过 ctx 期限后取消剩余任务。
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.stop()
		<-done
		return ctx.Err()
	}
}
