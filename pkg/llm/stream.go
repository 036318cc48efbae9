package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/sse"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// TokenPayload 是 token 事件的 data。
type TokenPayload struct {
	Content string `json:"content"`
}

// DonePayload 是 done 事件的 data。
type DonePayload struct {
	Content      string  `json:"content"`
	Usage        *Usage  `json:"usage"`
	FinishReason *string `json:"finishReason"`
}

// ErrorPayload 是流中途失败时 error 事件的 data。
type ErrorPayload struct {
	Error string `json:"error"`
}

// Stream 是一次流式调用。Events 是面向客户端的实时事件流（token… done），
// Collect 独立等待累计后的最终结果，两者互不阻塞。
type Stream struct {
	RequestID string
	Attempts  int

	events chan sse.Event
	done   chan struct{}
	closed chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	result *Result
	err    error
}

// Events 返回实时事件通道，流结束时关闭。
func (s *Stream) Events() <-chan sse.Event {
	return s.events
}

// Collect 等待流结束并返回累计结果。
func (s *Stream) Collect(ctx context.Context) (*Result, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 中止上游读取。可以重复调用。
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.cancel()
	})
}

// StreamComplete 发起流式调用。拿到 2xx 响应头后立即返回，body 在后台 goroutine 中解码。
func (c *client) StreamComplete(ctx context.Context, req Request) (*Stream, error) {
	payload, err := c.buildPayload(req, true)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	start := time.Now()
	resp, release, attempts, err := c.execute(ctx, "stream", payload, requestID)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		RequestID: requestID,
		Attempts:  attempts,
		events:    make(chan sse.Event, 16),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
		cancel:    release,
	}

	go func() {
		defer resp.Body.Close()
		defer s.Close()
		acc := &streamAccumulator{model: c.model(req)}
		s.result, s.err = s.pump(ctx, resp.Body, acc)
		if s.result != nil {
			s.result.RequestID = requestID
			s.result.Attempts = attempts
		}
		outcome := "ok"
		if s.err != nil {
			outcome = "error"
		}
		c.metrics.RecordCompletionAttempt("stream_body", outcome, time.Since(start))
		close(s.events)
		close(s.done)
	}()

	return s, nil
}

// streamAccumulator 累计 model、usage、正文与 finish reason。
type streamAccumulator struct {
	model        string
	content      strings.Builder
	usage        *Usage
	finishReason string
}

func (a *streamAccumulator) apply(chunk *openai.ChatCompletionStreamResponse) string {
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if chunk.Usage != nil {
		usage := *chunk.Usage
		a.usage = &usage
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		a.finishReason = string(choice.FinishReason)
	}
	if choice.Delta.Content != "" {
		a.content.WriteString(choice.Delta.Content)
	}
	return choice.Delta.Content
}

func (a *streamAccumulator) result() *Result {
	return &Result{
		Content:      a.content.String(),
		Model:        a.model,
		FinishReason: a.finishReason,
		Usage:        a.usage,
	}
}

func (a *streamAccumulator) done() DonePayload {
	p := DonePayload{Content: a.content.String(), Usage: a.usage}
	if a.finishReason != "" {
		fr := a.finishReason
		p.FinishReason = &fr
	}
	return p
}

// pump 解码上游 SSE，把增量转成 token 事件，结束时补一个 done 事件。
func (s *Stream) pump(ctx context.Context, body io.Reader, acc *streamAccumulator) (*Result, error) {
	dec := sse.NewDecoder(body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			s.emitError(fmt.Errorf("failed to read from stream: %w", err))
			return nil, fmt.Errorf("failed to read from stream: %w", err)
		}

		data := strings.TrimSpace(ev.Data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warnw("无法解析上游流式分块，已跳过", "requestId", s.RequestID, "error", err)
			continue
		}

		if delta := acc.apply(&chunk); delta != "" {
			tokenEv, err := sse.JSONEvent(sse.EventToken, TokenPayload{Content: delta})
			if err != nil {
				return nil, err
			}
			if !s.send(ctx, tokenEv) {
				return nil, fmt.Errorf("stream cancelled: %w", context.Canceled)
			}
		}
	}

	doneEv, err := sse.JSONEvent(sse.EventDone, acc.done())
	if err != nil {
		return nil, err
	}
	if !s.send(ctx, doneEv) {
		return nil, fmt.Errorf("stream cancelled: %w", context.Canceled)
	}
	return acc.result(), nil
}

// send 向事件通道写入；Close 或 ctx 结束之后不再阻塞。
func (s *Stream) send(ctx context.Context, ev sse.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) emitError(err error) {
	ev, encErr := sse.JSONEvent(sse.EventError, ErrorPayload{Error: err.Error()})
	if encErr != nil {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
