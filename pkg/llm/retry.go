package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"fundraising-school-go/pkg/log"

	"github.com/sashabaranov/go-openai"
)

// 可重试的上游状态码
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRetryableStatus 判断上游状态码是否可以重试。
func IsRetryableStatus(status int) bool {
	return retryableStatus[status]
}

// ProviderError 是上游 chat-completion 接口返回的错误。
// Status 为 0 表示没有拿到 HTTP 响应（超时或网络错误）。
type ProviderError struct {
	Status    int
	Message   string
	Body      string
	Retryable bool
	Attempts  int
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// ExponentialBackoff 返回 500ms * 2^attempt 再加 [0,250ms) 的随机抖动。
func ExponentialBackoff(attempt int) time.Duration {
	base := 500 * time.Millisecond * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	return base + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// execute 带重试地发起请求，成功时返回 2xx 响应和释放该次尝试上下文的函数。
// 每次尝试的超时只覆盖到拿到响应头为止，之后 body 的读取由调用方的 ctx 约束。
func (c *client) execute(ctx context.Context, mode string, payload []byte, requestID string) (*http.Response, context.CancelFunc, int, error) {
	if c.cfg.APIKey == "" {
		return nil, nil, 0, &ProviderError{Status: http.StatusInternalServerError, Message: "Missing OpenAI API key"}
	}

	var lastErr *ProviderError
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			c.metrics.RecordCompletionRetry()
			if err := sleepCtx(ctx, c.backoff(attempt-1)); err != nil {
				return nil, nil, attempt, err
			}
		}

		start := time.Now()
		resp, release, perr, err := c.attempt(ctx, payload, requestID)
		if err != nil {
			// 调用方取消，不再重试
			return nil, nil, attempt + 1, err
		}
		if perr == nil {
			c.metrics.RecordCompletionAttempt(mode, "headers", time.Since(start))
			return resp, release, attempt + 1, nil
		}

		perr.Attempts = attempt + 1
		c.metrics.RecordCompletionAttempt(mode, "error", time.Since(start))
		log.Warnw("上游 chat-completion 调用失败",
			"requestId", requestID,
			"attempt", attempt+1,
			"status", perr.Status,
			"retryable", perr.Retryable,
			"error", perr.Message,
		)
		if !perr.Retryable {
			return nil, nil, attempt + 1, perr
		}
		lastErr = perr
	}
	return nil, nil, c.maxAttempts, lastErr
}

// attempt 执行一次尝试。返回值：成功响应；可判定的上游错误 perr；或调用方取消导致的 err。
func (c *client) attempt(ctx context.Context, payload []byte, requestID string) (*http.Response, context.CancelFunc, *ProviderError, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	timedOut := make(chan struct{})
	timer := time.AfterFunc(c.timeout, func() {
		close(timedOut)
		cancel()
	})

	req, err := c.newRequest(attemptCtx, payload, requestID)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, nil, nil, err
	}

	resp, err := c.http.Do(req)
	stopped := timer.Stop()
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, nil, nil, ctx.Err()
		}
		msg := err.Error()
		if isClosed(timedOut) {
			msg = fmt.Sprintf("OpenAI request timed out after %s", c.timeout)
		}
		return nil, nil, &ProviderError{Message: msg, Retryable: true}, nil
	}
	if !stopped {
		// 响应头到达的同时超时触发，attemptCtx 已被取消，body 不可再读
		resp.Body.Close()
		cancel()
		return nil, nil, &ProviderError{Message: fmt.Sprintf("OpenAI request timed out after %s", c.timeout), Retryable: true}, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, cancel, nil, nil
	}

	defer cancel()
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return nil, nil, &ProviderError{
		Status:    resp.StatusCode,
		Message:   upstreamMessage(resp.StatusCode, body),
		Body:      string(body),
		Retryable: IsRetryableStatus(resp.StatusCode),
	}, nil
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// upstreamMessage 优先使用上游 error.message，否则给出通用描述。
func upstreamMessage(status int, body []byte) string {
	var errRes openai.ErrorResponse
	if err := json.Unmarshal(body, &errRes); err == nil && errRes.Error != nil && errRes.Error.Message != "" {
		return errRes.Error.Message
	}
	return fmt.Sprintf("OpenAI error (%d)", status)
}

// AsProviderError 是 errors.As 的便捷封装。
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
