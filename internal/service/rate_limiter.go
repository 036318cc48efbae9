package service

import (
	"context"
	"fmt"
	"time"

	"fundraising-school-go/internal/config"
	"fundraising-school-go/internal/repository"
	"fundraising-school-go/pkg/metrics"
)

// 限流桶
const (
	BucketUserHourly   = "user_hourly"
	BucketUserBurst    = "user_burst"
	BucketGlobalHourly = "global_hourly"
)

// RateLimiter 在调用模型之前检查三个限流桶，第一个超限的桶决定返回的错误。
type RateLimiter interface {
	CheckAndAdmit(ctx context.Context, userID *string) error
}

type bucket struct {
	name       string
	code       string
	message    string
	limit      int
	window     time.Duration
	retryAfter int
	perUser    bool
}

type rateLimiter struct {
	messages repository.MessageRepository
	buckets  []bucket
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewRateLimiter 根据配置创建限流器。计数基于已写入的助手消息，不需要额外的存储。
func NewRateLimiter(messages repository.MessageRepository, cfg config.RateLimitConfig, m *metrics.Metrics) RateLimiter {
	return &rateLimiter{
		messages: messages,
		metrics:  m,
		now:      time.Now,
		buckets: []bucket{
			{
				name:       BucketUserHourly,
				code:       "rate_limit_hourly",
				message:    "You've hit the hourly limit. Try again in an hour.",
				limit:      cfg.UserHourlyLimit,
				window:     cfg.UserHourlyWindow,
				retryAfter: 3600,
				perUser:    true,
			},
			{
				name:       BucketUserBurst,
				code:       "rate_limit_burst",
				message:    "Slow down a little. Try again in a couple of minutes.",
				limit:      cfg.UserBurstLimit,
				window:     cfg.UserBurstWindow,
				retryAfter: 120,
				perUser:    true,
			},
			{
				name:       BucketGlobalHourly,
				code:       "rate_limit_global",
				message:    "Sebas is at capacity. Please try again later.",
				limit:      cfg.GlobalHourlyLimit,
				window:     cfg.GlobalWindow,
				retryAfter: 3600,
			},
		},
	}
}

func (l *rateLimiter) CheckAndAdmit(ctx context.Context, userID *string) error {
	now := l.now().UTC()
	for _, b := range l.buckets {
		if b.perUser && userID == nil {
			continue
		}
		if b.limit <= 0 || b.window <= 0 {
			continue
		}
		scope := userID
		if !b.perUser {
			scope = nil
		}
		count, err := l.messages.CountAssistantSince(ctx, scope, now.Add(-b.window))
		if err != nil {
			return fmt.Errorf("统计限流计数失败(%s): %w", b.name, err)
		}
		if count >= int64(b.limit) {
			l.metrics.RecordRateLimitRejection(b.name)
			return &RateLimitError{
				Bucket:     b.name,
				Code:       b.code,
				Message:    b.message,
				RetryAfter: b.retryAfter,
			}
		}
	}
	return nil
}
