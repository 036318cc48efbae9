package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fundraising-school-go/internal/config"
	"fundraising-school-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProcessor struct {
	failures int
	calls    int
	cancel   context.CancelFunc
}

func (p *flakyProcessor) Process(_ context.Context, _ tasks.EvaluationTask) error {
	p.calls++
	if p.cancel != nil {
		p.cancel()
	}
	if p.calls <= p.failures {
		return errors.New("evaluation failed")
	}
	return nil
}

func newTestConsumer(p TaskProcessor) *Consumer {
	c := NewConsumer(config.KafkaConfig{Topic: "evaluations"}, p, nil)
	c.retryDelay = 0
	return c
}

func taskMessage(t *testing.T) kafka.Message {
	t.Helper()
	msg, err := encodeTask(tasks.EvaluationTask{RequestID: "req-1", ConversationID: "conv-1"}, time.Now())
	require.NoError(t, err)
	return msg
}

func TestEncodeTaskKeysByConversation(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	msg, err := encodeTask(tasks.EvaluationTask{RequestID: "req-1", ConversationID: "conv-1", CompletionText: "Fit: Monitor"}, now)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", string(msg.Key))

	var decoded tasks.EvaluationTask
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, int64(1700000000000), decoded.EnqueuedAt)
	assert.Equal(t, "Fit: Monitor", decoded.CompletionText)

	// 已有的入队时间不会被覆盖
	msg, err = encodeTask(tasks.EvaluationTask{ConversationID: "conv-1", EnqueuedAt: 42}, now)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, int64(42), decoded.EnqueuedAt)
}

func TestHandleRetriesBeforeCommit(t *testing.T) {
	p := &flakyProcessor{failures: 2}
	c := newTestConsumer(p)

	assert.True(t, c.handle(context.Background(), taskMessage(t)))
	assert.Equal(t, 3, p.calls)
}

func TestHandleGivesUpAfterMaxAttempts(t *testing.T) {
	p := &flakyProcessor{failures: 10}
	c := newTestConsumer(p)

	assert.True(t, c.handle(context.Background(), taskMessage(t)))
	assert.Equal(t, maxAttempts, p.calls)
}

func TestHandleCommitsMalformedMessage(t *testing.T) {
	p := &flakyProcessor{}
	c := newTestConsumer(p)

	assert.True(t, c.handle(context.Background(), kafka.Message{Value: []byte("{not json")}))
	assert.Zero(t, p.calls)
}

func TestHandleStopsWithoutCommitOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &flakyProcessor{failures: 10, cancel: cancel}
	c := newTestConsumer(p)

	assert.False(t, c.handle(ctx, taskMessage(t)))
	assert.Equal(t, 1, p.calls)
}
