// Package kafka 提供了评估任务在 Kafka 上的投递与消费。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fundraising-school-go/internal/config"
	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// 同一任务最多处理的次数，达到后提交 offset 放弃
const maxAttempts = 3

// TaskProcessor 是评估任务的处理者，消费者与具体的 pipeline 实现解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.EvaluationTask) error
}

// Producer 负责把评估任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Dispatch 发送一个评估任务，以 conversationId 为 key 保证同一对话的任务有序。
func (p *Producer) Dispatch(ctx context.Context, task tasks.EvaluationTask) error {
	msg, err := encodeTask(task, time.Now())
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func encodeTask(task tasks.EvaluationTask, now time.Time) (kafka.Message, error) {
	if task.EnqueuedAt == 0 {
		task.EnqueuedAt = now.UnixMilli()
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(task.ConversationID), Value: taskBytes}, nil
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 从 Kafka 拉取评估任务并同步处理。
type Consumer struct {
	cfg        config.KafkaConfig
	processor  TaskProcessor
	rdb        *redis.Client
	retryDelay time.Duration
}

// NewConsumer 创建消费者。rdb 为 nil 时失败次数只在本进程内计数。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) *Consumer {
	return &Consumer{cfg: cfg, processor: processor, rdb: rdb, retryDelay: time.Second}
}

// Run 启动消费循环，直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{c.cfg.Brokers},
		Topic:    c.cfg.Topic,
		GroupID:  c.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者收到停止信号")
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}

		// FetchMessage 在同一会话内只会向前推进，重试必须在提交前完成。
		// 只有停机打断时才不提交，重启后从上次提交的位置重新消费。
		if !c.handle(ctx, m) {
			log.Info("Kafka 消费者收到停止信号，当前消息未提交")
			return nil
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handle 处理一条消息，失败时原地重试，累计 maxAttempts 次后放弃。
// 返回 false 表示被 ctx 打断，offset 不应提交。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	var task tasks.EvaluationTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return true
	}

	log.Infof("开始处理评估任务: conversation=%s, request=%s", task.ConversationID, task.RequestID)
	local := 0
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("评估任务处理成功: conversation=%s", task.ConversationID)
			c.clearAttempts(ctx, task)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		local++
		attempts := c.recordFailure(ctx, task, local)
		log.Errorf("处理评估任务失败(%d/%d): conversation=%s, Error: %v", attempts, maxAttempts, task.ConversationID, err)
		if attempts >= maxAttempts {
			log.Errorf("评估任务多次失败，放弃重试: conversation=%s", task.ConversationID)
			c.clearAttempts(ctx, task)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
	}
}

func attemptsKey(task tasks.EvaluationTask) string {
	return fmt.Sprintf("kafka:attempts:evaluation:%s", task.Key())
}

// recordFailure 返回该任务累计的失败次数。Redis 里的计数能跨越进程重启，
// 不可用时退回到本进程内的计数。
func (c *Consumer) recordFailure(ctx context.Context, task tasks.EvaluationTask, local int) int {
	if c.rdb == nil {
		return local
	}
	key := attemptsKey(task)
	attempts, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Warnf("记录评估任务失败次数出错: %v", err)
		return local
	}
	_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
	if int(attempts) < local {
		return local
	}
	return int(attempts)
}

func (c *Consumer) clearAttempts(ctx context.Context, task tasks.EvaluationTask) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, attemptsKey(task)).Err()
}
