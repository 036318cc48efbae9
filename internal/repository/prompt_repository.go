package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// PromptRepository 定义了 system prompt 版本的持久化操作。
type PromptRepository interface {
	// Latest 返回某个 agent 最新创建的 prompt，没有时返回 ErrNotFound。
	Latest(ctx context.Context, agentSlug string) (*model.Prompt, error)
	ListByAgent(ctx context.Context, agentSlug string) ([]model.Prompt, error)
	// Create 写入新版本，(agent, version) 重复时返回 ErrDuplicate。
	Create(ctx context.Context, prompt *model.Prompt) error
}

type promptRepository struct {
	db *gorm.DB
}

// NewPromptRepository 创建一个新的 PromptRepository 实例。
func NewPromptRepository(db *gorm.DB) PromptRepository {
	return &promptRepository{db: db}
}

func (r *promptRepository) Latest(ctx context.Context, agentSlug string) (*model.Prompt, error) {
	var p model.Prompt
	err := r.db.WithContext(ctx).
		Where("agent_slug = ?", agentSlug).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *promptRepository) ListByAgent(ctx context.Context, agentSlug string) ([]model.Prompt, error) {
	var prompts []model.Prompt
	err := r.db.WithContext(ctx).
		Where("agent_slug = ?", agentSlug).
		Order("created_at DESC").
		Find(&prompts).Error
	return prompts, translate(err)
}

func (r *promptRepository) Create(ctx context.Context, prompt *model.Prompt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Prompt{}).
			Where("agent_slug = ? AND version = ?", prompt.AgentSlug, prompt.Version).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return translate(tx.Create(prompt).Error)
	})
}

// cachedPromptRepository 在 Redis 中缓存每个 agent 当前生效的 prompt。
type cachedPromptRepository struct {
	PromptRepository
	redisClient *redis.Client
	ttl         time.Duration
}

// NewCachedPromptRepository 用 Redis 包装 inner；redisClient 为 nil 时直接返回 inner。
func NewCachedPromptRepository(inner PromptRepository, redisClient *redis.Client, ttl time.Duration) PromptRepository {
	if redisClient == nil || ttl <= 0 {
		return inner
	}
	return &cachedPromptRepository{PromptRepository: inner, redisClient: redisClient, ttl: ttl}
}

func promptCacheKey(agentSlug string) string {
	return fmt.Sprintf("prompt:current:%s", agentSlug)
}

// Latest 先查 Redis，未命中再查数据库并回填。缓存异常只记录日志。
func (r *cachedPromptRepository) Latest(ctx context.Context, agentSlug string) (*model.Prompt, error) {
	key := promptCacheKey(agentSlug)
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == nil {
		var p model.Prompt
		if err := json.Unmarshal([]byte(jsonData), &p); err == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Warnf("读取 prompt 缓存失败: %v", err)
	}

	p, err := r.PromptRepository.Latest(ctx, agentSlug)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		if err := r.redisClient.Set(ctx, key, data, r.ttl).Err(); err != nil {
			log.Warnf("写入 prompt 缓存失败: %v", err)
		}
	}
	return p, nil
}

// Create 写入成功后让缓存失效。
func (r *cachedPromptRepository) Create(ctx context.Context, prompt *model.Prompt) error {
	if err := r.PromptRepository.Create(ctx, prompt); err != nil {
		return err
	}
	if err := r.redisClient.Del(ctx, promptCacheKey(prompt.AgentSlug)).Err(); err != nil {
		log.Warnf("清除 prompt 缓存失败: %v", err)
	}
	return nil
}
