package database

import (
	"context"
	"time"

	"fundraising-school-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

const redisPingTimeout = 5 * time.Second

// RDB 为 nil 表示未启用 Redis，调用方需要自行判空。
var RDB *redis.Client

// InitRedis 在 addr 非空时建立 Redis 连接，连不上直接退出进程。
func InitRedis(addr, password string, db int) {
	if addr == "" {
		log.Info("未配置 Redis，Prompt 缓存与 Kafka 重试计数将被禁用")
		return
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis 连接失败", err)
	}
	RDB = client
	log.Infof("Redis 已连接: %s (db=%d)", addr, db)
}
