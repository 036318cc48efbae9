// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chat          ChatConfig          `mapstructure:"chat"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	PromptCache   PromptCacheConfig   `mapstructure:"prompt_cache"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 取值 mysql | postgres | sqlite
	Driver      string      `mapstructure:"driver"`
	DSN         string      `mapstructure:"dsn"`
	AutoMigrate bool        `mapstructure:"auto_migrate"`
	Redis       RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空表示不启用。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储外部认证服务签发的 access token 的校验参数。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	Issuer                 string `mapstructure:"issuer"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey          string              `mapstructure:"api_key"`
	BaseURL         string              `mapstructure:"base_url"`
	Model           string              `mapstructure:"model"`
	EvaluationModel string              `mapstructure:"evaluation_model"`
	Timeout         time.Duration       `mapstructure:"timeout"`
	MaxAttempts     int                 `mapstructure:"max_attempts"`
	Generation      LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	StreamTemperature   float32 `mapstructure:"stream_temperature"`
	StreamMaxTokens     int     `mapstructure:"stream_max_tokens"`
	CompleteTemperature float32 `mapstructure:"complete_temperature"`
}

// ChatConfig 存储对话接口的业务参数。
type ChatConfig struct {
	DefaultAgentSlug     string `mapstructure:"default_agent_slug"`
	DefaultPromptVersion string `mapstructure:"default_prompt_version"`
	MaxContentLength     int    `mapstructure:"max_content_length"`
	SuperAdminEmail      string `mapstructure:"super_admin_email"`
}

// RateLimitConfig 存储三个限流桶的阈值与窗口。
type RateLimitConfig struct {
	UserHourlyLimit   int           `mapstructure:"user_hourly_limit"`
	UserHourlyWindow  time.Duration `mapstructure:"user_hourly_window"`
	UserBurstLimit    int           `mapstructure:"user_burst_limit"`
	UserBurstWindow   time.Duration `mapstructure:"user_burst_window"`
	GlobalHourlyLimit int           `mapstructure:"global_hourly_limit"`
	GlobalWindow      time.Duration `mapstructure:"global_window"`
}

// PromptCacheConfig 控制 Prompt 在 Redis 中的缓存时长。
type PromptCacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// KafkaConfig 存储 Kafka 相关的配置。Enabled=false 时评估任务在进程内执行。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MetricsConfig 控制 /metrics 端点。
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults 注册所有可调参数的默认值，配置文件和环境变量会覆盖它们。
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 1)

	// 密钥类配置没有有意义的默认值，注册空值是为了让 AutomaticEnv 在 Unmarshal 时生效
	v.SetDefault("database.dsn", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("chat.super_admin_email", "")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.evaluation_model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.generation.stream_temperature", 0.7)
	v.SetDefault("llm.generation.stream_max_tokens", 800)
	v.SetDefault("llm.generation.complete_temperature", 0.3)

	v.SetDefault("chat.default_agent_slug", "sales-coach")
	v.SetDefault("chat.default_prompt_version", "v1")
	v.SetDefault("chat.max_content_length", 4000)

	v.SetDefault("rate_limit.user_hourly_limit", 100)
	v.SetDefault("rate_limit.user_hourly_window", time.Hour)
	v.SetDefault("rate_limit.user_burst_limit", 25)
	v.SetDefault("rate_limit.user_burst_window", 2*time.Minute)
	v.SetDefault("rate_limit.global_hourly_limit", 1250)
	v.SetDefault("rate_limit.global_window", time.Hour)

	v.SetDefault("prompt_cache.ttl", time.Minute)

	v.SetDefault("kafka.topic", "friendly-vc-evaluations")
	v.SetDefault("kafka.group_id", "fundraising-school-evaluator")
	v.SetDefault("minio.bucket_name", "agent-output-exports")
	v.SetDefault("minio.url_expiry", 24*time.Hour)
	v.SetDefault("elasticsearch.index_name", "agent_outputs")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 从指定路径读取 YAML 并叠加 FVC_ 前缀的环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("FVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
