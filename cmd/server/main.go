// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fundraising-school-go/internal/config"
	"fundraising-school-go/internal/evaluation"
	"fundraising-school-go/internal/handler"
	"fundraising-school-go/internal/model"
	"fundraising-school-go/internal/pipeline"
	"fundraising-school-go/internal/repository"
	"fundraising-school-go/internal/service"
	"fundraising-school-go/pkg/database"
	"fundraising-school-go/pkg/es"
	"fundraising-school-go/pkg/kafka"
	"fundraising-school-go/pkg/llm"
	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/metrics"
	"fundraising-school-go/pkg/storage"
	"fundraising-school-go/pkg/tasks"
	"fundraising-school-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const backgroundTaskTimeout = 3 * time.Minute

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	if cfg.Database.AutoMigrate {
		if err := model.AutoMigrate(database.DB); err != nil {
			log.Fatal("数据库迁移失败", err)
		}
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 4. 可选组件：对象存储与全文索引，nil 接口表示未启用
	var archive service.ExportArchive
	if cfg.MinIO.Enabled {
		a, err := storage.InitMinIO(cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		archive = a
	}
	var index service.OutputIndex
	if cfg.Elasticsearch.Enabled {
		idx, err := es.InitES(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("Elasticsearch 初始化失败", err)
		}
		index = idx
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	runner := tasks.NewRunner(backgroundTaskTimeout, m)

	// 5. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	promptRepo := repository.NewCachedPromptRepository(repository.NewPromptRepository(database.DB), database.RDB, cfg.PromptCache.TTL)
	agentRepo := repository.NewAgentRepository(database.DB)
	outputRepo := repository.NewAgentOutputRepository(database.DB)
	eventRepo := repository.NewAiEventRepository(database.DB)
	adminRepo := repository.NewAdminUserRepository(database.DB)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpireHours)
	llmClient := llm.NewClient(cfg.LLM, llm.WithMetrics(m))
	evaluator := evaluation.NewEvaluator(llmClient, cfg.LLM.EvaluationModel)

	eventService := service.NewEventService(eventRepo)
	conversationService := service.NewConversationService(conversationRepo, messageRepo)
	promptService := service.NewPromptService(promptRepo, agentRepo, eventService, cfg.Chat.DefaultPromptVersion)
	adminService := service.NewAdminService(adminRepo, cfg.Chat.SuperAdminEmail)
	outputService := service.NewAgentOutputService(outputRepo, conversationService, evaluator, eventService, index, archive, m)
	limiter := service.NewRateLimiter(messageRepo, cfg.RateLimit, m)

	// 7. 评估管道：启用 Kafka 时走消息队列，否则在进程内执行
	processor := pipeline.NewProcessor(conversationService, outputService, eventService, evaluator, m)
	var dispatcher service.EvaluationDispatcher = pipeline.NewInlineDispatcher(runner, processor)
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka)
		dispatcher = producer
	}

	chatService := service.NewChatService(service.ChatDeps{
		Conversations: conversationService,
		Prompts:       promptService,
		Limiter:       limiter,
		Events:        eventService,
		LLM:           llmClient,
		Runner:        runner,
		Dispatcher:    dispatcher,
		ChatConfig:    cfg.Chat,
		LLMConfig:     cfg.LLM,
	})

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	deps := handler.RouterDeps{
		JWT:            jwtManager,
		Chat:           chatService,
		Conversations:  conversationService,
		Prompts:        promptService,
		Admins:         adminService,
		Outputs:        outputService,
		Metrics:        m,
		MetricsPath:    cfg.Metrics.Path,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Metrics.Enabled {
		deps.MetricsHandler = handler.DefaultMetricsHandler()
	}
	r := handler.NewRouter(deps)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	// 9. 启动 HTTP 服务器与 Kafka 消费者，收到信号后优雅停机
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
		return nil
	})
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, processor, database.RDB)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("接收到停机信号，正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP 服务器关闭失败: %v", err)
		}
		// 等待进行中的对话收尾与评估任务
		if err := runner.Shutdown(shutdownCtx); err != nil {
			log.Warnf("后台任务未在超时前完成: %v", err)
		}
		if producer != nil {
			if err := producer.Close(); err != nil {
				log.Errorf("关闭 Kafka 生产者失败: %v", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("服务异常退出", err)
	}
	log.Info("服务已优雅关闭")
}
