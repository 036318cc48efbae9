package handler

import (
	"net/http"

	"fundraising-school-go/internal/middleware"
	"fundraising-school-go/internal/service"
	"fundraising-school-go/pkg/metrics"
	"fundraising-school-go/pkg/token"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps 是注册路由所需的服务。
type RouterDeps struct {
	JWT            *token.JWTManager
	Chat           service.ChatService
	Conversations  service.ConversationService
	Prompts        service.PromptService
	Admins         service.AdminService
	Outputs        service.AgentOutputService
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	MetricsPath    string
	AllowedOrigins []string
}

// NewRouter 创建 gin 引擎并注册全部路由。
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}
	if len(d.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = d.AllowedOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		corsCfg.ExposeHeaders = []string{"Retry-After", "Content-Disposition"}
		r.Use(cors.New(corsCfg))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.MetricsHandler != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(d.MetricsHandler))
	}

	optionalAuth := middleware.AuthMiddleware(d.JWT, false)
	requiredAuth := middleware.AuthMiddleware(d.JWT, true)
	adminAuth := middleware.AdminAuthMiddleware(d.Admins)

	chatHandler := NewChatHandler(d.Chat, d.Metrics)
	conversationHandler := NewConversationHandler(d.Conversations)
	adminHandler := NewAdminHandler(d.Admins, d.Prompts)
	outputHandler := NewAgentOutputHandler(d.Outputs)

	apiV1 := r.Group("/api/v1")
	{
		fvc := apiV1.Group("/friendly-vc")
		{
			// 匿名用户也可以对话
			public := fvc.Group("")
			public.Use(optionalAuth)
			{
				public.POST("/messages", chatHandler.SendMessage)
				public.GET("/agents", conversationHandler.ListAgents)
				public.GET("/conversations/:conversationId", conversationHandler.GetConversation)
			}

			authed := fvc.Group("")
			authed.Use(requiredAuth)
			{
				authed.GET("/conversations", conversationHandler.ListConversations)
				authed.DELETE("/conversations/:conversationId", conversationHandler.DeleteConversation)
			}
		}

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(requiredAuth, adminAuth)
		{
			admin.GET("/prompts", adminHandler.ListPrompts)
			admin.POST("/prompts", adminHandler.CreatePrompt)
			admin.GET("/users", adminHandler.ListAdmins)
			admin.POST("/users", adminHandler.AddAdmin)
		}

		outputs := apiV1.Group("/agent-outputs")
		outputs.Use(requiredAuth, adminAuth)
		{
			outputs.GET("", outputHandler.ListOutputs)
			outputs.POST("/export", outputHandler.ExportOutputs)
			outputs.PATCH("/:outputId", outputHandler.PatchOutput)
			outputs.POST("/:outputId", outputHandler.RebuildOutput)
		}
	}

	return r
}

// DefaultMetricsHandler 返回默认 Registry 的 Prometheus 处理器。
func DefaultMetricsHandler() http.Handler {
	return promhttp.Handler()
}
