package handler

import (
	"context"
	"errors"
	"net/http"

	"fundraising-school-go/internal/middleware"
	"fundraising-school-go/internal/service"
	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/metrics"
	"fundraising-school-go/pkg/sse"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责一轮对话的 SSE 接口。
type ChatHandler struct {
	chatService service.ChatService
	metrics     *metrics.Metrics
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, m *metrics.Metrics) *ChatHandler {
	return &ChatHandler{chatService: chatService, metrics: m}
}

// SendMessageRequest 是发送消息接口的请求体。
type SendMessageRequest struct {
	Content        string `json:"content"`
	AgentSlug      string `json:"agentSlug"`
	ConversationID string `json:"conversationId"`
	Email          string `json:"email"`
}

// SendMessage 处理一条用户消息。同步阶段的错误以 JSON 返回，
// 打开上游流之后响应切换为 text/event-stream：meta、token…、done 或 error。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SendMessage: 无效的请求体, error: %v", err)
		badRequest(c, "Invalid request body.")
		return
	}

	turn, err := h.chatService.StartTurn(c.Request.Context(), service.TurnInput{
		Content:        req.Content,
		AgentSlug:      req.AgentSlug,
		ConversationID: req.ConversationID,
		Email:          req.Email,
		User:           middleware.CurrentUser(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	defer turn.Stream.Close()

	done := h.metrics.StreamStarted()
	defer done()

	sse.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)

	err = sse.Relay(c.Request.Context(), c.Writer, c.Writer.Flush, turn.Meta, turn.Stream.Events(), turn.Stream.Close)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warnw("SSE 转发中断", "conversationId", turn.Meta.ConversationID, "requestId", turn.Stream.RequestID, "error", err)
	}
}
