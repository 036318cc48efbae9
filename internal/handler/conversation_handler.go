package handler

import (
	"net/http"
	"strings"

	"fundraising-school-go/internal/middleware"
	"fundraising-school-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// ListAgents 返回内置 agent 目录及开场白。
func (h *ConversationHandler) ListAgents(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"agents": h.service.Agents()})
}

// GetConversation 返回对话及其全部消息。登录用户只能读取自己的对话。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, messages, err := h.service.GetWithMessages(
		c.Request.Context(),
		c.Param("conversationId"),
		middleware.CurrentUser(c).UserIDPtr(),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}

// ListConversations 处理获取用户对话列表的请求。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		respondError(c, service.ErrUnauthorized)
		return
	}

	agent := strings.ToLower(strings.TrimSpace(c.Query("agent")))
	conversations, err := h.service.List(c.Request.Context(), user.ID, agent)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"conversations": conversations})
}

// DeleteConversation 删除当前用户的一个对话。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		respondError(c, service.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("conversationId"), user.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
