package handler

import (
	"net/http"
	"strings"

	"fundraising-school-go/internal/middleware"
	"fundraising-school-go/internal/service"
	"fundraising-school-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理后台 prompt 与管理员名单相关的 API 请求。
type AdminHandler struct {
	adminService  service.AdminService
	promptService service.PromptService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService, promptService service.PromptService) *AdminHandler {
	return &AdminHandler{
		adminService:  adminService,
		promptService: promptService,
	}
}

// CreatePromptRequest 定义了创建 prompt 版本的请求体。
type CreatePromptRequest struct {
	AgentSlug string `json:"agentSlug"`
	Version   string `json:"version"`
	Content   string `json:"content"`
}

// AddAdminRequest 定义了添加管理员的请求体。
type AddAdminRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ListPrompts 返回某个 agent 的全部 prompt 版本，未知 agent 回退到 sales-coach。
func (h *AdminHandler) ListPrompts(c *gin.Context) {
	agent := strings.ToLower(strings.TrimSpace(c.Query("agent")))
	view, err := h.promptService.ListForAdmin(c.Request.Context(), agent)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"prompts":       view.Prompts,
		"currentPrompt": view.CurrentPrompt,
		"agents":        view.Agents,
		"agentSlug":     view.AgentSlug,
		"isSuperAdmin":  middleware.IsSuperAdmin(c),
	})
}

// CreatePrompt 新增一个 prompt 版本，同一 agent 下版本号重复返回 409。
func (h *AdminHandler) CreatePrompt(c *gin.Context) {
	var req CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("CreatePrompt: 无效的请求体, error: %v", err)
		badRequest(c, "Invalid request body.")
		return
	}

	prompt, err := h.promptService.Create(c.Request.Context(), req.AgentSlug, req.Version, req.Content, middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("新 prompt 版本已创建, agent: %s, version: %s", prompt.AgentSlug, prompt.Version)
	ok(c, http.StatusCreated, gin.H{"prompt": prompt})
}

// ListAdmins 返回管理员名单。
func (h *AdminHandler) ListAdmins(c *gin.Context) {
	admins, err := h.adminService.ListAdmins(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"admins": admins, "isSuperAdmin": middleware.IsSuperAdmin(c)})
}

// AddAdmin 添加管理员，仅超级管理员可用。
func (h *AdminHandler) AddAdmin(c *gin.Context) {
	if !middleware.IsSuperAdmin(c) {
		respondError(c, service.ErrSuperAdminOnly)
		return
	}
	var req AddAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body.")
		return
	}

	admin, err := h.adminService.AddAdmin(c.Request.Context(), req.Email, req.Role, middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"admin": admin})
}
