package handler

import (
	"fmt"
	"net/http"
	"strings"

	"fundraising-school-go/internal/service"
	"fundraising-school-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AgentOutputHandler 处理评估结论的查询、导出、修改与重建。
type AgentOutputHandler struct {
	service service.AgentOutputService
}

// NewAgentOutputHandler 创建一个新的 AgentOutputHandler。
func NewAgentOutputHandler(service service.AgentOutputService) *AgentOutputHandler {
	return &AgentOutputHandler{service: service}
}

// RebuildRequest 是重建接口的请求体。
type RebuildRequest struct {
	PromptOverride string `json:"promptOverride"`
}

// ListOutputs 以 JSON 或 CSV 返回某个 agent 的评估结论。
func (h *AgentOutputHandler) ListOutputs(c *gin.Context) {
	agent := strings.ToLower(strings.TrimSpace(c.Query("agent")))

	if strings.EqualFold(c.Query("format"), "csv") {
		data, filename, err := h.service.ExportCSV(c.Request.Context(), agent)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
		return
	}

	outputs, err := h.service.List(c.Request.Context(), agent, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"outputs": outputs})
}

// ExportOutputs 把 CSV 归档到对象存储并返回带签名的下载链接。
func (h *AgentOutputHandler) ExportOutputs(c *gin.Context) {
	agent := strings.ToLower(strings.TrimSpace(c.Query("agent")))
	res, err := h.service.Archive(c.Request.Context(), agent)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// PatchOutput 手工修改结论字段，空白值会清空字段。
func (h *AgentOutputHandler) PatchOutput(c *gin.Context) {
	var patch service.OutputPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request body.")
		return
	}
	output, err := h.service.Patch(c.Request.Context(), c.Param("outputId"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"output": output})
}

// RebuildOutput 用完整对话重新跑一次评估。请求体可以为空。
func (h *AgentOutputHandler) RebuildOutput(c *gin.Context) {
	var req RebuildRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body.")
			return
		}
	}

	res, err := h.service.Rebuild(c.Request.Context(), c.Param("outputId"), strings.TrimSpace(req.PromptOverride))
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("评估结论已重建, outputId: %s", res.Output.ID)
	ok(c, http.StatusOK, res)
}
