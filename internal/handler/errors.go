// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"fundraising-school-go/internal/evaluation"
	"fundraising-school-go/internal/service"
	"fundraising-school-go/pkg/llm"
	"fundraising-school-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const unexpectedErrorMessage = "Unexpected server error."

// ok 写出统一的成功响应。
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": "success",
		"data":    data,
	})
}

// badRequest 写出参数校验失败的响应。
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": "invalid_request"})
}

// respondError 把业务错误映射为 HTTP 状态码和错误体，未识别的错误记录日志后返回 500。
func respondError(c *gin.Context, err error) {
	var (
		rateErr *service.RateLimitError
		reqErr  *service.RequestError
		evalErr *evaluation.EvaluationError
	)
	switch {
	case errors.As(err, &rateErr):
		c.Header("Retry-After", strconv.Itoa(rateErr.RetryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":  rateErr.Message,
			"code":   rateErr.Code,
			"bucket": rateErr.Bucket,
		})
	case errors.As(err, &reqErr):
		body := gin.H{"error": reqErr.Message}
		if reqErr.Code != "" {
			body["code"] = reqErr.Code
		}
		c.JSON(reqErr.Status, body)
	case errors.As(err, &evalErr):
		log.Warnw("评估失败", "error", evalErr.Error(), "path", c.Request.URL.Path)
		c.JSON(http.StatusBadGateway, gin.H{"error": evalErr.Message, "code": "evaluation_failed"})
	default:
		if pe, isProvider := llm.AsProviderError(err); isProvider {
			log.Warnw("上游模型调用失败", "status", pe.Status, "attempts", pe.Attempts, "error", pe.Message)
			c.JSON(http.StatusBadGateway, gin.H{"error": pe.Message, "providerStatus": pe.Status})
			return
		}
		log.Errorw("请求处理失败", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": unexpectedErrorMessage})
	}
}
