// Package service 包含了应用的业务逻辑层。
package service

import (
	"fmt"
	"net/http"
)

// RequestError 是可以直接映射为 HTTP 响应的业务错误。
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// NewRequestError 创建一个 RequestError。
func NewRequestError(status int, code, message string) *RequestError {
	return &RequestError{Status: status, Code: code, Message: message}
}

// RateLimitError 表示某个限流桶已满。
type RateLimitError struct {
	Bucket     string
	Code       string
	Message    string
	RetryAfter int // 秒
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit %s exceeded", e.Bucket)
}

// 可以用 errors.Is 判断的业务错误
var (
	ErrUnauthorized              = NewRequestError(http.StatusUnauthorized, "unauthorized", "Unauthorized")
	ErrForbidden                 = NewRequestError(http.StatusForbidden, "forbidden", "Forbidden")
	ErrSuperAdminOnly            = NewRequestError(http.StatusForbidden, "forbidden", "Only the super admin can manage admins.")
	ErrConversationNotFound      = NewRequestError(http.StatusNotFound, "not_found", "Conversation not found.")
	ErrAgentMismatch             = NewRequestError(http.StatusBadRequest, "agent_mismatch", "This conversation belongs to a different agent.")
	ErrOutputNotFound            = NewRequestError(http.StatusNotFound, "not_found", "Output not found.")
	ErrOutputConversationMissing = NewRequestError(http.StatusBadRequest, "conversation_missing", "Conversation missing for this output.")
	ErrPromptFieldsRequired      = NewRequestError(http.StatusBadRequest, "invalid_request", "Version and content are required.")
	ErrPromptDuplicate           = NewRequestError(http.StatusConflict, "conflict", "A prompt with that version already exists.")
	ErrAdminEmailInvalid         = NewRequestError(http.StatusBadRequest, "invalid_request", "A valid email is required.")
	ErrAdminRoleInvalid          = NewRequestError(http.StatusBadRequest, "invalid_request", "Role must be admin or superadmin.")
	ErrAdminDuplicate            = NewRequestError(http.StatusConflict, "conflict", "That admin already exists.")
	ErrArchiveDisabled           = NewRequestError(http.StatusServiceUnavailable, "archive_disabled", "Export archive is not configured.")
)
