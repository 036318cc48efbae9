package middleware

import (
	"errors"
	"net/http"

	"fundraising-school-go/internal/service"
	"fundraising-school-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 上下文中的键
const (
	ContextAdmin        = "admin"
	ContextIsSuperAdmin = "isSuperAdmin"
)

// AdminAuthMiddleware 检查当前用户是否在管理员白名单中。
// 此中间件必须在 AuthMiddleware 之后使用。
func AdminAuthMiddleware(adminService service.AdminService) gin.HandlerFunc {
	return func(c *gin.Context) {
		access, err := adminService.Authorize(c.Request.Context(), CurrentUser(c))
		if err != nil {
			var reqErr *service.RequestError
			if errors.As(err, &reqErr) {
				c.AbortWithStatusJSON(reqErr.Status, gin.H{"error": reqErr.Message, "code": reqErr.Code})
				return
			}
			log.Errorw("校验管理员权限失败", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Unexpected server error."})
			return
		}

		c.Set(ContextAdmin, access.Admin)
		c.Set(ContextIsSuperAdmin, access.IsSuperAdmin)
		c.Next()
	}
}

// IsSuperAdmin 读取 AdminAuthMiddleware 写入的超级管理员标记。
func IsSuperAdmin(c *gin.Context) bool {
	return c.GetBool(ContextIsSuperAdmin)
}
