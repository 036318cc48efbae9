// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/pkg/log"
	"fundraising-school-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 上下文中的键
const (
	ContextUser   = "user"
	ContextClaims = "claims"
)

// bearerToken 从 Authorization 请求头中取出 token，格式不对时返回空串。
func bearerToken(c *gin.Context) string {
	const bearerPrefix = "Bearer "
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}

// AuthMiddleware 校验认证服务签发的 access token，并把 *model.AuthUser 存入上下文。
// required=false 时缺少或无效的 token 都按匿名用户处理。
func AuthMiddleware(jwtManager *token.JWTManager, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "unauthorized"})
				return
			}
			c.Next()
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil || claims.UserID() == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "unauthorized"})
				return
			}
			log.Debugf("可选认证的 token 无效，按匿名用户处理: %v", err)
			c.Next()
			return
		}

		c.Set(ContextUser, &model.AuthUser{ID: claims.UserID(), Email: claims.Email})
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// CurrentUser 返回当前登录用户，匿名请求返回 nil。
func CurrentUser(c *gin.Context) *model.AuthUser {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*model.AuthUser)
	return user
}
