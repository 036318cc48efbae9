package middleware

import (
	"time"

	"fundraising-school-go/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics 记录每个请求的次数与耗时，路由标签使用注册时的路径模板。
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
