package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinHTTPMiddleware 记录请求数与耗时，route 标签取路由模板（如 /posts/:id）
//
// skipRoutes 中的路由（通常是 /metrics 与 /healthz）不计入指标。
// httpMetrics 为 nil 时中间件直接放行。
func GinHTTPMiddleware(httpMetrics *HTTPServerMetrics, skipRoutes ...string) gin.HandlerFunc {
	if httpMetrics == nil {
		return func(c *gin.Context) { c.Next() }
	}

	skip := make(map[string]struct{}, len(skipRoutes))
	for _, r := range skipRoutes {
		skip[r] = struct{}{}
	}

	return func(c *gin.Context) {
		// 路由匹配先于中间件执行，此时 FullPath 已可用
		route := c.FullPath()
		if _, ok := skip[route]; ok && route != "" {
			c.Next()
			return
		}
		if route == "" {
			route = UnknownRoute
		}

		start := time.Now()
		c.Next()
		httpMetrics.Observe(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
