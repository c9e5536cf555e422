package middleware

import (
	"net/http"
	"slices"

	"github.com/beego/beego/v2/server/web/context"
)

// CORSMiddleware CORS中间件，allowedOrigins 为空时允许任意来源
func CORSMiddleware(allowedOrigins ...string) func(*context.Context) {
	return func(ctx *context.Context) {
		origin := ctx.Input.Header("Origin")
		if origin == "" {
			return
		}
		if len(allowedOrigins) > 0 && !slices.Contains(allowedOrigins, origin) {
			return
		}

		ctx.Output.Header("Access-Control-Allow-Origin", origin)
		ctx.Output.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Output.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin")
		ctx.Output.Header("Access-Control-Max-Age", "3600")

		// 处理OPTIONS预检请求
		if ctx.Input.Method() == http.MethodOptions {
			ctx.Output.SetStatus(http.StatusNoContent)
			_ = ctx.Output.Body([]byte(""))
		}
	}
}
