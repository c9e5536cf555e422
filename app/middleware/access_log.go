package middleware

import (
	"time"

	"github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

const startTimeKey = "requestStartTime"

// RequestStart 记录请求开始时间，注册在 BeforeRouter
func RequestStart(ctx *context.Context) {
	ctx.Input.SetData(startTimeKey, time.Now())
}

// AccessLog 请求结束后输出访问日志，注册在 FinishRouter
func AccessLog(logger *zap.Logger) func(*context.Context) {
	return func(ctx *context.Context) {
		fields := []zap.Field{
			zap.String("method", ctx.Input.Method()),
			zap.String("path", ctx.Input.URL()),
			zap.Int("status", ctx.ResponseWriter.Status),
			zap.String("ip", ctx.Input.IP()),
		}
		if start, ok := ctx.Input.GetData(startTimeKey).(time.Time); ok {
			fields = append(fields, zap.Duration("duration", time.Since(start)))
		}
		logger.Info("request", fields...)
	}
}
