package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.Logger

// New 按运行环境和日志级别构建Logger
func New(env, level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	// 开发环境使用更详细的日志
	if env == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, err
		}
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	return config.Build()
}

// Init 初始化全局Logger
func Init(env, level string) (*zap.Logger, error) {
	l, err := New(env, level)
	if err != nil {
		return nil, err
	}
	global = l
	zap.ReplaceGlobals(l)
	return l, nil
}

// Get 获取Logger实例
func Get() *zap.Logger {
	if global == nil {
		global, _ = zap.NewProduction()
	}
	return global
}

// Sync 同步日志缓冲区
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}

// Info 记录Info级别日志
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Error 记录Error级别日志
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// Warn 记录Warn级别日志
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Fatal 记录Fatal级别日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}
