package controllers

import (
	"net/http"

	"github.com/aihub/ragindex/internal/database"
	"github.com/aihub/ragindex/internal/metrics"
)

// RootController 根控制器
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{"message": "ragindex query API"})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
	Checker *database.HealthChecker
}

// Health 执行一轮检查，任一组件异常时返回503
func (c *HealthController) Health() {
	healthy := c.Checker.Check(c.Ctx.Request.Context())
	result := c.Checker.GetHealthResult()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, map[string]interface{}{
		"success": healthy,
		"data":    result,
	})
}

// MetricsController 指标控制器
type MetricsController struct {
	BaseController
	Collector *metrics.Collector
}

// Metrics 返回Prometheus格式的指标
func (c *MetricsController) Metrics() {
	c.Collector.Handler().ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
