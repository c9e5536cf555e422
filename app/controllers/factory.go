package controllers

import (
	"go.uber.org/dig"

	"github.com/aihub/ragindex/internal/database"
	"github.com/aihub/ragindex/internal/metrics"
	"github.com/aihub/ragindex/internal/services"
)

// Controllers 路由所需的全部控制器
type Controllers struct {
	Root      *RootController
	Knowledge *KnowledgeController
	Health    *HealthController
	Metrics   *MetricsController
}

// ControllerFactory 控制器工厂
type ControllerFactory struct {
	container *dig.Container
}

// NewControllerFactory 创建控制器工厂
func NewControllerFactory(container *dig.Container) *ControllerFactory {
	return &ControllerFactory{
		container: container,
	}
}

// Create 从容器取出依赖并创建控制器
func (f *ControllerFactory) Create() (*Controllers, error) {
	var ctrls *Controllers
	err := f.container.Invoke(func(
		svc *services.KnowledgeService,
		checker *database.HealthChecker,
		collector *metrics.Collector,
	) {
		ctrls = &Controllers{
			Root:      &RootController{},
			Knowledge: NewKnowledgeController(svc),
			Health:    &HealthController{Checker: checker},
			Metrics:   &MetricsController{Collector: collector},
		}
	})
	if err != nil {
		return nil, err
	}
	return ctrls, nil
}
