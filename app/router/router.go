package router

import (
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aihub/ragindex/app/controllers"
	"github.com/aihub/ragindex/app/middleware"
)

// Register 在指定的路由表上注册查询接口
func Register(handlers *web.ControllerRegister, ctrls *controllers.Controllers, logger *zap.Logger) error {
	if err := handlers.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware()); err != nil {
		return err
	}
	if logger != nil {
		if err := handlers.InsertFilter("/*", web.BeforeRouter, middleware.RequestStart); err != nil {
			return err
		}
		if err := handlers.InsertFilter("/*", web.FinishRouter, middleware.AccessLog(logger), web.WithReturnOnOutput(false)); err != nil {
			return err
		}
	}

	handlers.Add("/", ctrls.Root, web.WithRouterMethods(ctrls.Root, "get:Index"))
	handlers.Add("/health", ctrls.Health, web.WithRouterMethods(ctrls.Health, "get:Health"))
	handlers.Add("/metrics", ctrls.Metrics, web.WithRouterMethods(ctrls.Metrics, "get:Metrics"))

	handlers.Add("/api/search", ctrls.Knowledge, web.WithRouterMethods(ctrls.Knowledge, "get:Search"))
	handlers.Add("/api/ask", ctrls.Knowledge, web.WithRouterMethods(ctrls.Knowledge, "post:Ask"))
	handlers.Add("/api/reindex", ctrls.Knowledge, web.WithRouterMethods(ctrls.Knowledge, "post:Reindex"))
	return nil
}

// Init 注册到全局 BeeApp
func Init(ctrls *controllers.Controllers, logger *zap.Logger) error {
	return Register(web.BeeApp.Handlers, ctrls, logger)
}
