package main

import (
	"context"
	"flag"
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aihub/ragindex/app/bootstrap"
	"github.com/aihub/ragindex/app/controllers"
	"github.com/aihub/ragindex/app/router"
	"github.com/aihub/ragindex/internal/database"
	"github.com/aihub/ragindex/internal/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	app, err := bootstrap.Init(*configFile)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	ctrls, err := controllers.NewControllerFactory(app.Container).Create()
	if err != nil {
		logger.Fatal("failed to build controllers", zap.Error(err))
	}
	if err := router.Init(ctrls, app.Logger); err != nil {
		logger.Fatal("failed to register routes", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Invoke(func(checker *database.HealthChecker) {
		checker.Start(ctx)
	}); err != nil {
		logger.Warn("health monitoring disabled", zap.Error(err))
	}

	port, err := strconv.Atoi(app.Config.Server.Port)
	if err != nil {
		logger.Fatal("invalid server port", zap.String("port", app.Config.Server.Port))
	}
	web.BConfig.AppName = "ragindex"
	web.BConfig.CopyRequestBody = true
	web.BConfig.Listen.HTTPPort = port

	logger.Info("🚀 Starting query service", zap.Int("port", port))
	web.Run()
}
