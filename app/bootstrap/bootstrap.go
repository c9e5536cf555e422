package bootstrap

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/aihub/ragindex/internal/config"
	"github.com/aihub/ragindex/internal/di"
	"github.com/aihub/ragindex/internal/logger"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Container *dig.Container

	closer *di.Closer
}

// Init loads configuration, builds the logger and the dependency container.
// Stores are connected lazily on the first Invoke that needs them.
func Init(configFile string) (*App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	log, err := logger.Init(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		return nil, err
	}

	container, closer, err := di.New(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Info("application bootstrapped",
		zap.String("env", cfg.Server.Env),
		zap.String("text_store", cfg.Knowledge.TextStore.Provider),
		zap.String("vector_store", cfg.Knowledge.VectorStore.Provider),
		zap.String("embedder", cfg.Knowledge.Embedder),
	)
	if cfg.Knowledge.EphemeralVectors() {
		log.Warn("vector index is kept in memory and will not survive this process, set knowledge.vector_store.provider=milvus to query from another process",
			zap.String("text_store", cfg.Knowledge.TextStore.Provider))
	}
	return &App{Config: cfg, Logger: log, Container: container, closer: closer}, nil
}

// Invoke 从容器中取出依赖
func (a *App) Invoke(fn interface{}) error {
	return a.Container.Invoke(fn)
}

// Shutdown 释放所有连接并刷新日志
func (a *App) Shutdown() {
	if err := a.closer.Close(); err != nil {
		a.Logger.Warn("cleanup failed", zap.Error(err))
	}
	logger.Sync()
}
