package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aihub/ragindex/internal/config"
	"github.com/aihub/ragindex/internal/database"
	"github.com/aihub/ragindex/internal/kafka"
	"github.com/aihub/ragindex/internal/knowledge"
	"github.com/aihub/ragindex/internal/metrics"
	"github.com/aihub/ragindex/internal/services"
	"github.com/aihub/ragindex/internal/storage"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	providers := []interface{}{
		providePostgres,
		provideRedis,
		provideMetrics,
		provideReporter,
		provideEmbedder,
		provideGenerator,
		provideTextStore,
		provideVectorIndex,
		provideWriter,
		provideIngestor,
		provideRetriever,
		provideSourceLoader,
		provideKnowledgeService,
		provideHealthChecker,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

// PostgresFactory 首次调用时才建立数据库连接
type PostgresFactory func() (*gorm.DB, error)

// RedisFactory 首次调用时才建立缓存连接
type RedisFactory func() (*redis.Client, error)

func providePostgres(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector, closer *Closer) PostgresFactory {
	return sync.OnceValues(func() (*gorm.DB, error) {
		db, err := database.OpenPostgres(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		closer.Add(func() error { return database.Close(db) })
		if sqlDB, err := db.DB(); err == nil {
			if err := collector.RegisterDB(sqlDB, "postgres"); err != nil {
				logger.Warn("failed to register db stats collector", zap.Error(err))
			}
		}
		return db, nil
	})
}

func provideRedis(cfg *config.Config, closer *Closer) RedisFactory {
	return sync.OnceValues(func() (*redis.Client, error) {
		client, err := database.OpenRedis(context.Background(), cfg.Redis)
		if err != nil {
			return nil, err
		}
		closer.Add(client.Close)
		return client, nil
	})
}

func provideMetrics(cfg *config.Config) *metrics.Collector {
	return metrics.NewCollector(cfg.Prometheus.Namespace)
}

func provideReporter(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector, closer *Closer) knowledge.Reporter {
	reporters := knowledge.MultiReporter{knowledge.NewLogReporter(logger)}
	if cfg.Prometheus.Enabled {
		reporters = append(reporters, collector)
	}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			// Kafka 不可用不影响入库
			logger.Warn("Kafka event reporting disabled", zap.Error(err))
		} else {
			closer.Add(producer.Close)
			reporters = append(reporters, producer)
		}
	}
	return reporters
}

func provideEmbedder(cfg *config.Config) knowledge.Embedder {
	if cfg.Knowledge.Embedder == "hash" {
		return knowledge.NewHashEmbedder(cfg.Knowledge.VectorStore.Dimension)
	}
	return knowledge.NewOpenAIEmbedder(knowledge.OpenAIEmbedderOptions{
		APIKey:     cfg.AI.APIKey,
		BaseURL:    cfg.AI.BaseURL,
		Model:      cfg.AI.EmbeddingModel,
		Dimensions: cfg.Knowledge.VectorStore.Dimension,
	})
}

func provideGenerator(cfg *config.Config, logger *zap.Logger) knowledge.Generator {
	return knowledge.NewOpenAIGenerator(knowledge.GeneratorOptions{
		APIKey:       cfg.AI.APIKey,
		BaseURL:      cfg.AI.BaseURL,
		Model:        cfg.AI.ChatModel,
		MaxTokens:    cfg.AI.MaxTokens,
		Temperature:  cfg.AI.Temperature,
		Instructions: cfg.AI.SystemPrompt,
	}, logger)
}

// textStoreParams 数据库与缓存只在对应提供者启用时才连接
type textStoreParams struct {
	dig.In

	Config   *config.Config
	Logger   *zap.Logger
	Closer   *Closer
	Postgres PostgresFactory
	Redis    RedisFactory
}

func provideTextStore(p textStoreParams) (knowledge.TextStore, error) {
	cfg, logger, closer := p.Config, p.Logger, p.Closer
	storeCfg := cfg.Knowledge.TextStore

	var store knowledge.TextStore
	switch storeCfg.Provider {
	case "postgres":
		db, err := p.Postgres()
		if err != nil {
			return nil, err
		}
		store, err = knowledge.NewDatabaseTextStore(db, storeCfg.Table)
		if err != nil {
			return nil, err
		}
	case "sqlite":
		sqliteStore, err := knowledge.NewSQLiteTextStore(cfg.Database.SQLitePath, storeCfg.Table)
		if err != nil {
			return nil, err
		}
		closer.Add(sqliteStore.Close)
		store = sqliteStore
	case "elasticsearch":
		esCfg := storeCfg.Elasticsearch
		esStore, err := knowledge.NewElasticsearchTextStore(knowledge.ElasticsearchOptions{
			Addresses: esCfg.Addresses,
			Username:  esCfg.Username,
			Password:  esCfg.Password,
			APIKey:    esCfg.APIKey,
			Index:     esCfg.Index,
		})
		if err != nil {
			return nil, err
		}
		store = esStore
	case "memory":
		store = knowledge.NewMemoryTextStore()
	default:
		return nil, fmt.Errorf("unknown text store provider %q", storeCfg.Provider)
	}

	if storeCfg.Cache && cfg.Redis.Enabled {
		client, err := p.Redis()
		if err != nil {
			logger.Warn("text cache disabled, redis unavailable", zap.Error(err))
			return store, nil
		}
		store = knowledge.NewCachedTextStore(store, client, storeCfg.Table, cfg.Redis.TTL, logger)
	}
	logger.Info("text store ready", zap.String("provider", storeCfg.Provider), zap.Bool("cache", storeCfg.Cache && cfg.Redis.Enabled))
	return store, nil
}

func provideVectorIndex(cfg *config.Config, logger *zap.Logger, closer *Closer) (knowledge.VectorIndex, error) {
	vsCfg := cfg.Knowledge.VectorStore
	switch vsCfg.Provider {
	case "milvus":
		index, err := knowledge.NewMilvusVectorIndex(context.Background(), knowledge.MilvusOptions{
			Address:    vsCfg.Milvus.Address,
			Username:   vsCfg.Milvus.Username,
			Password:   vsCfg.Milvus.Password,
			Database:   vsCfg.Milvus.Database,
			Collection: vsCfg.Collection,
			Dimension:  vsCfg.Dimension,
			Metric:     knowledge.ParseMetric(vsCfg.Metric),
			UseTLS:     vsCfg.Milvus.TLS,
			Timeout:    15 * time.Second,
		}, logger)
		if err != nil {
			return nil, err
		}
		closer.Add(index.Close)
		return index, nil
	case "memory":
		return knowledge.NewMemoryVectorIndex(vsCfg.Collection), nil
	default:
		return nil, fmt.Errorf("unknown vector store provider %q", vsCfg.Provider)
	}
}

func provideWriter(cfg *config.Config, text knowledge.TextStore, vectors knowledge.VectorIndex, reporter knowledge.Reporter, logger *zap.Logger) *knowledge.DualStoreWriter {
	return knowledge.NewDualStoreWriter(text, vectors, knowledge.WriterOptions{
		TextBatchSize:   cfg.Knowledge.Ingest.TextBatchSize,
		VectorBatchSize: cfg.Knowledge.Ingest.VectorBatchSize,
		Partitions:      cfg.Knowledge.VectorStore.NList,
		Metric:          knowledge.ParseMetric(cfg.Knowledge.VectorStore.Metric),
	}, reporter, logger)
}

func provideIngestor(cfg *config.Config, embedder knowledge.Embedder, writer *knowledge.DualStoreWriter, logger *zap.Logger) *knowledge.Ingestor {
	return knowledge.NewIngestor(embedder, writer, knowledge.IngestOptions{
		EmbedBatchSize: cfg.Knowledge.Ingest.EmbedBatchSize,
		MaxParallel:    cfg.Knowledge.Ingest.MaxParallel,
	}, logger)
}

func provideRetriever(cfg *config.Config, embedder knowledge.Embedder, vectors knowledge.VectorIndex, text knowledge.TextStore, logger *zap.Logger) *knowledge.Retriever {
	return knowledge.NewRetriever(embedder, vectors, text, knowledge.RetrieverOptions{
		TopK:        cfg.Knowledge.Query.TopK,
		SearchWidth: cfg.Knowledge.VectorStore.NProbe,
	}, logger)
}

func provideSourceLoader(cfg *config.Config) (*storage.SourceLoader, error) {
	return storage.NewSourceLoader(cfg.Storage)
}

func provideKnowledgeService(
	loader *storage.SourceLoader,
	ingestor *knowledge.Ingestor,
	retriever *knowledge.Retriever,
	generator knowledge.Generator,
	collector *metrics.Collector,
	logger *zap.Logger,
) *services.KnowledgeService {
	return services.NewKnowledgeService(loader, ingestor, retriever, generator, collector, logger)
}

func provideHealthChecker(text knowledge.TextStore, vectors knowledge.VectorIndex, embedder knowledge.Embedder, logger *zap.Logger) *database.HealthChecker {
	checker := database.NewHealthChecker(logger)
	checker.Register("text_store", readyProbe("text store", text.Ready))
	checker.Register("vector_index", readyProbe("vector index", vectors.Ready))
	checker.Register("embedder", readyProbe("embedding provider", embedder.Ready))
	return checker
}

func readyProbe(name string, ready func() bool) database.Probe {
	return func(ctx context.Context) error {
		if !ready() {
			return fmt.Errorf("%s not ready", name)
		}
		return nil
	}
}
