package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aihub/ragindex/internal/knowledge"
)

// Collector 入库与检索指标，使用独立的 Registry
type Collector struct {
	registry *prometheus.Registry

	runsCounter      *prometheus.CounterVec
	batchesCounter   *prometheus.CounterVec
	recordsCounter   *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	runDuration      prometheus.Histogram
	indexedGauge     prometheus.Gauge
	queriesCounter   *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	queryResultGauge prometheus.Gauge
}

// NewCollector 创建指标收集器
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "ragindex"
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		runsCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Total number of full reindex runs",
		}, []string{"status"}),
		batchesCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Total number of batches written per store",
		}, []string{"store", "status"}),
		recordsCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Total number of records committed per store",
		}, []string{"store"}),
		batchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_batch_duration_seconds",
			Help:      "Duration of batch writes including commit/flush",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_run_duration_seconds",
			Help:      "Duration of successful full reindex runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		indexedGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_chunks",
			Help:      "Number of chunks in the last completed index",
		}),
		queriesCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of retrieval queries",
		}, []string{"status"}),
		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of retrieval queries",
			Buckets:   prometheus.DefBuckets,
		}),
		queryResultGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "query_last_result_count",
			Help:      "Number of results returned by the last query",
		}),
	}
}

// Report 实现 knowledge.Reporter
func (c *Collector) Report(ctx context.Context, event knowledge.Event) {
	switch event.Type {
	case knowledge.EventBatchCommitted:
		c.batchesCounter.WithLabelValues(event.Store, "success").Inc()
		c.recordsCounter.WithLabelValues(event.Store).Add(float64(event.Records))
		c.batchDuration.WithLabelValues(event.Store).Observe(event.Duration.Seconds())
	case knowledge.EventBatchFailed:
		c.batchesCounter.WithLabelValues(event.Store, "error").Inc()
	case knowledge.EventRunFinished:
		c.runsCounter.WithLabelValues("success").Inc()
		c.runDuration.Observe(event.Duration.Seconds())
		c.indexedGauge.Set(float64(event.Total))
	case knowledge.EventRunFailed:
		c.runsCounter.WithLabelValues("error").Inc()
	}
}

// ObserveQuery 记录一次检索
func (c *Collector) ObserveQuery(duration time.Duration, results int, err error) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case results == 0:
		status = "empty"
	}
	c.queriesCounter.WithLabelValues(status).Inc()
	c.queryDuration.Observe(duration.Seconds())
	c.queryResultGauge.Set(float64(results))
}

// RegisterDB 采集数据库连接池状态
func (c *Collector) RegisterDB(db *sql.DB, name string) error {
	return c.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 暴露 /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
