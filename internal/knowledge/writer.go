package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

// 默认批大小：文本库受SQL变量数限制，向量库受gRPC消息大小限制
const (
	DefaultTextBatchSize   = 1000
	DefaultVectorBatchSize = 5000
	DefaultPartitions      = 128
)

// WriterOptions 双库写入参数
type WriterOptions struct {
	TextBatchSize   int
	VectorBatchSize int
	Partitions      int
	Metric          Metric
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.TextBatchSize <= 0 {
		o.TextBatchSize = DefaultTextBatchSize
	}
	if o.VectorBatchSize <= 0 {
		o.VectorBatchSize = DefaultVectorBatchSize
	}
	if o.Partitions <= 0 {
		o.Partitions = DefaultPartitions
	}
	if o.Metric == "" {
		o.Metric = MetricL2
	}
	return o
}

// WriteResult 一次全量重建的结果
type WriteResult struct {
	RunID         string        `json:"run_id"`
	Records       int           `json:"records"`
	TextBatches   int           `json:"text_batches"`
	VectorBatches int           `json:"vector_batches"`
	TextCount     int64         `json:"text_count"`
	VectorCount   int64         `json:"vector_count"`
	Duration      time.Duration `json:"duration"`
}

// DualStoreWriter 将切片分批写入文本库与向量库
type DualStoreWriter struct {
	text     TextStore
	vectors  VectorIndex
	opts     WriterOptions
	reporter Reporter
	logger   *zap.Logger
}

// NewDualStoreWriter 创建写入器
func NewDualStoreWriter(text TextStore, vectors VectorIndex, opts WriterOptions, reporter Reporter, logger *zap.Logger) *DualStoreWriter {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DualStoreWriter{
		text:     text,
		vectors:  vectors,
		opts:     opts.withDefaults(),
		reporter: reporter,
		logger:   logger,
	}
}

// Options 返回生效的写入参数
func (w *DualStoreWriter) Options() WriterOptions {
	return w.opts
}

// Batches 计算 n 条记录按 size 分批的批次数
func Batches(n, size int) int {
	if n <= 0 {
		return 0
	}
	if size <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// FullReindex 清空两个库后写入全部切片，完成后建索引、加载并校验数量。
// 任一批写入或刷新失败都会中止整个运行，不做自动修复。
func (w *DualStoreWriter) FullReindex(ctx context.Context, chunks []Chunk, dimension int) (*WriteResult, error) {
	start := time.Now()
	result := &WriteResult{
		RunID:         uuid.NewString(),
		Records:       len(chunks),
		TextBatches:   Batches(len(chunks), w.opts.TextBatchSize),
		VectorBatches: Batches(len(chunks), w.opts.VectorBatchSize),
	}
	logger := w.logger.With(zap.String("run_id", result.RunID))

	fail := func(err error) (*WriteResult, error) {
		w.emit(ctx, Event{Type: EventRunFailed, RunID: result.RunID, Total: len(chunks), Error: err.Error(), Duration: time.Since(start)})
		return nil, err
	}

	if dimension <= 0 {
		return fail(apperrors.NewDimensionError(1, dimension))
	}
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fail(apperrors.NewInvalidInputError("id", fmt.Sprintf("chunk %d has no id", chunk.Sequence)))
		}
	}

	w.emit(ctx, Event{Type: EventRunStarted, RunID: result.RunID, Total: len(chunks)})
	logger.Info("full reindex started",
		zap.Int("records", len(chunks)),
		zap.Int("text_batches", result.TextBatches),
		zap.Int("vector_batches", result.VectorBatches),
	)

	if err := w.text.Reset(ctx); err != nil {
		return fail(apperrors.NewStoreWriteError(StoreText, 0, fmt.Errorf("reset: %w", err)))
	}
	if err := w.vectors.Create(ctx, CollectionSpec{Dimension: dimension, Metric: w.opts.Metric}); err != nil {
		return fail(apperrors.NewStoreWriteError(StoreVector, 0, fmt.Errorf("create collection: %w", err)))
	}

	// 两个库互相独立，各自顺序处理批次
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.writeBatches(gctx, result.RunID, StoreText, chunks, w.opts.TextBatchSize, func(batch []Chunk) error {
			return w.text.UpsertBatch(gctx, TextRecords(batch))
		})
	})
	g.Go(func() error {
		return w.writeBatches(gctx, result.RunID, StoreVector, chunks, w.opts.VectorBatchSize, func(batch []Chunk) error {
			if err := w.vectors.InsertBatch(gctx, batch); err != nil {
				return fmt.Errorf("insert: %w", err)
			}
			if err := w.vectors.Flush(gctx); err != nil {
				return fmt.Errorf("flush: %w", err)
			}
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		logger.Error("full reindex aborted", zap.Error(err))
		return fail(err)
	}

	if err := w.vectors.Finalize(ctx, w.opts.Partitions); err != nil {
		return fail(apperrors.NewStoreWriteError(StoreVector, 0, fmt.Errorf("build index: %w", err)))
	}
	if err := w.vectors.Load(ctx); err != nil {
		return fail(apperrors.NewStoreWriteError(StoreVector, 0, fmt.Errorf("load: %w", err)))
	}
	w.emit(ctx, Event{Type: EventFinalized, RunID: result.RunID, Store: StoreVector, Total: len(chunks)})

	var err error
	if result.TextCount, err = w.text.Count(ctx); err != nil {
		return fail(apperrors.NewStoreWriteError(StoreText, 0, fmt.Errorf("count: %w", err)))
	}
	if result.VectorCount, err = w.vectors.Count(ctx); err != nil {
		return fail(apperrors.NewStoreWriteError(StoreVector, 0, fmt.Errorf("count: %w", err)))
	}
	if result.TextCount != int64(len(chunks)) {
		return fail(apperrors.NewStoreWriteError(StoreText, 0,
			fmt.Errorf("row count %d does not match %d chunks", result.TextCount, len(chunks))))
	}
	if result.VectorCount != int64(len(chunks)) {
		return fail(apperrors.NewStoreWriteError(StoreVector, 0,
			fmt.Errorf("entry count %d does not match %d chunks", result.VectorCount, len(chunks))))
	}

	result.Duration = time.Since(start)
	w.emit(ctx, Event{Type: EventRunFinished, RunID: result.RunID, Total: len(chunks), Duration: result.Duration})
	logger.Info("full reindex finished",
		zap.Int64("text_rows", result.TextCount),
		zap.Int64("vector_entries", result.VectorCount),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// writeBatches 逐批写入，每批提交后才继续下一批
func (w *DualStoreWriter) writeBatches(ctx context.Context, runID, store string, chunks []Chunk, size int, write func([]Chunk) error) error {
	total := Batches(len(chunks), size)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return apperrors.NewStoreWriteError(store, i+1, err)
		}
		batch := chunks[i*size : min((i+1)*size, len(chunks))]
		started := time.Now()
		if err := write(batch); err != nil {
			w.emit(ctx, Event{
				Type: EventBatchFailed, RunID: runID, Store: store,
				Batch: i + 1, TotalBatches: total, Records: len(batch), Error: err.Error(),
			})
			return apperrors.NewStoreWriteError(store, i+1, err)
		}
		w.emit(ctx, Event{
			Type: EventBatchCommitted, RunID: runID, Store: store,
			Batch: i + 1, TotalBatches: total, Records: len(batch), Duration: time.Since(started),
		})
	}
	return nil
}

func (w *DualStoreWriter) emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	w.reporter.Report(ctx, event)
}
