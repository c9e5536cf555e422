package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

// IngestOptions 向量化并发参数
type IngestOptions struct {
	EmbedBatchSize int
	MaxParallel    int
	// IDGenerator 为空时使用随机UUID
	IDGenerator IDGenerator
}

// IngestResult 一次入库的结果
type IngestResult struct {
	*WriteResult
	Dimension int     `json:"dimension"`
	Chunks    []Chunk `json:"-"`
}

// Ingestor 入库入口：分句、分配ID、向量化、双库写入
type Ingestor struct {
	chunker  *SentenceChunker
	embedder Embedder
	writer   *DualStoreWriter
	opts     IngestOptions
	logger   *zap.Logger
}

// NewIngestor 创建入库流程
func NewIngestor(embedder Embedder, writer *DualStoreWriter, opts IngestOptions, logger *zap.Logger) *Ingestor {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 64
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		chunker:  NewSentenceChunker(),
		embedder: embedder,
		writer:   writer,
		opts:     opts,
		logger:   logger,
	}
}

// Ingest 对一篇原始文本执行全量重建
func (i *Ingestor) Ingest(ctx context.Context, text string) (*IngestResult, error) {
	chunks := i.chunker.Split(text)
	i.logger.Info("text chunked", zap.Int("chunks", len(chunks)))

	assigner := NewIdentityAssigner()
	if i.opts.IDGenerator != nil {
		assigner = NewIdentityAssignerWithGenerator(i.opts.IDGenerator)
	}
	if err := assigner.Assign(chunks); err != nil {
		return nil, err
	}

	if err := i.embed(ctx, chunks); err != nil {
		return nil, err
	}

	dimension, err := i.dimension(chunks)
	if err != nil {
		return nil, err
	}

	written, err := i.writer.FullReindex(ctx, chunks, dimension)
	if err != nil {
		return nil, err
	}
	i.logger.Info("total embeddings stored",
		zap.Int64("text_rows", written.TextCount),
		zap.Int64("vector_entries", written.VectorCount),
	)
	return &IngestResult{WriteResult: written, Dimension: dimension, Chunks: chunks}, nil
}

// embed 分批并发向量化，结果按下标回填
func (i *Ingestor) embed(ctx context.Context, chunks []Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.MaxParallel)

	size := i.opts.EmbedBatchSize
	for start := 0; start < len(chunks); start += size {
		batch := chunks[start:min(start+size, len(chunks))]
		g.Go(func() error {
			vectors, err := i.embedder.EmbedBatch(gctx, Texts(batch))
			if err != nil {
				if !apperrors.IsAppError(err) {
					err = apperrors.NewProviderError("embedding", err)
				}
				return err
			}
			if len(vectors) != len(batch) {
				return apperrors.NewProviderError("embedding",
					fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors)))
			}
			for j := range batch {
				batch[j].Vector = vectors[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		i.logger.Error("embedding failed", zap.Error(err))
		return err
	}
	return nil
}

// dimension 以模型声明的维度为准，并校验每个向量
func (i *Ingestor) dimension(chunks []Chunk) (int, error) {
	dim := i.embedder.Dimensions()
	if dim <= 0 && len(chunks) > 0 {
		dim = len(chunks[0].Vector)
	}
	if dim <= 0 {
		return 0, apperrors.NewDimensionError(1, dim)
	}
	for _, chunk := range chunks {
		if len(chunk.Vector) != dim {
			return 0, apperrors.NewDimensionError(dim, len(chunk.Vector))
		}
	}
	return dim, nil
}
