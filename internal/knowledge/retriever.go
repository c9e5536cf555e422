package knowledge

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

const (
	DefaultTopK        = 40
	DefaultSearchWidth = 10
)

// Result 检索结果，按距离升序
type Result struct {
	ID       string  `json:"id"`
	Distance float32 `json:"distance"`
	Text     string  `json:"text"`
}

// RetrieverOptions 检索参数
type RetrieverOptions struct {
	TopK        int
	SearchWidth int
}

// Retriever 查询时先向量检索，再回文本库取原文
type Retriever struct {
	embedder Embedder
	vectors  VectorIndex
	text     TextStore
	opts     RetrieverOptions
	logger   *zap.Logger
}

// NewRetriever 创建检索协调器
func NewRetriever(embedder Embedder, vectors VectorIndex, text TextStore, opts RetrieverOptions, logger *zap.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.SearchWidth <= 0 {
		opts.SearchWidth = DefaultSearchWidth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		text:     text,
		opts:     opts,
		logger:   logger,
	}
}

// Search 返回最多 topK 条结果。
//
// 向量检索失败或无命中时返回空列表；向量化失败、索引未就绪和维度不一致
// 会同时返回类型化错误，调用方可据此给出"无数据"或稍后重试。文本库缺失的命中
// 会被丢弃并记录不一致。
func (r *Retriever) Search(ctx context.Context, question string, topK int) ([]Result, error) {
	results := []Result{}
	if strings.TrimSpace(question) == "" {
		return results, apperrors.NewInvalidInputError("question", "question is empty")
	}
	if topK <= 0 {
		topK = r.opts.TopK
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		r.logger.Warn("query embedding failed", zap.Error(err))
		if !apperrors.IsAppError(err) {
			err = apperrors.NewProviderError("embedding", err)
		}
		return results, err
	}

	hits, err := r.vectors.Search(ctx, vector, topK, r.opts.SearchWidth)
	if err != nil {
		r.logger.Warn("vector search failed", zap.Error(err))
		// 未就绪可重试，维度不一致是配置错误，都不能当作空结果
		if apperrors.HasCode(err, apperrors.ErrCodeIndexNotReady) || apperrors.HasCode(err, apperrors.ErrCodeInvalidDimension) {
			return results, err
		}
		return results, nil
	}

	for _, hit := range hits {
		text, found, err := r.text.Lookup(ctx, hit.ID)
		if err != nil {
			r.logger.Warn("text lookup failed", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		if !found {
			r.logger.Warn("vector hit has no text row",
				zap.String("id", hit.ID),
				zap.Error(apperrors.NewLookupMissError(hit.ID)),
			)
			continue
		}
		results = append(results, Result{ID: hit.ID, Distance: hit.Distance, Text: text})
	}
	return results, nil
}

// Contexts 提取结果文本，保持距离顺序
func Contexts(results []Result) []string {
	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Text
	}
	return contexts
}
