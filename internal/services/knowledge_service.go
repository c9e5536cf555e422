package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aihub/ragindex/internal/errors"
	"github.com/aihub/ragindex/internal/knowledge"
)

// SourceLoader 读取源文档
type SourceLoader interface {
	Load(ctx context.Context, source string) (string, error)
}

// QueryObserver 记录检索指标
type QueryObserver interface {
	ObserveQuery(duration time.Duration, results int, err error)
}

// Answer 问答结果
type Answer struct {
	Question string             `json:"question"`
	Answer   string             `json:"answer"`
	Sources  []knowledge.Result `json:"sources"`
}

// KnowledgeService 入库与检索的服务入口
type KnowledgeService struct {
	loader    SourceLoader
	ingestor  *knowledge.Ingestor
	retriever *knowledge.Retriever
	generator knowledge.Generator
	observer  QueryObserver
	logger    *zap.Logger

	// 全量重建互斥，避免两次运行交叉清空存储
	reindexMu sync.Mutex
}

// NewKnowledgeService 创建知识库服务，observer 可为空
func NewKnowledgeService(
	loader SourceLoader,
	ingestor *knowledge.Ingestor,
	retriever *knowledge.Retriever,
	generator knowledge.Generator,
	observer QueryObserver,
	logger *zap.Logger,
) *KnowledgeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeService{
		loader:    loader,
		ingestor:  ingestor,
		retriever: retriever,
		generator: generator,
		observer:  observer,
		logger:    logger,
	}
}

// Reindex 读取源文档并全量重建索引
func (s *KnowledgeService) Reindex(ctx context.Context, source string) (*knowledge.IngestResult, error) {
	if strings.TrimSpace(source) == "" {
		return nil, apperrors.NewInvalidInputError("source", "source is empty")
	}
	text, err := s.loader.Load(ctx, source)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "failed to load source")
	}
	return s.ReindexText(ctx, text)
}

// ReindexText 对已读取的文本全量重建索引
func (s *KnowledgeService) ReindexText(ctx context.Context, text string) (*knowledge.IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewInvalidInputError("text", "source document is empty")
	}

	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()

	result, err := s.ingestor.Ingest(ctx, text)
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// Search 检索相似句子
func (s *KnowledgeService) Search(ctx context.Context, question string, topK int) ([]knowledge.Result, error) {
	start := time.Now()
	results, err := s.retriever.Search(ctx, question, topK)
	if s.observer != nil {
		s.observer.ObserveQuery(time.Since(start), len(results), err)
	}
	return results, err
}

// Ask 检索后生成回答。
// 向量化失败回退为"无数据"；索引未就绪和维度配置错误直接返回错误。
func (s *KnowledgeService) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	results, err := s.Search(ctx, question, topK)
	if err != nil {
		switch {
		case apperrors.HasCode(err, apperrors.ErrCodeInvalidInput),
			apperrors.HasCode(err, apperrors.ErrCodeIndexNotReady),
			apperrors.HasCode(err, apperrors.ErrCodeInvalidDimension):
			return nil, err
		default:
			s.logger.Warn("search failed, answering with fallback", zap.Error(err))
			return &Answer{Question: question, Answer: knowledge.AnswerNoData, Sources: []knowledge.Result{}}, nil
		}
	}

	answer, err := s.generator.Generate(ctx, question, knowledge.Contexts(results))
	if err != nil {
		s.logger.Warn("generation failed", zap.Error(err))
		if answer == "" {
			answer = knowledge.AnswerUnavailable
		}
	}
	return &Answer{Question: question, Answer: answer, Sources: results}, nil
}
