package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/ragindex/internal/errors"
	"github.com/aihub/ragindex/internal/knowledge"
)

// MockSourceLoader 模拟源文档读取
type MockSourceLoader struct {
	mock.Mock
}

func (m *MockSourceLoader) Load(ctx context.Context, source string) (string, error) {
	args := m.Called(ctx, source)
	return args.String(0), args.Error(1)
}

// MockGenerator 模拟回答生成
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	args := m.Called(ctx, question, contexts)
	return args.String(0), args.Error(1)
}

// MockQueryObserver 模拟指标记录
type MockQueryObserver struct {
	mock.Mock
}

func (m *MockQueryObserver) ObserveQuery(duration time.Duration, results int, err error) {
	m.Called(duration, results, err)
}

const serviceCorpus = "Milvus keeps the vectors. SQLite keeps the sentences! Queries resolve ids to text?"

type serviceFixture struct {
	service   *KnowledgeService
	loader    *MockSourceLoader
	generator *MockGenerator
	observer  *MockQueryObserver
	vectors   *knowledge.MemoryVectorIndex
}

func newServiceFixture(embedder knowledge.Embedder) *serviceFixture {
	if embedder == nil {
		embedder = knowledge.NewHashEmbedder(32)
	}
	text := knowledge.NewMemoryTextStore()
	vectors := knowledge.NewMemoryVectorIndex("sentences")
	writer := knowledge.NewDualStoreWriter(text, vectors, knowledge.WriterOptions{Partitions: 2}, nil, nil)
	ingestor := knowledge.NewIngestor(embedder, writer, knowledge.IngestOptions{}, nil)
	retriever := knowledge.NewRetriever(embedder, vectors, text, knowledge.RetrieverOptions{SearchWidth: 2}, nil)

	f := &serviceFixture{
		loader:    &MockSourceLoader{},
		generator: &MockGenerator{},
		observer:  &MockQueryObserver{},
		vectors:   vectors,
	}
	f.service = NewKnowledgeService(f.loader, ingestor, retriever, f.generator, f.observer, nil)
	return f
}

func TestKnowledgeService_ReindexAndAsk(t *testing.T) {
	f := newServiceFixture(nil)
	ctx := context.Background()

	f.loader.On("Load", ctx, "corpus.txt").Return(serviceCorpus, nil).Once()
	result, err := f.service.Reindex(ctx, "corpus.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TextCount)
	assert.Equal(t, int64(3), result.VectorCount)

	f.observer.On("ObserveQuery", mock.Anything, 2, nil).Once()
	f.generator.On("Generate", ctx, "SQLite keeps the sentences", mock.MatchedBy(func(contexts []string) bool {
		return len(contexts) == 2 && contexts[0] == "SQLite keeps the sentences"
	})).Return("SQLite.", nil).Once()

	answer, err := f.service.Ask(ctx, "SQLite keeps the sentences", 2)
	require.NoError(t, err)
	assert.Equal(t, "SQLite.", answer.Answer)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "SQLite keeps the sentences", answer.Sources[0].Text)

	f.loader.AssertExpectations(t)
	f.generator.AssertExpectations(t)
	f.observer.AssertExpectations(t)
}

func TestKnowledgeService_ReindexRejectsBadSources(t *testing.T) {
	f := newServiceFixture(nil)
	ctx := context.Background()

	_, err := f.service.Reindex(ctx, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	f.loader.On("Load", ctx, "missing.txt").Return("", errors.New("no such file")).Once()
	_, err = f.service.Reindex(ctx, "missing.txt")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest))

	f.loader.On("Load", ctx, "blank.txt").Return("  \n ", nil).Once()
	_, err = f.service.Reindex(ctx, "blank.txt")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestKnowledgeService_AskBeforeIndexIsRetryable(t *testing.T) {
	f := newServiceFixture(nil)
	f.observer.On("ObserveQuery", mock.Anything, 0, mock.Anything).Once()

	_, err := f.service.Ask(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.True(t, apperrors.GetAppError(err).Retryable())
	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestKnowledgeService_AskProviderFailureFallsBack(t *testing.T) {
	f := newServiceFixture(&knowledge.NoopEmbedder{})
	f.observer.On("ObserveQuery", mock.Anything, 0, mock.Anything).Once()

	answer, err := f.service.Ask(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Equal(t, knowledge.AnswerNoData, answer.Answer)
	assert.Empty(t, answer.Sources)
}

func TestKnowledgeService_AskGenerationFailureFallsBack(t *testing.T) {
	f := newServiceFixture(nil)
	ctx := context.Background()
	_, err := f.service.ReindexText(ctx, serviceCorpus)
	require.NoError(t, err)

	f.observer.On("ObserveQuery", mock.Anything, mock.Anything, nil)
	f.generator.On("Generate", ctx, "vectors", mock.Anything).
		Return(knowledge.AnswerUnavailable, apperrors.NewProviderError("generation", errors.New("rate limited"))).Once()

	answer, err := f.service.Ask(ctx, "vectors", 3)
	require.NoError(t, err)
	assert.Equal(t, knowledge.AnswerUnavailable, answer.Answer)
	assert.NotEmpty(t, answer.Sources)
}

func TestKnowledgeService_AskDimensionMismatchIsReported(t *testing.T) {
	ctx := context.Background()
	text := knowledge.NewMemoryTextStore()
	vectors := knowledge.NewMemoryVectorIndex("sentences")
	writer := knowledge.NewDualStoreWriter(text, vectors, knowledge.WriterOptions{Partitions: 2}, nil, nil)
	ingestor := knowledge.NewIngestor(knowledge.NewHashEmbedder(32), writer, knowledge.IngestOptions{}, nil)
	_, err := ingestor.Ingest(ctx, serviceCorpus)
	require.NoError(t, err)

	// 查询侧使用了不同维度的向量化模型
	retriever := knowledge.NewRetriever(knowledge.NewHashEmbedder(64), vectors, text, knowledge.RetrieverOptions{}, nil)
	generator := &MockGenerator{}
	service := NewKnowledgeService(&MockSourceLoader{}, ingestor, retriever, generator, nil, nil)

	_, err = service.Ask(ctx, "vectors", 3)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidDimension))
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}
