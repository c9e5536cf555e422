package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

const retrieverCorpus = `Milvus is a vector database. SQLite stores the sentence text.
Every chunk gets a random uuid! Queries embed the question first?
The nearest vectors are resolved back to text. Missing rows are skipped.
Batches of one thousand rows go to the text store. Vectors are flushed after each batch.`

type indexedCorpus struct {
	chunks   []Chunk
	text     *MemoryTextStore
	vectors  *MemoryVectorIndex
	embedder *HashEmbedder
}

func indexCorpus(t *testing.T, source string) *indexedCorpus {
	t.Helper()
	ctx := context.Background()
	embedder := NewHashEmbedder(64)
	chunks := NewSentenceChunker().Split(source)
	require.NoError(t, NewIdentityAssigner().Assign(chunks))
	vectors, err := embedder.EmbedBatch(ctx, Texts(chunks))
	require.NoError(t, err)
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	corpus := &indexedCorpus{
		chunks:   chunks,
		text:     NewMemoryTextStore(),
		vectors:  NewMemoryVectorIndex("sentences"),
		embedder: embedder,
	}
	writer := NewDualStoreWriter(corpus.text, corpus.vectors, WriterOptions{Partitions: 4}, nil, nil)
	_, err = writer.FullReindex(ctx, chunks, embedder.Dimensions())
	require.NoError(t, err)
	return corpus
}

func (c *indexedCorpus) retriever() *Retriever {
	return NewRetriever(c.embedder, c.vectors, c.text, RetrieverOptions{SearchWidth: 4}, nil)
}

func TestRetriever_SearchRanksExactSentenceFirst(t *testing.T) {
	corpus := indexCorpus(t, retrieverCorpus)

	results, err := corpus.retriever().Search(context.Background(), "SQLite stores the sentence text", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "SQLite stores the sentence text", results[0].Text)
	assert.InDelta(t, 0, results[0].Distance, 1e-5)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestRetriever_DefaultTopKBoundsResults(t *testing.T) {
	corpus := indexCorpus(t, retrieverCorpus)

	results, err := corpus.retriever().Search(context.Background(), "vector database", 0)
	require.NoError(t, err)
	assert.Len(t, results, len(corpus.chunks))
	assert.Equal(t, Texts(corpus.chunks)[0], results[0].Text)
}

func TestRetriever_DropsLookupMisses(t *testing.T) {
	corpus := indexCorpus(t, retrieverCorpus)
	retriever := corpus.retriever()
	ctx := context.Background()

	full, err := retriever.Search(ctx, "Missing rows are skipped", 4)
	require.NoError(t, err)
	require.Len(t, full, 4)

	corpus.text.Delete(full[0].ID)
	partial, err := retriever.Search(ctx, "Missing rows are skipped", 4)
	require.NoError(t, err)
	assert.Len(t, partial, 3)
	for _, r := range partial {
		assert.NotEqual(t, full[0].ID, r.ID)
	}
	assert.Equal(t, full[1:], partial)
}

func TestRetriever_EmptyIndexReturnsEmptyList(t *testing.T) {
	corpus := indexCorpus(t, "")

	results, err := corpus.retriever().Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetriever_NotLoadedIsRetryable(t *testing.T) {
	retriever := NewRetriever(NewHashEmbedder(8), NewMemoryVectorIndex("sentences"), NewMemoryTextStore(), RetrieverOptions{}, nil)

	results, err := retriever.Search(context.Background(), "question", 5)
	assert.Empty(t, results)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexNotReady))
	assert.True(t, apperrors.GetAppError(err).Retryable())
}

func TestRetriever_ProviderFailureYieldsNoData(t *testing.T) {
	corpus := indexCorpus(t, retrieverCorpus)
	retriever := NewRetriever(&NoopEmbedder{}, corpus.vectors, corpus.text, RetrieverOptions{}, nil)

	results, err := retriever.Search(context.Background(), "question", 5)
	assert.Empty(t, results)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProviderError))
}

func TestRetriever_DimensionMismatchIsReported(t *testing.T) {
	corpus := indexCorpus(t, retrieverCorpus)
	// 查询向量维度与索引不一致
	retriever := NewRetriever(NewHashEmbedder(32), corpus.vectors, corpus.text, RetrieverOptions{}, nil)

	results, err := retriever.Search(context.Background(), "Milvus", 5)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidDimension))
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

// failingVectorIndex 检索时返回后端错误
type failingVectorIndex struct {
	VectorIndex
}

func (f failingVectorIndex) Search(ctx context.Context, vector []float32, topK, searchWidth int) ([]VectorHit, error) {
	return nil, errors.New("rpc error: connection reset")
}

func TestRetriever_SearchErrorYieldsEmptyList(t *testing.T) {
	corpus := indexCorpus(t, retrieverCorpus)
	retriever := NewRetriever(NewHashEmbedder(64), failingVectorIndex{corpus.vectors}, corpus.text, RetrieverOptions{}, nil)

	results, err := retriever.Search(context.Background(), "Milvus", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_RejectsBlankQuestion(t *testing.T) {
	corpus := indexCorpus(t, retrieverCorpus)
	_, err := corpus.retriever().Search(context.Background(), "   ", 5)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestRetriever_ConcurrentQueries(t *testing.T) {
	corpus := indexCorpus(t, retrieverCorpus)
	retriever := corpus.retriever()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chunk := corpus.chunks[i%len(corpus.chunks)]
			results, err := retriever.Search(context.Background(), chunk.Text, 2)
			assert.NoError(t, err)
			if assert.NotEmpty(t, results) {
				assert.Equal(t, chunk.ID, results[0].ID)
			}
		}(i)
	}
	wg.Wait()
}

func TestContexts(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Contexts([]Result{{Text: "a"}, {Text: "b"}}))
}
