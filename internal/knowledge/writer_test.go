package knowledge

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

// scriptedTextStore 统计写入批次，可在指定批次失败
type scriptedTextStore struct {
	TextStore
	upserts   atomic.Int32
	failAt    int32
	countSkew int64
}

func (s *scriptedTextStore) UpsertBatch(ctx context.Context, records []TextRecord) error {
	n := s.upserts.Add(1)
	if s.failAt > 0 && n == s.failAt {
		return errors.New("disk full")
	}
	return s.TextStore.UpsertBatch(ctx, records)
}

func (s *scriptedTextStore) Count(ctx context.Context) (int64, error) {
	count, err := s.TextStore.Count(ctx)
	return count - s.countSkew, err
}

// scriptedVectorIndex 统计插入与刷新，可让刷新失败
type scriptedVectorIndex struct {
	VectorIndex
	inserts   atomic.Int32
	flushes   atomic.Int32
	finalized atomic.Bool
	failFlush int32
}

func (s *scriptedVectorIndex) InsertBatch(ctx context.Context, chunks []Chunk) error {
	s.inserts.Add(1)
	return s.VectorIndex.InsertBatch(ctx, chunks)
}

func (s *scriptedVectorIndex) Flush(ctx context.Context) error {
	n := s.flushes.Add(1)
	if s.failFlush > 0 && n == s.failFlush {
		return errors.New("flush timeout")
	}
	return s.VectorIndex.Flush(ctx)
}

func (s *scriptedVectorIndex) Finalize(ctx context.Context, partitions int) error {
	s.finalized.Store(true)
	return s.VectorIndex.Finalize(ctx, partitions)
}

func assignedChunks(t *testing.T, seed int64, n, dim int) []Chunk {
	t.Helper()
	chunks := randomChunks(rand.New(rand.NewSource(seed)), n, dim)
	require.NoError(t, NewIdentityAssigner().Assign(chunks))
	return chunks
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{2500, 1000, 3},
		{1000, 1000, 1},
		{1001, 1000, 2},
		{0, 1000, 0},
		{7, 0, 1},
		{12000, 5000, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Batches(tt.n, tt.size), "n=%d size=%d", tt.n, tt.size)
	}
}

func TestDualStoreWriter_FullReindexBatchesAndBijection(t *testing.T) {
	ctx := context.Background()
	text := &scriptedTextStore{TextStore: NewMemoryTextStore()}
	memIndex := NewMemoryVectorIndex("sentences")
	vectors := &scriptedVectorIndex{VectorIndex: memIndex}
	reporter := &RecordingReporter{}

	writer := NewDualStoreWriter(text, vectors, WriterOptions{
		TextBatchSize:   1000,
		VectorBatchSize: 1000,
		Partitions:      16,
	}, reporter, nil)

	chunks := assignedChunks(t, 1, 2500, 8)
	result, err := writer.FullReindex(ctx, chunks, 8)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TextBatches)
	assert.Equal(t, int32(3), text.upserts.Load())
	assert.Equal(t, int32(3), vectors.inserts.Load())
	assert.Equal(t, int32(3), vectors.flushes.Load())
	assert.Equal(t, int64(2500), result.TextCount)
	assert.Equal(t, int64(2500), result.VectorCount)

	want := make([]string, len(chunks))
	for i, c := range chunks {
		want[i] = c.ID
	}
	assert.ElementsMatch(t, want, text.TextStore.(*MemoryTextStore).IDs())
	assert.ElementsMatch(t, want, memIndex.IDs())

	// 建索引并加载后可检索
	hits, err := memIndex.Search(ctx, chunks[10].Vector, 5, 16)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, chunks[10].ID, hits[0].ID)

	events := reporter.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventRunStarted, events[0].Type)
	assert.Equal(t, EventRunFinished, events[len(events)-1].Type)
	committed := 0
	for _, e := range events {
		if e.Type == EventBatchCommitted {
			committed++
		}
	}
	assert.Equal(t, 6, committed)
}

func TestDualStoreWriter_DifferentBatchSizesPerStore(t *testing.T) {
	text := &scriptedTextStore{TextStore: NewMemoryTextStore()}
	vectors := &scriptedVectorIndex{VectorIndex: NewMemoryVectorIndex("sentences")}
	writer := NewDualStoreWriter(text, vectors, WriterOptions{TextBatchSize: 100, VectorBatchSize: 250, Partitions: 4}, nil, nil)

	result, err := writer.FullReindex(context.Background(), assignedChunks(t, 2, 600, 4), 4)
	require.NoError(t, err)
	assert.Equal(t, int32(6), text.upserts.Load())
	assert.Equal(t, int32(3), vectors.flushes.Load())
	assert.Equal(t, 6, result.TextBatches)
	assert.Equal(t, 3, result.VectorBatches)
}

func TestDualStoreWriter_ReindexTwiceSameCountFreshIDs(t *testing.T) {
	ctx := context.Background()
	text := NewMemoryTextStore()
	vectors := NewMemoryVectorIndex("sentences")
	writer := NewDualStoreWriter(text, vectors, WriterOptions{Partitions: 8}, nil, nil)
	chunker := NewSentenceChunker()
	embedder := NewHashEmbedder(16)
	source := "Go is fun. Milvus stores vectors! Does SQLite keep text? Yes. Both stores share ids."

	run := func() []string {
		chunks := chunker.Split(source)
		require.NoError(t, NewIdentityAssigner().Assign(chunks))
		for i := range chunks {
			vec, err := embedder.Embed(ctx, chunks[i].Text)
			require.NoError(t, err)
			chunks[i].Vector = vec
		}
		result, err := writer.FullReindex(ctx, chunks, 16)
		require.NoError(t, err)
		assert.Equal(t, int64(5), result.TextCount)
		assert.Equal(t, int64(5), result.VectorCount)
		return text.IDs()
	}

	first := run()
	second := run()
	assert.Len(t, first, 5)
	assert.Len(t, second, 5)
	for _, id := range second {
		assert.NotContains(t, first, id)
	}
	assert.ElementsMatch(t, second, vectors.IDs())
}

func TestDualStoreWriter_AbortsOnTextFailure(t *testing.T) {
	ctx := context.Background()
	text := &scriptedTextStore{TextStore: NewMemoryTextStore(), failAt: 2}
	memIndex := NewMemoryVectorIndex("sentences")
	vectors := &scriptedVectorIndex{VectorIndex: memIndex}
	reporter := &RecordingReporter{}
	writer := NewDualStoreWriter(text, vectors, WriterOptions{TextBatchSize: 10, VectorBatchSize: 10, Partitions: 4}, reporter, nil)

	result, err := writer.FullReindex(ctx, assignedChunks(t, 3, 50, 4), 4)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreWriteFailure))
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, vectors.finalized.Load())

	_, err = memIndex.Search(ctx, make([]float32, 4), 3, 1)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexNotReady))

	events := reporter.Events()
	assert.Equal(t, EventRunFailed, events[len(events)-1].Type)
	var failed []Event
	for _, e := range events {
		if e.Type == EventBatchFailed {
			failed = append(failed, e)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, StoreText, failed[0].Store)
	assert.Equal(t, 2, failed[0].Batch)
}

func TestDualStoreWriter_AbortsOnFlushFailure(t *testing.T) {
	text := NewMemoryTextStore()
	vectors := &scriptedVectorIndex{VectorIndex: NewMemoryVectorIndex("sentences"), failFlush: 1}
	writer := NewDualStoreWriter(text, vectors, WriterOptions{TextBatchSize: 10, VectorBatchSize: 10, Partitions: 4}, nil, nil)

	_, err := writer.FullReindex(context.Background(), assignedChunks(t, 4, 30, 4), 4)
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeStoreWriteFailure, appErr.Code)
	assert.Contains(t, appErr.Message, StoreVector)
	assert.Contains(t, err.Error(), "flush timeout")
	// 失败后不重试
	assert.Equal(t, int32(1), vectors.inserts.Load())
}

func TestDualStoreWriter_CountMismatchInvalidatesRun(t *testing.T) {
	text := &scriptedTextStore{TextStore: NewMemoryTextStore(), countSkew: 1}
	writer := NewDualStoreWriter(text, NewMemoryVectorIndex("sentences"), WriterOptions{Partitions: 4}, nil, nil)

	_, err := writer.FullReindex(context.Background(), assignedChunks(t, 5, 20, 4), 4)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreWriteFailure))
	assert.Contains(t, err.Error(), "row count 19")
}

func TestDualStoreWriter_RejectsInvalidInput(t *testing.T) {
	writer := NewDualStoreWriter(NewMemoryTextStore(), NewMemoryVectorIndex("sentences"), WriterOptions{}, nil, nil)
	ctx := context.Background()

	_, err := writer.FullReindex(ctx, assignedChunks(t, 6, 3, 4), 0)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidDimension))

	_, err = writer.FullReindex(ctx, []Chunk{{Text: "no id", Vector: make([]float32, 4)}}, 4)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	_, err = writer.FullReindex(ctx, assignedChunks(t, 7, 3, 8), 4)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreWriteFailure))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidDimension))
}

func TestDualStoreWriter_EmptyInput(t *testing.T) {
	vectors := NewMemoryVectorIndex("sentences")
	writer := NewDualStoreWriter(NewMemoryTextStore(), vectors, WriterOptions{}, nil, nil)

	result, err := writer.FullReindex(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Zero(t, result.TextCount)

	hits, err := vectors.Search(context.Background(), make([]float32, 4), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NotNil(t, hits)
}
