package knowledge

import (
	"context"
	"slices"
	"sync"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

const kmeansIterations = 10

type memoryEntry struct {
	id     string
	vector []float32
}

// MemoryVectorIndex 进程内 IVF 索引，距离为平方欧氏距离
type MemoryVectorIndex struct {
	mu        sync.RWMutex
	name      string
	spec      CollectionSpec
	created   bool
	pending   []memoryEntry
	entries   []memoryEntry
	centroids [][]float32
	lists     [][]int
	loaded    bool
}

// NewMemoryVectorIndex 创建内存向量索引
func NewMemoryVectorIndex(name string) *MemoryVectorIndex {
	return &MemoryVectorIndex{name: name}
}

func (m *MemoryVectorIndex) Create(ctx context.Context, spec CollectionSpec) error {
	if spec.Dimension <= 0 {
		return apperrors.NewDimensionError(1, spec.Dimension)
	}
	if spec.Metric == "" {
		spec.Metric = MetricL2
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	m.spec = spec
	m.created = true
	return nil
}

func (m *MemoryVectorIndex) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *MemoryVectorIndex) reset() {
	m.spec = CollectionSpec{}
	m.created = false
	m.pending = nil
	m.entries = nil
	m.centroids = nil
	m.lists = nil
	m.loaded = false
}

func (m *MemoryVectorIndex) InsertBatch(ctx context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return apperrors.NewIndexNotReadyError(m.name)
	}
	batch := make([]memoryEntry, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Vector) != m.spec.Dimension {
			return apperrors.NewDimensionError(m.spec.Dimension, len(chunk.Vector))
		}
		batch = append(batch, memoryEntry{id: chunk.ID, vector: slices.Clone(chunk.Vector)})
	}
	m.pending = append(m.pending, batch...)
	return nil
}

// Flush 将待写入条目持久化；已建索引时按最近质心归入列表
func (m *MemoryVectorIndex) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return apperrors.NewIndexNotReadyError(m.name)
	}
	for _, entry := range m.pending {
		m.entries = append(m.entries, entry)
		if len(m.centroids) > 0 {
			nearest := m.nearestCentroids(entry.vector, 1)[0]
			m.lists[nearest] = append(m.lists[nearest], len(m.entries)-1)
		}
	}
	m.pending = nil
	return nil
}

// Finalize 以 k-means 划分 partitions 个倒排列表
func (m *MemoryVectorIndex) Finalize(ctx context.Context, partitions int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return apperrors.NewIndexNotReadyError(m.name)
	}
	if partitions <= 0 {
		partitions = 128
	}
	k := min(partitions, len(m.entries))
	if k == 0 {
		m.centroids = [][]float32{make([]float32, m.spec.Dimension)}
		m.lists = [][]int{nil}
		return nil
	}

	// 等间隔取初始质心，保证结果可复现
	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = slices.Clone(m.entries[i*len(m.entries)/k].vector)
	}
	m.centroids = centroids

	assign := make([]int, len(m.entries))
	for iter := 0; iter < kmeansIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed := false
		for i, entry := range m.entries {
			nearest := m.nearestCentroids(entry.vector, 1)[0]
			if iter == 0 || assign[i] != nearest {
				assign[i] = nearest
				changed = true
			}
		}
		if !changed {
			break
		}
		m.recomputeCentroids(assign)
	}

	// 按最终质心归属，检索时最近列表必含自身
	for i, entry := range m.entries {
		assign[i] = m.nearestCentroids(entry.vector, 1)[0]
	}
	m.lists = make([][]int, k)
	for i, c := range assign {
		m.lists[c] = append(m.lists[c], i)
	}
	return nil
}

func (m *MemoryVectorIndex) recomputeCentroids(assign []int) {
	sums := make([][]float64, len(m.centroids))
	counts := make([]int, len(m.centroids))
	for i := range sums {
		sums[i] = make([]float64, m.spec.Dimension)
	}
	for i, entry := range m.entries {
		c := assign[i]
		counts[c]++
		for d, v := range entry.vector {
			sums[c][d] += float64(v)
		}
	}
	for c := range m.centroids {
		// 空簇保留原质心
		if counts[c] == 0 {
			continue
		}
		for d := range m.centroids[c] {
			m.centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
		}
	}
}

func (m *MemoryVectorIndex) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created || m.centroids == nil {
		return apperrors.NewIndexNotReadyError(m.name)
	}
	m.loaded = true
	return nil
}

func (m *MemoryVectorIndex) Search(ctx context.Context, vector []float32, topK, searchWidth int) ([]VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.loaded {
		return nil, apperrors.NewIndexNotReadyError(m.name)
	}
	if len(vector) != m.spec.Dimension {
		return nil, apperrors.NewDimensionError(m.spec.Dimension, len(vector))
	}
	if len(m.entries) == 0 || topK <= 0 {
		return []VectorHit{}, nil
	}
	if searchWidth <= 0 {
		searchWidth = 10
	}

	var hits []VectorHit
	for _, list := range m.nearestCentroids(vector, searchWidth) {
		for _, idx := range m.lists[list] {
			entry := m.entries[idx]
			hits = append(hits, VectorHit{ID: entry.id, Distance: m.distance(vector, entry.vector)})
		}
	}

	slices.SortStableFunc(hits, func(a, b VectorHit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	if hits == nil {
		hits = []VectorHit{}
	}
	return hits, nil
}

// nearestCentroids 返回距离最近的 n 个质心下标
func (m *MemoryVectorIndex) nearestCentroids(vector []float32, n int) []int {
	order := make([]int, len(m.centroids))
	dists := make([]float32, len(m.centroids))
	for i, c := range m.centroids {
		order[i] = i
		dists[i] = squaredL2(vector, c)
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case dists[a] < dists[b]:
			return -1
		case dists[a] > dists[b]:
			return 1
		default:
			return 0
		}
	})
	return order[:min(n, len(order))]
}

func (m *MemoryVectorIndex) distance(a, b []float32) float32 {
	if m.spec.Metric == MetricIP {
		// 内积越大越相近，取负以保持升序
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return -dot
	}
	return squaredL2(a, b)
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func (m *MemoryVectorIndex) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries)), nil
}

// IDs 返回已刷新条目的ID
func (m *MemoryVectorIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.entries))
	for i, entry := range m.entries {
		ids[i] = entry.id
	}
	return ids
}

func (m *MemoryVectorIndex) Ready() bool {
	return true
}

func (m *MemoryVectorIndex) Close() error {
	return nil
}
