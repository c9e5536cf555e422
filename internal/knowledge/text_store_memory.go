package knowledge

import (
	"context"
	"sync"
)

// MemoryTextStore 进程内文本存储
type MemoryTextStore struct {
	mu   sync.RWMutex
	rows map[string]TextRecord
}

func NewMemoryTextStore() *MemoryTextStore {
	return &MemoryTextStore{rows: make(map[string]TextRecord)}
}

func (m *MemoryTextStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[string]TextRecord)
	return nil
}

func (m *MemoryTextStore) UpsertBatch(ctx context.Context, records []TextRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.rows[r.ID] = r
	}
	return nil
}

func (m *MemoryTextStore) Lookup(ctx context.Context, id string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[id]
	return r.Text, ok, nil
}

// Delete 删除单行，仅用于构造不一致场景
func (m *MemoryTextStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
}

// IDs 返回全部ID
func (m *MemoryTextStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	return ids
}

func (m *MemoryTextStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows)), nil
}

func (m *MemoryTextStore) Ready() bool {
	return true
}

func (m *MemoryTextStore) Close() error {
	return nil
}
