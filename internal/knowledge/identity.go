package knowledge

import (
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

// IDGenerator 生成单个标识
type IDGenerator func() string

// IdentityAssigner 为一次入库运行中的切片分配唯一ID
type IdentityAssigner struct {
	mu       sync.Mutex
	generate IDGenerator
	issued   map[string]struct{}
}

// NewIdentityAssigner 默认使用随机UUID v4
func NewIdentityAssigner() *IdentityAssigner {
	return NewIdentityAssignerWithGenerator(func() string {
		return uuid.NewString()
	})
}

// NewIdentityAssignerWithGenerator 使用自定义生成器（测试用）
func NewIdentityAssignerWithGenerator(generate IDGenerator) *IdentityAssigner {
	return &IdentityAssigner{
		generate: generate,
		issued:   make(map[string]struct{}),
	}
}

// Next 生成一个新ID，重复即视为碰撞
func (a *IdentityAssigner) Next() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.generate()
	if _, exists := a.issued[id]; exists {
		return "", apperrors.NewIdentityCollisionError(id)
	}
	a.issued[id] = struct{}{}
	return id, nil
}

// Assign 为所有切片填充ID
func (a *IdentityAssigner) Assign(chunks []Chunk) error {
	for i := range chunks {
		id, err := a.Next()
		if err != nil {
			return err
		}
		chunks[i].ID = id
	}
	return nil
}

// Issued 本次运行已分配的ID数量
func (a *IdentityAssigner) Issued() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.issued)
}
