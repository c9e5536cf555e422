package di

import (
	"errors"
	"sync"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/aihub/ragindex/internal/config"
)

// Closer 收集各组件的释放函数，按注册的逆序执行
type Closer struct {
	mu  sync.Mutex
	fns []func() error
}

// Add 注册释放函数
func (c *Closer) Add(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

// Close 释放全部资源，可重复调用
func (c *Closer) Close() error {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New 创建依赖注入容器并注册所有组件，组件在首次 Invoke 时才真正构造
func New(cfg *config.Config, logger *zap.Logger) (*dig.Container, *Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	container := dig.New()
	closer := &Closer{}

	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, nil, err
	}
	if err := container.Provide(func() *zap.Logger { return logger }); err != nil {
		return nil, nil, err
	}
	if err := container.Provide(func() *Closer { return closer }); err != nil {
		return nil, nil, err
	}
	if err := RegisterProviders(container); err != nil {
		return nil, nil, err
	}
	return container, closer, nil
}
