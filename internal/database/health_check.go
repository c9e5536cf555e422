package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe 单个组件的检查函数
type Probe func(ctx context.Context) error

// ComponentStatus 组件检查结果
type ComponentStatus struct {
	Healthy      bool   `json:"healthy"`
	LastError    string `json:"last_error,omitempty"`
	ResponseTime string `json:"response_time,omitempty"`
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy    bool                       `json:"healthy"`
	LastCheck  time.Time                  `json:"last_check"`
	Components map[string]ComponentStatus `json:"components"`
}

// HealthChecker 存储健康检查器，定期检查所有注册的组件
type HealthChecker struct {
	logger        *zap.Logger
	checkInterval time.Duration
	timeout       time.Duration

	mu        sync.RWMutex
	probes    map[string]Probe
	status    map[string]ComponentStatus
	lastCheck time.Time
	stopChan  chan struct{}
	running   bool
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		logger:        logger,
		checkInterval: 30 * time.Second,
		timeout:       5 * time.Second,
		probes:        make(map[string]Probe),
		status:        make(map[string]ComponentStatus),
		stopChan:      make(chan struct{}),
	}
}

// Register 注册组件
func (hc *HealthChecker) Register(name string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes[name] = probe
}

// SetCheckInterval 设置检查间隔
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkInterval = interval
}

// Start 开始后台检查，ctx 结束或调用 Stop 后退出
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true
	interval := hc.checkInterval
	stop := hc.stopChan
	hc.mu.Unlock()

	hc.logger.Info("Starting storage health checker", zap.Duration("interval", interval))
	hc.Check(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hc.stopped()
				return
			case <-stop:
				hc.stopped()
				return
			case <-ticker.C:
				hc.Check(ctx)
			}
		}
	}()
}

func (hc *HealthChecker) stopped() {
	hc.mu.Lock()
	hc.running = false
	hc.mu.Unlock()
	hc.logger.Info("Storage health checker stopped")
}

// Stop 停止后台检查
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.running {
		return
	}
	close(hc.stopChan)
	hc.stopChan = make(chan struct{})
}

// Check 执行一轮检查，返回是否全部健康
func (hc *HealthChecker) Check(ctx context.Context) bool {
	hc.mu.RLock()
	probes := make(map[string]Probe, len(hc.probes))
	for name, probe := range hc.probes {
		probes[name] = probe
	}
	hc.mu.RUnlock()

	healthy := true
	status := make(map[string]ComponentStatus, len(probes))
	for name, probe := range probes {
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		err := probe(probeCtx)
		cancel()

		s := ComponentStatus{Healthy: err == nil, ResponseTime: time.Since(start).String()}
		if err != nil {
			healthy = false
			s.LastError = err.Error()
			hc.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
		}
		status[name] = s
	}

	hc.mu.Lock()
	for name, s := range status {
		if prev, ok := hc.status[name]; ok && !prev.Healthy && s.Healthy {
			hc.logger.Info("Component connection restored", zap.String("component", name))
		}
	}
	hc.status = status
	hc.lastCheck = time.Now()
	hc.mu.Unlock()
	return healthy
}

// IsHealthy 最近一轮检查是否全部通过
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	if hc.lastCheck.IsZero() {
		return false
	}
	for _, s := range hc.status {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// GetHealthResult 获取最近一轮检查结果
func (hc *HealthChecker) GetHealthResult() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := HealthCheckResult{
		Healthy:    !hc.lastCheck.IsZero(),
		LastCheck:  hc.lastCheck,
		Components: make(map[string]ComponentStatus, len(hc.status)),
	}
	for name, s := range hc.status {
		result.Components[name] = s
		if !s.Healthy {
			result.Healthy = false
		}
	}
	return result
}

// Components 已注册组件名，按字母排序
func (hc *HealthChecker) Components() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.probes))
	for name := range hc.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WaitForHealthy 等待所有组件变为健康状态
func (hc *HealthChecker) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if hc.Check(timeoutCtx) {
			return nil
		}
		select {
		case <-timeoutCtx.Done():
			return timeoutCtx.Err()
		case <-ticker.C:
		}
	}
}
