package knowledge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType 入库过程事件类型
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventBatchCommitted EventType = "batch_committed"
	EventBatchFailed    EventType = "batch_failed"
	EventFinalized      EventType = "finalized"
	EventRunFinished    EventType = "run_finished"
	EventRunFailed      EventType = "run_failed"
)

// 目标存储名称
const (
	StoreText   = "text"
	StoreVector = "vector"
)

// Event 结构化进度事件
type Event struct {
	Type         EventType     `json:"type"`
	RunID        string        `json:"run_id"`
	Store        string        `json:"store,omitempty"`
	Batch        int           `json:"batch,omitempty"`
	TotalBatches int           `json:"total_batches,omitempty"`
	Records      int           `json:"records,omitempty"`
	Total        int           `json:"total,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Reporter 接收入库事件，实现不得阻塞写入流程
type Reporter interface {
	Report(ctx context.Context, event Event)
}

// NopReporter 丢弃所有事件
type NopReporter struct{}

func (NopReporter) Report(context.Context, Event) {}

// LogReporter 以结构化日志输出事件
type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(ctx context.Context, event Event) {
	fields := []zap.Field{
		zap.String("run_id", event.RunID),
		zap.String("event", string(event.Type)),
	}
	if event.Store != "" {
		fields = append(fields, zap.String("store", event.Store))
	}
	if event.Batch > 0 {
		fields = append(fields, zap.Int("batch", event.Batch), zap.Int("total_batches", event.TotalBatches))
	}
	if event.Records > 0 {
		fields = append(fields, zap.Int("records", event.Records))
	}
	if event.Total > 0 {
		fields = append(fields, zap.Int("total", event.Total))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}

	switch event.Type {
	case EventBatchFailed, EventRunFailed:
		r.logger.Error("ingest "+string(event.Type), append(fields, zap.String("error", event.Error))...)
	default:
		r.logger.Info("ingest "+string(event.Type), fields...)
	}
}

// MultiReporter 依次分发给多个 Reporter
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, event Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, event)
		}
	}
}

// RecordingReporter 在内存中记录事件
type RecordingReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingReporter) Report(ctx context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events 返回已记录事件的副本
func (r *RecordingReporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
