package knowledge

import (
	"context"
	"strings"
)

// Metric 向量距离度量
type Metric string

const (
	MetricL2 Metric = "L2"
	MetricIP Metric = "IP"
)

// ParseMetric 解析配置中的度量名称，默认 L2
func ParseMetric(value string) Metric {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return MetricIP
	default:
		return MetricL2
	}
}

// CollectionSpec 集合定义，维度在创建时固定
type CollectionSpec struct {
	Dimension int
	Metric    Metric
}

// VectorHit 检索命中，Distance 越小越相近
type VectorHit struct {
	ID       string  `json:"id"`
	Distance float32 `json:"distance"`
}

// VectorIndex 近似最近邻向量索引
//
// 写入后的条目在 Finalize 与 Load 完成前不可检索；Load 之前调用 Search
// 返回 INDEX_NOT_READY。条目只插入一次，不做去重。
type VectorIndex interface {
	Create(ctx context.Context, spec CollectionSpec) error
	Drop(ctx context.Context) error
	InsertBatch(ctx context.Context, chunks []Chunk) error
	Flush(ctx context.Context) error
	Finalize(ctx context.Context, partitions int) error
	Load(ctx context.Context) error
	Search(ctx context.Context, vector []float32, topK, searchWidth int) ([]VectorHit, error)
	Count(ctx context.Context) (int64, error)
	Ready() bool
	Close() error
}
