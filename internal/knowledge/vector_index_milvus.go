package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

const (
	milvusIDField       = "chunk_id"
	milvusSequenceField = "sequence"
	milvusVectorField   = "embedding"
	milvusIDMaxLength   = 36
)

// milvusClient 用到的 Milvus SDK 接口子集
type milvusClient interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	DescribeCollection(ctx context.Context, collName string) (*entity.Collection, error)
	DropCollection(ctx context.Context, collName string, opts ...client.DropCollectionOption) error
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	Insert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Flush(ctx context.Context, collName string, async bool, opts ...client.FlushOption) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	GetLoadState(ctx context.Context, collName string, partitionNames []string) (entity.LoadState, error)
	GetCollectionStatistics(ctx context.Context, collName string) (map[string]string, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
		opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dimension  int
	Metric     Metric
	UseTLS     bool
	Timeout    time.Duration
}

// MilvusVectorIndex 基于 Milvus 的向量索引
type MilvusVectorIndex struct {
	client     milvusClient
	collection string
	logger     *zap.Logger

	// 重建与检索可能并发，spec 由 mu 保护
	mu     sync.RWMutex
	spec   CollectionSpec
	loaded atomic.Bool
}

// NewMilvusVectorIndex 创建Milvus向量索引
func NewMilvusVectorIndex(ctx context.Context, opts MilvusOptions, logger *zap.Logger) (*MilvusVectorIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	milvus, err := client.NewClient(dialCtx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeConnectionFailed, "failed to create milvus client").WithCause(err)
	}

	return newMilvusVectorIndex(milvus, opts, logger), nil
}

func newMilvusVectorIndex(c milvusClient, opts MilvusOptions, logger *zap.Logger) *MilvusVectorIndex {
	collection := opts.Collection
	if collection == "" {
		collection = "sentence_embeddings"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilvusVectorIndex{
		client:     c,
		collection: collection,
		logger:     logger.With(zap.String("collection", collection)),
		spec:       CollectionSpec{Dimension: opts.Dimension, Metric: opts.Metric},
	}
}

func (m *MilvusVectorIndex) currentSpec() CollectionSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spec
}

func (m *MilvusVectorIndex) setSpec(spec CollectionSpec) {
	m.mu.Lock()
	m.spec = spec
	m.mu.Unlock()
}

func milvusMetric(m Metric) entity.MetricType {
	if m == MetricIP {
		return entity.IP
	}
	return entity.L2
}

// Create 删除同名集合后按维度重新建表
func (m *MilvusVectorIndex) Create(ctx context.Context, spec CollectionSpec) error {
	if spec.Dimension <= 0 {
		return apperrors.NewDimensionError(1, spec.Dimension)
	}
	if spec.Metric == "" {
		spec.Metric = MetricL2
	}
	if err := m.Drop(ctx); err != nil {
		return err
	}

	schema := &entity.Schema{
		CollectionName: m.collection,
		Description:    "sentence embeddings keyed by chunk id",
		Fields: []*entity.Field{
			{
				Name:       milvusIDField,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					entity.TypeParamMaxLength: strconv.Itoa(milvusIDMaxLength),
				},
			},
			{
				Name:     milvusSequenceField,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     milvusVectorField,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					entity.TypeParamDim: strconv.Itoa(spec.Dimension),
				},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	m.setSpec(spec)
	m.logger.Info("milvus collection created", zap.Int("dimension", spec.Dimension), zap.String("metric", string(spec.Metric)))
	return nil
}

// Drop 删除集合，不存在时忽略
func (m *MilvusVectorIndex) Drop(ctx context.Context) error {
	m.loaded.Store(false)

	exists, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}
	if err := m.client.DropCollection(ctx, m.collection); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.logger.Info("milvus collection dropped")
	return nil
}

func (m *MilvusVectorIndex) InsertBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	spec := m.currentSpec()
	if spec.Dimension == 0 {
		return apperrors.NewIndexNotReadyError(m.collection)
	}

	ids := make([]string, len(chunks))
	sequences := make([]int64, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Vector) != spec.Dimension {
			return apperrors.NewDimensionError(spec.Dimension, len(chunk.Vector))
		}
		ids[i] = chunk.ID
		sequences[i] = int64(chunk.Sequence)
		vectors[i] = chunk.Vector
	}

	_, err := m.client.Insert(ctx, m.collection, "",
		entity.NewColumnVarChar(milvusIDField, ids),
		entity.NewColumnInt64(milvusSequenceField, sequences),
		entity.NewColumnFloatVector(milvusVectorField, spec.Dimension, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}
	return nil
}

func (m *MilvusVectorIndex) Flush(ctx context.Context) error {
	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		return fmt.Errorf("milvus flush failed: %w", err)
	}
	return nil
}

// Finalize 构建 IVF_FLAT 索引，partitions 即 nlist
func (m *MilvusVectorIndex) Finalize(ctx context.Context, partitions int) error {
	if partitions <= 0 {
		partitions = 128
	}
	index, err := entity.NewIndexIvfFlat(milvusMetric(m.currentSpec().Metric), partitions)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collection, milvusVectorField, index, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	m.logger.Info("milvus index created", zap.String("index", "IVF_FLAT"), zap.Int("nlist", partitions))
	return nil
}

func (m *MilvusVectorIndex) Load(ctx context.Context) error {
	if err := m.client.LoadCollection(ctx, m.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	m.loaded.Store(true)
	return nil
}

// ensureLoaded 其他进程完成加载的集合也视为就绪
func (m *MilvusVectorIndex) ensureLoaded(ctx context.Context) error {
	if m.loaded.Load() {
		return nil
	}
	exists, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return apperrors.NewIndexNotReadyError(m.collection)
	}
	state, err := m.client.GetLoadState(ctx, m.collection, nil)
	if err != nil {
		return fmt.Errorf("failed to get load state: %w", err)
	}
	if state != entity.LoadStateLoaded {
		return apperrors.NewIndexNotReadyError(m.collection)
	}
	if err := m.syncDimension(ctx); err != nil {
		return err
	}
	m.loaded.Store(true)
	return nil
}

// syncDimension 以集合 schema 中的实际维度为准
func (m *MilvusVectorIndex) syncDimension(ctx context.Context) error {
	coll, err := m.client.DescribeCollection(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to describe collection: %w", err)
	}
	if coll == nil || coll.Schema == nil {
		return nil
	}
	for _, field := range coll.Schema.Fields {
		if field.Name != milvusVectorField {
			continue
		}
		dim, err := strconv.Atoi(field.TypeParams[entity.TypeParamDim])
		if err != nil || dim <= 0 {
			return fmt.Errorf("invalid dimension %q in collection schema", field.TypeParams[entity.TypeParamDim])
		}
		spec := m.currentSpec()
		if spec.Dimension != dim {
			m.logger.Warn("configured dimension differs from collection schema",
				zap.Int("configured", spec.Dimension), zap.Int("collection", dim))
			spec.Dimension = dim
			m.setSpec(spec)
		}
	}
	return nil
}

func (m *MilvusVectorIndex) Search(ctx context.Context, vector []float32, topK, searchWidth int) ([]VectorHit, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	spec := m.currentSpec()
	if spec.Dimension > 0 && len(vector) != spec.Dimension {
		return nil, apperrors.NewDimensionError(spec.Dimension, len(vector))
	}
	if topK <= 0 {
		return []VectorHit{}, nil
	}
	if searchWidth <= 0 {
		searchWidth = 10
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(searchWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.collection,
		[]string{},
		"",
		[]string{milvusIDField},
		[]entity.Vector{entity.FloatVector(vector)},
		milvusVectorField,
		milvusMetric(spec.Metric),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(results) == 0 {
		return []VectorHit{}, nil
	}

	// 只有一个查询向量，取第一个结果
	result := results[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 || result.IDs == nil {
		return []VectorHit{}, nil
	}

	idColumn, ok := result.IDs.(*entity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("unexpected id column type %T", result.IDs)
	}
	ids := idColumn.Data()

	hits := make([]VectorHit, 0, result.ResultCount)
	for i := 0; i < result.ResultCount && i < len(ids); i++ {
		var distance float32
		if i < len(result.Scores) {
			distance = result.Scores[i]
		}
		// IP 返回相似度，取负后与 L2 一样越小越近
		if spec.Metric == MetricIP {
			distance = -distance
		}
		hits = append(hits, VectorHit{ID: ids[i], Distance: distance})
	}
	return hits, nil
}

func (m *MilvusVectorIndex) Count(ctx context.Context) (int64, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	count, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", stats["row_count"], err)
	}
	return count, nil
}

func (m *MilvusVectorIndex) Ready() bool {
	if m.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.client.HasCollection(ctx, m.collection)
	return err == nil
}

func (m *MilvusVectorIndex) Close() error {
	return m.client.Close()
}
