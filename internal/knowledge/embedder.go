package knowledge

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, apperrors.NewProviderError("embedding", errors.New("embedding provider not configured"))
}

func (n *NoopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.NewProviderError("embedding", errors.New("embedding provider not configured"))
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"all-MiniLM-L6-v2":       384,
}

// OpenAIEmbedder 使用OpenAI兼容的Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	// requestDims 非零时随请求下发，要求服务端截断到该维度
	requestDims int
}

// OpenAIEmbedderOptions 嵌入服务参数
type OpenAIEmbedderOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器，未配置密钥时退化为 NoopEmbedder
func NewOpenAIEmbedder(opts OpenAIEmbedderOptions) Embedder {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	model := opts.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	native, known := embeddingDimensions[model]
	dims := opts.Dimensions
	if dims <= 0 {
		dims = native
		if !known {
			dims = 1536
		}
	}

	// text-embedding-3 系列支持指定输出维度，其他模型维度不符时由响应校验报错
	var requestDims int
	if known && dims != native && strings.HasPrefix(model, "text-embedding-3") {
		requestDims = dims
	}

	return &OpenAIEmbedder{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		dimensions:  dims,
		requestDims: requestDims,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewInvalidInputError("text", "text is empty")
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 一次请求向量化多条文本，结果按输入顺序返回
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      texts,
		Dimensions: e.requestDims,
	})
	if err != nil {
		return nil, apperrors.NewProviderError("embedding", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewProviderError("embedding",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	result := make([][]float32, len(texts))
	for i, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		if len(item.Embedding) != e.dimensions {
			return nil, apperrors.NewDimensionError(e.dimensions, len(item.Embedding))
		}
		vector := make([]float32, len(item.Embedding))
		copy(vector, item.Embedding)
		result[idx] = vector
	}
	return result, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashEmbedder 基于特征哈希的离线向量化，无需外部服务
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder 创建哈希向量化器
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dimensions)
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(token))
		sum := hasher.Sum64()
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[sum%uint64(h.dimensions)] += sign
	}

	// L2 归一化
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

func (h *HashEmbedder) Dimensions() int {
	return h.dimensions
}

func (h *HashEmbedder) Ready() bool {
	return true
}
