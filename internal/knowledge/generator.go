package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "github.com/aihub/ragindex/internal/errors"
)

// 回答兜底文案
const (
	AnswerNoData      = "Sorry, no data available."
	AnswerNoContext   = "No relevant data found in the context."
	AnswerUnavailable = "Unable to generate response."
)

const defaultInstructions = "Answer strictly based on the retrieved context. " +
	"If the context is insufficient, respond with: '" + AnswerNoData + "'"

// Generator 基于检索上下文生成回答
type Generator interface {
	Generate(ctx context.Context, question string, contexts []string) (string, error)
}

// GeneratorOptions 生成参数
type GeneratorOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float32
	Instructions string
}

// OpenAIGenerator 调用OpenAI兼容的Chat Completions接口（含Groq）
type OpenAIGenerator struct {
	client *openai.Client
	opts   GeneratorOptions
	logger *zap.Logger
}

// NewOpenAIGenerator 创建生成器，未配置密钥时每次调用都返回兜底回答
func NewOpenAIGenerator(opts GeneratorOptions, logger *zap.Logger) *OpenAIGenerator {
	if opts.Model == "" {
		opts.Model = "llama3-70b-8192"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if strings.TrimSpace(opts.Instructions) == "" {
		opts.Instructions = defaultInstructions
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &OpenAIGenerator{opts: opts, logger: logger}
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		config := openai.DefaultConfig(key)
		if opts.BaseURL != "" {
			config.BaseURL = opts.BaseURL
		}
		g.client = openai.NewClientWithConfig(config)
	}
	return g
}

// Ready 是否已配置模型服务
func (g *OpenAIGenerator) Ready() bool {
	return g.client != nil
}

// Prompt 组装提示词
func (g *OpenAIGenerator) Prompt(question string, contexts []string) string {
	var b strings.Builder
	b.WriteString(g.opts.Instructions)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(contexts, "\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// Generate 无上下文时不调用模型；调用失败返回兜底回答和 PROVIDER_ERROR
func (g *OpenAIGenerator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	if len(contexts) == 0 {
		return AnswerNoContext, nil
	}
	if g.client == nil {
		return AnswerUnavailable, apperrors.NewProviderError("generation", errors.New("generation provider not configured"))
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: g.Prompt(question, contexts)},
		},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		g.logger.Warn("answer generation failed", zap.String("model", g.opts.Model), zap.Error(err))
		return AnswerUnavailable, apperrors.NewProviderError("generation", err)
	}
	if len(resp.Choices) == 0 {
		return AnswerUnavailable, apperrors.NewProviderError("generation", fmt.Errorf("model %s returned no choices", g.opts.Model))
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return AnswerNoData, nil
	}
	return answer, nil
}
