package knowledge

import (
	"strings"
)

// Chunk 句子级切片，ID 与 Vector 在入库流程中逐步填充
type Chunk struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Sequence int       `json:"sequence"`
	Vector   []float32 `json:"vector,omitempty"`
}

// sentenceTerminators 句末标点；小数点和缩写同样会被切开
const sentenceTerminators = ".!?"

// SentenceChunker 按句末标点切分文本
type SentenceChunker struct{}

// NewSentenceChunker 创建分句器
func NewSentenceChunker() *SentenceChunker {
	return &SentenceChunker{}
}

// Split 将文本切分为有序、去空白且非空的句子
func (c *SentenceChunker) Split(text string) []Chunk {
	var (
		chunks  []Chunk
		current strings.Builder
	)

	flush := func() {
		sentence := strings.TrimSpace(current.String())
		current.Reset()
		if sentence == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Text:     sentence,
			Sequence: len(chunks),
		})
	}

	for _, r := range text {
		if strings.ContainsRune(sentenceTerminators, r) {
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()

	return chunks
}

// Texts 提取切片文本
func Texts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	return texts
}
