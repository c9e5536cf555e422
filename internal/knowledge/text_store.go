package knowledge

import (
	"context"
	"fmt"
	"regexp"
)

// TextRecord 文本库中的一行
type TextRecord struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Sequence int    `json:"sequence"`
}

// TextStore 以切片ID为键的文本存储，只做点查不做内容检索
type TextStore interface {
	// Reset 重建表，清空已有数据
	Reset(ctx context.Context) error
	// UpsertBatch 写入一批记录，返回时已提交
	UpsertBatch(ctx context.Context, records []TextRecord) error
	Lookup(ctx context.Context, id string) (string, bool, error)
	Count(ctx context.Context) (int64, error)
	Ready() bool
	Close() error
}

// TextRecords 将切片转换为文本记录
func TextRecords(chunks []Chunk) []TextRecord {
	records := make([]TextRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = TextRecord{ID: chunk.ID, Text: chunk.Text, Sequence: chunk.Sequence}
	}
	return records
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func validateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
