package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aihub/ragindex/internal/config"
)

// MinIOScheme 对象存储源前缀，格式 minio://bucket/key
const MinIOScheme = "minio://"

// maxSourceBytes 单个源文档大小上限
const maxSourceBytes = 256 << 20

// SourceLoader 读取本地文件或 MinIO 对象中的原始文本
type SourceLoader struct {
	client *minio.Client
}

// NewSourceLoader 未配置 endpoint 时只支持本地文件
func NewSourceLoader(cfg config.StorageConfig) (*SourceLoader, error) {
	if cfg.Endpoint == "" {
		return &SourceLoader{}, nil
	}

	// minio.New 不需要协议前缀
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &SourceLoader{client: client}, nil
}

// ParseObjectURI 解析 minio://bucket/key
func ParseObjectURI(source string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(source, MinIOScheme)
	if !ok {
		return "", "", fmt.Errorf("not a minio source: %s", source)
	}
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid minio source %q, expected minio://bucket/key", source)
	}
	return bucket, key, nil
}

// Load 读取整篇文本
func (l *SourceLoader) Load(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, MinIOScheme) {
		return l.loadObject(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()
	return readAll(f, source)
}

func (l *SourceLoader) loadObject(ctx context.Context, source string) (string, error) {
	bucket, key, err := ParseObjectURI(source)
	if err != nil {
		return "", err
	}
	if l.client == nil {
		return "", fmt.Errorf("minio endpoint not configured, cannot read %s", source)
	}

	obj, err := l.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get object %s: %w", source, err)
	}
	defer obj.Close()
	return readAll(obj, source)
}

func readAll(r io.Reader, source string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSourceBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", source, err)
	}
	if len(data) > maxSourceBytes {
		return "", fmt.Errorf("source %s exceeds %d bytes", source, maxSourceBytes)
	}
	return string(data), nil
}
