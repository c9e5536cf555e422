package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "REDIS_HOST", "REDIS_PORT",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "GROQ_API_KEY", "MILVUS_ADDRESS",
		"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "KAFKA_BROKERS", "CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())

	assert.Equal(t, "sqlite", cfg.Knowledge.TextStore.Provider)
	assert.Equal(t, "sentences", cfg.Knowledge.TextStore.Table)
	assert.Equal(t, "memory", cfg.Knowledge.VectorStore.Provider)
	assert.Equal(t, 128, cfg.Knowledge.VectorStore.NList)
	assert.Equal(t, 10, cfg.Knowledge.VectorStore.NProbe)
	assert.Equal(t, 1000, cfg.Knowledge.Ingest.TextBatchSize)
	assert.Equal(t, 5000, cfg.Knowledge.Ingest.VectorBatchSize)
	assert.Equal(t, 4, cfg.Knowledge.Ingest.MaxParallel)
	assert.Equal(t, 40, cfg.Knowledge.Query.TopK)
	assert.False(t, cfg.Kafka.Enabled)
	assert.True(t, cfg.Knowledge.EphemeralVectors())
}

func TestKnowledgeConfig_EphemeralVectors(t *testing.T) {
	k := KnowledgeConfig{
		TextStore:   TextStoreConfig{Provider: "postgres"},
		VectorStore: VectorStoreConfig{Provider: "milvus"},
	}
	assert.False(t, k.EphemeralVectors())

	k.VectorStore.Provider = "memory"
	assert.True(t, k.EphemeralVectors())

	k.TextStore.Provider = "memory"
	assert.False(t, k.EphemeralVectors())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9100")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("RAGINDEX_KNOWLEDGE_QUERY_TOP_K", "7")
	t.Setenv("RAGINDEX_KNOWLEDGE_VECTOR_STORE_PROVIDER", "milvus")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7, cfg.Knowledge.Query.TopK)
	assert.Equal(t, "milvus", cfg.Knowledge.VectorStore.Provider)
}

func TestLoad_GroqKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gsk-test", cfg.AI.APIKey)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.AI.BaseURL)
}

func TestLoad_ConfigFileAndValidation(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
knowledge:
  text_store:
    provider: postgres
  ingest:
    text_batch_size: 250
`), 0o600))

	cfg, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Knowledge.TextStore.Provider)
	assert.Equal(t, 250, cfg.Knowledge.Ingest.TextBatchSize)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
knowledge:
  vector_store:
    provider: faiss
`), 0o600))

	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
