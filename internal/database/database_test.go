package database

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"

	"github.com/aihub/ragindex/internal/config"
)

func TestOpen_AppliesPoolSettings(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)

	db, err := open(postgres.New(postgres.Config{Conn: sqlDB}), config.DatabaseConfig{MaxOpenConns: 7}, nil)
	require.NoError(t, err)

	underlying, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 7, underlying.Stats().MaxOpenConnections)
	assert.NoError(t, Close(db))
}

func TestOpenPostgres_RequiresURL(t *testing.T) {
	_, err := OpenPostgres(config.DatabaseConfig{}, nil)
	assert.Error(t, err)
	assert.NoError(t, Close(nil))
}

func TestOpenRedis_Unreachable(t *testing.T) {
	_, err := OpenRedis(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: "1"})
	assert.Error(t, err)
}

func TestHealthChecker_FailureAndRecovery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	checker := NewHealthChecker(nil)
	checker.Register("postgres", db.PingContext)
	assert.False(t, checker.IsHealthy())

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	assert.False(t, checker.Check(context.Background()))
	assert.False(t, checker.IsHealthy())
	result := checker.GetHealthResult()
	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Components["postgres"].LastError)

	mock.ExpectPing()
	assert.True(t, checker.Check(context.Background()))
	assert.True(t, checker.IsHealthy())
	assert.True(t, checker.GetHealthResult().Healthy)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_MultipleComponents(t *testing.T) {
	checker := NewHealthChecker(nil)
	checker.Register("vector_index", func(ctx context.Context) error { return nil })
	checker.Register("text_store", func(ctx context.Context) error { return errors.New("not ready") })

	assert.Equal(t, []string{"text_store", "vector_index"}, checker.Components())
	assert.False(t, checker.Check(context.Background()))

	result := checker.GetHealthResult()
	assert.True(t, result.Components["vector_index"].Healthy)
	assert.False(t, result.Components["text_store"].Healthy)
	assert.Equal(t, "not ready", result.Components["text_store"].LastError)
}

func TestHealthChecker_BackgroundMonitoring(t *testing.T) {
	checker := NewHealthChecker(nil)
	checker.SetCheckInterval(10 * time.Millisecond)
	var healthy atomic.Bool
	checker.Register("text_store", func(ctx context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("starting")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checker.Start(ctx)
	assert.False(t, checker.IsHealthy())

	healthy.Store(true)
	assert.Eventually(t, checker.IsHealthy, time.Second, 10*time.Millisecond)
	checker.Stop()
}

func TestHealthChecker_WaitForHealthyTimeout(t *testing.T) {
	checker := NewHealthChecker(nil)
	checker.Register("milvus", func(ctx context.Context) error { return errors.New("down") })

	err := checker.WaitForHealthy(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
