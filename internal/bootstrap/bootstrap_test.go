package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/cache"
	"github.com/spec-kit/ticket-sla-engine/internal/config"
	"github.com/spec-kit/ticket-sla-engine/internal/notify"
	"github.com/spec-kit/ticket-sla-engine/internal/persistence"
	"github.com/spec-kit/ticket-sla-engine/internal/storage"
)

func TestNewCacheStore_FallsBackToMemory(t *testing.T) {
	store := newCacheStore(&persistence.Redis{}, config.CacheConfig{Namespace: "tse"})
	assert.IsType(t, &cache.MemoryStore{}, store)
}

func TestHealthChecks_SkipsDisabledRedis(t *testing.T) {
	c := &Components{Postgres: &persistence.Postgres{}, Redis: &persistence.Redis{}}
	checks := c.HealthChecks()
	require.Len(t, checks, 1)
	assert.ErrorIs(t, checks["postgres"].Ping(context.Background()), persistence.ErrNotConfigured)
}

func TestNewSender(t *testing.T) {
	assert.IsType(t, &notify.LogSender{}, newSender(config.NotificationConfig{}, zap.NewNop()))
	assert.IsType(t, &notify.WebhookSender{}, newSender(config.NotificationConfig{WebhookURL: "http://hooks.local/notify"}, zap.NewNop()))
}

func TestNewFileStore_Local(t *testing.T) {
	store, closeFn, err := newFileStore(context.Background(), config.RetentionConfig{FileStore: config.FileStoreLocal, LocalRoot: t.TempDir()})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &storage.LocalStore{}, store)
}
