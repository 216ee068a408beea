package testutil

import (
	"testing"

	"github.com/mysterria/silkroad/cache"
	"github.com/mysterria/silkroad/config"
	dbadapter "github.com/mysterria/silkroad/db"
	"github.com/mysterria/silkroad/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an isolated in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeSQLiteMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache opens the in-process cache and pub/sub (no Redis required)
// and closes them with the test.
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	b, err := cache.Open(cache.CacheConfig{})
	require.NoError(t, err, "SetupTestCache: Open")
	t.Cleanup(func() { _ = b.Close() })
	return b.Cache, b.PubSub
}
