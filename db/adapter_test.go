package db

import (
	"path/filepath"
	"testing"

	"github.com/mysterria/silkroad/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "embedded_xml"})
	assert.Error(t, err)
}

func TestOpen_MemoryIsolated(t *testing.T) {
	a, err := Open(config.DatabaseConfig{Mode: ModeSQLiteMemory})
	require.NoError(t, err)
	b, err := Open(config.DatabaseConfig{Mode: ModeSQLiteMemory})
	require.NoError(t, err)

	require.NoError(t, a.Exec("CREATE TABLE probe (id INTEGER)").Error)
	assert.True(t, a.Migrator().HasTable("probe"))
	assert.False(t, b.Migrator().HasTable("probe"))
}

func TestOpen_SQLiteFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "silkroad.db")
	gdb, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, gdb.Exec("CREATE TABLE probe (id INTEGER)").Error)
	assert.FileExists(t, path)
}
