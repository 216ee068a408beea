package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mysterria/silkroad/config"
	dbmysql "github.com/mysterria/silkroad/db/mysql"
	dbsqlite "github.com/mysterria/silkroad/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite       = "sqlite"
	ModeSQLiteMemory = "sqlite_memory"
	ModeMySQL        = "mysql"
)

// Open returns a *gorm.DB for the configured database mode. Each
// sqlite_memory open gets its own isolated database.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeSQLiteMemory:
		return dbsqlite.OpenMemory("silkroad_" + uuid.NewString())
	case ModeMySQL:
		return dbmysql.Open(dbmysql.Options{
			DSN:     cfg.MySQLDSN,
			MaxOpen: cfg.MySQLMaxOpen,
			MaxIdle: cfg.MySQLMaxIdle,
			MaxLife: cfg.MySQLMaxLife,
		})
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
