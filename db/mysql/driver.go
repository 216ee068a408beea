package mysql

import (
	"errors"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// utf8mb4 keys are limited to 767 bytes, so string ids default to 191 chars.
const defaultStringSize = 191

// Options configures the MySQL connection pool.
type Options struct {
	DSN     string
	MaxOpen int
	MaxIdle int
	MaxLife time.Duration
}

// Open connects to MySQL. parseTime is added to the DSN when missing so
// timestamp columns scan into time.Time.
func Open(o Options) (*gorm.DB, error) {
	if o.DSN == "" {
		return nil, errors.New("mysql: empty dsn")
	}
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               WithParseTime(o.DSN),
		DefaultStringSize: defaultStringSize,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(o.MaxOpen)
	sqlDB.SetMaxIdleConns(o.MaxIdle)
	sqlDB.SetConnMaxLifetime(o.MaxLife)
	return db, nil
}

// WithParseTime returns dsn with parseTime=true unless it already sets it.
func WithParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
