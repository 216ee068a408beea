package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Items    ItemsConfig    `mapstructure:"items"`
}

type ServerConfig struct {
	Debug bool `mapstructure:"debug"`
}

type StorageConfig struct {
	Mode    string `mapstructure:"mode"` // file | db
	DataDir string `mapstructure:"data_dir"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | sqlite_memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// TransferConfig holds the cost model, delivery timing and settlement period.
type TransferConfig struct {
	DistanceCostPerBlock float64       `mapstructure:"distance_cost_per_block"`
	StackCost            float64       `mapstructure:"stack_cost"`
	LegacyItemCost       float64       `mapstructure:"legacy_item_cost"`
	MinimumCost          int           `mapstructure:"minimum_cost"`
	BaseTimeMs           int64         `mapstructure:"base_time_ms"`
	TimePerBlockMs       int64         `mapstructure:"time_per_block_ms"`
	SettleInterval       time.Duration `mapstructure:"settle_interval"`
	ClaimLockTTL         time.Duration `mapstructure:"claim_lock_ttl"`
	Debug                bool          `mapstructure:"debug"`
}

type ItemsConfig struct {
	DefaultMaxStack int            `mapstructure:"default_max_stack"`
	MaxStack        map[string]int `mapstructure:"max_stack"`
	// Restrict rejects item types that are not listed in MaxStack.
	Restrict bool `mapstructure:"restrict"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SILKROAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration that Load produces for an empty file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.debug", false)
	v.SetDefault("storage.mode", "file")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/silkroad.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.key_prefix", "silkroad:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("transfer.distance_cost_per_block", 0.1)
	v.SetDefault("transfer.stack_cost", 2.0)
	v.SetDefault("transfer.legacy_item_cost", 0.5)
	v.SetDefault("transfer.minimum_cost", 1)
	v.SetDefault("transfer.base_time_ms", 300000) // 5 minutes
	v.SetDefault("transfer.time_per_block_ms", 1000)
	v.SetDefault("transfer.settle_interval", "1s")
	v.SetDefault("transfer.claim_lock_ttl", "30s")
	v.SetDefault("transfer.debug", false)
	v.SetDefault("items.default_max_stack", 64)
	v.SetDefault("items.restrict", false)
}
