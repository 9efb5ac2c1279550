// Package config loads tenured configuration from an optional YAML file, a
// .env file and TENURE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xraph/tenure"
)

// EnvPrefix prefixes every environment override: TENURE_STORE_DRIVER sets
// store.driver.
const EnvPrefix = "TENURE"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSqlite   = "sqlite"
)

// Config is the daemon configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Tenure TenureConfig `mapstructure:"tenure"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	SqlitePath    string `mapstructure:"sqlite_path"`
}

// RedisConfig enables the redis locker when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// TenureConfig holds the engine settings.
type TenureConfig struct {
	Authority       string        `mapstructure:"authority"`
	SystemAddress   string        `mapstructure:"system_address"`
	Currency        string        `mapstructure:"currency"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
}

var defaults = map[string]any{
	"server.addr":             ":8080",
	"server.metrics_addr":     ":9090",
	"server.read_timeout":     10 * time.Second,
	"server.write_timeout":    10 * time.Second,
	"server.shutdown_timeout": 15 * time.Second,

	"log.level":  "info",
	"log.format": "json",

	"store.driver":         DriverMemory,
	"store.postgres_dsn":   "",
	"store.mongo_uri":      "",
	"store.mongo_database": "tenure",
	"store.sqlite_path":    "tenure.db",

	"redis.addr":     "",
	"redis.password": "",
	"redis.db":       0,
	"redis.lock_ttl": 30 * time.Second,

	"tenure.authority":        "",
	"tenure.system_address":   "",
	"tenure.currency":         "wei",
	"tenure.freshness_window": tenure.DefaultFreshnessWindow,
}

// Load reads configuration. path may be empty; a missing .env file is not an
// error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs tenure.MultiError

	if !common.IsHexAddress(c.Tenure.Authority) {
		errs.Add(tenure.ValidationError{Field: "tenure.authority", Message: "must be a hex address"})
	}
	if c.Tenure.SystemAddress != "" && !common.IsHexAddress(c.Tenure.SystemAddress) {
		errs.Add(tenure.ValidationError{Field: "tenure.system_address", Message: "must be a hex address"})
	}
	if c.Tenure.FreshnessWindow <= 0 {
		errs.Add(tenure.ValidationError{Field: "tenure.freshness_window", Message: "must be positive"})
	}
	if c.Tenure.Currency == "" {
		errs.Add(tenure.ValidationError{Field: "tenure.currency", Message: "required"})
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs.Add(tenure.ValidationError{Field: "store.postgres_dsn", Message: "required for postgres driver"})
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			errs.Add(tenure.ValidationError{Field: "store.mongo_uri", Message: "required for mongo driver"})
		}
	case DriverSqlite:
		if c.Store.SqlitePath == "" {
			errs.Add(tenure.ValidationError{Field: "store.sqlite_path", Message: "required for sqlite driver"})
		}
	default:
		errs.Add(tenure.ValidationError{Field: "store.driver", Message: fmt.Sprintf("unknown driver %q", c.Store.Driver)})
	}

	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		errs.Add(tenure.ValidationError{Field: "redis.lock_ttl", Message: "must be positive"})
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// EngineOptions converts the tenure section into engine options.
func (c *Config) EngineOptions() []tenure.Option {
	opts := []tenure.Option{
		tenure.WithAuthority(common.HexToAddress(c.Tenure.Authority)),
		tenure.WithCurrency(c.Tenure.Currency),
		tenure.WithFreshnessWindow(c.Tenure.FreshnessWindow),
	}
	if c.Tenure.SystemAddress != "" {
		opts = append(opts, tenure.WithSystemAddress(common.HexToAddress(c.Tenure.SystemAddress)))
	}
	return opts
}
