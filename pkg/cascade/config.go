package cascade

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cascadekit/cascade/pkg/adapters/file"
	"github.com/cascadekit/cascade/pkg/adapters/memory"
	"github.com/cascadekit/cascade/pkg/adapters/redis"
	"github.com/cascadekit/cascade/pkg/adapters/sqlite"
)

// Storage provider names accepted by Config.
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
	ProviderSQLite = "sqlite"
	ProviderFile   = "file"
)

// Config selects and parameterizes the storage backend. It maps 1:1 onto the
// CASCADE_STORAGE_* environment variables and the YAML config file of the
// CLI.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig is the storage section of Config.
type StorageConfig struct {
	Provider   string      `yaml:"provider"`
	Redis      RedisConfig `yaml:"redis"`
	SQLitePath string      `yaml:"sqlite_path"`
	FileDir    string      `yaml:"file_dir"`
}

// RedisConfig parameterizes the redis provider.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// FromEnv reads the configuration from CASCADE_STORAGE_* environment
// variables. Unset variables leave their zero values; an unset provider
// means memory.
func FromEnv() Config {
	cfg := Config{}
	cfg.Storage.Provider = os.Getenv("CASCADE_STORAGE_PROVIDER")
	cfg.Storage.Redis.Addr = os.Getenv("CASCADE_STORAGE_REDIS_ADDR")
	cfg.Storage.Redis.Password = os.Getenv("CASCADE_STORAGE_REDIS_PASSWORD")
	if raw := os.Getenv("CASCADE_STORAGE_REDIS_DB"); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil {
			cfg.Storage.Redis.DB = db
		}
	}
	cfg.Storage.Redis.Prefix = os.Getenv("CASCADE_STORAGE_REDIS_PREFIX")
	cfg.Storage.SQLitePath = os.Getenv("CASCADE_STORAGE_SQLITE_PATH")
	cfg.Storage.FileDir = os.Getenv("CASCADE_STORAGE_FILE_DIR")
	return cfg
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Options translates the config into Engine options: the storage factory
// plus the teardown hooks for whatever it opened.
func (c Config) Options() ([]Option, error) {
	switch c.Storage.Provider {
	case "", ProviderMemory:
		hub := memory.NewStore()
		return []Option{
			WithStorage(hub.Factory()),
			WithLister(hub.ListEntities),
		}, nil

	case ProviderRedis:
		if c.Storage.Redis.Addr == "" {
			return nil, fmt.Errorf("redis provider requires an address")
		}
		client := redis.NewClient(redis.Options{
			Addr:     c.Storage.Redis.Addr,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
		})
		prefix := c.Storage.Redis.Prefix
		return []Option{
			WithStorage(redis.Factory(client, prefix)),
			WithLister(func(ctx context.Context) ([]string, error) {
				return redis.ListEntities(ctx, client, prefix)
			}),
			withCloser(client.Close),
		}, nil

	case ProviderSQLite:
		if c.Storage.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite provider requires a path")
		}
		db, err := sqlite.Open(c.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return []Option{
			WithStorage(sqlite.Factory(db)),
			WithLister(func(ctx context.Context) ([]string, error) {
				return sqlite.ListEntities(ctx, db)
			}),
			withCloser(db.Close),
		}, nil

	case ProviderFile:
		if c.Storage.FileDir == "" {
			return nil, fmt.Errorf("file provider requires a directory")
		}
		hub, err := file.NewStore(c.Storage.FileDir)
		if err != nil {
			return nil, err
		}
		return []Option{
			WithStorage(hub.Factory()),
			WithLister(hub.ListEntities),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
}

// FromConfig builds an Engine from a Config plus extra options.
func FromConfig(cfg Config, extra ...Option) (*Engine, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return New(append(opts, extra...)...)
}
