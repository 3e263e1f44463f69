package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/queue"
	"github.com/hupe1980/dialogmesh/runner"
)

const (
	configName = "dialogmesh"
	configType = "yaml"
	envPrefix  = "DIALOGMESH"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the CLI configuration.
type Config struct {
	Storage StorageConfig
	Queue   QueueConfig
	Log     LogConfig

	MaxSteps int
}

// StorageConfig selects and addresses the storage backend.
type StorageConfig struct {
	Backend string
	// Address is a redis URL or a sqlite file path.
	Address string
	Prefix  string
}

// QueueConfig configures the input queue.
type QueueConfig struct {
	Timeout time.Duration
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from path (or dialogmesh.yaml in the
// working directory) and DIALOGMESH_* environment variables. A missing
// config file is not an error.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.address", "")
	v.SetDefault("storage.prefix", "dialogmesh:")
	v.SetDefault("queue.timeout", queue.DefaultTimeout)
	v.SetDefault("max_steps", runner.DefaultMaxSteps)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Storage: StorageConfig{
			Backend: strings.ToLower(v.GetString("storage.backend")),
			Address: v.GetString("storage.address"),
			Prefix:  v.GetString("storage.prefix"),
		},
		Queue:    QueueConfig{Timeout: v.GetDuration("queue.timeout")},
		Log:      LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		MaxSteps: v.GetInt("max_steps"),
	}

	return cfg, cfg.Validate()
}

// Validate checks the backend is known and addressed.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis, BackendSQLite:
		if c.Storage.Address == "" {
			return fmt.Errorf("storage backend %q needs storage.address", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}
