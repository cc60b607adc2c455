package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".newsfang"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for newsfang settings.
const envPrefix = "NEWSFANG"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("storage.driver", "sqlite")
	viperCfg.SetDefault("storage.dsn", "file:newsfang.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	viperCfg.SetDefault("storage.max_open_conns", 8)
	viperCfg.SetDefault("storage.conn_max_lifetime", 30*time.Minute)

	viperCfg.SetDefault("redis.addr", "")
	viperCfg.SetDefault("redis.ttl", 24*time.Hour)

	viperCfg.SetDefault("fetcher.timeout", 30*time.Second)
	viperCfg.SetDefault("fetcher.rate_limit", 1.0)
	viperCfg.SetDefault("fetcher.rate_burst", 3)
	viperCfg.SetDefault("fetcher.retry.max_attempts", 5)
	viperCfg.SetDefault("fetcher.retry.initial_delay", time.Second)
	viperCfg.SetDefault("fetcher.retry.multiplier", 2.0)
	viperCfg.SetDefault("fetcher.retry.max_delay", time.Minute)
	viperCfg.SetDefault("fetcher.breaker.failure_threshold", 5)
	viperCfg.SetDefault("fetcher.breaker.success_threshold", 2)
	viperCfg.SetDefault("fetcher.breaker.open_duration", 30*time.Second)

	viperCfg.SetDefault("health.min_success_rate", 50.0)
	viperCfg.SetDefault("health.min_jobs", 10)
	viperCfg.SetDefault("health.max_consecutive_failures", 5)

	viperCfg.SetDefault("validation.min_length", 16)
	viperCfg.SetDefault("validation.max_length", 100_000)
	viperCfg.SetDefault("validation.allowed_languages", []string{})

	viperCfg.SetDefault("refine.quality_threshold", 0.3)
	viperCfg.SetDefault("refine.chunk_size", 256)
	viperCfg.SetDefault("refine.chunk_overlap", 32)
	viperCfg.SetDefault("refine.max_parallel", 4)

	viperCfg.SetDefault("observability.environment", "dev")
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.prometheus", true)
	viperCfg.SetDefault("observability.sample_ratio", 1.0)
	viperCfg.SetDefault("observability.diagnostics_addr", ":9464")
}
