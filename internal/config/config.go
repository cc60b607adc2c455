// Package config loads and validates the newsfang configuration from file,
// environment variables, and defaults.
package config

import (
	"errors"
	"time"
)

// Config is the top-level configuration struct for newsfang.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Fetcher       FetcherConfig       `mapstructure:"fetcher"`
	Health        HealthConfig        `mapstructure:"health"`
	Validation    ValidationConfig    `mapstructure:"validation"`
	Refine        RefineConfig        `mapstructure:"refine"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// StorageConfig selects and tunes the backing store.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig tunes the advisory dedup cache. An empty address disables
// the cache; the store stays authoritative either way.
type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// FetcherConfig tunes the collection resilience layer.
type FetcherConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst"`
	Retry     RetryConfig   `mapstructure:"retry"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// RetryConfig tunes the exponential backoff around adapter calls.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// BreakerConfig tunes the per-source circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	OpenDuration     time.Duration `mapstructure:"open_duration"`
}

// HealthConfig tunes the source unhealthy predicate.
type HealthConfig struct {
	MinSuccessRate         float64 `mapstructure:"min_success_rate"`
	MinJobs                int64   `mapstructure:"min_jobs"`
	MaxConsecutiveFailures int     `mapstructure:"max_consecutive_failures"`
}

// ValidationConfig tunes the pre-persistence content filters.
type ValidationConfig struct {
	MinLength        int      `mapstructure:"min_length"`
	MaxLength        int      `mapstructure:"max_length"`
	AllowedLanguages []string `mapstructure:"allowed_languages"`
}

// RefineConfig tunes the refinement stage.
type RefineConfig struct {
	QualityThreshold float64 `mapstructure:"quality_threshold"`
	ChunkSize        int     `mapstructure:"chunk_size"`
	ChunkOverlap     int     `mapstructure:"chunk_overlap"`
	MaxParallel      int     `mapstructure:"max_parallel"`
}

// ObservabilityConfig tunes telemetry export and the diagnostics server.
type ObservabilityConfig struct {
	Environment     string  `mapstructure:"environment"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	Prometheus      bool    `mapstructure:"prometheus"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	DiagnosticsAddr string  `mapstructure:"diagnostics_addr"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidDriver indicates an unsupported storage driver.
	ErrInvalidDriver = errors.New("storage.driver must be sqlite or postgres")
	// ErrInvalidMaxOpenConns indicates a non-positive pool bound.
	ErrInvalidMaxOpenConns = errors.New("storage.max_open_conns must be positive")
	// ErrInvalidRateLimit indicates a non-positive fetch rate.
	ErrInvalidRateLimit = errors.New("fetcher.rate_limit must be positive")
	// ErrInvalidRetryAttempts indicates a non-positive retry budget.
	ErrInvalidRetryAttempts = errors.New("fetcher.retry.max_attempts must be positive")
	// ErrInvalidSuccessRate indicates a success-rate floor outside [0,100].
	ErrInvalidSuccessRate = errors.New("health.min_success_rate must be between 0 and 100")
	// ErrInvalidConsecutiveFailures indicates a non-positive failure streak.
	ErrInvalidConsecutiveFailures = errors.New("health.max_consecutive_failures must be positive")
	// ErrInvalidContentBounds indicates inverted content length bounds.
	ErrInvalidContentBounds = errors.New("validation.min_length must not exceed validation.max_length")
	// ErrInvalidQualityThreshold indicates a threshold outside [0,1].
	ErrInvalidQualityThreshold = errors.New("refine.quality_threshold must be between 0 and 1")
	// ErrInvalidChunkGeometry indicates an overlap at or beyond the window size.
	ErrInvalidChunkGeometry = errors.New("refine.chunk_overlap must be smaller than refine.chunk_size")
	// ErrInvalidMaxParallel indicates a non-positive enrichment bound.
	ErrInvalidMaxParallel = errors.New("refine.max_parallel must be positive")
	// ErrInvalidSampleRatio indicates a trace sample ratio outside [0,1].
	ErrInvalidSampleRatio = errors.New("observability.sample_ratio must be between 0 and 1")
)

// qualityThresholdMax is the upper bound for threshold-like ratios.
const qualityThresholdMax = 1.0

// successRateMax is the upper bound for percent values.
const successRateMax = 100.0

// Validate checks cross-field consistency and value ranges.
func (c *Config) Validate() error {
	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		return ErrInvalidDriver
	}

	if c.Storage.MaxOpenConns <= 0 {
		return ErrInvalidMaxOpenConns
	}

	if c.Fetcher.RateLimit <= 0 {
		return ErrInvalidRateLimit
	}

	if c.Fetcher.Retry.MaxAttempts <= 0 {
		return ErrInvalidRetryAttempts
	}

	if c.Health.MinSuccessRate < 0 || c.Health.MinSuccessRate > successRateMax {
		return ErrInvalidSuccessRate
	}

	if c.Health.MaxConsecutiveFailures <= 0 {
		return ErrInvalidConsecutiveFailures
	}

	if c.Validation.MinLength > c.Validation.MaxLength {
		return ErrInvalidContentBounds
	}

	if c.Refine.QualityThreshold < 0 || c.Refine.QualityThreshold > qualityThresholdMax {
		return ErrInvalidQualityThreshold
	}

	if c.Refine.ChunkOverlap >= c.Refine.ChunkSize {
		return ErrInvalidChunkGeometry
	}

	if c.Refine.MaxParallel <= 0 {
		return ErrInvalidMaxParallel
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > qualityThresholdMax {
		return ErrInvalidSampleRatio
	}

	return nil
}
