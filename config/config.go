package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port string `env:"SERVER_PORT" envDefault:"5250"`

		// Origins allowed by CORS; empty allows any origin
		AllowOrigins []string `env:"SERVER_ALLOW_ORIGINS" envSeparator:","`
	}

	// Storage configuration for the snapshot files
	Storage struct {
		// Directory holding properties and index snapshots
		DataDir string `env:"STORAGE_DATA_DIR" envDefault:"data"`

		// Number of upserts between asynchronous snapshot flushes
		FlushBatch int `env:"STORAGE_FLUSH_BATCH" envDefault:"10"`

		// Maximum time a dirty store waits before it is flushed anyway
		FlushInterval time.Duration `env:"STORAGE_FLUSH_INTERVAL" envDefault:"30s"`

		GzipLevel int `env:"STORAGE_GZIP_LEVEL" envDefault:"6"`
	}

	Search struct {
		// Default number of comparables returned when the query sets none
		MaxResults int `env:"SEARCH_MAX_RESULTS" envDefault:"12"`

		// Upper bound on index candidates considered per strategy
		MaxBucketScan int `env:"SEARCH_MAX_BUCKET_SCAN" envDefault:"5000"`

		// Same-urbanisation candidate count above which results are diversified
		DiversifyThreshold int `env:"SEARCH_DIVERSIFY_THRESHOLD" envDefault:"8"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Maximum number of records to accumulate before processing
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"1"`

		// Maximum number of retries for failed records
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	Feed struct {
		// SQLite staging database written by the feed parsers
		DBPath string `env:"FEED_DB_PATH"`

		// Feed sources that are polled and swept for stale records
		Sources []string `env:"FEED_SOURCES" envSeparator:","`

		PollInterval time.Duration `env:"FEED_POLL_INTERVAL" envDefault:"5m"`

		// Records not refreshed by their feed within this window are evicted
		StaleAfter time.Duration `env:"FEED_STALE_AFTER" envDefault:"168h"`

		// How often the eviction sweep and index integrity check run
		SweepInterval time.Duration `env:"FEED_SWEEP_INTERVAL" envDefault:"1h"`
	}
}

// LoadConfig reads an optional .env file and then parses the environment
func LoadConfig() (*Config, error) {
	// A missing .env is normal in production
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no environment is set
func Default() *Config {
	cfg := &Config{}
	_ = env.Parse(cfg, env.Options{Environment: map[string]string{}})
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.FlushBatch <= 0 {
		cfg.Storage.FlushBatch = 10
	}
	if cfg.Storage.GzipLevel < 1 || cfg.Storage.GzipLevel > 9 {
		cfg.Storage.GzipLevel = 6
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 12
	}
	if cfg.Search.MaxBucketScan <= 0 {
		cfg.Search.MaxBucketScan = 5000
	}
	if cfg.Search.DiversifyThreshold <= 0 {
		cfg.Search.DiversifyThreshold = 8
	}
	if cfg.BatchProcessing.ProcessorCount <= 0 {
		cfg.BatchProcessing.ProcessorCount = 1
	}
}
