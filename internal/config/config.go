package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/catalogue-search/pkg/config"
)

// Supported SEARCH_ENGINE values.
const (
	EngineElasticsearch = "elasticsearch"
	EngineBleve         = "bleve"
	EngineMemory        = "memory"
)

// Config holds all configuration for the catalogue search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int           `env:"CATALOGUE_HTTP_PORT" envDefault:"8020"`
	RequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"5m"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Index engine
	SearchEngine          string   `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURLs     []string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUsername string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string   `env:"ELASTICSEARCH_PASSWORD"`
	Index                 string   `env:"CATALOGUE_INDEX" envDefault:"catalogue"`

	// Reindex pipeline
	ReindexBatchSize int           `env:"REINDEX_BATCH_SIZE" envDefault:"100"`
	ReindexLockTTL   time.Duration `env:"REINDEX_LOCK_TTL" envDefault:"10m"`
	DefaultLanguage  string        `env:"DEFAULT_LANGUAGE" envDefault:"en"`

	// Search result cache size in pages; zero disables it.
	SearchCacheSize int `env:"SEARCH_CACHE_SIZE" envDefault:"1000"`

	// Upstream catalogue API
	CatalogueAPIURL       string        `env:"CATALOGUE_API_URL" envDefault:"https://api.crystallize.com"`
	CatalogueAPIToken     string        `env:"CATALOGUE_API_TOKEN"`
	CatalogueTreeDepth    int           `env:"CATALOGUE_TREE_DEPTH" envDefault:"5"`
	CatalogueFetchTimeout time.Duration `env:"CATALOGUE_FETCH_TIMEOUT" envDefault:"30s"`

	// Redis (reindex lock, event dedupe)
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL (run history)
	PostgresEnabled bool   `env:"POSTGRES_ENABLED" envDefault:"false"`
	PostgresHost    string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort    int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser    string `env:"POSTGRES_USER" envDefault:"catalogue"`
	PostgresPass    string `env:"POSTGRES_PASSWORD" envDefault:"catalogue_secret"`
	PostgresDB      string `env:"POSTGRES_DB" envDefault:"catalogue_search"`
	PostgresSSL     string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns      int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns      int32  `env:"DB_MIN_CONNS" envDefault:"1"`

	// Slow query logging; zero disables it.
	SlowQueryThreshold time.Duration `env:"LOG_SLOW_QUERY" envDefault:"500ms"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"catalogue-search"`

	// OpenTelemetry
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, pkgconfig.WithDotenv(".env")); err != nil {
		return nil, fmt.Errorf("load catalogue config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if !slices.Contains([]string{EngineElasticsearch, EngineBleve, EngineMemory}, c.SearchEngine) {
		errs = append(errs, fmt.Errorf("invalid SEARCH_ENGINE %q: want elasticsearch, bleve or memory", c.SearchEngine))
	}
	if strings.TrimSpace(c.Index) == "" {
		errs = append(errs, errors.New("CATALOGUE_INDEX is required"))
	}
	if c.ReindexBatchSize < 1 {
		errs = append(errs, fmt.Errorf("invalid REINDEX_BATCH_SIZE: %d", c.ReindexBatchSize))
	}
	if c.ReindexLockTTL <= 0 {
		errs = append(errs, fmt.Errorf("invalid REINDEX_LOCK_TTL: %s", c.ReindexLockTTL))
	}
	if c.SearchCacheSize < 0 {
		errs = append(errs, fmt.Errorf("invalid SEARCH_CACHE_SIZE: %d", c.SearchCacheSize))
	}
	if c.CatalogueTreeDepth < 1 {
		errs = append(errs, fmt.Errorf("invalid CATALOGUE_TREE_DEPTH: %d", c.CatalogueTreeDepth))
	}
	if c.CatalogueFetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid CATALOGUE_FETCH_TIMEOUT: %s", c.CatalogueFetchTimeout))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACING_SAMPLE_RATE: %v", c.TracingSampleRate))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
