package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration, loaded from an optional YAML
// file (CONFIG_PATH) with environment variable overrides.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedder  EmbedderConfig  `mapstructure:"embedder"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Session   SessionConfig   `mapstructure:"session"`
	Queue     QueueConfig     `mapstructure:"queue"`
}

type ServiceConfig struct {
	Port      int `mapstructure:"port"`
	AdminPort int `mapstructure:"admin_port"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type QdrantConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type EmbedderConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	LRUSize    int           `mapstructure:"lru_size"`
}

type ExtractorConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	PropositionerURL string        `mapstructure:"propositioner_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type LLMConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type ChunkingConfig struct {
	OverlapRatio         float64 `mapstructure:"overlap_ratio"`
	BufferSize           int     `mapstructure:"buffer_size"`
	BreakpointPercentile float64 `mapstructure:"breakpoint_percentile"`
}

type SessionConfig struct {
	ExpiryMinutes            int `mapstructure:"expiry_minutes"`
	MigrationIntervalMinutes int `mapstructure:"migration_interval_minutes"`
}

func (c SessionConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

func (c SessionConfig) MigrationInterval() time.Duration {
	return time.Duration(c.MigrationIntervalMinutes) * time.Minute
}

type QueueConfig struct {
	Workers          int           `mapstructure:"workers"`
	FinalizerDelay   time.Duration `mapstructure:"finalizer_delay"`
	FinalizerBackoff time.Duration `mapstructure:"finalizer_backoff"`
}

// Load reads configuration from CONFIG_PATH (optional) and the environment.
// A missing config file is not an error; env vars and defaults still apply.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)
	bindEnv(v)

	if cfgPath := os.Getenv("CONFIG_PATH"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8000)
	v.SetDefault("service.admin_port", 2112)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.database", "saga_chat")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6333)
	v.SetDefault("qdrant.collection", "legal_documents")
	v.SetDefault("qdrant.timeout", 30*time.Second)

	v.SetDefault("embedder.base_url", "http://localhost:8001")
	v.SetDefault("embedder.model", "multilingual-e5-small")
	v.SetDefault("embedder.dimensions", 384)
	v.SetDefault("embedder.max_tokens", 512)
	v.SetDefault("embedder.timeout", 60*time.Second)
	v.SetDefault("embedder.cache_ttl", time.Hour)
	v.SetDefault("embedder.lru_size", 2048)

	v.SetDefault("extractor.base_url", "http://localhost:8002")
	v.SetDefault("extractor.propositioner_url", "http://localhost:8003")
	v.SetDefault("extractor.timeout", 60*time.Second)

	v.SetDefault("llm.model", "gpt-4o-mini")

	v.SetDefault("chunking.overlap_ratio", 0.2)
	v.SetDefault("chunking.buffer_size", 1)
	v.SetDefault("chunking.breakpoint_percentile", 85)

	v.SetDefault("session.expiry_minutes", 2)
	v.SetDefault("session.migration_interval_minutes", 1)

	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.finalizer_delay", 5*time.Second)
	v.SetDefault("queue.finalizer_backoff", 10*time.Second)
}

func bindEnv(v *viper.Viper) {
	// Explicit bindings keep the env surface documented in one place.
	_ = v.BindEnv("service.port", "API_PORT")
	_ = v.BindEnv("service.admin_port", "ADMIN_PORT")

	_ = v.BindEnv("redis.host", "REDIS_HOST")
	_ = v.BindEnv("redis.port", "REDIS_PORT")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")

	_ = v.BindEnv("postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")

	_ = v.BindEnv("qdrant.host", "QDRANT_HOST")
	_ = v.BindEnv("qdrant.port", "QDRANT_PORT")
	_ = v.BindEnv("qdrant.collection", "QDRANT_COLLECTION")

	_ = v.BindEnv("embedder.base_url", "EMBEDDING_SERVICE_URL")
	_ = v.BindEnv("embedder.model", "EMBEDDING_MODEL")
	_ = v.BindEnv("embedder.dimensions", "EMBEDDING_DIMENSIONS")
	_ = v.BindEnv("embedder.max_tokens", "EMBEDDING_MAX_TOKENS")

	_ = v.BindEnv("extractor.base_url", "EXTRACTOR_SERVICE_URL")
	_ = v.BindEnv("extractor.propositioner_url", "PROPOSITIONER_SERVICE_URL")

	_ = v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.model", "OPENAI_MODEL")

	_ = v.BindEnv("session.expiry_minutes", "SESSION_EXPIRY_MINUTES")
	_ = v.BindEnv("session.migration_interval_minutes", "SESSION_MIGRATION_INTERVAL_MINUTES")

	_ = v.BindEnv("queue.workers", "QUEUE_WORKERS")
}
