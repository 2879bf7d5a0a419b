// Package config loads service configuration from defaults, an optional TOML
// file, an optional .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Run modes
const (
	ModeAPI    = "api"
	ModeWorker = "worker"
	ModeAll    = "all"
)

// Backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendVespa    = "vespa"
	BackendSQLite   = "sqlite"
)

// Duration is a time.Duration written as "30s" or "10m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port          int      `toml:"port"`
	RunMode       string   `toml:"run_mode"`
	PublicBaseURL string   `toml:"public_base_url"`
	CORSOrigins   []string `toml:"cors_origins"`
}

// StorageConfig selects the vector and bookkeeping backends.
type StorageConfig struct {
	DataDir            string `toml:"data_dir"`
	DatabaseURL        string `toml:"database_url"`
	RedisURL           string `toml:"redis_url"`
	VectorBackend      string `toml:"vector_backend"`
	VespaURL           string `toml:"vespa_url"`
	BookkeepingBackend string `toml:"bookkeeping_backend"`
	SQLitePath         string `toml:"sqlite_path"`
	Collection         string `toml:"collection"`
	QueryLogCapacity   int    `toml:"query_log_capacity"`

	DBMaxOpenConns    int      `toml:"db_max_open_conns"`
	DBMaxIdleConns    int      `toml:"db_max_idle_conns"`
	DBConnMaxLifetime Duration `toml:"db_conn_max_lifetime"`
}

// RetrievalConfig configures chunking and the two retrieval stages.
type RetrievalConfig struct {
	ChunkMaxChars int    `toml:"chunk_max_chars"`
	ChunkOverlap  int    `toml:"chunk_overlap"`
	TopK          int    `toml:"top_k"`
	CandidateK    int    `toml:"candidate_k"`
	OCRLanguage   string `toml:"ocr_language"`
}

// WorkerConfig configures background indexing.
type WorkerConfig struct {
	Concurrency    int      `toml:"concurrency"`
	DequeueTimeout int      `toml:"dequeue_timeout"` // seconds
	WatchUploads   bool     `toml:"watch_uploads"`
	WatchDebounce  Duration `toml:"watch_debounce"`
	SweepInterval  Duration `toml:"sweep_interval"` // zero disables the sweep
	LockRequired   bool     `toml:"lock_required"`
}

// LinkConfig configures signed file download links.
type LinkConfig struct {
	Secret string   `toml:"secret"`
	TTL    Duration `toml:"ttl"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig             `toml:"server"`
	Storage   StorageConfig            `toml:"storage"`
	Embedding domain.EmbeddingSettings `toml:"embedding"`
	Reranker  domain.RerankerSettings  `toml:"reranker"`
	Retrieval RetrievalConfig          `toml:"retrieval"`
	Worker    WorkerConfig             `toml:"worker"`
	Links     LinkConfig               `toml:"links"`
	Log       LogConfig                `toml:"log"`
}

// Default returns a configuration that runs entirely in memory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			RunMode:       ModeAll,
			PublicBaseURL: "http://localhost:8080",
			CORSOrigins:   []string{"*"},
		},
		Storage: StorageConfig{
			DataDir:            "./data",
			VectorBackend:      BackendMemory,
			BookkeepingBackend: BackendMemory,
			SQLitePath:         "./data/.sercha-rag.db",
			Collection:         "docs",
			QueryLogCapacity:   1000,
			DBMaxOpenConns:     25,
			DBMaxIdleConns:     5,
			DBConnMaxLifetime:  Duration{5 * time.Minute},
		},
		Embedding: domain.DefaultEmbeddingSettings(),
		Reranker: domain.RerankerSettings{
			Provider: domain.AIProviderLexical,
			Enabled:  true,
		},
		Retrieval: RetrievalConfig{
			ChunkMaxChars: 1000,
			ChunkOverlap:  200,
			TopK:          domain.DefaultTopK,
			CandidateK:    domain.DefaultCandidateK,
			OCRLanguage:   "eng",
		},
		Worker: WorkerConfig{
			Concurrency:    2,
			DequeueTimeout: 5,
			WatchUploads:   true,
			WatchDebounce:  Duration{2 * time.Second},
			SweepInterval:  Duration{10 * time.Minute},
			LockRequired:   true,
		},
		Links: LinkConfig{
			TTL: Duration{time.Hour},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. configFile falls back to $SERCHA_CONFIG and
// may be empty. envFiles default to ".env"; missing env files are ignored,
// and variables already set in the environment win over them.
func Load(configFile string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to load %s: %v", domain.ErrConfiguration, f, err)
		}
	}

	cfg := Default()
	if configFile == "" {
		configFile = os.Getenv("SERCHA_CONFIG")
	}
	if configFile != "" {
		if err := cfg.loadFile(configFile); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s: %s", domain.ErrConfiguration, path, strict.String())
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, path, err)
	}
	return nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Server.RunMode = getEnv("RUN_MODE", c.Server.RunMode)
	c.Server.PublicBaseURL = getEnv("PUBLIC_BASE_URL", c.Server.PublicBaseURL)
	c.Server.CORSOrigins = getEnvList("CORS_ORIGINS", c.Server.CORSOrigins)

	c.Storage.DataDir = getEnv("DATA_DIR", c.Storage.DataDir)
	c.Storage.DatabaseURL = getEnv("DATABASE_URL", c.Storage.DatabaseURL)
	c.Storage.RedisURL = getEnv("REDIS_URL", c.Storage.RedisURL)
	c.Storage.VectorBackend = getEnv("VECTOR_BACKEND", c.Storage.VectorBackend)
	c.Storage.VespaURL = getEnv("VESPA_URL", c.Storage.VespaURL)
	c.Storage.BookkeepingBackend = getEnv("BOOKKEEPING_BACKEND", c.Storage.BookkeepingBackend)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.Collection = getEnv("COLLECTION_NAME", c.Storage.Collection)
	c.Storage.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Storage.DBMaxOpenConns)
	c.Storage.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Storage.DBMaxIdleConns)
	c.Storage.DBConnMaxLifetime.Duration = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Storage.DBConnMaxLifetime.Duration)

	c.Embedding.Provider = domain.AIProvider(getEnv("EMBEDDING_PROVIDER", string(c.Embedding.Provider)))
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)
	c.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", c.Embedding.APIKey)
	c.Embedding.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", c.Embedding.BatchSize)
	c.Embedding.RequestsPerSecond = getEnvFloat("EMBEDDING_RPS", c.Embedding.RequestsPerSecond)

	c.Reranker.Provider = domain.AIProvider(getEnv("RERANKER_PROVIDER", string(c.Reranker.Provider)))
	c.Reranker.BaseURL = getEnv("RERANKER_URL", c.Reranker.BaseURL)
	c.Reranker.APIKey = getEnv("RERANKER_API_KEY", c.Reranker.APIKey)
	c.Reranker.Model = getEnv("RERANKER_MODEL", c.Reranker.Model)
	c.Reranker.Enabled = getEnvBool("RERANK_BY_DEFAULT", c.Reranker.Enabled)

	c.Retrieval.ChunkMaxChars = getEnvInt("CHUNK_MAX_CHARS", c.Retrieval.ChunkMaxChars)
	c.Retrieval.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", c.Retrieval.ChunkOverlap)
	c.Retrieval.TopK = getEnvInt("TOP_K", c.Retrieval.TopK)
	c.Retrieval.CandidateK = getEnvInt("CANDIDATE_K", c.Retrieval.CandidateK)
	c.Retrieval.OCRLanguage = getEnv("OCR_LANGUAGE", c.Retrieval.OCRLanguage)

	c.Worker.Concurrency = getEnvInt("WORKER_CONCURRENCY", c.Worker.Concurrency)
	c.Worker.DequeueTimeout = getEnvInt("WORKER_DEQUEUE_TIMEOUT", c.Worker.DequeueTimeout)
	c.Worker.WatchUploads = getEnvBool("WATCH_UPLOADS", c.Worker.WatchUploads)
	c.Worker.WatchDebounce.Duration = getEnvDuration("WATCH_DEBOUNCE", c.Worker.WatchDebounce.Duration)
	c.Worker.SweepInterval.Duration = getEnvDuration("SWEEP_INTERVAL", c.Worker.SweepInterval.Duration)
	c.Worker.LockRequired = getEnvBool("SCHEDULER_LOCK_REQUIRED", c.Worker.LockRequired)

	c.Links.Secret = getEnv("LINK_SECRET", c.Links.Secret)
	c.Links.TTL.Duration = getEnvDuration("LINK_TTL", c.Links.TTL.Duration)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate checks the configuration. Every failure wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrConfiguration}, args...)...))
	}

	switch c.Server.RunMode {
	case ModeAPI, ModeWorker, ModeAll:
	default:
		fail("run mode must be api, worker or all, got %q", c.Server.RunMode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fail("port %d out of range", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		fail("data dir is required")
	}

	switch c.Storage.VectorBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			fail("vector backend postgres needs DATABASE_URL")
		}
	case BackendVespa:
		if c.Storage.VespaURL == "" {
			fail("vector backend vespa needs VESPA_URL")
		}
	default:
		fail("unknown vector backend %q", c.Storage.VectorBackend)
	}

	switch c.Storage.BookkeepingBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			fail("bookkeeping backend sqlite needs SQLITE_PATH")
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			fail("bookkeeping backend postgres needs DATABASE_URL")
		}
	default:
		fail("unknown bookkeeping backend %q", c.Storage.BookkeepingBackend)
	}

	if c.Server.RunMode == ModeWorker && !c.HasQueue() {
		fail("worker mode needs REDIS_URL or DATABASE_URL for the task queue")
	}

	if c.Retrieval.ChunkMaxChars <= 0 {
		fail("chunk max chars must be positive, got %d", c.Retrieval.ChunkMaxChars)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkMaxChars {
		fail("chunk overlap must be in [0, %d), got %d", c.Retrieval.ChunkMaxChars, c.Retrieval.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.CandidateK <= 0 {
		fail("top_k and candidate_k must be positive")
	}

	if err := c.Embedding.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Reranker.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Links.Secret != "" && len(c.Links.Secret) < 16 {
		fail("link secret must be at least 16 bytes")
	}
	if c.Links.TTL.Duration <= 0 {
		fail("link ttl must be positive")
	}
	if c.Worker.SweepInterval.Duration < 0 {
		fail("sweep interval must not be negative")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		fail("log format must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// HasQueue reports whether a durable task queue backend is configured.
func (c *Config) HasQueue() bool {
	return c.Storage.RedisURL != "" || c.Storage.DatabaseURL != ""
}

// NeedsPostgres reports whether any component uses the Postgres database.
func (c *Config) NeedsPostgres() bool {
	return c.Storage.DatabaseURL != "" &&
		(c.Storage.VectorBackend == BackendPostgres ||
			c.Storage.BookkeepingBackend == BackendPostgres ||
			c.Storage.RedisURL == "")
}

// RunsAPI reports whether the HTTP server runs in this process.
func (c *Config) RunsAPI() bool {
	return c.Server.RunMode == ModeAPI || c.Server.RunMode == ModeAll
}

// RunsWorker reports whether the queue worker runs in this process.
func (c *Config) RunsWorker() bool {
	return c.Server.RunMode == ModeWorker || c.Server.RunMode == ModeAll
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%g", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
