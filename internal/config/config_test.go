package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// noEnvFile points Load at a dotenv file that does not exist.
func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Storage.VectorBackend)
	assert.Equal(t, 1000, cfg.Retrieval.ChunkMaxChars)
	assert.Equal(t, 200, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 15, cfg.Retrieval.CandidateK)
	assert.True(t, cfg.RunsAPI())
	assert.True(t, cfg.RunsWorker())
	assert.False(t, cfg.HasQueue())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("SERCHA_CONFIG", "")
	path := writeFile(t, "config.toml", `
[server]
port = 9090
run_mode = "api"

[storage]
vector_backend = "postgres"
database_url = "postgres://localhost/sercha"

[embedding]
provider = "hashing"
dimensions = 128

[retrieval]
chunk_max_chars = 500
chunk_overlap = 50

[worker]
sweep_interval = "90s"
`)

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ModeAPI, cfg.Server.RunMode)
	assert.Equal(t, BackendPostgres, cfg.Storage.VectorBackend)
	assert.Equal(t, 128, cfg.Embedding.Dimensions)
	assert.Equal(t, 500, cfg.Retrieval.ChunkMaxChars)
	assert.Equal(t, 90*time.Second, cfg.Worker.SweepInterval.Duration)
	// Unset keys keep their defaults
	assert.Equal(t, 15, cfg.Retrieval.CandidateK)
	assert.True(t, cfg.NeedsPostgres())
}

func TestLoad_FileFromEnv(t *testing.T) {
	path := writeFile(t, "config.toml", "[server]\nport = 7070\n")
	t.Setenv("SERCHA_CONFIG", path)

	cfg, err := Load("", noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_UnknownKey(t *testing.T) {
	t.Setenv("SERCHA_CONFIG", "")
	path := writeFile(t, "config.toml", "[server]\nprot = 1\n")

	_, err := Load(path, noEnvFile(t))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), noEnvFile(t))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SERCHA_CONFIG", "")
	path := writeFile(t, "config.toml", "[retrieval]\ntop_k = 3\ncandidate_k = 9\n")
	t.Setenv("TOP_K", "7")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("EMBEDDING_RPS", "2.5")
	t.Setenv("LINK_TTL", "15m")
	t.Setenv("WATCH_UPLOADS", "false")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, 9, cfg.Retrieval.CandidateK)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 2.5, cfg.Embedding.RequestsPerSecond, 1e-9)
	assert.Equal(t, 15*time.Minute, cfg.Links.TTL.Duration)
	assert.False(t, cfg.Worker.WatchUploads)
}

func TestLoad_DotEnv(t *testing.T) {
	t.Setenv("SERCHA_CONFIG", "")
	// Registered with t.Setenv so the value set by godotenv is restored
	t.Setenv("DATA_DIR", "")
	os.Unsetenv("DATA_DIR")
	t.Setenv("PORT", "6060")

	env := writeFile(t, ".env", "DATA_DIR=/srv/uploads\nPORT=1111\n")
	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "/srv/uploads", cfg.Storage.DataDir)
	// Real environment wins over the dotenv file
	assert.Equal(t, 6060, cfg.Server.Port)
}

func TestLoad_BadEnvValuesKeepDefaults(t *testing.T) {
	t.Setenv("SERCHA_CONFIG", "")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("SWEEP_INTERVAL", "often")

	cfg, err := Load("", noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Worker.SweepInterval.Duration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad run mode", func(c *Config) { c.Server.RunMode = "batch" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"no data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"postgres without url", func(c *Config) { c.Storage.VectorBackend = BackendPostgres }},
		{"vespa without url", func(c *Config) { c.Storage.VectorBackend = BackendVespa }},
		{"unknown vector backend", func(c *Config) { c.Storage.VectorBackend = "chroma" }},
		{"sqlite without path", func(c *Config) {
			c.Storage.BookkeepingBackend = BackendSQLite
			c.Storage.SQLitePath = ""
		}},
		{"unknown bookkeeping", func(c *Config) { c.Storage.BookkeepingBackend = "mysql" }},
		{"worker without queue", func(c *Config) { c.Server.RunMode = ModeWorker }},
		{"overlap equals max", func(c *Config) { c.Retrieval.ChunkOverlap = c.Retrieval.ChunkMaxChars }},
		{"negative overlap", func(c *Config) { c.Retrieval.ChunkOverlap = -1 }},
		{"zero max chars", func(c *Config) { c.Retrieval.ChunkMaxChars = 0 }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "bert" }},
		{"openai without key", func(c *Config) { c.Embedding.Provider = domain.AIProviderOpenAI }},
		{"http reranker without url", func(c *Config) { c.Reranker.Provider = domain.AIProviderHTTP }},
		{"short link secret", func(c *Config) { c.Links.Secret = "short" }},
		{"zero link ttl", func(c *Config) { c.Links.TTL.Duration = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration)
		})
	}
}

func TestValidate_WorkerWithRedis(t *testing.T) {
	cfg := Default()
	cfg.Server.RunMode = ModeWorker
	cfg.Storage.RedisURL = "redis://localhost:6379"
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.RunsAPI())
	assert.True(t, cfg.RunsWorker())
	assert.False(t, cfg.NeedsPostgres())
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "session_id", "s1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"session_id":"s1"`)

	buf.Reset()
	LogConfig{Level: "debug", Format: "text"}.NewLogger(&buf).Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")
}
