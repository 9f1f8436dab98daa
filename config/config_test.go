package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) func(string) (string, bool) {
	return mapLookup(m)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, BackendBadger, cfg.Vectors.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Ingestion.ProcessingTimeout.Duration)
	assert.Equal(t, chunk.DefaultConfig(), cfg.ChunkConfig())
	assert.True(t, cfg.UsesBadger())
	assert.False(t, cfg.UsesPostgres())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "lectern.toml", `
data_dir = "/tmp/lectern"
metrics_addr = ":9100"

[storage]
backend = "postgres"
postgres_url = "postgres://localhost/lectern"

[vectors]
backend = "pgvector"
collection = "handbook"

[ai]
provider = "gemini"
model = "gemini-embedding-001"
api_key = "secret"
dimensions = 768

[chunking]
strategy = "token"
size = 200
overlap = 20

[ingestion]
pool_size = 4
processing_timeout = "90s"
`)

	cfg, err := load(path, "", noEnv)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/lectern", cfg.DataDir)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, BackendPgvector, cfg.Vectors.Backend)
	assert.Equal(t, "handbook", cfg.Vectors.Collection)
	assert.Equal(t, 4, cfg.Ingestion.PoolSize)
	assert.Equal(t, 90*time.Second, cfg.Ingestion.ProcessingTimeout.Duration)
	assert.True(t, cfg.UsesPostgres())

	aiCfg := cfg.AIConfig()
	assert.Equal(t, ai.ProviderGemini, aiCfg.Provider)
	assert.Equal(t, "gemini-embedding-001", aiCfg.EmbeddingModel)
	assert.Equal(t, 768, aiCfg.Dimensions)

	assert.Equal(t, chunk.Config{Strategy: chunk.StrategyToken, ChunkSize: 200, Overlap: 20}, cfg.ChunkConfig())

	// untouched sections keep their defaults
	assert.Equal(t, BackendBadger, cfg.Blobs.Backend)
	assert.Equal(t, Default().Embedding, cfg.Embedding)
}

func TestLoad_Layering(t *testing.T) {
	path := writeFile(t, "lectern.toml", `
[ai]
model = "from-file"
`)
	envFile := writeFile(t, ".env", "LECTERN_EMBEDDING_MODEL=from-dotenv\nLECTERN_CHUNK_SIZE=300\n")

	t.Run("dotenv overrides file", func(t *testing.T) {
		cfg, err := load(path, envFile, noEnv)
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", cfg.AI.Model)
		assert.Equal(t, 300, cfg.Chunking.Size)
	})

	t.Run("environment overrides dotenv", func(t *testing.T) {
		cfg, err := load(path, envFile, envOf(map[string]string{
			"LECTERN_EMBEDDING_MODEL": "from-env",
		}))
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.AI.Model)
		assert.Equal(t, 300, cfg.Chunking.Size)
	})

	t.Run("empty variables are ignored", func(t *testing.T) {
		cfg, err := load(path, "", envOf(map[string]string{
			"LECTERN_EMBEDDING_MODEL": "  ",
		}))
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.AI.Model)
	})
}

func TestLoad_EnvTypes(t *testing.T) {
	cfg, err := load("", "", envOf(map[string]string{
		"LECTERN_QDRANT_TLS":           "true",
		"LECTERN_PROCESSING_TIMEOUT":   "2m",
		"LECTERN_MAX_UPLOAD_SIZE":      "1048576",
		"LECTERN_EMBEDDING_PACING":     "0s",
		"LECTERN_EMBEDDING_BATCH_SIZE": "16",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.Vectors.QdrantTLS)
	assert.Equal(t, 2*time.Minute, cfg.Ingestion.ProcessingTimeout.Duration)
	assert.Equal(t, int64(1<<20), cfg.Ingestion.MaxUploadSize)
	assert.Zero(t, cfg.Embedding.Pacing.Duration)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		_, err := load(filepath.Join(t.TempDir(), "absent.toml"), "", noEnv)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing dotenv is fine", func(t *testing.T) {
		_, err := load("", filepath.Join(t.TempDir(), ".env"), noEnv)
		assert.NoError(t, err)
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := writeFile(t, "bad.toml", "data_dir = \n")
		_, err := load(path, "", noEnv)
		assert.Error(t, err)
	})

	t.Run("malformed duration", func(t *testing.T) {
		path := writeFile(t, "bad.toml", "[ingestion]\nprocessing_timeout = \"soon\"\n")
		_, err := load(path, "", noEnv)
		assert.Error(t, err)
	})

	t.Run("malformed integer variable", func(t *testing.T) {
		_, err := load("", "", envOf(map[string]string{"LECTERN_CHUNK_SIZE": "many"}))
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorContains(t, err, "LECTERN_CHUNK_SIZE")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "mock provider", mutate: func(c *Config) { c.AI.Provider = ai.ProviderMock; c.AI.Model = "" }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "mysql" }, wantErr: ErrUnknownBackend},
		{name: "postgres without url", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, wantErr: ErrInvalidConfig},
		{name: "unknown blobs", mutate: func(c *Config) { c.Blobs.Backend = "gcs" }, wantErr: ErrUnknownBackend},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Blobs.Backend = BackendS3; c.Blobs.S3Region = "eu-west-1" }, wantErr: ErrInvalidConfig},
		{name: "s3 complete", mutate: func(c *Config) {
			c.Blobs.Backend = BackendS3
			c.Blobs.S3Region = "eu-west-1"
			c.Blobs.S3Bucket = "uploads"
		}},
		{name: "unknown vectors", mutate: func(c *Config) { c.Vectors.Backend = "milvus" }, wantErr: ErrUnknownBackend},
		{name: "pgvector without url", mutate: func(c *Config) { c.Vectors.Backend = BackendPgvector }, wantErr: ErrInvalidConfig},
		{name: "qdrant without port", mutate: func(c *Config) { c.Vectors.Backend = BackendQdrant; c.Vectors.QdrantPort = 0 }, wantErr: ErrInvalidConfig},
		{name: "empty collection", mutate: func(c *Config) { c.Vectors.Collection = "" }, wantErr: ErrInvalidConfig},
		{name: "badger without data dir", mutate: func(c *Config) { c.DataDir = "" }, wantErr: ErrInvalidConfig},
		{name: "unknown provider", mutate: func(c *Config) { c.AI.Provider = "cohere" }, wantErr: ai.ErrUnknownProvider},
		{name: "overlap too large", mutate: func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, wantErr: ErrInvalidConfig},
		{name: "zero batch size", mutate: func(c *Config) { c.Embedding.BatchSize = 0 }, wantErr: ErrInvalidConfig},
		{name: "zero attempts", mutate: func(c *Config) { c.Embedding.MaxAttempts = 0 }, wantErr: ErrInvalidConfig},
		{name: "zero timeout", mutate: func(c *Config) { c.Ingestion.ProcessingTimeout.Duration = 0 }, wantErr: ErrInvalidConfig},
		{name: "negative pool", mutate: func(c *Config) { c.Ingestion.PoolSize = -1 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := Default()
	cfg.Embedding.MaxAttempts = 5

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.NotNil(t, policy.Retryable)
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
