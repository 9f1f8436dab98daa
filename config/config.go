// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/chunk"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/vectorindex"
)

// Backend names.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendNone     = "none"
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
)

// DefaultEnvFile is the dotenv file read by Load when present.
const DefaultEnvFile = ".env"

// EnvPrefix prefixes every environment variable Load understands.
const EnvPrefix = "LECTERN_"

// Duration is a time.Duration written as a Go duration string ("90s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full process configuration.
type Config struct {
	// DataDir holds the embedded badger database when any badger backend is used.
	DataDir     string          `toml:"data_dir"`
	MetricsAddr string          `toml:"metrics_addr"`
	Storage     StorageConfig   `toml:"storage"`
	Blobs       BlobConfig      `toml:"blobs"`
	Vectors     VectorConfig    `toml:"vectors"`
	AI          AIConfig        `toml:"ai"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Chunking    ChunkingConfig  `toml:"chunking"`
	Ingestion   IngestionConfig `toml:"ingestion"`
}

// StorageConfig selects the document repository.
type StorageConfig struct {
	Backend     string `toml:"backend"` // badger or postgres
	PostgresURL string `toml:"postgres_url"`
}

// BlobConfig selects where raw uploads are archived.
type BlobConfig struct {
	Backend     string `toml:"backend"` // badger, s3 or none
	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Prefix    string `toml:"s3_prefix"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
}

// VectorConfig selects the vector index.
type VectorConfig struct {
	Backend         string `toml:"backend"` // badger, qdrant or pgvector
	Collection      string `toml:"collection"`
	UpsertBatchSize int    `toml:"upsert_batch_size"`
	QdrantHost      string `toml:"qdrant_host"`
	QdrantPort      int    `toml:"qdrant_port"`
	QdrantAPIKey    string `toml:"qdrant_api_key"`
	QdrantTLS       bool   `toml:"qdrant_tls"`
}

// AIConfig selects the embedding provider.
type AIConfig struct {
	Provider   string `toml:"provider"`
	Host       string `toml:"host"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	Dimensions int    `toml:"dimensions"`
}

// EmbeddingConfig tunes batching and retries.
type EmbeddingConfig struct {
	BatchSize   int      `toml:"batch_size"`
	Pacing      Duration `toml:"pacing"`
	MaxAttempts int      `toml:"max_attempts"`
}

// ChunkingConfig holds the default chunking settings.
type ChunkingConfig struct {
	Strategy string `toml:"strategy"`
	Size     int    `toml:"size"`
	Overlap  int    `toml:"overlap"`
}

// IngestionConfig tunes the background processing pool.
type IngestionConfig struct {
	PoolSize          int      `toml:"pool_size"` // zero picks NumCPU/2
	ProcessingTimeout Duration `toml:"processing_timeout"`
	MaxUploadSize     int64    `toml:"max_upload_size"`
}

// Default returns a configuration that runs fully embedded against a local
// OpenAI-compatible embedding server.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	chunkDefaults := chunk.DefaultConfig()
	policy := embedding.DefaultPolicy()
	return &Config{
		DataDir: "lectern-data",
		Storage: StorageConfig{Backend: BackendBadger},
		Blobs:   BlobConfig{Backend: BackendBadger},
		Vectors: VectorConfig{
			Backend:         BackendBadger,
			Collection:      vectorindex.DefaultCollection,
			UpsertBatchSize: vectorindex.DefaultUpsertBatchSize,
			QdrantHost:      "localhost",
			QdrantPort:      6334,
		},
		AI: AIConfig{
			Provider: aiDefaults.Provider,
			Host:     aiDefaults.EmbeddingHost,
			Model:    aiDefaults.EmbeddingModel,
		},
		Embedding: EmbeddingConfig{
			BatchSize:   embedding.DefaultBatchSize,
			Pacing:      Duration{embedding.DefaultPacing},
			MaxAttempts: policy.MaxAttempts,
		},
		Chunking: ChunkingConfig{
			Strategy: string(chunkDefaults.Strategy),
			Size:     chunkDefaults.ChunkSize,
			Overlap:  chunkDefaults.Overlap,
		},
		Ingestion: IngestionConfig{
			ProcessingTimeout: Duration{ingestion.DefaultProcessingTimeout},
			MaxUploadSize:     core.DefaultMaxUploadSize,
		},
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty), DefaultEnvFile when it exists, and the process environment.
func Load(path string) (*Config, error) {
	return load(path, DefaultEnvFile, os.LookupEnv)
}

func load(path, envFile string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		dotenv, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		if err := cfg.applyEnv(mapLookup(dotenv)); err != nil {
			return nil, fmt.Errorf("%s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Validate checks backend names and the settings each backend needs.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBadger:
	case BackendPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("%w: storage.postgres_url is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w: storage %q", ErrInvalidConfig, ErrUnknownBackend, c.Storage.Backend)
	}

	switch c.Blobs.Backend {
	case BackendBadger, BackendNone:
	case BackendS3:
		if c.Blobs.S3Bucket == "" || c.Blobs.S3Region == "" {
			return fmt.Errorf("%w: blobs.s3_bucket and blobs.s3_region are required for the s3 backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w: blobs %q", ErrInvalidConfig, ErrUnknownBackend, c.Blobs.Backend)
	}

	switch c.Vectors.Backend {
	case BackendBadger:
	case BackendQdrant:
		if c.Vectors.QdrantHost == "" || c.Vectors.QdrantPort <= 0 {
			return fmt.Errorf("%w: vectors.qdrant_host and vectors.qdrant_port are required for the qdrant backend", ErrInvalidConfig)
		}
	case BackendPgvector:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("%w: storage.postgres_url is required for the pgvector backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w: vectors %q", ErrInvalidConfig, ErrUnknownBackend, c.Vectors.Backend)
	}
	if c.Vectors.Collection == "" {
		return fmt.Errorf("%w: vectors.collection must not be empty", ErrInvalidConfig)
	}

	if c.UsesBadger() && c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required for badger backends", ErrInvalidConfig)
	}

	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.ChunkConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: embedding.batch_size must be positive", ErrInvalidConfig)
	}
	if c.Embedding.MaxAttempts <= 0 {
		return fmt.Errorf("%w: embedding.max_attempts must be positive", ErrInvalidConfig)
	}
	if c.Embedding.Pacing.Duration < 0 {
		return fmt.Errorf("%w: embedding.pacing must not be negative", ErrInvalidConfig)
	}
	if c.Ingestion.PoolSize < 0 {
		return fmt.Errorf("%w: ingestion.pool_size must not be negative", ErrInvalidConfig)
	}
	if c.Ingestion.ProcessingTimeout.Duration <= 0 {
		return fmt.Errorf("%w: ingestion.processing_timeout must be positive", ErrInvalidConfig)
	}
	if c.Ingestion.MaxUploadSize <= 0 {
		return fmt.Errorf("%w: ingestion.max_upload_size must be positive", ErrInvalidConfig)
	}
	return nil
}

// UsesPostgres reports whether any backend needs a PostgreSQL connection.
func (c *Config) UsesPostgres() bool {
	return c.Storage.Backend == BackendPostgres || c.Vectors.Backend == BackendPgvector
}

// UsesBadger reports whether any backend needs the embedded database.
func (c *Config) UsesBadger() bool {
	return c.Storage.Backend == BackendBadger ||
		c.Blobs.Backend == BackendBadger ||
		c.Vectors.Backend == BackendBadger
}

// AIConfig converts the provider section into an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.AI.Provider),
		ai.WithEmbeddingHost(c.AI.Host),
		ai.WithEmbeddingModel(c.AI.Model),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithDimensions(c.AI.Dimensions),
	)
}

// ChunkConfig converts the chunking section into the default chunk.Config.
func (c *Config) ChunkConfig() chunk.Config {
	return chunk.Config{
		Strategy:  chunk.Strategy(c.Chunking.Strategy),
		ChunkSize: c.Chunking.Size,
		Overlap:   c.Chunking.Overlap,
	}
}

// RetryPolicy returns the embedding retry policy with the configured attempt count.
func (c *Config) RetryPolicy() embedding.Policy {
	policy := embedding.DefaultPolicy()
	policy.MaxAttempts = c.Embedding.MaxAttempts
	return policy
}
