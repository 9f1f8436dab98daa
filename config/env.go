package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// binding ties one environment variable (without EnvPrefix) to a field.
type binding struct {
	name string
	set  func(value string) error
}

func (c *Config) bindings() []binding {
	return []binding{
		{"DATA_DIR", setString(&c.DataDir)},
		{"METRICS_ADDR", setString(&c.MetricsAddr)},

		{"STORAGE_BACKEND", setString(&c.Storage.Backend)},
		{"POSTGRES_URL", setString(&c.Storage.PostgresURL)},

		{"BLOB_BACKEND", setString(&c.Blobs.Backend)},
		{"S3_BUCKET", setString(&c.Blobs.S3Bucket)},
		{"S3_REGION", setString(&c.Blobs.S3Region)},
		{"S3_PREFIX", setString(&c.Blobs.S3Prefix)},
		{"S3_ENDPOINT", setString(&c.Blobs.S3Endpoint)},
		{"S3_ACCESS_KEY", setString(&c.Blobs.S3AccessKey)},
		{"S3_SECRET_KEY", setString(&c.Blobs.S3SecretKey)},

		{"VECTOR_BACKEND", setString(&c.Vectors.Backend)},
		{"COLLECTION", setString(&c.Vectors.Collection)},
		{"UPSERT_BATCH_SIZE", setInt(&c.Vectors.UpsertBatchSize)},
		{"QDRANT_HOST", setString(&c.Vectors.QdrantHost)},
		{"QDRANT_PORT", setInt(&c.Vectors.QdrantPort)},
		{"QDRANT_API_KEY", setString(&c.Vectors.QdrantAPIKey)},
		{"QDRANT_TLS", setBool(&c.Vectors.QdrantTLS)},

		{"AI_PROVIDER", setString(&c.AI.Provider)},
		{"EMBEDDING_HOST", setString(&c.AI.Host)},
		{"EMBEDDING_MODEL", setString(&c.AI.Model)},
		{"API_KEY", setString(&c.AI.APIKey)},
		{"EMBEDDING_DIMENSIONS", setInt(&c.AI.Dimensions)},

		{"EMBEDDING_BATCH_SIZE", setInt(&c.Embedding.BatchSize)},
		{"EMBEDDING_PACING", setDuration(&c.Embedding.Pacing.Duration)},
		{"EMBEDDING_MAX_ATTEMPTS", setInt(&c.Embedding.MaxAttempts)},

		{"CHUNK_STRATEGY", setString(&c.Chunking.Strategy)},
		{"CHUNK_SIZE", setInt(&c.Chunking.Size)},
		{"CHUNK_OVERLAP", setInt(&c.Chunking.Overlap)},

		{"POOL_SIZE", setInt(&c.Ingestion.PoolSize)},
		{"PROCESSING_TIMEOUT", setDuration(&c.Ingestion.ProcessingTimeout.Duration)},
		{"MAX_UPLOAD_SIZE", setInt64(&c.Ingestion.MaxUploadSize)},
	}
}

// EnvVar returns the full environment variable name for a binding name.
func EnvVar(name string) string {
	return EnvPrefix + name
}

// applyEnv overwrites fields whose variable is present in lookup.
// Empty values are ignored.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range c.bindings() {
		key := EnvVar(b.name)
		value, ok := lookup(key)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if err := b.set(value); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setInt64(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
