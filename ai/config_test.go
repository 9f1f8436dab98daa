package ai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Zero(t, cfg.Dimensions)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithProvider(ProviderGemini),
			WithEmbeddingModel("gemini-embedding-001"),
			WithAPIKey("secret"),
			WithDimensions(768),
		)

		assert.Equal(t, ProviderGemini, cfg.Provider)
		assert.Equal(t, "gemini-embedding-001", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, 768, cfg.Dimensions)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name             string
		provider         string
		host             string
		expectedProvider string
		expectedHost     string
	}{
		{name: "already has /v1", provider: "openai", host: "http://localhost:11434/v1", expectedProvider: "openai", expectedHost: "http://localhost:11434/v1"},
		{name: "missing /v1", provider: "openai", host: "http://localhost:11434", expectedProvider: "openai", expectedHost: "http://localhost:11434/v1"},
		{name: "has trailing slash", provider: "openai", host: "http://localhost:11434/", expectedProvider: "openai", expectedHost: "http://localhost:11434/v1"},
		{name: "empty provider defaults to openai", provider: "", host: "http://embed:8080", expectedProvider: "openai", expectedHost: "http://embed:8080/v1"},
		{name: "empty host", provider: "openai", host: "", expectedProvider: "openai", expectedHost: ""},
		{name: "provider case folded", provider: " Gemini ", host: "http://ignored", expectedProvider: "gemini", expectedHost: "http://ignored"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, EmbeddingHost: tt.host}

			cfg.Normalize()

			assert.Equal(t, tt.expectedProvider, cfg.Provider)
			assert.Equal(t, tt.expectedHost, cfg.EmbeddingHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid openai config", func(t *testing.T) {
		cfg := &Config{
			Provider:       ProviderOpenAI,
			EmbeddingHost:  "http://localhost:11434",
			EmbeddingModel: "embeddinggemma",
		}

		err := cfg.Validate()
		assert.NoError(t, err)

		// Should also normalize
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	t.Run("missing embedding host", func(t *testing.T) {
		cfg := &Config{Provider: ProviderOpenAI, EmbeddingModel: "embeddinggemma"}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "EmbeddingHost")
	})

	t.Run("missing embedding model", func(t *testing.T) {
		cfg := &Config{Provider: ProviderOpenAI, EmbeddingHost: "http://localhost:11434/v1"}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "EmbeddingModel")
	})

	t.Run("gemini requires api key", func(t *testing.T) {
		cfg := &Config{Provider: ProviderGemini, EmbeddingModel: "gemini-embedding-001"}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "APIKey")
	})

	t.Run("mock needs nothing else", func(t *testing.T) {
		cfg := &Config{Provider: ProviderMock}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := &Config{Provider: "cohere", EmbeddingModel: "embed"}

		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("negative dimensions", func(t *testing.T) {
		cfg := NewConfig(WithDimensions(-1))

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Dimensions")
	})
}

func TestConfigValidate_Integration(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	require.NoError(t, cfg.Validate())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "marked", err: MarkTransient(errors.New("boom")), want: true},
		{name: "wrapped marked", err: fmt.Errorf("batch 2: %w", MarkTransient(errors.New("boom"))), want: true},
		{name: "net timeout", err: timeoutErr{}, want: true},
		{name: "rate limit text", err: errors.New("API returned unexpected status code: 429: Rate limit reached"), want: true},
		{name: "network error text", err: errors.New("network error: dial tcp"), want: true},
		{name: "bad request", err: errors.New("status code: 400: input too long"), want: false},
		{name: "auth failure", err: errors.New("invalid api key"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}

	assert.Nil(t, MarkTransient(nil))
}
