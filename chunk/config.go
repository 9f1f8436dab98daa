package chunk

import (
	"fmt"

	"github.com/poiesic/lectern/core"
)

// Strategy names a chunking strategy.
type Strategy string

const (
	StrategyToken   Strategy = "token"
	StrategySection Strategy = "section"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
	DefaultStrategy  = StrategySection
)

// Metadata keys under which a document records how it was chunked.
const (
	MetaStrategy = "chunking_strategy"
	MetaSize     = "chunk_size"
	MetaOverlap  = "chunk_overlap"
)

// Config controls how text is split.
type Config struct {
	Strategy  Strategy
	ChunkSize int
	Overlap   int
}

// DefaultConfig returns section chunking with 500 token windows and 50 tokens of overlap.
func DefaultConfig() Config {
	return Config{
		Strategy:  DefaultStrategy,
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
	}
}

// Validate checks that the window parameters are usable.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyToken, StrategySection:
	default:
		return fmt.Errorf("%w: %w: %q", core.ErrValidation, ErrUnknownStrategy, c.Strategy)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrValidation, c.ChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", core.ErrValidation, c.ChunkSize, c.Overlap)
	}
	return nil
}

// Metadata returns the config as document metadata entries.
func (c Config) Metadata() map[string]any {
	return map[string]any{
		MetaStrategy: string(c.Strategy),
		MetaSize:     c.ChunkSize,
		MetaOverlap:  c.Overlap,
	}
}

// Merge overlays override onto c. An empty strategy keeps c's strategy.
// A non-zero ChunkSize replaces both size and overlap, so an explicit zero
// overlap can be requested together with a size.
func (c Config) Merge(override *Config) Config {
	if override == nil {
		return c
	}
	if override.Strategy != "" {
		c.Strategy = override.Strategy
	}
	switch {
	case override.ChunkSize != 0:
		c.ChunkSize = override.ChunkSize
		c.Overlap = override.Overlap
	case override.Overlap != 0:
		c.Overlap = override.Overlap
	}
	return c
}

// ConfigFromMetadata reads back a config stored with Metadata. It returns
// nil when the metadata holds no chunking entries. Numbers may arrive as any
// numeric type after a round trip through JSON.
func ConfigFromMetadata(metadata map[string]any) *Config {
	strategy, _ := metadata[MetaStrategy].(string)
	size, hasSize := asInt(metadata[MetaSize])
	overlap, hasOverlap := asInt(metadata[MetaOverlap])
	if strategy == "" && !hasSize && !hasOverlap {
		return nil
	}
	return &Config{Strategy: Strategy(strategy), ChunkSize: size, Overlap: overlap}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
