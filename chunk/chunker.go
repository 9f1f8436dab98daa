package chunk

import (
	"log/slog"
	"strings"
)

// Chunk is one passage of text with its position and chunking metadata.
type Chunk struct {
	Index    int
	Text     string
	Metadata map[string]any
}

// Chunker splits text according to a Config.
type Chunker struct {
	tokenizer Tokenizer
	config    Config
	logger    *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		c.logger = logger
		return nil
	}
}

// WithConfig sets the config used when Split is called with a zero Config.
func WithConfig(cfg Config) Option {
	return func(c *Chunker) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.config = cfg
		return nil
	}
}

// New creates a Chunker over tokenizer.
func New(tokenizer Tokenizer, opts ...Option) (*Chunker, error) {
	if tokenizer == nil {
		return nil, ErrTokenizerRequired
	}
	c := &Chunker{
		tokenizer: tokenizer,
		config:    DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Config returns the default configuration of the chunker.
func (c *Chunker) Config() Config {
	return c.config
}

// Split cuts text into chunks with indices 0..n-1. Zero fields of cfg take the
// chunker's defaults. Empty text yields no chunks.
func (c *Chunker) Split(text string, cfg Config) ([]Chunk, error) {
	cfg = c.config.Merge(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var chunks []Chunk
	switch cfg.Strategy {
	case StrategySection:
		chunks = c.splitSections(text, cfg)
	default:
		chunks = c.splitTokens(text, cfg)
	}
	c.logger.Debug("split text", "strategy", cfg.Strategy, "chunks", len(chunks))
	return chunks, nil
}

// splitTokens slides a ChunkSize window over the tokens, stopping once a
// window reaches the end of the text.
func (c *Chunker) splitTokens(text string, cfg Config) []Chunk {
	tokens := c.tokenizer.Encode(text)
	step := cfg.ChunkSize - cfg.Overlap

	var chunks []Chunk
	for start := 0; start < len(tokens); start += step {
		end := min(start+cfg.ChunkSize, len(tokens))
		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  c.tokenizer.Decode(window),
			Metadata: map[string]any{
				MetaStrategy:  string(StrategyToken),
				"start_token": start,
				"end_token":   start + cfg.ChunkSize,
				"token_count": len(window),
			},
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

type section struct {
	heading string
	lines   []string
}

// splitSections makes one chunk per heading and its body. A block before the
// first heading becomes a chunk without a heading.
func (c *Chunker) splitSections(text string, cfg Config) []Chunk {
	var (
		sections   []section
		current    section
		hasHeading bool
	)
	flush := func() {
		if len(current.lines) > 0 {
			sections = append(sections, current)
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if IsHeading(line) {
			flush()
			current = section{heading: HeadingText(line), lines: []string{line}}
			hasHeading = true
			continue
		}
		current.lines = append(current.lines, line)
	}
	flush()

	if !hasHeading {
		return c.splitTokens(text, cfg)
	}

	chunks := make([]Chunk, 0, len(sections))
	for _, s := range sections {
		body := strings.TrimSpace(strings.Join(s.lines, "\n"))
		if body == "" {
			continue
		}
		md := map[string]any{
			MetaStrategy:  string(StrategySection),
			"token_count": len(c.tokenizer.Encode(body)),
		}
		if s.heading != "" {
			md["heading"] = s.heading
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: body, Metadata: md})
	}
	return chunks
}

// IsHeading reports whether a line opens a section.
func IsHeading(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// HeadingText strips the heading markers from a heading line.
func HeadingText(line string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
}

// CountTokens returns the number of tokens in text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.tokenizer.Encode(text))
}

// EstimateChunks predicts how many token windows text needs under cfg.
func (c *Chunker) EstimateChunks(text string, cfg Config) int {
	cfg = c.config.Merge(&cfg)
	return EstimateChunks(c.CountTokens(text), cfg.ChunkSize, cfg.Overlap)
}

// EstimateChunks returns 1 when tokens fit one window, otherwise
// ceil((tokens - overlap) / (size - overlap)).
func EstimateChunks(tokens, size, overlap int) int {
	if tokens <= size {
		return 1
	}
	step := size - overlap
	if step <= 0 {
		return 0
	}
	return (tokens - overlap + step - 1) / step
}
