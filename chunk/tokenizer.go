package chunk

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used for token counts.
const DefaultEncoding = "cl100k_base"

// Tokenizer converts between text and token IDs.
// Decode(Encode(s)) must return s.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named BPE encoding. The first call may
// download the encoding ranks; set TIKTOKEN_CACHE_DIR to reuse them.
func NewTiktokenTokenizer(encoding string) (Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

// Special tokens are treated as ordinary text.
func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.EncodeOrdinary(text)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// WordTokenizer treats every word together with its leading whitespace as one
// token. Vocabulary IDs are assigned on first sight.
type WordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewWordTokenizer returns an empty WordTokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: make(map[string]int)}
}

func (w *WordTokenizer) Encode(text string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()

	var tokens []int
	for _, piece := range splitWords(text) {
		id, ok := w.ids[piece]
		if !ok {
			id = len(w.words)
			w.ids[piece] = id
			w.words = append(w.words, piece)
		}
		tokens = append(tokens, id)
	}
	return tokens
}

func (w *WordTokenizer) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(w.words) {
			b.WriteString(w.words[id])
		}
	}
	return b.String()
}

// splitWords cuts text before every whitespace run that follows a non-space,
// so pieces are "<whitespace><word>". Trailing whitespace is its own piece.
func splitWords(text string) []string {
	var (
		pieces []string
		start  int
		inWord bool
	)
	for i, r := range text {
		space := unicode.IsSpace(r)
		if space && inWord {
			pieces = append(pieces, text[start:i])
			start = i
		}
		inWord = !space
	}
	if start < len(text) {
		pieces = append(pieces, text[start:])
	}
	return pieces
}
