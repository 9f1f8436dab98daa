package core

import (
	"testing"
)

func TestContentHash(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{name: "empty", content: []byte{}},
		{name: "short", content: []byte("hello")},
		{name: "binary", content: []byte{0x00, 0xff, 0x10, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := ContentHash(tt.content)
			h2 := ContentHash(tt.content)
			if h1 != h2 {
				t.Errorf("ContentHash() not deterministic: %s vs %s", h1, h2)
			}
			if len(h1) != 64 {
				t.Errorf("ContentHash() length = %d, want 64", len(h1))
			}
		})
	}
}

func TestContentHash_Different(t *testing.T) {
	if ContentHash([]byte("a")) == ContentHash([]byte("b")) {
		t.Errorf("ContentHash() produced same digest for different content")
	}
}

func TestPassageID(t *testing.T) {
	doc := NewID()

	if PassageID(doc, 0) != PassageID(doc, 0) {
		t.Errorf("PassageID() not deterministic")
	}
	if PassageID(doc, 0) == PassageID(doc, 1) {
		t.Errorf("PassageID() collided across chunk indices")
	}
	if PassageID(doc, 0) == PassageID(NewID(), 0) {
		t.Errorf("PassageID() collided across documents")
	}
}

func TestContentTypeOf(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"report.PDF", ".pdf"},
		{"notes.md", ".md"},
		{"archive.tar.gz", ".gz"},
		{"README", ""},
	}
	for _, tt := range tests {
		if got := ContentTypeOf(tt.filename); got != tt.want {
			t.Errorf("ContentTypeOf(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestSearchResult_Score(t *testing.T) {
	r := &SearchResult{SemanticScore: 0.8}
	if r.Score() != 0.8 {
		t.Errorf("Score() = %v, want semantic score", r.Score())
	}
	combined := float32(0.86)
	r.RerankedScore = &combined
	if r.Score() != 0.86 {
		t.Errorf("Score() = %v, want reranked score", r.Score())
	}
}

func TestDocument_Clone(t *testing.T) {
	doc := &Document{ID: "d1", Metadata: map[string]any{"k": "v"}}
	c := doc.Clone()
	c.Metadata["k"] = "changed"
	if doc.Metadata["k"] != "v" {
		t.Errorf("Clone() shares metadata map with original")
	}
}
