package core

import (
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for documents and passages.
// Document IDs are random UUIDs; passage IDs are derived from their document.
type ID string

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// String returns the identifier as a plain string.
func (id ID) String() string {
	return string(id)
}

// passageNamespace scopes the name-based UUIDs generated for passages.
var passageNamespace = uuid.MustParse("6f1c1e0a-0c7e-4b43-9a53-6c9b1d2f4e70")

// PassageID derives the identifier of the passage at chunkIndex within a document.
// The same pair always yields the same ID, so re-upserting a passage replaces it.
func PassageID(documentID ID, chunkIndex int) ID {
	name := string(documentID) + "#" + strconv.Itoa(chunkIndex)
	return ID(uuid.NewSHA1(passageNamespace, []byte(name)).String())
}

// ContentHash returns the hex encoded BLAKE2b-256 digest of data.
// It is used to detect duplicate uploads for the same owner.
func ContentHash(data []byte) string {
	h, _ := blake2b.New(32, nil) // 32 bytes = 256 bits
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentTypeOf returns the normalized content type for a filename:
// its lowercase extension including the leading dot.
func ContentTypeOf(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Status is the processing state of a Document.
type Status string

const (
	// StatusProcessing marks a document whose passages are being built.
	StatusProcessing Status = "processing"
	// StatusDone marks a document whose passages are all stored and searchable.
	StatusDone Status = "done"
	// StatusFailed marks a document whose processing hit an unrecoverable error.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Document is the persisted record of one uploaded file.
type Document struct {
	ID          ID
	OwnerID     string
	Title       string
	Filename    string
	ContentType string // lowercase extension, e.g. ".pdf"
	ByteSize    int64
	ContentHash string
	Status      Status
	ChunkCount  int    // authoritative only when Status is StatusDone
	Collection  string // vector collection holding the passages
	Error       string // last failure cause when Status is StatusFailed
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a copy of the document with its own metadata map.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Passage is one retrievable span of a document's text.
// Passages only live inside the vector index.
type Passage struct {
	ID         ID
	DocumentID ID
	OwnerID    string
	ChunkIndex int
	Text       string
	Vector     []float32
	Metadata   map[string]any
}

// SearchResult is a ranked passage returned by the retrieval engine.
type SearchResult struct {
	DocumentID    ID
	ChunkIndex    int
	Text          string
	SemanticScore float32
	RerankedScore *float32 // nil when reranking was disabled
	Metadata      map[string]any
}

// Score returns the score the result was ranked by.
func (r *SearchResult) Score() float32 {
	if r.RerankedScore != nil {
		return *r.RerankedScore
	}
	return r.SemanticScore
}

// ScopeKind selects which passages a search may return.
type ScopeKind int

const (
	// ScopeGlobal searches every passage.
	ScopeGlobal ScopeKind = iota
	// ScopeOwner restricts results to one owner's documents.
	ScopeOwner
	// ScopeDocument restricts results to a single document.
	ScopeDocument
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeOwner:
		return "owner"
	case ScopeDocument:
		return "document"
	}
	return "global"
}

// Scope is the subset of passages a search is restricted to.
type Scope struct {
	Kind       ScopeKind
	OwnerID    string
	DocumentID ID
}

// Global returns the unrestricted scope.
func Global() Scope {
	return Scope{Kind: ScopeGlobal}
}

// ByOwner returns a scope limited to the given owner's documents.
func ByOwner(ownerID string) Scope {
	return Scope{Kind: ScopeOwner, OwnerID: ownerID}
}

// ByDocument returns a scope limited to one document.
func ByDocument(id ID) Scope {
	return Scope{Kind: ScopeDocument, DocumentID: id}
}

// Stats summarizes a set of documents.
type Stats struct {
	TotalDocuments int
	TotalBytes     int64
	TotalChunks    int
	ByContentType  map[string]int
	ByStatus       map[Status]int
}
