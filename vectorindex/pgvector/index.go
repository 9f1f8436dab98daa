package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	pgvec "github.com/pgvector/pgvector-go"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/vectorindex"
)

// validTable matches collection names usable as unquoted identifiers.
var validTable = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Index is a vectorindex.Index stored in one PostgreSQL table.
type Index struct {
	db        *sql.DB
	table     string
	batchSize int
	logger    *slog.Logger

	ensureMu sync.Mutex
	ensured  bool
}

var _ vectorindex.Index = (*Index)(nil)

// Option configures an Index.
type Option func(*Index) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// WithCollection sets the collection, which is also the table name.
// Default is vectorindex.DefaultCollection.
func WithCollection(name string) Option {
	return func(i *Index) error {
		if !validTable.MatchString(name) {
			return fmt.Errorf("%w: invalid table name %q", vectorindex.ErrCollectionRequired, name)
		}
		i.table = name
		return nil
	}
}

// WithUpsertBatchSize sets the number of rows written per transaction.
func WithUpsertBatchSize(size int) Option {
	return func(i *Index) error {
		if size <= 0 {
			return fmt.Errorf("upsert batch size must be positive, got %d", size)
		}
		i.batchSize = size
		return nil
	}
}

// New returns an index over db. The caller owns db.
func New(db *sql.DB, opts ...Option) (vectorindex.Index, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db is required", core.ErrVectorIndex)
	}
	i := &Index{
		db:        db,
		table:     vectorindex.DefaultCollection,
		batchSize: vectorindex.DefaultUpsertBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.logger = i.logger.With("component", "pgvector-index", "collection", i.table)
	return i, nil
}

// Collection returns the table name.
func (i *Index) Collection() string {
	return i.table
}

// schemaStatements returns the DDL for a table of dim-sized vectors.
func schemaStatements(table string, dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          uuid PRIMARY KEY,
			document_id text NOT NULL,
			owner_id    text NOT NULL,
			chunk_index integer NOT NULL,
			text        text NOT NULL,
			metadata    jsonb NOT NULL DEFAULT '{}'::jsonb,
			embedding   vector(%d) NOT NULL
		)`, table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_owner_idx ON %s (owner_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table),
	}
}

// EnsureCollection creates the extension, table and indexes if missing.
func (i *Index) EnsureCollection(ctx context.Context, dim int) error {
	i.ensureMu.Lock()
	defer i.ensureMu.Unlock()
	if i.ensured {
		return nil
	}
	if dim <= 0 {
		return vectorindex.Wrap("ensure collection", fmt.Errorf("%w: %d", vectorindex.ErrDimensionMismatch, dim))
	}

	for _, stmt := range schemaStatements(i.table, dim) {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return vectorindex.Wrap("ensure collection", err)
		}
	}
	i.logger.Debug("collection ready", "dimensions", dim)
	i.ensured = true
	return nil
}

func (i *Index) upsertSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, document_id, owner_id, chunk_index, text, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			owner_id    = EXCLUDED.owner_id,
			chunk_index = EXCLUDED.chunk_index,
			text        = EXCLUDED.text,
			metadata    = EXCLUDED.metadata,
			embedding   = EXCLUDED.embedding
	`, i.table)
}

// Upsert writes each sub-batch in its own transaction.
func (i *Index) Upsert(ctx context.Context, points []vectorindex.Point) error {
	if len(points) == 0 {
		return nil
	}
	query := i.upsertSQL()
	return vectorindex.UpsertInBatches(ctx, points, i.batchSize, func(ctx context.Context, batch []vectorindex.Point) error {
		tx, err := i.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()

		for _, p := range batch {
			metadata, err := marshalMetadata(p.Payload.Metadata)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				string(p.ID), string(p.Payload.DocumentID), p.Payload.OwnerID, p.Payload.ChunkIndex,
				p.Payload.Text, metadata, pgvec.NewVector(p.Vector),
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

// whereClause renders filter as a WHERE clause whose placeholders start at
// $next. It returns an empty clause for an empty filter.
func whereClause(f vectorindex.Filter, next int) (string, []any) {
	var conds []string
	var args []any
	if f.DocumentID != "" {
		conds = append(conds, fmt.Sprintf("document_id = $%d", next+len(args)))
		args = append(args, string(f.DocumentID))
	}
	if f.OwnerID != "" {
		conds = append(conds, fmt.Sprintf("owner_id = $%d", next+len(args)))
		args = append(args, f.OwnerID)
	}
	if f.ChunkIndex != nil {
		conds = append(conds, fmt.Sprintf("chunk_index = $%d", next+len(args)))
		args = append(args, *f.ChunkIndex)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// searchSQL builds the similarity query. $1 is the query vector, $2 the
// threshold and $3 the limit; filter arguments follow.
func (i *Index) searchSQL(f vectorindex.Filter) (string, []any) {
	where, args := whereClause(f, 4)
	scoreCond := "1 - (embedding <=> $1) >= $2"
	if where == "" {
		where = " WHERE " + scoreCond
	} else {
		where += " AND " + scoreCond
	}
	query := fmt.Sprintf(`SELECT id, document_id, owner_id, chunk_index, text, metadata, 1 - (embedding <=> $1) AS score
		FROM %s%s
		ORDER BY embedding <=> $1
		LIMIT $3`, i.table, where)
	return query, args
}

// Search runs a cosine similarity query.
func (i *Index) Search(ctx context.Context, vector []float32, limit int, threshold float32, filter vectorindex.Filter) ([]vectorindex.Hit, error) {
	if limit <= 0 {
		return []vectorindex.Hit{}, nil
	}
	query, filterArgs := i.searchSQL(filter)
	args := append([]any{pgvec.NewVector(vector), threshold, limit}, filterArgs...)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, vectorindex.Wrap("search", err)
	}
	defer rows.Close()

	hits := []vectorindex.Hit{}
	for rows.Next() {
		var score float64
		hit, err := scanHit(rows, &score)
		if err != nil {
			return nil, vectorindex.Wrap("search", err)
		}
		hit.Score = float32(score)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, vectorindex.Wrap("search", err)
	}
	return hits, nil
}

// Scroll lists matching rows in document and chunk order.
func (i *Index) Scroll(ctx context.Context, filter vectorindex.Filter, limit int) ([]vectorindex.Hit, error) {
	if limit <= 0 {
		return []vectorindex.Hit{}, nil
	}
	where, args := whereClause(filter, 2)
	query := fmt.Sprintf(`SELECT id, document_id, owner_id, chunk_index, text, metadata
		FROM %s%s
		ORDER BY document_id, chunk_index
		LIMIT $1`, i.table, where)

	rows, err := i.db.QueryContext(ctx, query, append([]any{limit}, args...)...)
	if err != nil {
		return nil, vectorindex.Wrap("scroll", err)
	}
	defer rows.Close()

	hits := []vectorindex.Hit{}
	for rows.Next() {
		hit, err := scanHit(rows)
		if err != nil {
			return nil, vectorindex.Wrap("scroll", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, vectorindex.Wrap("scroll", err)
	}
	return hits, nil
}

// scanHit reads the common columns plus any extra destinations.
func scanHit(rows *sql.Rows, extra ...any) (vectorindex.Hit, error) {
	var (
		hit      vectorindex.Hit
		id, doc  string
		metadata []byte
	)
	dest := append([]any{&id, &doc, &hit.Payload.OwnerID, &hit.Payload.ChunkIndex, &hit.Payload.Text, &metadata}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return hit, err
	}
	hit.ID = core.ID(id)
	hit.Payload.DocumentID = core.ID(doc)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &hit.Payload.Metadata); err != nil {
			return hit, err
		}
		if len(hit.Payload.Metadata) == 0 {
			hit.Payload.Metadata = nil
		}
	}
	return hit, nil
}

// DeleteByFilter deletes matching rows.
func (i *Index) DeleteByFilter(ctx context.Context, filter vectorindex.Filter) error {
	if filter.IsEmpty() {
		return vectorindex.Wrap("delete", vectorindex.ErrEmptyFilter)
	}
	where, args := whereClause(filter, 1)
	res, err := i.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s%s`, i.table, where), args...)
	if err != nil {
		return vectorindex.Wrap("delete", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		i.logger.Debug("deleted rows", "count", n)
	}
	return nil
}

// Health pings the database.
func (i *Index) Health(ctx context.Context) error {
	return vectorindex.Wrap("health", i.db.PingContext(ctx))
}

// Close is a no-op; the caller owns the database handle.
func (i *Index) Close() error {
	return nil
}
