package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

// DocumentRepository implements storage.DocumentRepository on PostgreSQL.
type DocumentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// Option configures a DocumentRepository.
type Option func(*DocumentRepository) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *DocumentRepository) error {
		r.logger = logger
		return nil
	}
}

// NewDocumentRepository bootstraps the schema and returns a repository over db.
// The repository takes ownership of db and closes it on Close.
func NewDocumentRepository(ctx context.Context, db *sql.DB, opts ...Option) (storage.DocumentRepository, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	r := &DocumentRepository{db: db, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "postgres-documents")

	if err := EnsureBootstrapped(ctx, db); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return r, nil
}

// Health pings the database.
func (r *DocumentRepository) Health(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// Close closes the connection pool.
func (r *DocumentRepository) Close() error {
	return r.db.Close()
}

const documentColumns = `id, owner_id, title, filename, content_type, byte_size, content_hash,
	status, chunk_count, collection, error, metadata, created_at, updated_at`

// Create inserts a document; the (owner_id, content_hash) constraint reports duplicates.
func (r *DocumentRepository) Create(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = core.NewID()
	}
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	metadata, err := storage.MarshalMetadata(stored.Metadata)
	if err != nil {
		return nil, err
	}

	const q = `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.db.ExecContext(ctx, q,
		string(stored.ID), stored.OwnerID, stored.Title, stored.Filename, stored.ContentType,
		stored.ByteSize, stored.ContentHash, string(stored.Status), stored.ChunkCount,
		stored.Collection, stored.Error, metadata, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return stored, nil
}

// Get retrieves a document by ID.
func (r *DocumentRepository) Get(ctx context.Context, id core.ID) (*core.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, string(id))
	return scanDocument(row)
}

// FindByHash retrieves the owner's document with the given content hash.
func (r *DocumentRepository) FindByHash(ctx context.Context, ownerID, contentHash string) (*core.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 AND content_hash = $2`,
		ownerID, contentHash)
	return scanDocument(row)
}

// List runs the filtered page query and a matching count.
func (r *DocumentRepository) List(ctx context.Context, opts storage.ListOptions) ([]*core.Document, int, error) {
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}
	q := buildListQuery(opts)

	var total int
	if err := r.db.QueryRowContext(ctx, q.count, q.args...).Scan(&total); err != nil {
		return nil, 0, translateError(err)
	}

	rows, err := r.db.QueryContext(ctx, q.page, q.pageArgs()...)
	if err != nil {
		return nil, 0, translateError(err)
	}
	defer rows.Close()

	docs := make([]*core.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// Update replaces the title and metadata.
func (r *DocumentRepository) Update(ctx context.Context, doc *core.Document) (*core.Document, error) {
	metadata, err := storage.MarshalMetadata(doc.Metadata)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE documents
		SET title = COALESCE(NULLIF($2, ''), title),
			collection = COALESCE(NULLIF($4, ''), collection),
			metadata = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+documentColumns,
		string(doc.ID), doc.Title, metadata, doc.Collection)
	return scanDocument(row)
}

// MarkProcessing resets a document for another processing run.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id core.ID) (*core.Document, error) {
	return r.setStatus(ctx, id, core.StatusProcessing, 0, "")
}

// MarkDone sets status and chunk count in one statement.
func (r *DocumentRepository) MarkDone(ctx context.Context, id core.ID, chunkCount int) (*core.Document, error) {
	return r.setStatus(ctx, id, core.StatusDone, chunkCount, "")
}

// MarkFailed records the failure cause.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id core.ID, cause string) (*core.Document, error) {
	return r.setStatus(ctx, id, core.StatusFailed, 0, cause)
}

func (r *DocumentRepository) setStatus(ctx context.Context, id core.ID, status core.Status, chunkCount int, cause string) (*core.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE documents
		SET status = $2, chunk_count = $3, error = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+documentColumns,
		string(id), string(status), chunkCount, cause)
	return scanDocument(row)
}

// Delete removes a document.
func (r *DocumentRepository) Delete(ctx context.Context, id core.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, string(id))
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Stats aggregates per content type and status, then folds the groups together.
func (r *DocumentRepository) Stats(ctx context.Context, ownerID string) (*core.Stats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT content_type, status, COUNT(*), COALESCE(SUM(byte_size), 0), COALESCE(SUM(chunk_count), 0)
		FROM documents
		WHERE ($1 = '' OR owner_id = $1)
		GROUP BY content_type, status`, ownerID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	stats := &core.Stats{
		ByContentType: make(map[string]int),
		ByStatus:      make(map[core.Status]int),
	}
	for rows.Next() {
		var (
			contentType, status string
			count, chunks       int
			bytes               int64
		)
		if err := rows.Scan(&contentType, &status, &count, &bytes, &chunks); err != nil {
			return nil, err
		}
		stats.TotalDocuments += count
		stats.TotalBytes += bytes
		stats.TotalChunks += chunks
		stats.ByContentType[contentType] += count
		stats.ByStatus[core.Status(status)] += count
	}
	return stats, rows.Err()
}

// ListStale returns processing documents last updated before cutoff.
func (r *DocumentRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*core.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at`, string(core.StatusProcessing), cutoff)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.Document, error) {
	var (
		doc              core.Document
		id, status       string
		metadata         []byte
		createdAt, updAt time.Time
	)
	err := row.Scan(&id, &doc.OwnerID, &doc.Title, &doc.Filename, &doc.ContentType,
		&doc.ByteSize, &doc.ContentHash, &status, &doc.ChunkCount, &doc.Collection,
		&doc.Error, &metadata, &createdAt, &updAt)
	if err != nil {
		return nil, translateError(err)
	}
	doc.ID = core.ID(id)
	doc.Status = core.Status(status)
	doc.CreatedAt = createdAt.UTC()
	doc.UpdatedAt = updAt.UTC()
	if doc.Metadata, err = storage.UnmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

// listQuery holds the SQL and arguments for one List call.
type listQuery struct {
	count  string
	page   string
	args   []any
	limit  int
	offset int
}

func (q listQuery) pageArgs() []any {
	return append(append([]any{}, q.args...), q.limit, q.offset)
}

var sortColumns = map[storage.SortField]string{
	storage.SortByCreatedAt: "created_at",
	storage.SortByUpdatedAt: "updated_at",
	storage.SortByTitle:     "lower(title)",
	storage.SortByFilename:  "lower(filename)",
	storage.SortByByteSize:  "byte_size",
}

// buildListQuery renders the WHERE clause from opts with positional
// parameters. Sort columns come from a fixed whitelist.
func buildListQuery(opts storage.ListOptions) listQuery {
	opts = opts.Normalize()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if opts.OwnerID != "" {
		add("owner_id = $%d", opts.OwnerID)
	}
	if opts.Status != "" {
		add("status = $%d", string(opts.Status))
	}
	if opts.ContentType != "" {
		add("content_type = $%d", opts.ContentType)
	}
	if opts.Search != "" {
		args = append(args, "%"+escapeLike(opts.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR filename ILIKE $%d)", n, n))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}
	order := fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumns[opts.SortBy], direction, direction)
	limitPos := len(args) + 1

	return listQuery{
		count: "SELECT COUNT(*) FROM documents" + where,
		page: "SELECT " + documentColumns + " FROM documents" + where + order +
			fmt.Sprintf(" LIMIT $%d OFFSET $%d", limitPos, limitPos+1),
		args:   args,
		limit:  opts.Limit,
		offset: opts.Offset,
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
