package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*VectorIndex)(nil)

// DefaultCollection is the collection name used when none is configured
const DefaultCollection = "documents"

var collectionName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,47}$`)

// VectorIndexConfig configures the pgvector collection
type VectorIndexConfig struct {
	Collection string // default: documents
	Dimensions int
	Model      string // recorded with the collection for operators
}

// VectorIndex implements driven.VectorIndex on PostgreSQL with pgvector.
// Each collection lives in its own table; its dimension and metric are
// recorded in the collections table and never change.
type VectorIndex struct {
	db         *DB
	collection string
	table      string
	dims       int
	lockID     int64
}

// NewVectorIndex opens (or creates) a collection. It fails with
// domain.ErrConfiguration when the collection exists with another dimension
// or metric.
func NewVectorIndex(ctx context.Context, db *DB, cfg VectorIndexConfig) (*VectorIndex, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if !collectionName.MatchString(cfg.Collection) {
		return nil, fmt.Errorf("%w: invalid collection name %q", domain.ErrConfiguration, cfg.Collection)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: collection dimension must be positive", domain.ErrConfiguration)
	}

	v := &VectorIndex{
		db:         db,
		collection: cfg.Collection,
		table:      "embeddings_" + cfg.Collection,
		dims:       cfg.Dimensions,
		lockID:     collectionLockID(cfg.Collection),
	}
	if err := v.ensureCollection(ctx, cfg.Model); err != nil {
		return nil, err
	}
	return v, nil
}

func collectionLockID(collection string) int64 {
	h := fnv.New64a()
	h.Write([]byte("sercha:collection:" + collection))
	return int64(h.Sum64())
}

func (v *VectorIndex) ensureCollection(ctx context.Context, model string) error {
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO collections (name, dimensions, metric, model)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`, v.collection, v.dims, string(domain.MetricCosine), model)
	if err != nil {
		return unavailable(fmt.Errorf("failed to register collection: %w", err))
	}

	var dims int
	var metric string
	err = v.db.QueryRowContext(ctx,
		`SELECT dimensions, metric FROM collections WHERE name = $1`, v.collection,
	).Scan(&dims, &metric)
	if err != nil {
		return unavailable(fmt.Errorf("failed to read collection: %w", err))
	}
	if dims != v.dims {
		return fmt.Errorf("%w: collection %s has dimension %d, embedder produces %d",
			domain.ErrConfiguration, v.collection, dims, v.dims)
	}
	if domain.Metric(metric) != domain.MetricCosine {
		return fmt.Errorf("%w: collection %s uses metric %s", domain.ErrConfiguration, v.collection, metric)
	}

	table := pq.QuoteIdentifier(v.table)
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(36) PRIMARY KEY,
			session_id VARCHAR(128) NOT NULL,
			path TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			ext VARCHAR(16) NOT NULL DEFAULT '',
			page INTEGER NOT NULL DEFAULT 0,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL DEFAULT '',
			embedding vector(%[2]d) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s (session_id);
		CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s (session_id, path);
		CREATE INDEX IF NOT EXISTS %[5]s ON %[1]s USING hnsw (embedding vector_cosine_ops);
	`, table, v.dims,
		pq.QuoteIdentifier(v.table+"_session"),
		pq.QuoteIdentifier(v.table+"_path"),
		pq.QuoteIdentifier(v.table+"_hnsw"),
	)
	if _, err := v.db.ExecContext(ctx, ddl); err != nil {
		return unavailable(fmt.Errorf("failed to create collection table: %w", err))
	}
	return nil
}

// Upsert inserts or overwrites records in one transaction. Every record is
// validated before anything is written.
func (v *VectorIndex) Upsert(ctx context.Context, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := r.Validate(v.dims); err != nil {
			return err
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, path, title, ext, page, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			path = EXCLUDED.path,
			title = EXCLUDED.title,
			ext = EXCLUDED.ext,
			page = EXCLUDED.page,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding
	`, pq.QuoteIdentifier(v.table))

	err := v.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := v.lock(ctx, tx); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			m := r.Metadata
			_, err := stmt.ExecContext(ctx,
				r.ID,
				m.SessionID,
				m.Path,
				m.Title,
				m.Ext,
				m.Page,
				m.ChunkIndex,
				r.Text,
				pgvector.NewVector(r.Vector),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
			}
		}
		return nil
	})
	return unavailable(err)
}

// lock serializes mutations of the collection for the rest of tx
func (v *VectorIndex) lock(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", v.lockID)
	return err
}

// Query returns the k nearest records by cosine distance (the <=> operator)
func (v *VectorIndex) Query(ctx context.Context, vector domain.Vector, k int, filter domain.Filter) ([]domain.ScoredRecord, error) {
	if len(vector) != v.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", domain.ErrConfiguration, len(vector), v.dims)
	}
	if k <= 0 {
		return []domain.ScoredRecord{}, nil
	}

	where, args := whereClause(nil, filter, 2)
	query := fmt.Sprintf(`
		SELECT id, session_id, path, title, ext, page, chunk_index, content, embedding,
			embedding <=> $1 AS distance
		FROM %s%s
		ORDER BY distance ASC, path ASC, page ASC, chunk_index ASC
		LIMIT %d
	`, pq.QuoteIdentifier(v.table), where, k)

	rows, err := v.db.QueryContext(ctx, query, append([]any{pgvector.NewVector(vector)}, args...)...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	hits := []domain.ScoredRecord{}
	for rows.Next() {
		var hit domain.ScoredRecord
		if err := scanRecord(rows, &hit.Record, domain.IncludeAll(), &hit.Score); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return hits, nil
}

// Get fetches records by id in the order they are stored
func (v *VectorIndex) Get(ctx context.Context, ids []string, include domain.Include) ([]domain.EmbeddingRecord, error) {
	if len(ids) == 0 {
		return []domain.EmbeddingRecord{}, nil
	}
	where, args := whereClause(ids, domain.Filter{}, 1)
	return v.list(ctx, where, args, include)
}

// List returns every record matching filter, ordered by path, page and chunk
func (v *VectorIndex) List(ctx context.Context, filter domain.Filter, include domain.Include) ([]domain.EmbeddingRecord, error) {
	where, args := whereClause(nil, filter, 1)
	return v.list(ctx, where, args, include)
}

func (v *VectorIndex) list(ctx context.Context, where string, args []any, include domain.Include) ([]domain.EmbeddingRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, path, title, ext, page, chunk_index, content, embedding
		FROM %s%s
		ORDER BY session_id ASC, path ASC, page ASC, chunk_index ASC
	`, pq.QuoteIdentifier(v.table), where)

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	records := []domain.EmbeddingRecord{}
	for rows.Next() {
		var r domain.EmbeddingRecord
		if err := scanRecord(rows, &r, include, nil); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows, r *domain.EmbeddingRecord, include domain.Include, distance *float64) error {
	var vec pgvector.Vector
	dest := []any{
		&r.ID,
		&r.Metadata.SessionID,
		&r.Metadata.Path,
		&r.Metadata.Title,
		&r.Metadata.Ext,
		&r.Metadata.Page,
		&r.Metadata.ChunkIndex,
		&r.Text,
		&vec,
	}
	if distance != nil {
		dest = append(dest, distance)
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("failed to scan record: %w", err)
	}
	if include.Vectors {
		r.Vector = domain.Vector(vec.Slice())
	}
	if !include.Text {
		r.Text = ""
	}
	return nil
}

// Delete removes records by id and/or filter in one transaction. With no
// ids and an empty filter the collection is cleared.
func (v *VectorIndex) Delete(ctx context.Context, ids []string, filter domain.Filter) (int, error) {
	where, args := whereClause(ids, filter, 1)
	query := fmt.Sprintf(`DELETE FROM %s%s`, pq.QuoteIdentifier(v.table), where)

	var removed int64
	err := v.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := v.lock(ctx, tx); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return int(removed), nil
}

// Stats counts distinct documents and chunks matching filter
func (v *VectorIndex) Stats(ctx context.Context, filter domain.Filter) (*domain.Stats, error) {
	where, args := whereClause(nil, filter, 1)
	query := fmt.Sprintf(`
		SELECT ext, COUNT(*)
		FROM %s%s
		GROUP BY session_id, path, ext
	`, pq.QuoteIdentifier(v.table), where)

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	stats := &domain.Stats{ByExtension: make(map[string]int)}
	for rows.Next() {
		var ext string
		var chunks int
		if err := rows.Scan(&ext, &chunks); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.TotalDocs++
		stats.TotalChunks += chunks
		stats.ByExtension[ext]++
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return stats, nil
}

func (v *VectorIndex) Metric() domain.Metric {
	return domain.MetricCosine
}

func (v *VectorIndex) Dimensions() int {
	return v.dims
}

func (v *VectorIndex) HealthCheck(ctx context.Context) error {
	return v.db.Ping(ctx)
}

// Close is a no-op; the pool is owned by the caller
func (v *VectorIndex) Close() error {
	return nil
}

// whereClause builds a WHERE clause for ids and filter with placeholders
// numbered from next. It returns "" when nothing restricts the rows.
func whereClause(ids []string, filter domain.Filter, next int) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, next+len(args)-1))
	}

	if len(ids) > 0 {
		add("id = ANY($%d)", pq.Array(ids))
	}
	if filter.SessionID != "" {
		add("session_id = $%d", filter.SessionID)
	}
	if filter.Path != "" {
		add("path = $%d", filter.Path)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
