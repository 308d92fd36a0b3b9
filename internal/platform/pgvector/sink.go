// Package pgvector implements the vector sink on PostgreSQL with the
// pgvector extension, one table per collection.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/yungbote/knowledge-indexer/internal/indexing/chunk"
	"github.com/yungbote/knowledge-indexer/internal/indexing/vector"
	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type Config struct {
	DSN             string
	TablePrefix     string
	HNSWM           int
	HNSWEfConstruct int
}

func ConfigFromEnv() Config {
	return Config{
		DSN:             envutil.String("PGVECTOR_DSN", ""),
		TablePrefix:     envutil.String("PGVECTOR_TABLE_PREFIX", "kv_"),
		HNSWM:           envutil.Int("PGVECTOR_HNSW_M", 8),
		HNSWEfConstruct: envutil.Int("PGVECTOR_HNSW_EF_CONSTRUCTION", 64),
	}
}

type Sink struct {
	log *logger.Logger
	db  *sql.DB
	cfg Config

	mu    sync.Mutex
	known map[string]bool
}

// Open connects through the pgx stdlib driver and makes sure the vector
// extension exists.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("PGVECTOR_DSN is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open pgvector db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping pgvector db: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	return New(db, cfg, log), nil
}

func New(db *sql.DB, cfg Config, log *logger.Logger) *Sink {
	if cfg.TablePrefix == "" {
		cfg.TablePrefix = "kv_"
	}
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = 8
	}
	if cfg.HNSWEfConstruct <= 0 {
		cfg.HNSWEfConstruct = 64
	}
	return &Sink{
		log:   log.With("service", "PgvectorSink"),
		db:    db,
		cfg:   cfg,
		known: map[string]bool{},
	}
}

func (s *Sink) Close() error { return s.db.Close() }

var unsafeIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// TableName maps a collection to its quoted table identifier.
func (s *Sink) TableName(collection string) string {
	name := unsafeIdent.ReplaceAllString(vector.CollectionName(collection), "_")
	return pgx.Identifier{s.cfg.TablePrefix + name}.Sanitize()
}

func (s *Sink) schemaStatements(collection string, dim int) []string {
	table := s.TableName(collection)
	raw := strings.Trim(table, `"`)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	document_id TEXT NOT NULL,
	text TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	entities JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL
)`, table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_l2_ops) WITH (m = %d, ef_construction = %d)`,
			pgx.Identifier{raw + "_embedding_idx"}.Sanitize(), table, s.cfg.HNSWM, s.cfg.HNSWEfConstruct),
	}
	for _, field := range vector.KeywordFields {
		key := strings.TrimPrefix(field, "metadata.")
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ((metadata->>'%s'))`,
			pgx.Identifier{raw + "_" + key + "_idx"}.Sanitize(), table, key))
	}
	return stmts
}

func (s *Sink) CreateCollection(ctx context.Context, name string, dim int) error {
	if vector.CollectionName(name) == "" {
		return fmt.Errorf("pgvector: collection name is required")
	}
	if dim <= 0 {
		return fmt.Errorf("pgvector: invalid vector dimension %d", dim)
	}
	key := vector.CollectionName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[key] {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range s.schemaStatements(name, dim) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("pgvector create collection %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.known[key] = true
	s.log.Info("collection ensured", "collection", key, "dim", dim)
	return nil
}

// maxBulkRows keeps one upsert under the 65535 bind parameter limit.
const maxBulkRows = 1000

type encodedRecord struct {
	rec      vector.Record
	meta     []byte
	entities []byte
}

func (e encodedRecord) args() []any {
	return []any{e.rec.ID, e.rec.Hash, e.rec.DocumentID, e.rec.Text, e.meta, e.entities, pgv.NewVector(e.rec.Vector)}
}

// upsertStatement builds a multi-row upsert for rows records.
func upsertStatement(table string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (id, hash, document_id, text, metadata, entities, embedding)\nVALUES ", table)
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 7
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
	}
	b.WriteString(`
ON CONFLICT (id) DO UPDATE SET
	hash = EXCLUDED.hash,
	document_id = EXCLUDED.document_id,
	text = EXCLUDED.text,
	metadata = EXCLUDED.metadata,
	entities = EXCLUDED.entities,
	embedding = EXCLUDED.embedding`)
	return b.String()
}

// dedupeRecords keeps the last record per id; one upsert cannot touch a row
// twice.
func dedupeRecords(records []vector.Record) []vector.Record {
	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.ID] = i
	}
	out := make([]vector.Record, 0, len(last))
	for i, r := range records {
		if last[r.ID] == i {
			out = append(out, r)
		}
	}
	return out
}

// AddTexts upserts the records in one transaction with a bulk statement per
// maxBulkRows. When a bulk statement is rejected, that group is retried row
// by row under savepoints so the failing ids can be reported while the rest
// are kept.
func (s *Sink) AddTexts(ctx context.Context, name string, chunks []chunk.Chunk, embeddings [][]float32) error {
	records, err := vector.BuildRecords(chunks, embeddings)
	if err != nil {
		return err
	}
	records = dedupeRecords(records)
	if len(records) == 0 {
		return nil
	}

	var failed []vector.ItemError
	encoded := make([]encodedRecord, 0, len(records))
	for _, r := range records {
		meta, entities, err := encodeJSON(r)
		if err != nil {
			failed = append(failed, vector.ItemError{ID: r.ID, Reason: err.Error()})
			continue
		}
		encoded = append(encoded, encodedRecord{rec: r, meta: meta, entities: entities})
	}

	table := s.TableName(name)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for start := 0; start < len(encoded); start += maxBulkRows {
		end := start + maxBulkRows
		if end > len(encoded) {
			end = len(encoded)
		}
		itemErrs, err := s.upsertGroup(ctx, tx, table, encoded[start:end])
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		failed = append(failed, itemErrs...)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector commit: %w", err)
	}
	if len(failed) > 0 {
		return &vector.IndexingError{Collection: vector.CollectionName(name), Items: failed}
	}
	return nil
}

func (s *Sink) upsertGroup(ctx context.Context, tx *sql.Tx, table string, group []encodedRecord) ([]vector.ItemError, error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT add_texts"); err != nil {
		return nil, err
	}
	args := make([]any, 0, len(group)*7)
	for _, e := range group {
		args = append(args, e.args()...)
	}
	_, bulkErr := tx.ExecContext(ctx, upsertStatement(table, len(group)), args...)
	if bulkErr == nil {
		_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT add_texts")
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT add_texts"); err != nil {
		return nil, err
	}
	s.log.Warn("bulk upsert rejected, retrying per row", "table", table, "rows", len(group), "error", bulkErr)

	one := upsertStatement(table, 1)
	var failed []vector.ItemError
	for _, e := range group {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT add_text"); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, one, e.args()...); err != nil {
			failed = append(failed, vector.ItemError{ID: e.rec.ID, Reason: err.Error()})
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT add_text"); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT add_text"); err != nil {
			return nil, err
		}
	}
	return failed, nil
}

func (s *Sink) TextExists(ctx context.Context, name, id string) bool {
	var exists bool
	q := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", s.TableName(name))
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		s.log.Debug("text exists check failed", "collection", name, "error", err)
		return false
	}
	return exists
}

func encodeJSON(r vector.Record) ([]byte, []byte, error) {
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	ents := r.Entities
	if ents == nil {
		ents = map[string][]string{}
	}
	entities, err := json.Marshal(ents)
	if err != nil {
		return nil, nil, fmt.Errorf("encode entities: %w", err)
	}
	return meta, entities, nil
}
