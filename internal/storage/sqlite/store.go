package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"

	"sharedtodo/internal/gateway"
)

// Store keeps gateway documents in a single SQLite table as JSON and
// evaluates queries with the JSON1 functions.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	hub    *gateway.Hub
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	s.hub = gateway.NewHub(s.Find, logger)
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close tears down subscriptions and releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.hub.Close()
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            data TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (collection, id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_documents_owner
            ON documents(collection, json_extract(data, '$.ownerId'));`,
		`CREATE INDEX IF NOT EXISTS idx_documents_category
            ON documents(collection, json_extract(data, '$.categoryId'));`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_share_code
            ON documents(json_extract(data, '$.shareCode'))
            WHERE collection = 'categories' AND json_extract(data, '$.shareCode') IS NOT NULL;`,
		`CREATE TRIGGER IF NOT EXISTS trg_documents_updated
            AFTER UPDATE OF data ON documents
            FOR EACH ROW BEGIN
                UPDATE documents SET updated_at = CURRENT_TIMESTAMP
                WHERE collection = OLD.collection AND id = OLD.id;
            END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Get fetches a single document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (gateway.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.Document{}, fmt.Errorf("%s/%s: %w", collection, id, gateway.ErrNotFound)
	}
	if err != nil {
		return gateway.Document{}, fmt.Errorf("get document: %w", err)
	}
	fields, err := decode(raw)
	if err != nil {
		return gateway.Document{}, err
	}
	return gateway.Document{ID: id, Fields: fields}, nil
}

// Create inserts a new document.
func (s *Store) Create(ctx context.Context, collection, id string, fields gateway.Fields) (gateway.Document, error) {
	b := gateway.NewBatch()
	id = b.Create(collection, id, fields)
	if err := s.Commit(ctx, b); err != nil {
		return gateway.Document{}, err
	}
	return s.Get(ctx, collection, id)
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields gateway.Fields) error {
	return s.Commit(ctx, gateway.NewBatch().Update(collection, id, fields))
}

// Delete removes a document by id.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.Commit(ctx, gateway.NewBatch().Delete(collection, id))
}

// Upsert merges fields into a document, inserting it when missing.
func (s *Store) Upsert(ctx context.Context, collection, id string, fields gateway.Fields) error {
	var change gateway.Change
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		before, err := loadTx(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		var current gateway.Fields
		if before != nil {
			current = before.Fields
		}
		merged := gateway.Merge(current, fields)
		if err := writeTx(ctx, tx, collection, id, merged, before == nil); err != nil {
			return err
		}
		change = gateway.Change{Collection: collection, Before: before, After: &gateway.Document{ID: id, Fields: merged}}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	s.hub.Publish(change)
	return nil
}

// Commit applies a batch inside one SQLite transaction.
func (s *Store) Commit(ctx context.Context, b *gateway.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	changes := make([]gateway.Change, 0, b.Len())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, w := range b.Writes() {
			change, err := applyTx(ctx, tx, w)
			if err != nil {
				return fmt.Errorf("%s %s/%s: %w", w.Kind, w.Collection, w.ID, err)
			}
			if change != nil {
				changes = append(changes, *change)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.hub.Publish(changes...)
	return nil
}

// Find runs a query, ordered by the requested field and then by id.
func (s *Store) Find(ctx context.Context, q gateway.Query) ([]gateway.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	stmt, args := buildSelect(q)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []gateway.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		fields, err := decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, gateway.Document{ID: id, Fields: fields})
	}
	return docs, rows.Err()
}

// Subscribe opens a live view of q.
func (s *Store) Subscribe(ctx context.Context, q gateway.Query) (*gateway.Subscription, error) {
	return s.hub.Subscribe(ctx, q)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	return nil
}

func applyTx(ctx context.Context, tx *sql.Tx, w gateway.Write) (*gateway.Change, error) {
	before, err := loadTx(ctx, tx, w.Collection, w.ID)
	if err != nil {
		return nil, err
	}

	switch w.Kind {
	case gateway.WriteCreate:
		if before != nil {
			return nil, gateway.ErrAlreadyExists
		}
		fields := gateway.Merge(nil, w.Fields)
		if err := writeTx(ctx, tx, w.Collection, w.ID, fields, true); err != nil {
			return nil, err
		}
		return &gateway.Change{Collection: w.Collection, After: &gateway.Document{ID: w.ID, Fields: fields}}, nil
	case gateway.WriteUpdate:
		if before == nil {
			return nil, gateway.ErrNotFound
		}
		fields := gateway.Merge(before.Fields, w.Fields)
		if err := writeTx(ctx, tx, w.Collection, w.ID, fields, false); err != nil {
			return nil, err
		}
		return &gateway.Change{Collection: w.Collection, Before: before, After: &gateway.Document{ID: w.ID, Fields: fields}}, nil
	case gateway.WriteDelete:
		if before == nil {
			return nil, nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, w.Collection, w.ID); err != nil {
			return nil, fmt.Errorf("delete document: %w", err)
		}
		return &gateway.Change{Collection: w.Collection, Before: before}, nil
	default:
		return nil, fmt.Errorf("unknown write kind %d", w.Kind)
	}
}

func loadTx(ctx context.Context, tx *sql.Tx, collection, id string) (*gateway.Document, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	fields, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return &gateway.Document{ID: id, Fields: fields}, nil
}

func writeTx(ctx context.Context, tx *sql.Tx, collection, id string, fields gateway.Fields, insert bool) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if insert {
		_, err = tx.ExecContext(ctx, `INSERT INTO documents(collection, id, data) VALUES(?, ?, ?)`, collection, id, string(raw))
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE documents SET data = ? WHERE collection = ? AND id = ?`, string(raw), collection, id)
	}
	if err != nil {
		return mapError(err)
	}
	return nil
}

// buildSelect translates q into SQL. Field names are validated by
// Query.Validate, so they are safe to inline into JSON paths.
func buildSelect(q gateway.Query) (string, []any) {
	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)

	for _, f := range q.Filters {
		path := jsonPath(f.Field)
		switch f.Op {
		case gateway.OpEqual:
			fmt.Fprintf(&sb, ` AND json_extract(data, '%s') = ?`, path)
			args = append(args, sqlValue(f.Value))
		case gateway.OpIn:
			values, _ := f.Value.([]any)
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			fmt.Fprintf(&sb, ` AND json_extract(data, '%s') IN (%s)`, path, placeholders)
			for _, v := range values {
				args = append(args, sqlValue(v))
			}
		case gateway.OpArrayContains:
			fmt.Fprintf(&sb, ` AND EXISTS (SELECT 1 FROM json_each(documents.data, '%s') WHERE json_each.value = ?)`, path)
			args = append(args, sqlValue(f.Value))
		}
	}

	if q.Sort != "" {
		fmt.Fprintf(&sb, ` ORDER BY json_extract(data, '%s'), id`, jsonPath(q.Sort))
	} else {
		sb.WriteString(` ORDER BY id`)
	}
	return sb.String(), args
}

func jsonPath(field string) string {
	return "$." + field
}

// sqlValue converts a normalized value to what json_extract yields for it.
func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func decode(raw string) (gateway.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	out := make(gateway.Fields, len(fields))
	for k, v := range fields {
		out[k] = fromJSON(v)
	}
	return out, nil
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromJSON(e)
		}
		return out
	case map[string]any:
		out := make(gateway.Fields, len(x))
		for k, e := range x {
			out[k] = fromJSON(e)
		}
		return out
	default:
		return x
	}
}

func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", gateway.ErrAlreadyExists, err)
	}
	return err
}

var _ gateway.Gateway = (*Store)(nil)
