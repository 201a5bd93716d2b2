package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by Get when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// SetOptions tunes Set. With Merge, top-level fields of the stored
// document that are absent from the new value are preserved.
type SetOptions struct {
	Merge bool
}

// DocumentRepo is a keyed JSON document store over the documents table.
// Writes are last-write-wins; no version check is performed.
type DocumentRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewDocumentRepo(db *sqlx.DB) *DocumentRepo {
	return &DocumentRepo{db: db, now: time.Now}
}

// Get decodes the document stored under collection/key into dst.
func (r *DocumentRepo) Get(ctx context.Context, collection, key string, dst any) error {
	q := r.db.Rebind(`SELECT body FROM documents WHERE collection = ? AND doc_key = ?`)
	var body string
	if err := r.db.GetContext(ctx, &body, q, collection, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return nil
}

// Set writes value under collection/key, creating the document if needed.
func (r *DocumentRepo) Set(ctx context.Context, collection, key string, value any, opts SetOptions) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if opts.Merge {
		var existing string
		err := tx.GetContext(ctx, &existing, tx.Rebind(`SELECT body FROM documents WHERE collection = ? AND doc_key = ?`), collection, key)
		switch {
		case err == nil:
			body, err = mergeTopLevel([]byte(existing), body)
			if err != nil {
				return fmt.Errorf("merge %s/%s: %w", collection, key, err)
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("read %s/%s: %w", collection, key, err)
		}
	}

	const upsert = `INSERT INTO documents (collection, doc_key, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, doc_key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, tx.Rebind(upsert), collection, key, string(body), r.now().UnixMilli()); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s/%s: %w", collection, key, err)
	}
	return nil
}

// List returns the raw bodies of every document in collection ordered by key.
func (r *DocumentRepo) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	q := r.db.Rebind(`SELECT body FROM documents WHERE collection = ? ORDER BY doc_key`)
	var bodies []string
	if err := r.db.SelectContext(ctx, &bodies, q, collection); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]json.RawMessage, 0, len(bodies))
	for _, b := range bodies {
		out = append(out, json.RawMessage(b))
	}
	return out, nil
}

func mergeTopLevel(existing, patch []byte) ([]byte, error) {
	base := map[string]json.RawMessage{}
	if err := json.Unmarshal(existing, &base); err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		base[k] = v
	}
	return json.Marshal(base)
}
