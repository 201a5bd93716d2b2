package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type IdentityRepo struct {
	db *sqlx.DB
}

func NewIdentityRepo(db *sqlx.DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

func (r *IdentityRepo) Create(ctx context.Context, uid, provider string, createdAt int64) error {
	q := r.db.Rebind(`INSERT INTO identities (uid, provider, created_at) VALUES (?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, uid, provider, createdAt)
	return err
}

// Exists reports whether uid was ever issued.
func (r *IdentityRepo) Exists(ctx context.Context, uid string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT 1 FROM identities WHERE uid = ?`), uid)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
