package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// RefreshRow mirrors the refresh_sessions table.
type RefreshRow struct {
	ID         string `db:"id"`
	UID        string `db:"uid"`
	SecretHash string `db:"secret_hash"`
	ClientID   string `db:"client_id"`
	ExpiresAt  int64  `db:"expires_at"`
	CreatedAt  int64  `db:"created_at"`
}

type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

func (r *RefreshRepo) Save(ctx context.Context, row RefreshRow) error {
	const q = `INSERT INTO refresh_sessions (id, uid, secret_hash, client_id, expires_at, created_at)
		VALUES (:id, :uid, :secret_hash, :client_id, :expires_at, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, row)
	return err
}

// Get returns sql.ErrNoRows when the session does not exist.
func (r *RefreshRepo) Get(ctx context.Context, id string) (*RefreshRow, error) {
	var row RefreshRow
	q := r.db.Rebind(`SELECT id, uid, secret_hash, client_id, expires_at, created_at FROM refresh_sessions WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete removes a session and reports whether it existed, so a refresh
// token can be consumed at most once.
func (r *RefreshRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM refresh_sessions WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteExpired prunes sessions that expired before now (unix seconds).
func (r *RefreshRepo) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM refresh_sessions WHERE expires_at <= ?`), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
