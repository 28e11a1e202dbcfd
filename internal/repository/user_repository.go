package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/lane-dispatch/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Upsert inserts the user keyed by external id or, when the row already
// exists, refreshes its address and name.  The full row is read back so
// callers get the primary key and timestamps.
func (r *UserRepo) Upsert(ctx context.Context, externalID int64, address, name string) (*model.User, error) {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (external_id, address, name) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE address=VALUES(address), name=VALUES(name)`,
		externalID, address, name)
	if err != nil {
		return nil, err
	}
	return r.ByExternalID(ctx, externalID)
}

// ByExternalID fetches a user by the transport-assigned identifier.  It
// returns (nil, nil) when no such user exists.
func (r *UserRepo) ByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	return r.one(ctx, "SELECT id, external_id, address, name, created_at, updated_at FROM users WHERE external_id=? LIMIT 1", externalID)
}

// ByID fetches a user by primary key.  It returns (nil, nil) when no
// such user exists.
func (r *UserRepo) ByID(ctx context.Context, id int64) (*model.User, error) {
	return r.one(ctx, "SELECT id, external_id, address, name, created_at, updated_at FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) one(ctx context.Context, query string, arg int64) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.ExternalID, &u.Address, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
