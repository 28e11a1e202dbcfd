package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/lane-dispatch/internal/model"
)

// QueueRepo provides read access to the `queues` table and the one-time
// lane seeding done at startup.  Lanes are immutable after seeding.
type QueueRepo struct{ DB *sql.DB }

func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{DB: db} }

// GetByID fetches a lane by id.  It returns (nil, nil) when the lane
// does not exist.
func (r *QueueRepo) GetByID(ctx context.Context, id int64) (*model.Queue, error) {
	var q model.Queue
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, title FROM queues WHERE id=? LIMIT 1", id).
		Scan(&q.ID, &q.Title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// EnsureDefaults seeds one lane per title, ids starting at 1.  Existing
// rows are left untouched so titles are not rewritten on restart.
func (r *QueueRepo) EnsureDefaults(ctx context.Context, titles []string) error {
	for i, title := range titles {
		if _, err := r.DB.ExecContext(ctx,
			"INSERT IGNORE INTO queues (id, title) VALUES (?,?)",
			int64(i+1), title); err != nil {
			return err
		}
	}
	return nil
}
