package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/lane-dispatch/internal/model"
)

// Store bundles the three repositories behind the ticket store port the
// service layer consumes.  Every state-mutating method runs as a single
// transaction: the selection locks its candidate row (FOR UPDATE inside
// the repo methods) and the status flip happens before commit, so two
// concurrent dispatch calls can never advance the same ticket twice.
// Read-only methods go straight to the pool at default isolation.
type Store struct {
	DB      *sql.DB
	Queues  *QueueRepo
	Users   *UserRepo
	Tickets *TicketRepo
}

// NewStore constructs a Store and its repositories over one pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:      db,
		Queues:  NewQueueRepo(db),
		Users:   NewUserRepo(db),
		Tickets: NewTicketRepo(db),
	}
}

// inTx runs fn inside a transaction, rolling back unless fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// UpsertUser creates or refreshes the user keyed by external id.
func (s *Store) UpsertUser(ctx context.Context, externalID int64, address, name string) (*model.User, error) {
	return s.Users.Upsert(ctx, externalID, address, name)
}

// UserByExternalID returns the user or (nil, nil) when unknown.
func (s *Store) UserByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	return s.Users.ByExternalID(ctx, externalID)
}

// UserByID returns the user or (nil, nil) when unknown.
func (s *Store) UserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.Users.ByID(ctx, id)
}

// QueueByID returns the lane or (nil, nil) when unknown.
func (s *Store) QueueByID(ctx context.Context, id int64) (*model.Queue, error) {
	return s.Queues.GetByID(ctx, id)
}

// CreateWaiting inserts a WAITING ticket for the user unless an active
// one already exists, in which case the existing ticket is returned
// unchanged with created=false.  The active check locks the user's
// active row so a double-submitted join cannot slip in two tickets.
func (s *Store) CreateWaiting(ctx context.Context, queueID, userID int64, now time.Time) (t *model.Ticket, created bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		active, err := s.Tickets.ActiveByUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if active != nil {
			t = active
			return nil
		}
		t, err = s.Tickets.InsertWaitingTx(ctx, tx, queueID, userID, now)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return t, created, nil
}

// CancelActive cancels the user's active ticket and returns it, or
// (nil, nil) when the user holds none.
func (s *Store) CancelActive(ctx context.Context, userID int64, now time.Time) (t *model.Ticket, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		active, err := s.Tickets.ActiveByUserTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if active == nil {
			return nil
		}
		if err := s.Tickets.MarkCanceledTx(ctx, tx, active.ID, now); err != nil {
			return err
		}
		active.Status = model.StatusCanceled
		stamp := now.UTC()
		active.CanceledAt = &stamp
		t = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ActiveTicketByUser returns the user's active ticket or (nil, nil).
func (s *Store) ActiveTicketByUser(ctx context.Context, userID int64) (t *model.Ticket, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		t, err = s.Tickets.ActiveByUserTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CallNextWaiting advances the longest-waiting WAITING ticket in the lane
// to CALLED, attaching the given token and expiry.  Returns (nil, nil)
// when the lane has no WAITING ticket.
func (s *Store) CallNextWaiting(ctx context.Context, queueID int64, token string, expiresAt, now time.Time) (t *model.Ticket, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		next, err := s.Tickets.OldestWaitingTx(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := s.Tickets.MarkCalledTx(ctx, tx, next.ID, token, expiresAt, now); err != nil {
			return err
		}
		next.Status = model.StatusCalled
		stamp := now.UTC()
		exp := expiresAt.UTC()
		next.CalledAt = &stamp
		next.Token = &token
		next.TokenExpiresAt = &exp
		t = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NoShowOldestCalled resolves the oldest CALLED ticket in the lane to
// NO_SHOW.  Returns (nil, nil) when nothing is dispatched.
func (s *Store) NoShowOldestCalled(ctx context.Context, queueID int64, now time.Time) (t *model.Ticket, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		called, err := s.Tickets.OldestCalledTx(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if called == nil {
			return nil
		}
		if err := s.Tickets.MarkNoShowTx(ctx, tx, called.ID, now); err != nil {
			return err
		}
		called.Status = model.StatusNoShow
		stamp := now.UTC()
		called.NoShowAt = &stamp
		t = called
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ConfirmByToken flips the ticket holding the token to CONFIRMED when it
// is still CALLED and the token has not expired.  Any miss (unknown
// token, wrong state, past expiry) returns (nil, nil); the distinction
// is deliberately not surfaced.
func (s *Store) ConfirmByToken(ctx context.Context, token string, now time.Time) (t *model.Ticket, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		found, err := s.Tickets.ByTokenTx(ctx, tx, token)
		if err != nil {
			return err
		}
		if found == nil || found.Status != model.StatusCalled {
			return nil
		}
		if found.TokenExpiresAt != nil && now.After(*found.TokenExpiresAt) {
			return nil
		}
		if err := s.Tickets.MarkConfirmedTx(ctx, tx, found.ID, now); err != nil {
			return err
		}
		found.Status = model.StatusConfirmed
		stamp := now.UTC()
		found.ConfirmedAt = &stamp
		t = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ServeOldestConfirmed resolves the oldest CONFIRMED ticket in the lane
// to SERVED.  Returns (nil, nil) when nothing is confirmed.
func (s *Store) ServeOldestConfirmed(ctx context.Context, queueID int64, now time.Time) (t *model.Ticket, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		confirmed, err := s.Tickets.OldestConfirmedTx(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if confirmed == nil {
			return nil
		}
		if err := s.Tickets.MarkServedTx(ctx, tx, confirmed.ID, now); err != nil {
			return err
		}
		confirmed.Status = model.StatusServed
		stamp := now.UTC()
		confirmed.ServedAt = &stamp
		t = confirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// WaitingPosition delegates to the ticket repository.
func (s *Store) WaitingPosition(ctx context.Context, t *model.Ticket) (int, error) {
	return s.Tickets.WaitingPosition(ctx, t)
}

// ListWaiting delegates to the ticket repository.
func (s *Store) ListWaiting(ctx context.Context, queueID int64, limit int) ([]model.Ticket, error) {
	return s.Tickets.ListWaiting(ctx, queueID, limit)
}

// CountTickets returns how many tickets were created and confirmed in
// [from, to), optionally scoped to one lane.
func (s *Store) CountTickets(ctx context.Context, from, to time.Time, queueID *int64) (created, confirmed int, err error) {
	created, err = s.Tickets.CountCreatedBetween(ctx, from, to, queueID)
	if err != nil {
		return 0, 0, err
	}
	confirmed, err = s.Tickets.CountConfirmedBetween(ctx, from, to, queueID)
	if err != nil {
		return 0, 0, err
	}
	return created, confirmed, nil
}
