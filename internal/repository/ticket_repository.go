package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/lane-dispatch/internal/model"
)

// ticketColumns is the canonical column list scanned by scanTicket.
const ticketColumns = `id, queue_id, user_id, status, created_at, called_at, confirmed_at, served_at, canceled_at, no_show_at, token, token_expires_at`

// TicketRepo provides data access to the `tickets` table.  Mutating
// methods are transaction-scoped (suffix Tx): the caller opens the
// transaction, and every dequeue selection locks the chosen row with
// FOR UPDATE so that selection and the status flip behave as one
// indivisible operation.  All timestamps are stored and compared in UTC.
type TicketRepo struct{ DB *sql.DB }

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{DB: db} }

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface{ Scan(dest ...any) error }

func scanTicket(row rowScanner) (*model.Ticket, error) {
	var t model.Ticket
	var status string
	var calledAt, confirmedAt, servedAt, canceledAt, noShowAt, tokenExp sql.NullTime
	var token sql.NullString
	if err := row.Scan(
		&t.ID, &t.QueueID, &t.UserID, &status, &t.CreatedAt,
		&calledAt, &confirmedAt, &servedAt, &canceledAt, &noShowAt,
		&token, &tokenExp,
	); err != nil {
		return nil, err
	}
	t.Status = model.Status(status)
	if calledAt.Valid {
		v := calledAt.Time
		t.CalledAt = &v
	}
	if confirmedAt.Valid {
		v := confirmedAt.Time
		t.ConfirmedAt = &v
	}
	if servedAt.Valid {
		v := servedAt.Time
		t.ServedAt = &v
	}
	if canceledAt.Valid {
		v := canceledAt.Time
		t.CanceledAt = &v
	}
	if noShowAt.Valid {
		v := noShowAt.Time
		t.NoShowAt = &v
	}
	if token.Valid {
		v := token.String
		t.Token = &v
	}
	if tokenExp.Valid {
		v := tokenExp.Time
		t.TokenExpiresAt = &v
	}
	return &t, nil
}

// oneTx runs a single-row query inside tx and maps sql.ErrNoRows to
// (nil, nil) so callers can treat "no candidate" as a plain outcome.
func oneTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (*model.Ticket, error) {
	t, err := scanTicket(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ActiveByUserTx returns the user's active ticket (WAITING, CALLED or
// CONFIRMED), newest first, locking the row for the duration of the
// transaction.  Returns (nil, nil) when the user holds no active ticket.
func (r *TicketRepo) ActiveByUserTx(ctx context.Context, tx *sql.Tx, userID int64) (*model.Ticket, error) {
	return oneTx(ctx, tx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE user_id=? AND status IN ('WAITING','CALLED','CONFIRMED')
		 ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, userID)
}

// InsertWaitingTx creates a WAITING ticket for the user in the given lane
// and returns the stored row.
func (r *TicketRepo) InsertWaitingTx(ctx context.Context, tx *sql.Tx, queueID, userID int64, now time.Time) (*model.Ticket, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO tickets (queue_id, user_id, status, created_at) VALUES (?,?,?,?)",
		queueID, userID, string(model.StatusWaiting), now.UTC())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return oneTx(ctx, tx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
}

// OldestWaitingTx locks and returns the longest-waiting WAITING ticket in
// the lane, or (nil, nil) when the lane is empty.
func (r *TicketRepo) OldestWaitingTx(ctx context.Context, tx *sql.Tx, queueID int64) (*model.Ticket, error) {
	return oneTx(ctx, tx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE queue_id=? AND status='WAITING'
		 ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE`, queueID)
}

// OldestCalledTx locks and returns the CALLED ticket with the oldest
// called_at in the lane, or (nil, nil) when none is dispatched.
func (r *TicketRepo) OldestCalledTx(ctx context.Context, tx *sql.Tx, queueID int64) (*model.Ticket, error) {
	return oneTx(ctx, tx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE queue_id=? AND status='CALLED'
		 ORDER BY called_at ASC, id ASC LIMIT 1 FOR UPDATE`, queueID)
}

// OldestConfirmedTx locks and returns the CONFIRMED ticket with the
// oldest confirmed_at in the lane, or (nil, nil) when none is confirmed.
func (r *TicketRepo) OldestConfirmedTx(ctx context.Context, tx *sql.Tx, queueID int64) (*model.Ticket, error) {
	return oneTx(ctx, tx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE queue_id=? AND status='CONFIRMED'
		 ORDER BY confirmed_at ASC, id ASC LIMIT 1 FOR UPDATE`, queueID)
}

// ByTokenTx locks and returns the ticket holding the exact token, or
// (nil, nil) when no ticket carries it.
func (r *TicketRepo) ByTokenTx(ctx context.Context, tx *sql.Tx, token string) (*model.Ticket, error) {
	return oneTx(ctx, tx,
		`SELECT `+ticketColumns+` FROM tickets WHERE token=? LIMIT 1 FOR UPDATE`, token)
}

// markTx performs a guarded status flip.  The WHERE clause repeats the
// expected current status; matching zero rows means the row changed
// under us, which the FOR UPDATE selection is supposed to rule out.
func markTx(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConflict
	}
	return nil
}

// MarkCalledTx transitions WAITING -> CALLED, stamping called_at and
// attaching the confirmation token with its expiry.
func (r *TicketRepo) MarkCalledTx(ctx context.Context, tx *sql.Tx, id int64, token string, expiresAt, now time.Time) error {
	return markTx(ctx, tx,
		`UPDATE tickets SET status='CALLED', called_at=?, token=?, token_expires_at=?
		 WHERE id=? AND status='WAITING'`,
		now.UTC(), token, expiresAt.UTC(), id)
}

// MarkConfirmedTx transitions CALLED -> CONFIRMED, stamping confirmed_at.
func (r *TicketRepo) MarkConfirmedTx(ctx context.Context, tx *sql.Tx, id int64, now time.Time) error {
	return markTx(ctx, tx,
		`UPDATE tickets SET status='CONFIRMED', confirmed_at=? WHERE id=? AND status='CALLED'`,
		now.UTC(), id)
}

// MarkServedTx transitions CONFIRMED -> SERVED, stamping served_at.
func (r *TicketRepo) MarkServedTx(ctx context.Context, tx *sql.Tx, id int64, now time.Time) error {
	return markTx(ctx, tx,
		`UPDATE tickets SET status='SERVED', served_at=? WHERE id=? AND status='CONFIRMED'`,
		now.UTC(), id)
}

// MarkNoShowTx transitions CALLED -> NO_SHOW, stamping no_show_at.
func (r *TicketRepo) MarkNoShowTx(ctx context.Context, tx *sql.Tx, id int64, now time.Time) error {
	return markTx(ctx, tx,
		`UPDATE tickets SET status='NO_SHOW', no_show_at=? WHERE id=? AND status='CALLED'`,
		now.UTC(), id)
}

// MarkCanceledTx transitions any active status -> CANCELED, stamping
// canceled_at.
func (r *TicketRepo) MarkCanceledTx(ctx context.Context, tx *sql.Tx, id int64, now time.Time) error {
	return markTx(ctx, tx,
		`UPDATE tickets SET status='CANCELED', canceled_at=?
		 WHERE id=? AND status IN ('WAITING','CALLED','CONFIRMED')`,
		now.UTC(), id)
}

// WaitingPosition returns the 1-based rank of the ticket among WAITING
// tickets in its lane ordered by created_at (id breaks ties).  The caller
// must have checked that the ticket is WAITING.
func (r *TicketRepo) WaitingPosition(ctx context.Context, t *model.Ticket) (int, error) {
	var ahead int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets
		 WHERE queue_id=? AND status='WAITING'
		   AND (created_at < ? OR (created_at = ? AND id < ?))`,
		t.QueueID, t.CreatedAt, t.CreatedAt, t.ID).Scan(&ahead)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// ListWaiting returns up to limit WAITING tickets in the lane in FIFO
// order, for operator review.
func (r *TicketRepo) ListWaiting(ctx context.Context, queueID int64, limit int) ([]model.Ticket, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE queue_id=? AND status='WAITING'
		 ORDER BY created_at ASC, id ASC LIMIT ?`, queueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets := make([]model.Ticket, 0, limit)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// CountCreatedBetween counts tickets whose created_at falls in [from, to),
// optionally scoped to one lane.
func (r *TicketRepo) CountCreatedBetween(ctx context.Context, from, to time.Time, queueID *int64) (int, error) {
	return r.countBetween(ctx, "created_at", from, to, queueID)
}

// CountConfirmedBetween counts tickets whose confirmed_at falls in
// [from, to), optionally scoped to one lane.
func (r *TicketRepo) CountConfirmedBetween(ctx context.Context, from, to time.Time, queueID *int64) (int, error) {
	return r.countBetween(ctx, "confirmed_at", from, to, queueID)
}

func (r *TicketRepo) countBetween(ctx context.Context, column string, from, to time.Time, queueID *int64) (int, error) {
	query := `SELECT COUNT(*) FROM tickets WHERE ` + column + ` >= ? AND ` + column + ` < ?`
	args := []any{from.UTC(), to.UTC()}
	if queueID != nil {
		query += ` AND queue_id = ?`
		args = append(args, *queueID)
	}
	var n int
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
