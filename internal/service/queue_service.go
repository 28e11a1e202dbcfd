// Package service implements the ticket lifecycle engine: the state
// machine WAITING -> CALLED -> CONFIRMED -> SERVED (with NO_SHOW and
// CANCELED exits), strict FIFO dispatch per lane per stage, the
// time-bounded confirmation token protocol and the day statistics.
// Persistence goes through the TicketStore port; every mutating store
// call is one atomic transaction on the other side of that port.
package service

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/lane-dispatch/internal/model"
	"github.com/iliyamo/lane-dispatch/internal/notify"
)

// TicketStore is the transactional persistence port the engine runs on.
// Methods that select-and-mutate (CreateWaiting, CancelActive,
// CallNextWaiting, NoShowOldestCalled, ConfirmByToken,
// ServeOldestConfirmed) must execute as one isolated unit of work and
// must serialize against concurrent callers touching the same row; they
// return (nil, nil) when no row matches their precondition.
type TicketStore interface {
	UpsertUser(ctx context.Context, externalID int64, address, name string) (*model.User, error)
	UserByExternalID(ctx context.Context, externalID int64) (*model.User, error)
	UserByID(ctx context.Context, id int64) (*model.User, error)
	QueueByID(ctx context.Context, id int64) (*model.Queue, error)

	CreateWaiting(ctx context.Context, queueID, userID int64, now time.Time) (t *model.Ticket, created bool, err error)
	CancelActive(ctx context.Context, userID int64, now time.Time) (*model.Ticket, error)
	ActiveTicketByUser(ctx context.Context, userID int64) (*model.Ticket, error)
	CallNextWaiting(ctx context.Context, queueID int64, token string, expiresAt, now time.Time) (*model.Ticket, error)
	NoShowOldestCalled(ctx context.Context, queueID int64, now time.Time) (*model.Ticket, error)
	ConfirmByToken(ctx context.Context, token string, now time.Time) (*model.Ticket, error)
	ServeOldestConfirmed(ctx context.Context, queueID int64, now time.Time) (*model.Ticket, error)

	WaitingPosition(ctx context.Context, t *model.Ticket) (int, error)
	ListWaiting(ctx context.Context, queueID int64, limit int) ([]model.Ticket, error)
	CountTickets(ctx context.Context, from, to time.Time, queueID *int64) (created, confirmed int, err error)
}

// Notifier delivers the dispatch notice after a successful call-next.
// Delivery is fire-and-forget: a failure is logged and never rolls back
// the CALLED transition.
type Notifier interface {
	PublishTicketCalled(ctx context.Context, ev notify.TicketCalledEvent) error
}

// ExternalUser is the identity the chat transport presents on every
// user-facing call.  Address and Name are upserted each time.
type ExternalUser struct {
	ID      int64
	Address string
	Name    string
}

// Stats is the result of a day statistics query.
type Stats struct {
	Created   int `json:"created"`
	Confirmed int `json:"confirmed"`
}

// defaultListLimit caps operator waiting lists when no limit is given.
const defaultListLimit = 30

// QueueService owns every status transition.  All dependencies are
// injected at construction; there is no ambient configuration lookup
// inside transition logic.
type QueueService struct {
	store    TicketStore
	tokens   *TokenIssuer
	notifier Notifier       // may be nil when no broker is configured
	statsLoc *time.Location // fixed reference zone for day boundaries
	now      func() time.Time
}

// NewQueueService wires the engine.  notifier may be nil; statsLoc nil
// means UTC.
func NewQueueService(store TicketStore, tokens *TokenIssuer, notifier Notifier, statsLoc *time.Location) *QueueService {
	if statsLoc == nil {
		statsLoc = time.UTC
	}
	return &QueueService{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		statsLoc: statsLoc,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue joins the user into the lane.  When the user already holds an
// active ticket anywhere, that ticket is returned unchanged and created
// is false; an idempotent join is not an error.
func (s *QueueService) Enqueue(ctx context.Context, queueID int64, ext ExternalUser) (*model.Ticket, bool, error) {
	queue, err := s.store.QueueByID(ctx, queueID)
	if err != nil {
		return nil, false, err
	}
	if queue == nil {
		return nil, false, ErrQueueNotFound
	}
	user, err := s.store.UpsertUser(ctx, ext.ID, ext.Address, ext.Name)
	if err != nil {
		return nil, false, err
	}
	return s.store.CreateWaiting(ctx, queueID, user.ID, s.now())
}

// Leave cancels the user's active ticket.  It returns false when there
// is nothing to cancel.
func (s *QueueService) Leave(ctx context.Context, externalID int64) (bool, error) {
	user, err := s.store.UserByExternalID(ctx, externalID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	t, err := s.store.CancelActive(ctx, user.ID, s.now())
	if err != nil {
		return false, err
	}
	return t != nil, nil
}

// Position returns the user's active ticket and, when it is WAITING, its
// 1-based rank in the lane.  Position 0 means "not applicable": the
// ticket is active but already past the WAITING stage.
func (s *QueueService) Position(ctx context.Context, externalID int64) (*model.Ticket, int, error) {
	user, err := s.store.UserByExternalID(ctx, externalID)
	if err != nil {
		return nil, 0, err
	}
	if user == nil {
		return nil, 0, ErrNoActiveTicket
	}
	t, err := s.store.ActiveTicketByUser(ctx, user.ID)
	if err != nil {
		return nil, 0, err
	}
	if t == nil {
		return nil, 0, ErrNoActiveTicket
	}
	if t.Status != model.StatusWaiting {
		return t, 0, nil
	}
	pos, err := s.store.WaitingPosition(ctx, t)
	if err != nil {
		return nil, 0, err
	}
	return t, pos, nil
}

// ListWaiting returns up to limit WAITING tickets in FIFO order for
// operator review.  A non-positive limit falls back to 30.
func (s *QueueService) ListWaiting(ctx context.Context, queueID int64, limit int) ([]model.Ticket, error) {
	queue, err := s.store.QueueByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, ErrQueueNotFound
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListWaiting(ctx, queueID, limit)
}

// CallNext dispatches the longest-waiting ticket in the lane: it becomes
// CALLED and receives a fresh confirmation token.  The dispatch notice
// goes out to the notifier afterwards; its delivery does not affect the
// transition.  Returns ErrQueueEmpty when no ticket is WAITING.
func (s *QueueService) CallNext(ctx context.Context, queueID int64) (*model.Ticket, error) {
	now := s.now()
	token, expiresAt, err := s.tokens.Issue(now)
	if err != nil {
		return nil, err
	}
	t, err := s.store.CallNextWaiting(ctx, queueID, token, expiresAt, now)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrQueueEmpty
	}
	s.emitCalled(ctx, t)
	return t, nil
}

// emitCalled publishes the "ticket called" event.  Lookup or publish
// failures are logged only.
func (s *QueueService) emitCalled(ctx context.Context, t *model.Ticket) {
	if s.notifier == nil {
		return
	}
	user, err := s.store.UserByID(ctx, t.UserID)
	if err != nil || user == nil {
		log.Printf("notify: user lookup for ticket %d failed: %v", t.ID, err)
		return
	}
	ev := notify.TicketCalledEvent{
		TicketID: t.ID,
		QueueID:  t.QueueID,
		Address:  user.Address,
		Name:     user.Name,
	}
	if t.Token != nil {
		ev.Token = *t.Token
	}
	if t.TokenExpiresAt != nil {
		ev.ExpiresAt = t.TokenExpiresAt.UTC().Format(time.RFC3339)
	}
	if err := s.notifier.PublishTicketCalled(ctx, ev); err != nil {
		log.Printf("notify: publish ticket %d failed: %v", t.ID, err)
	}
}

// MarkNoShow resolves the oldest CALLED ticket in the lane to NO_SHOW,
// making its token moot.  Returns ErrNoneCalled when nothing is
// dispatched.
func (s *QueueService) MarkNoShow(ctx context.Context, queueID int64) (*model.Ticket, error) {
	t, err := s.store.NoShowOldestCalled(ctx, queueID, s.now())
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNoneCalled
	}
	return t, nil
}

// ConfirmByToken flips the ticket holding the token to CONFIRMED when
// the token is live.  Unknown token, wrong state and expiry all return
// ErrInvalidToken.  A confirmed token can never match again because the
// ticket has left CALLED.
func (s *QueueService) ConfirmByToken(ctx context.Context, token string) (*model.Ticket, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	t, err := s.store.ConfirmByToken(ctx, token, s.now())
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrInvalidToken
	}
	return t, nil
}

// ServeConfirmed resolves the oldest CONFIRMED ticket in the lane to
// SERVED.  Returns ErrNoneConfirmed when nothing is confirmed.
func (s *QueueService) ServeConfirmed(ctx context.Context, queueID int64) (*model.Ticket, error) {
	t, err := s.store.ServeOldestConfirmed(ctx, queueID, s.now())
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNoneConfirmed
	}
	return t, nil
}

// DayStats counts tickets created and confirmed during the calendar day
// containing `day`, evaluated in the service's fixed reference zone as
// the half-open interval [00:00, next day 00:00).  queueID nil means all
// lanes.
func (s *QueueService) DayStats(ctx context.Context, day time.Time, queueID *int64) (Stats, error) {
	if queueID != nil {
		queue, err := s.store.QueueByID(ctx, *queueID)
		if err != nil {
			return Stats{}, err
		}
		if queue == nil {
			return Stats{}, ErrQueueNotFound
		}
	}
	local := day.In(s.statsLoc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.statsLoc)
	to := from.AddDate(0, 0, 1)
	created, confirmed, err := s.store.CountTickets(ctx, from, to, queueID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Created: created, Confirmed: confirmed}, nil
}
