package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/lane-dispatch/internal/model"
	"github.com/iliyamo/lane-dispatch/internal/notify"
)

// memStore is an in-memory TicketStore.  A single mutex stands in for the
// row locking the real store gets from its transactions, which is exactly
// the isolation the port contract asks for.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	queues  map[int64]model.Queue
	users   map[int64]model.User // keyed by internal id
	byExt   map[int64]int64      // external id -> internal id
	tickets []*model.Ticket
}

func newMemStore(queueIDs ...int64) *memStore {
	s := &memStore{
		queues: map[int64]model.Queue{},
		users:  map[int64]model.User{},
		byExt:  map[int64]int64{},
	}
	for _, id := range queueIDs {
		s.queues[id] = model.Queue{ID: id, Title: "Lane"}
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func clone(t *model.Ticket) *model.Ticket {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (s *memStore) UpsertUser(ctx context.Context, externalID int64, address, name string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byExt[externalID]; ok {
		u := s.users[id]
		u.Address, u.Name = address, name
		s.users[id] = u
		return &u, nil
	}
	u := model.User{ID: s.id(), ExternalID: externalID, Address: address, Name: name}
	s.users[u.ID] = u
	s.byExt[externalID] = u.ID
	return &u, nil
}

func (s *memStore) UserByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExt[externalID]
	if !ok {
		return nil, nil
	}
	u := s.users[id]
	return &u, nil
}

func (s *memStore) UserByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memStore) QueueByID(ctx context.Context, id int64) (*model.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (s *memStore) activeLocked(userID int64) *model.Ticket {
	for _, t := range s.tickets {
		if t.UserID == userID && t.Status.Active() {
			return t
		}
	}
	return nil
}

func (s *memStore) CreateWaiting(ctx context.Context, queueID, userID int64, now time.Time) (*model.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.activeLocked(userID); t != nil {
		return clone(t), false, nil
	}
	t := &model.Ticket{ID: s.id(), QueueID: queueID, UserID: userID, Status: model.StatusWaiting, CreatedAt: now}
	s.tickets = append(s.tickets, t)
	return clone(t), true, nil
}

func (s *memStore) CancelActive(ctx context.Context, userID int64, now time.Time) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.activeLocked(userID)
	if t == nil {
		return nil, nil
	}
	t.Status = model.StatusCanceled
	ts := now
	t.CanceledAt = &ts
	return clone(t), nil
}

func (s *memStore) ActiveTicketByUser(ctx context.Context, userID int64) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.activeLocked(userID)), nil
}

// oldestLocked returns the ticket with the smallest (at, id) among those
// in queueID with the given status, mirroring the store's ORDER BY.
func (s *memStore) oldestLocked(queueID int64, status model.Status, at func(*model.Ticket) time.Time) *model.Ticket {
	var best *model.Ticket
	for _, t := range s.tickets {
		if t.QueueID != queueID || t.Status != status {
			continue
		}
		if best == nil || at(t).Before(at(best)) || (at(t).Equal(at(best)) && t.ID < best.ID) {
			best = t
		}
	}
	return best
}

func (s *memStore) CallNextWaiting(ctx context.Context, queueID int64, token string, expiresAt, now time.Time) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.oldestLocked(queueID, model.StatusWaiting, func(t *model.Ticket) time.Time { return t.CreatedAt })
	if t == nil {
		return nil, nil
	}
	t.Status = model.StatusCalled
	ts := now
	t.CalledAt = &ts
	t.Token = &token
	exp := expiresAt
	t.TokenExpiresAt = &exp
	return clone(t), nil
}

func (s *memStore) NoShowOldestCalled(ctx context.Context, queueID int64, now time.Time) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.oldestLocked(queueID, model.StatusCalled, func(t *model.Ticket) time.Time { return *t.CalledAt })
	if t == nil {
		return nil, nil
	}
	t.Status = model.StatusNoShow
	ts := now
	t.NoShowAt = &ts
	return clone(t), nil
}

func (s *memStore) ConfirmByToken(ctx context.Context, token string, now time.Time) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.Token == nil || *t.Token != token {
			continue
		}
		if t.Status != model.StatusCalled || now.After(*t.TokenExpiresAt) {
			return nil, nil
		}
		t.Status = model.StatusConfirmed
		ts := now
		t.ConfirmedAt = &ts
		return clone(t), nil
	}
	return nil, nil
}

func (s *memStore) ServeOldestConfirmed(ctx context.Context, queueID int64, now time.Time) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.oldestLocked(queueID, model.StatusConfirmed, func(t *model.Ticket) time.Time { return *t.ConfirmedAt })
	if t == nil {
		return nil, nil
	}
	t.Status = model.StatusServed
	ts := now
	t.ServedAt = &ts
	return clone(t), nil
}

func (s *memStore) WaitingPosition(ctx context.Context, t *model.Ticket) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ahead := 0
	for _, o := range s.tickets {
		if o.QueueID != t.QueueID || o.Status != model.StatusWaiting {
			continue
		}
		if o.CreatedAt.Before(t.CreatedAt) || (o.CreatedAt.Equal(t.CreatedAt) && o.ID < t.ID) {
			ahead++
		}
	}
	return ahead + 1, nil
}

func (s *memStore) ListWaiting(ctx context.Context, queueID int64, limit int) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.QueueID == queueID && t.Status == model.StatusWaiting {
			out = append(out, *t)
		}
	}
	// tickets is append-only and ids are monotonic, so slice order is FIFO
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CountTickets(ctx context.Context, from, to time.Time, queueID *int64) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created, confirmed := 0, 0
	in := func(ts time.Time) bool { return !ts.Before(from) && ts.Before(to) }
	for _, t := range s.tickets {
		if queueID != nil && t.QueueID != *queueID {
			continue
		}
		if in(t.CreatedAt) {
			created++
		}
		if t.ConfirmedAt != nil && in(*t.ConfirmedAt) {
			confirmed++
		}
	}
	return created, confirmed, nil
}

// recordingNotifier captures published events; fail makes publishing error.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.TicketCalledEvent
	fail   bool
}

func (n *recordingNotifier) PublishTicketCalled(ctx context.Context, ev notify.TicketCalledEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker down")
	}
	n.events = append(n.events, ev)
	return nil
}

// fixture wires a service over memStore with a controllable clock.
type fixture struct {
	store    *memStore
	notifier *recordingNotifier
	svc      *QueueService
	now      time.Time
}

func newFixture(t *testing.T, queueIDs ...int64) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(queueIDs...),
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewQueueService(f.store, NewTokenIssuer(15*time.Minute), f.notifier, time.UTC)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) join(t *testing.T, queueID, externalID int64) *model.Ticket {
	t.Helper()
	tk, created, err := f.svc.Enqueue(context.Background(), queueID, ExternalUser{ID: externalID, Address: "@u", Name: "User"})
	require.NoError(t, err)
	require.True(t, created)
	return tk
}

func TestEnqueueCreatesWaitingTicket(t *testing.T) {
	f := newFixture(t, 1)
	tk, created, err := f.svc.Enqueue(context.Background(), 1, ExternalUser{ID: 100, Address: "@alice", Name: "Alice"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StatusWaiting, tk.Status)
	assert.Equal(t, int64(1), tk.QueueID)
	assert.Equal(t, f.now, tk.CreatedAt)
	assert.Nil(t, tk.Token)
}

func TestEnqueueUnknownQueue(t *testing.T) {
	f := newFixture(t, 1)
	_, _, err := f.svc.Enqueue(context.Background(), 99, ExternalUser{ID: 100})
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestEnqueueIsIdempotentWhileActive(t *testing.T) {
	f := newFixture(t, 1, 2)
	first := f.join(t, 1, 100)

	// Same lane: the existing ticket comes back untouched.
	again, created, err := f.svc.Enqueue(context.Background(), 1, ExternalUser{ID: 100})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	// A different lane does not get around the single-active rule either.
	other, created, err := f.svc.Enqueue(context.Background(), 2, ExternalUser{ID: 100})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, other.ID)
	assert.Equal(t, int64(1), other.QueueID)
}

func TestEnqueueAfterTerminalCreatesFresh(t *testing.T) {
	f := newFixture(t, 1)
	first := f.join(t, 1, 100)

	canceled, err := f.svc.Leave(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, canceled)

	second := f.join(t, 1, 100)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestLeaveWithoutTicket(t *testing.T) {
	f := newFixture(t, 1)
	canceled, err := f.svc.Leave(context.Background(), 100) // never seen
	require.NoError(t, err)
	assert.False(t, canceled)

	f.join(t, 1, 100)
	canceled, err = f.svc.Leave(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, canceled)

	canceled, err = f.svc.Leave(context.Background(), 100) // nothing left
	require.NoError(t, err)
	assert.False(t, canceled)
}

func TestPositionIsFIFO(t *testing.T) {
	f := newFixture(t, 1)
	for i := int64(1); i <= 3; i++ {
		f.join(t, 1, 100+i)
		f.advance(time.Second)
	}

	for i := int64(1); i <= 3; i++ {
		tk, pos, err := f.svc.Position(context.Background(), 100+i)
		require.NoError(t, err)
		assert.Equal(t, int(i), pos)
		assert.Equal(t, model.StatusWaiting, tk.Status)
	}
}

func TestPositionAfterDispatchIsNotApplicable(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)

	_, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	tk, pos, err := f.svc.Position(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCalled, tk.Status)
	assert.Equal(t, 0, pos)
}

func TestPositionNoActiveTicket(t *testing.T) {
	f := newFixture(t, 1)
	_, _, err := f.svc.Position(context.Background(), 100)
	assert.ErrorIs(t, err, ErrNoActiveTicket)
}

func TestPositionShrinksAsLaneDrains(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)
	f.advance(time.Second)
	f.join(t, 1, 102)

	_, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	_, pos, err := f.svc.Position(context.Background(), 102)
	require.NoError(t, err)
	assert.Equal(t, 1, pos, "second user moves to the front once the first is dispatched")
}

func TestCallNextDispatchesOldestWithToken(t *testing.T) {
	f := newFixture(t, 1)
	first := f.join(t, 1, 101)
	f.advance(time.Second)
	f.join(t, 1, 102)

	tk, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, tk.ID)
	assert.Equal(t, model.StatusCalled, tk.Status)
	require.NotNil(t, tk.Token)
	assert.Len(t, *tk.Token, 64)
	require.NotNil(t, tk.TokenExpiresAt)
	assert.Equal(t, f.now.Add(15*time.Minute), *tk.TokenExpiresAt)
}

func TestCallNextEmptyLane(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.CallNext(context.Background(), 1)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestCallNextPublishesNotice(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)

	tk, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 1)
	ev := f.notifier.events[0]
	assert.Equal(t, tk.ID, ev.TicketID)
	assert.Equal(t, int64(1), ev.QueueID)
	assert.Equal(t, *tk.Token, ev.Token)
	assert.Equal(t, "@u", ev.Address)
}

func TestCallNextSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.notifier.fail = true
	f.join(t, 1, 101)

	tk, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCalled, tk.Status)
}

func TestCallNextConcurrentDispatchesEachTicketOnce(t *testing.T) {
	f := newFixture(t, 1)
	const n = 20
	for i := int64(0); i < n; i++ {
		f.join(t, 1, 200+i)
	}

	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := f.svc.CallNext(context.Background(), 1)
			if err == nil {
				ids <- tk.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "ticket %d dispatched twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestConfirmByToken(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)
	called, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	tk, err := f.svc.ConfirmByToken(context.Background(), *called.Token)
	require.NoError(t, err)
	assert.Equal(t, called.ID, tk.ID)
	assert.Equal(t, model.StatusConfirmed, tk.Status)
	require.NotNil(t, tk.ConfirmedAt)
}

func TestConfirmTokenIsSingleUse(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)
	called, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	_, err = f.svc.ConfirmByToken(context.Background(), *called.Token)
	require.NoError(t, err)

	_, err = f.svc.ConfirmByToken(context.Background(), *called.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConfirmRejectsUnknownAndEmptyToken(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.ConfirmByToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = f.svc.ConfirmByToken(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConfirmExpiredToken(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)
	called, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	f.advance(15*time.Minute + time.Second)
	_, err = f.svc.ConfirmByToken(context.Background(), *called.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Expiry is lazy: the ticket stays CALLED until an operator resolves it.
	tk, pos, err := f.svc.Position(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCalled, tk.Status)
	assert.Equal(t, 0, pos)

	resolved, err := f.svc.MarkNoShow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, called.ID, resolved.ID)
	assert.Equal(t, model.StatusNoShow, resolved.Status)
}

func TestConfirmAtExactExpiryStillCounts(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)
	called, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	f.advance(15 * time.Minute) // now == expiry, not past it
	_, err = f.svc.ConfirmByToken(context.Background(), *called.Token)
	assert.NoError(t, err)
}

func TestNoShowResolvesOldestCalled(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)
	f.advance(time.Second)
	f.join(t, 1, 102)

	first, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)
	f.advance(time.Second)
	_, err = f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	resolved, err := f.svc.MarkNoShow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, resolved.ID, "oldest CALLED goes first")
}

func TestNoShowNoneCalled(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.MarkNoShow(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoneCalled)
}

func TestServeConfirmedInConfirmationOrder(t *testing.T) {
	f := newFixture(t, 1)
	f.join(t, 1, 101)
	f.advance(time.Second)
	f.join(t, 1, 102)

	a, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)
	b, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)

	// b confirms before a; service order follows confirmation time.
	_, err = f.svc.ConfirmByToken(context.Background(), *b.Token)
	require.NoError(t, err)
	f.advance(time.Second)
	_, err = f.svc.ConfirmByToken(context.Background(), *a.Token)
	require.NoError(t, err)

	served, err := f.svc.ServeConfirmed(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, b.ID, served.ID)
	assert.Equal(t, model.StatusServed, served.Status)

	served, err = f.svc.ServeConfirmed(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, a.ID, served.ID)

	_, err = f.svc.ServeConfirmed(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoneConfirmed)
}

func TestListWaitingDefaultLimit(t *testing.T) {
	f := newFixture(t, 1)
	for i := int64(0); i < 35; i++ {
		f.join(t, 1, 300+i)
		f.advance(time.Millisecond)
	}

	tickets, err := f.svc.ListWaiting(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Len(t, tickets, 30)

	tickets, err = f.svc.ListWaiting(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Len(t, tickets, 5)

	_, err = f.svc.ListWaiting(context.Background(), 99, 0)
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestDayStats(t *testing.T) {
	f := newFixture(t, 1, 2)
	f.join(t, 1, 101)
	f.join(t, 2, 102)

	a, err := f.svc.CallNext(context.Background(), 1)
	require.NoError(t, err)
	_, err = f.svc.ConfirmByToken(context.Background(), *a.Token)
	require.NoError(t, err)

	// A ticket from the next day must not leak into today's numbers.
	f.advance(24 * time.Hour)
	f.join(t, 1, 103)

	today := time.Date(2025, 6, 1, 13, 37, 0, 0, time.UTC)
	all, err := f.svc.DayStats(context.Background(), today, nil)
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 2, Confirmed: 1}, all)

	lane := int64(2)
	scoped, err := f.svc.DayStats(context.Background(), today, &lane)
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 1, Confirmed: 0}, scoped)

	unknown := int64(99)
	_, err = f.svc.DayStats(context.Background(), today, &unknown)
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestDayStatsUsesReferenceZone(t *testing.T) {
	f := newFixture(t, 1)
	loc := time.FixedZone("UTC+3", 3*60*60)
	f.svc.statsLoc = loc

	// 23:30 UTC on May 31 is already June 1 in UTC+3.
	f.now = time.Date(2025, 5, 31, 23, 30, 0, 0, time.UTC)
	f.join(t, 1, 101)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, loc)
	stats, err := f.svc.DayStats(context.Background(), day, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	prev := time.Date(2025, 5, 31, 0, 0, 0, 0, loc)
	stats, err = f.svc.DayStats(context.Background(), prev, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
}

func TestUpsertUserRefreshesProfile(t *testing.T) {
	f := newFixture(t, 1)
	_, _, err := f.svc.Enqueue(context.Background(), 1, ExternalUser{ID: 100, Address: "@old", Name: "Old"})
	require.NoError(t, err)
	_, _, err = f.svc.Enqueue(context.Background(), 1, ExternalUser{ID: 100, Address: "@new", Name: "New"})
	require.NoError(t, err)

	u, err := f.store.UserByExternalID(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "@new", u.Address)
	assert.Equal(t, "New", u.Name)
}
