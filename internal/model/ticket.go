package model

import "time"

// Status is the lifecycle state of a ticket.  It is persisted as text in
// the tickets.status column.  The set of values is closed: code that
// branches on a Status must switch over every constant below so that a
// new state cannot be added without every consumer being revisited.
type Status string

const (
	StatusWaiting   Status = "WAITING"   // in line, not yet dispatched
	StatusCalled    Status = "CALLED"    // dispatched, holds a live confirmation token
	StatusConfirmed Status = "CONFIRMED" // presence confirmed, awaiting service
	StatusServed    Status = "SERVED"    // terminal: served successfully
	StatusCanceled  Status = "CANCELED"  // terminal: withdrawn by the user
	StatusNoShow    Status = "NO_SHOW"   // terminal: dispatched but never showed up
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusConfirmed, StatusServed, StatusCanceled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether a ticket in this status still occupies its
// owner's single active slot.  A user may hold at most one ticket whose
// status is active at any time.
func (s Status) Active() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusConfirmed:
		return true
	case StatusServed, StatusCanceled, StatusNoShow:
		return false
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
// Terminal tickets are never deleted; they back the statistics queries.
func (s Status) Terminal() bool {
	switch s {
	case StatusServed, StatusCanceled, StatusNoShow:
		return true
	case StatusWaiting, StatusCalled, StatusConfirmed:
		return false
	}
	return false
}

// ActiveStatuses lists the statuses counted against the single-active
// invariant, in lifecycle order.  Useful for building IN (...) clauses.
var ActiveStatuses = []Status{StatusWaiting, StatusCalled, StatusConfirmed}

// Ticket is one user's claim on a position in a lane.  Exactly one
// timestamp field is stamped per transition and none is ever rewritten;
// CreatedAt is the sole FIFO ordering key for dispatch and position.
type Ticket struct {
	ID             int64      // tickets.id
	QueueID        int64      // tickets.queue_id
	UserID         int64      // tickets.user_id
	Status         Status     // tickets.status
	CreatedAt      time.Time  // tickets.created_at
	CalledAt       *time.Time // tickets.called_at (nullable)
	ConfirmedAt    *time.Time // tickets.confirmed_at (nullable)
	ServedAt       *time.Time // tickets.served_at (nullable)
	CanceledAt     *time.Time // tickets.canceled_at (nullable)
	NoShowAt       *time.Time // tickets.no_show_at (nullable)
	Token          *string    // tickets.token (nullable, unique)
	TokenExpiresAt *time.Time // tickets.token_expires_at (nullable)
}
