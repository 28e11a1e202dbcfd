package service

import "errors"

// Expected, recoverable outcomes of queue operations.  Handlers translate
// these into user-facing messages; anything else coming out of the
// service is a storage fault the caller may retry.
var (
	// ErrQueueNotFound reports an unknown lane id.
	ErrQueueNotFound = errors.New("queue not found")
	// ErrNoActiveTicket reports that the user holds no active ticket.
	ErrNoActiveTicket = errors.New("no active ticket")
	// ErrQueueEmpty reports that the lane has no WAITING ticket to call.
	ErrQueueEmpty = errors.New("queue empty")
	// ErrNoneCalled reports that the lane has no CALLED ticket to resolve.
	ErrNoneCalled = errors.New("none called")
	// ErrNoneConfirmed reports that the lane has no CONFIRMED ticket to serve.
	ErrNoneConfirmed = errors.New("none confirmed")
	// ErrInvalidToken covers every confirmation miss: unknown token, ticket
	// no longer CALLED, or token past expiry.  The cases collapse into one
	// outcome so probing the confirm endpoint leaks nothing about which
	// tickets exist.
	ErrInvalidToken = errors.New("token invalid or expired")
)
