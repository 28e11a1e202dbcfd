// Package repository implements MySQL persistence for lanes, users and
// tickets.  Sentinel values defined here let higher layers distinguish
// failure scenarios without inspecting driver errors.
package repository

import "errors"

// ErrConflict is returned when a guarded update matched no row, meaning
// the ticket changed state between selection and update.  With row
// locking in place this indicates a bug rather than an expected race;
// callers should surface it as a storage fault.
var ErrConflict = errors.New("conflict")
