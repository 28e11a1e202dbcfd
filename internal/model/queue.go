package model

// Queue is one physical dispatch lane with its own FIFO ordering.
// Lanes are seeded once at startup and immutable afterwards.
type Queue struct {
	ID    int64  // queues.id
	Title string // queues.title
}
