// Package notify defines the dispatch notice payload exchanged over the
// message broker, its publisher, and the background consumer.
package notify

// TicketCalledEvent is published when an operator dispatches a ticket.
// It carries everything a delivery collaborator needs to render and send
// the notice (for example as a scannable payload) without querying the
// primary database.
type TicketCalledEvent struct {
	TicketID  int64  `json:"ticket_id"`
	QueueID   int64  `json:"queue_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Address   string `json:"address"`
	Name      string `json:"name"`
}
