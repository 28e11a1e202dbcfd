package model

import "time"

// User is one external identity as stored in the `users` table.  Records
// are created on first interaction and upserted (address, name) on every
// subsequent one; they are never deleted.  The json tags are omitted here
// because these structs are used internally by the repository layer;
// handlers define separate response types with appropriate JSON tags.
//
// Fields:
//  ID         – primary key identifier of the user.
//  ExternalID – stable identifier assigned by the chat transport (unique).
//  Address    – delivery address notifications are sent to.
//  Name       – display name as last reported by the transport.
//  CreatedAt  – timestamp of creation.
//  UpdatedAt  – timestamp of last upsert.
type User struct {
	ID         int64     // users.id
	ExternalID int64     // users.external_id
	Address    string    // users.address
	Name       string    // users.name
	CreatedAt  time.Time // users.created_at
	UpdatedAt  time.Time // users.updated_at
}
