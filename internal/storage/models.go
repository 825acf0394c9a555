package storage

import "time"

type Chat struct {
	ID        int64
	Type      string
	Title     string
	CreatedAt time.Time
}

// Turn is one entry in a chat's ordered conversation log. Sender is
// either "user" or "bot"; CreatedAt is assigned by the database.
type Turn struct {
	ID        int64
	ChatID    int64
	Sender    string
	Text      string
	CreatedAt time.Time
}

// InboxRecord is a write-once audit entry for an inbound message. It
// shares identifiers with Turn but nothing in the pipeline reads it back.
type InboxRecord struct {
	UserID    int64
	ChatID    int64
	MessageID int64
	Text      string
}
