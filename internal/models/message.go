package models

import "time"

// Message is a direct or program-scoped portal message.
type Message struct {
	ID          string     `db:"id" json:"id"`
	SenderID    string     `db:"sender_id" json:"sender_id"`
	RecipientID *string    `db:"recipient_id" json:"recipient_id,omitempty"`
	ProgramID   *string    `db:"program_id" json:"program_id,omitempty"`
	Subject     string     `db:"subject" json:"subject"`
	Body        string     `db:"body" json:"body"`
	Link        *string    `db:"link" json:"link,omitempty"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// InboxKind identifies which source an inbox item came from.
type InboxKind string

const (
	InboxDirect  InboxKind = "direct"
	InboxProgram InboxKind = "program"
	InboxSent    InboxKind = "sent"
)

// InboxItem is a single row of the merged inbox.
type InboxItem struct {
	ID        string    `json:"id"`
	Kind      InboxKind `json:"kind"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	From      string    `json:"from"`
	ProgramID *string   `json:"programId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// InboxFilter narrows and orders the merged inbox.
type InboxFilter struct {
	Kind       InboxKind
	Search     string
	UnreadOnly bool
	Sort       string
}
