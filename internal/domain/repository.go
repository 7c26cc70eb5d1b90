package domain

import (
	"context"
)

// UserRepository defines persistence operations for users. Lookups of a
// missing user return ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// SetPresence marks the user connected through channelID, or
	// disconnected when channelID is nil.
	SetPresence(ctx context.Context, id string, channelID *string) error
	// ClearChannel marks whichever user holds channelID as disconnected.
	// It is not an error when no user holds it.
	ClearChannel(ctx context.Context, channelID string) error
}

// MessageRepository defines persistence operations for messages. Every
// mutating lookup is scoped to a participant: a row whose sender and
// receiver both differ from participantID is reported as ErrNotFound.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// UpdateText replaces the body and sets the edited flag. Delete flags
	// are left untouched.
	UpdateText(ctx context.Context, id, participantID, text string) (*Message, error)
	// MarkDeleted turns on the given flags and returns the updated row.
	// Flags already set stay set.
	MarkDeleted(ctx context.Context, id, participantID string, flags DeleteFlags) (*Message, error)
	// MarkConversationDeleted applies a bulk delete as a single filtered
	// update whose assignment is derived per row from that row's own
	// sender and receiver. It returns the number of rows matched.
	MarkConversationDeleted(ctx context.Context, cd ConversationDelete) (int64, error)
}

// BlockRepository defines persistence operations for block relations.
type BlockRepository interface {
	Create(ctx context.Context, b *BlockRelation) error
	Delete(ctx context.Context, blockerID, blockedID string) error
	Find(ctx context.Context, blockerID, blockedID string) (*BlockRelation, error)
	ListBlockedBy(ctx context.Context, blockerID string) ([]*BlockRelation, error)
}
