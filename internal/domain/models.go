package domain

import "time"

// User represents an application user. IsConnected and ChannelID mirror the
// last known live connection and are best-effort only.
type User struct {
	ID             string    `db:"id" bson:"_id" json:"id"`
	Username       string    `db:"username" bson:"username" json:"username"`
	Email          *string   `db:"email" bson:"email,omitempty" json:"email,omitempty"`
	HashedPassword string    `db:"hashed_password" bson:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" bson:"is_active" json:"is_active"`
	IsConnected    bool      `db:"is_connected" bson:"is_connected" json:"is_connected"`
	ChannelID      *string   `db:"channel_id" bson:"channel_id,omitempty" json:"-"`
	CreatedAt      time.Time `db:"created_at" bson:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" bson:"last_seen" json:"last_seen"`
}

// Profile is the public view of a user attached to replies and push events.
type Profile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	IsConnected bool      `json:"is_connected"`
	LastSeen    time.Time `json:"last_seen"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:          u.ID,
		Username:    u.Username,
		IsConnected: u.IsConnected,
		LastSeen:    u.LastSeen,
	}
}

// Message is a single message between a sender and a receiver. The receiver
// equals the sender for a self-conversation. Rows are never physically
// removed; the three delete flags only ever go from false to true.
type Message struct {
	ID                 string    `db:"id" bson:"_id" json:"id"`
	SenderID           string    `db:"sender_id" bson:"sender_id" json:"sender"`
	ReceiverID         string    `db:"receiver_id" bson:"receiver_id" json:"receiver"`
	Text               string    `db:"text" bson:"text" json:"text"` // encrypted at rest
	Type               string    `db:"type" bson:"type" json:"type"`
	Status             string    `db:"status" bson:"status" json:"status"`
	IsEdited           bool      `db:"is_edited" bson:"is_edited" json:"is_edited"`
	IsForwarded        bool      `db:"is_forwarded" bson:"is_forwarded" json:"is_forwarded"`
	UsersRelated       []string  `db:"users_related" bson:"users_related" json:"users_related"`
	DeletedForSender   bool      `db:"deleted_for_sender" bson:"deleted_for_sender" json:"deleted_for_sender"`
	DeletedForReceiver bool      `db:"deleted_for_receiver" bson:"deleted_for_receiver" json:"deleted_for_receiver"`
	DeletedForAll      bool      `db:"deleted_for_all" bson:"deleted_for_all" json:"deleted_for_all"`
	CreatedAt          time.Time `db:"created_at" bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" bson:"updated_at" json:"updated_at"`
}

// IsSelfConversation reports whether the message was sent to its own sender.
func (m *Message) IsSelfConversation() bool {
	return m.SenderID == m.ReceiverID
}

// IsParticipant reports whether userID is the sender or the receiver.
func (m *Message) IsParticipant(userID string) bool {
	return userID == m.SenderID || userID == m.ReceiverID
}

// Counterpart returns the participant that is not userID. For a
// self-conversation it returns userID.
func (m *Message) Counterpart(userID string) string {
	if userID == m.SenderID {
		return m.ReceiverID
	}
	return m.SenderID
}

// VisibleTo reports whether viewer may still see the message.
func (m *Message) VisibleTo(viewer string) bool {
	if m.DeletedForAll {
		return false
	}
	if viewer == m.SenderID && m.DeletedForSender {
		return false
	}
	if viewer == m.ReceiverID && m.DeletedForReceiver {
		return false
	}
	return m.IsParticipant(viewer)
}

// BlockRelation records that BlockedID has been blocked by BlockerID.
// The relation is directional: it never implies the reverse.
type BlockRelation struct {
	BlockerID string    `db:"blocker_id" bson:"blocker_id" json:"blocker_id"`
	BlockedID string    `db:"blocked_id" bson:"blocked_id" json:"blocked_id"`
	CreatedAt time.Time `db:"created_at" bson:"created_at" json:"created_at"`
}

// DeleteScope selects whose view a delete removes the message from.
type DeleteScope int

const (
	ScopeSelfOnly DeleteScope = iota
	ScopeEveryone
)

func (s DeleteScope) String() string {
	if s == ScopeEveryone {
		return "everyone"
	}
	return "self"
}

// DeleteFlags is the set of soft-delete flags a mutation turns on. A false
// field means "leave as stored", never "clear".
type DeleteFlags struct {
	ForSender   bool
	ForReceiver bool
	ForAll      bool
}

// IsZero reports whether no flag would be set.
func (f DeleteFlags) IsZero() bool {
	return !f.ForSender && !f.ForReceiver && !f.ForAll
}

// ConversationDelete describes a bulk delete over every message exchanged
// between ActorID and CounterpartID, in both directions.
type ConversationDelete struct {
	ActorID       string
	CounterpartID string
	Scope         DeleteScope
}

// IsSelfConversation reports whether the bulk delete targets the actor's
// own self-conversation.
func (c ConversationDelete) IsSelfConversation() bool {
	return c.ActorID == c.CounterpartID
}
