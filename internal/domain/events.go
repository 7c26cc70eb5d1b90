package domain

// Push event names delivered to the counterpart's live connection.
const (
	EventMessageReceived     = "message_received"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventConversationCleared = "conversation_cleared"
)

// Event is the frame written to a channel for a push.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// MessageEnvelope is a message with both participants' public profiles. It
// is both the direct reply for Send/Edit and the payload of message events.
type MessageEnvelope struct {
	Message  *Message `json:"message"`
	Sender   Profile  `json:"sender_user"`
	Receiver Profile  `json:"receiver_user"`
}

// ConversationCleared tells the receiving user that CounterpartID cleared
// the conversation they share.
type ConversationCleared struct {
	CounterpartID string `json:"counterpart_id"`
}
