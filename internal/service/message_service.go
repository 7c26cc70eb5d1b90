package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/visibility"
)

const maxTextRunes = 5000

// Fanout delivers an event to a user's live connection if there is one.
// It reports whether the event was written; it never queues or retries.
type Fanout interface {
	Dispatch(userID string, ev domain.Event) bool
}

// MessageService applies message mutations for an explicitly passed acting
// user and pushes the result to the other participant.
type MessageService struct {
	users     domain.UserRepository
	messages  domain.MessageRepository
	gate      *BlockGate
	fanout    Fanout
	encryptor *security.Encryptor
	log       *zap.Logger
}

func NewMessageService(
	users domain.UserRepository,
	messages domain.MessageRepository,
	blocks domain.BlockRepository,
	fanout Fanout,
	encryptor *security.Encryptor,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		users:     users,
		messages:  messages,
		gate:      NewBlockGate(blocks),
		fanout:    fanout,
		encryptor: encryptor,
		log:       log.Named("messages"),
	}
}

type SendInput struct {
	ReceiverID   string
	Text         string
	Type         string
	Status       string
	IsForwarded  bool
	UsersRelated []string
}

// Send stores a new message from senderID and pushes it to the receiver
// unless the receiver blocked the sender. A blocked message is stored
// already deleted for the receiver.
func (s *MessageService) Send(ctx context.Context, senderID string, in SendInput) (env *domain.MessageEnvelope, err error) {
	defer func() { observe("send", err) }()

	if strings.TrimSpace(in.ReceiverID) == "" {
		return nil, fmt.Errorf("%w: receiver is required", domain.ErrInvalidInput)
	}
	if err := checkText(in.Text); err != nil {
		return nil, err
	}

	sender, err := s.user(ctx, senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.user(ctx, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	blocked, err := s.gate.IsBlockedAgainst(ctx, sender.ID, receiver.ID)
	if err != nil {
		return nil, s.storageErr("check block", err)
	}

	sealed, err := s.encryptor.Seal(in.Text)
	if err != nil {
		return nil, fmt.Errorf("seal text: %w", err)
	}

	msg := &domain.Message{
		ID:           uuid.NewString(),
		SenderID:     sender.ID,
		ReceiverID:   receiver.ID,
		Text:         sealed,
		Type:         orDefault(in.Type, "text"),
		Status:       orDefault(in.Status, "sent"),
		IsForwarded:  in.IsForwarded,
		UsersRelated: in.UsersRelated,
	}
	visibility.Apply(msg, visibility.SendFlags(blocked))

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, s.storageErr("create message", err)
	}

	env = s.envelope(msg, sender, receiver)
	switch {
	case msg.IsSelfConversation():
	case blocked:
		s.log.Debug("receiver blocked sender, push suppressed",
			zap.String("message_id", msg.ID), zap.String("receiver_id", receiver.ID))
	default:
		s.push(receiver.ID, domain.EventMessageReceived, env)
	}
	return env, nil
}

// Edit replaces the text of a message the actor takes part in. Delete
// flags are not touched, so a message deleted for one party stays deleted
// for them. No message_edited push goes out for a self-conversation, when
// the counterpart has blocked the actor, or when the message is already
// hidden from the counterpart.
func (s *MessageService) Edit(ctx context.Context, actorID, messageID, text string) (env *domain.MessageEnvelope, err error) {
	defer func() { observe("edit", err) }()

	if err := checkText(text); err != nil {
		return nil, err
	}
	if _, err := s.participantMessage(ctx, actorID, messageID); err != nil {
		return nil, err
	}

	sealed, err := s.encryptor.Seal(text)
	if err != nil {
		return nil, fmt.Errorf("seal text: %w", err)
	}
	updated, err := s.messages.UpdateText(ctx, messageID, actorID, sealed)
	if err != nil {
		return nil, s.storageErr("update text", err)
	}

	env, err = s.load(ctx, updated)
	if err != nil {
		return nil, err
	}
	if target, ok := s.pushTarget(ctx, actorID, updated); ok && updated.VisibleTo(target) {
		s.push(target, domain.EventMessageEdited, env)
	}
	return env, nil
}

// DeleteOne turns on the delete flags the visibility rules give for the
// actor and scope. Flags only ever go from false to true, so deleting an
// already deleted message succeeds without changing it.
func (s *MessageService) DeleteOne(ctx context.Context, actorID, messageID string, scope domain.DeleteScope) (msg *domain.Message, err error) {
	defer func() { observe("delete_one", err) }()

	current, err := s.participantMessage(ctx, actorID, messageID)
	if err != nil {
		return nil, err
	}

	flags := visibility.Resolve(actorID, current.SenderID, current.ReceiverID, scope)
	updated, err := s.messages.MarkDeleted(ctx, messageID, actorID, flags)
	if err != nil {
		return nil, s.storageErr("mark deleted", err)
	}

	if scope != domain.ScopeEveryone {
		return updated, nil
	}
	if target, ok := s.pushTarget(ctx, actorID, updated); ok {
		env, err := s.load(ctx, updated)
		if err != nil {
			s.log.Warn("skip delete push, profiles unavailable", zap.String("message_id", updated.ID), zap.Error(err))
			return updated, nil
		}
		s.push(target, domain.EventMessageDeleted, env)
	}
	return updated, nil
}

// DeleteAll deletes every message between actorID and counterpartID in one
// bulk update and returns how many messages it matched. With scope
// Everyone the counterpart is told once that the conversation was cleared.
func (s *MessageService) DeleteAll(ctx context.Context, actorID, counterpartID string, scope domain.DeleteScope) (n int64, err error) {
	defer func() { observe("delete_all", err) }()

	if strings.TrimSpace(counterpartID) == "" {
		return 0, fmt.Errorf("%w: counterpart is required", domain.ErrInvalidInput)
	}
	if _, err := s.user(ctx, counterpartID); err != nil {
		return 0, err
	}

	cd := domain.ConversationDelete{ActorID: actorID, CounterpartID: counterpartID, Scope: scope}
	n, err = s.messages.MarkConversationDeleted(ctx, cd)
	if err != nil {
		return 0, s.storageErr("delete conversation", err)
	}

	if scope != domain.ScopeEveryone || cd.IsSelfConversation() {
		return n, nil
	}
	blocked, err := s.gate.IsBlockedAgainst(ctx, actorID, counterpartID)
	if err != nil {
		s.log.Warn("block lookup failed, push skipped", zap.String("counterpart_id", counterpartID), zap.Error(err))
		return n, nil
	}
	if !blocked {
		s.push(counterpartID, domain.EventConversationCleared, domain.ConversationCleared{CounterpartID: actorID})
	}
	return n, nil
}

// participantMessage loads messageID and checks that actorID takes part in
// it.
func (s *MessageService) participantMessage(ctx context.Context, actorID, messageID string) (*domain.Message, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrInvalidInput)
	}
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, s.storageErr("get message", err)
	}
	if !m.IsParticipant(actorID) {
		return nil, domain.ErrForbidden
	}
	return m, nil
}

// pushTarget returns the participant that should hear about actorID's
// change to m, if any: nobody for a self-conversation or when that
// participant blocked the actor.
func (s *MessageService) pushTarget(ctx context.Context, actorID string, m *domain.Message) (string, bool) {
	if m.IsSelfConversation() {
		return "", false
	}
	target := m.Counterpart(actorID)
	blocked, err := s.gate.IsBlockedAgainst(ctx, actorID, target)
	if err != nil {
		s.log.Warn("block lookup failed, push skipped", zap.String("message_id", m.ID), zap.Error(err))
		return "", false
	}
	if blocked {
		return "", false
	}
	return target, true
}

func (s *MessageService) push(userID, eventType string, payload any) {
	if !s.fanout.Dispatch(userID, domain.Event{Type: eventType, Payload: payload}) {
		s.log.Debug("push not delivered", zap.String("event", eventType), zap.String("user_id", userID))
	}
}

// load attaches both participants' profiles to m.
func (s *MessageService) load(ctx context.Context, m *domain.Message) (*domain.MessageEnvelope, error) {
	sender, err := s.user(ctx, m.SenderID)
	if err != nil {
		return nil, err
	}
	receiver := sender
	if !m.IsSelfConversation() {
		if receiver, err = s.user(ctx, m.ReceiverID); err != nil {
			return nil, err
		}
	}
	return s.envelope(m, sender, receiver), nil
}

// envelope returns a copy of m with its text opened, plus both profiles.
// Text of a message deleted for everyone is never sent out.
func (s *MessageService) envelope(m *domain.Message, sender, receiver *domain.User) *domain.MessageEnvelope {
	out := *m
	switch {
	case out.DeletedForAll:
		out.Text = ""
	default:
		plain, err := s.encryptor.Open(m.Text)
		if err != nil {
			s.log.Warn("message text could not be opened", zap.String("message_id", m.ID), zap.Error(err))
		} else {
			out.Text = plain
		}
	}
	return &domain.MessageEnvelope{
		Message:  &out,
		Sender:   sender.Profile(),
		Receiver: receiver.Profile(),
	}
}

func (s *MessageService) user(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, s.storageErr("get user", err)
	}
	return u, nil
}

// storageErr passes ErrNotFound through and wraps every other failure in
// ErrStorage.
func (s *MessageService) storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s.log.Error("storage failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: message text cannot be empty", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxTextRunes {
		return fmt.Errorf("%w: message text exceeds %d characters", domain.ErrInvalidInput, maxTextRunes)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
