package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatcore/internal/domain"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/store/sqlite"
)

type MockFanout struct {
	mock.Mock
}

func (m *MockFanout) Dispatch(userID string, ev domain.Event) bool {
	args := m.Called(userID, ev)
	return args.Bool(0)
}

type fixture struct {
	svc      *service.MessageService
	fanout   *MockFanout
	messages *sqlite.MessageRepo
	blocks   *sqlite.BlockRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	users := sqlite.NewUserRepo(db)
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, users.Create(context.Background(), &domain.User{
			ID:             name,
			Username:       name,
			HashedPassword: "x",
			IsActive:       true,
		}))
	}

	enc, err := security.NewEncryptor([]byte("test-secret"), nil)
	require.NoError(t, err)

	f := &fixture{
		fanout:   new(MockFanout),
		messages: sqlite.NewMessageRepo(db),
		blocks:   sqlite.NewBlockRepo(db),
	}
	f.svc = service.NewMessageService(users, f.messages, f.blocks, f.fanout, enc, zap.NewNop())
	return f
}

func (f *fixture) block(t *testing.T, blocker, blocked string) {
	t.Helper()
	require.NoError(t, f.blocks.Create(context.Background(), &domain.BlockRelation{BlockerID: blocker, BlockedID: blocked}))
}

// send stores a message and absorbs the push it triggers.
func (f *fixture) send(t *testing.T, sender, receiver, text string) *domain.Message {
	t.Helper()
	f.fanout.On("Dispatch", receiver, mock.Anything).Return(true).Once()
	env, err := f.svc.Send(context.Background(), sender, service.SendInput{ReceiverID: receiver, Text: text})
	require.NoError(t, err)
	return env.Message
}

func (f *fixture) stored(t *testing.T, id string) *domain.Message {
	t.Helper()
	m, err := f.messages.GetByID(context.Background(), id)
	require.NoError(t, err)
	return m
}

func eventOfType(typ string) any {
	return mock.MatchedBy(func(ev domain.Event) bool { return ev.Type == typ })
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("PushesToReceiver", func(t *testing.T) {
		f := newFixture(t)
		f.fanout.On("Dispatch", "bob", mock.MatchedBy(func(ev domain.Event) bool {
			env, ok := ev.Payload.(*domain.MessageEnvelope)
			return ok && ev.Type == domain.EventMessageReceived &&
				env.Message.Text == "hello" && env.Sender.ID == "alice" && env.Receiver.ID == "bob"
		})).Return(true).Once()

		env, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "bob", Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "hello", env.Message.Text)
		assert.Equal(t, "text", env.Message.Type)
		assert.Equal(t, "sent", env.Message.Status)

		stored := f.stored(t, env.Message.ID)
		assert.NotEqual(t, "hello", stored.Text)
		assert.False(t, stored.DeletedForReceiver)
		f.fanout.AssertExpectations(t)
	})

	t.Run("ReceiverBlockedSender", func(t *testing.T) {
		f := newFixture(t)
		f.block(t, "bob", "alice")

		env, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "bob", Text: "hello"})
		require.NoError(t, err)

		stored := f.stored(t, env.Message.ID)
		assert.True(t, stored.DeletedForReceiver)
		assert.False(t, stored.DeletedForSender)
		assert.False(t, stored.DeletedForAll)
		f.fanout.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("SenderBlockedReceiver", func(t *testing.T) {
		f := newFixture(t)
		f.block(t, "alice", "bob")
		f.fanout.On("Dispatch", "bob", eventOfType(domain.EventMessageReceived)).Return(true).Once()

		env, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "bob", Text: "hello"})
		require.NoError(t, err)
		assert.False(t, f.stored(t, env.Message.ID).DeletedForReceiver)
		f.fanout.AssertExpectations(t)
	})

	t.Run("SelfConversation", func(t *testing.T) {
		f := newFixture(t)
		env, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "alice", Text: "note"})
		require.NoError(t, err)
		assert.True(t, env.Message.IsSelfConversation())
		f.fanout.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("ReceiverUnreachable", func(t *testing.T) {
		f := newFixture(t)
		f.fanout.On("Dispatch", "bob", mock.Anything).Return(false).Once()

		env, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "bob", Text: "hello"})
		require.NoError(t, err)
		assert.NotEmpty(t, f.stored(t, env.Message.ID).ID)
		f.fanout.AssertExpectations(t)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "bob", Text: "   "})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = f.svc.Send(ctx, "alice", service.SendInput{Text: "hi"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("UnknownReceiver", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "nobody", Text: "hi"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("PushesToCounterpart", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "first")
		f.fanout.On("Dispatch", "bob", mock.MatchedBy(func(ev domain.Event) bool {
			env, ok := ev.Payload.(*domain.MessageEnvelope)
			return ok && ev.Type == domain.EventMessageEdited && env.Message.Text == "second"
		})).Return(true).Once()

		env, err := f.svc.Edit(ctx, "alice", msg.ID, "second")
		require.NoError(t, err)
		assert.True(t, env.Message.IsEdited)
		assert.Equal(t, "second", env.Message.Text)
		f.fanout.AssertExpectations(t)
	})

	t.Run("DoesNotResurrect", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "first")
		_, err := f.svc.DeleteOne(ctx, "bob", msg.ID, domain.ScopeSelfOnly)
		require.NoError(t, err)

		_, err = f.svc.Edit(ctx, "alice", msg.ID, "second")
		require.NoError(t, err)

		stored := f.stored(t, msg.ID)
		assert.True(t, stored.DeletedForReceiver)
		assert.True(t, stored.IsEdited)
		f.fanout.AssertNumberOfCalls(t, "Dispatch", 1)
	})

	t.Run("BlockedNoPush", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "first")
		f.block(t, "bob", "alice")

		env, err := f.svc.Edit(ctx, "alice", msg.ID, "second")
		require.NoError(t, err)
		assert.Equal(t, "second", env.Message.Text)
		assert.True(t, f.stored(t, msg.ID).IsEdited)
		f.fanout.AssertNotCalled(t, "Dispatch", "bob", eventOfType(domain.EventMessageEdited))
		f.fanout.AssertNumberOfCalls(t, "Dispatch", 1)
	})

	t.Run("NonParticipant", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "first")

		_, err := f.svc.Edit(ctx, "carol", msg.ID, "hijack")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.False(t, f.stored(t, msg.ID).IsEdited)
	})

	t.Run("MissingMessage", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Edit(ctx, "alice", "missing", "text")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDeleteOne(t *testing.T) {
	ctx := context.Background()

	t.Run("SelfOnlyByReceiver", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "hi")

		updated, err := f.svc.DeleteOne(ctx, "bob", msg.ID, domain.ScopeSelfOnly)
		require.NoError(t, err)
		assert.True(t, updated.DeletedForReceiver)
		assert.False(t, updated.DeletedForSender)
		assert.False(t, updated.DeletedForAll)

		again, err := f.svc.DeleteOne(ctx, "bob", msg.ID, domain.ScopeSelfOnly)
		require.NoError(t, err)
		assert.True(t, again.DeletedForReceiver)
		f.fanout.AssertNumberOfCalls(t, "Dispatch", 1)
	})

	t.Run("EveryonePushesDeletion", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "secret")
		f.fanout.On("Dispatch", "bob", mock.MatchedBy(func(ev domain.Event) bool {
			env, ok := ev.Payload.(*domain.MessageEnvelope)
			return ok && ev.Type == domain.EventMessageDeleted && env.Message.DeletedForAll && env.Message.Text == ""
		})).Return(true).Once()

		updated, err := f.svc.DeleteOne(ctx, "alice", msg.ID, domain.ScopeEveryone)
		require.NoError(t, err)
		assert.True(t, updated.DeletedForAll)
		f.fanout.AssertExpectations(t)
	})

	t.Run("EveryoneAfterSelfOnlyKeepsFlags", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "hi")
		_, err := f.svc.DeleteOne(ctx, "alice", msg.ID, domain.ScopeSelfOnly)
		require.NoError(t, err)
		f.fanout.On("Dispatch", "alice", eventOfType(domain.EventMessageDeleted)).Return(true).Once()

		updated, err := f.svc.DeleteOne(ctx, "bob", msg.ID, domain.ScopeEveryone)
		require.NoError(t, err)
		assert.True(t, updated.DeletedForSender)
		assert.True(t, updated.DeletedForAll)
	})

	t.Run("EveryoneBlockedNoPush", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "hi")
		f.block(t, "bob", "alice")

		updated, err := f.svc.DeleteOne(ctx, "alice", msg.ID, domain.ScopeEveryone)
		require.NoError(t, err)
		assert.True(t, updated.DeletedForAll)
		f.fanout.AssertNumberOfCalls(t, "Dispatch", 1)
	})

	t.Run("SelfConversation", func(t *testing.T) {
		f := newFixture(t)
		env, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "alice", Text: "note"})
		require.NoError(t, err)

		updated, err := f.svc.DeleteOne(ctx, "alice", env.Message.ID, domain.ScopeSelfOnly)
		require.NoError(t, err)
		assert.True(t, updated.DeletedForAll)
		f.fanout.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("NonParticipant", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "hi")

		_, err := f.svc.DeleteOne(ctx, "carol", msg.ID, domain.ScopeEveryone)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.False(t, f.stored(t, msg.ID).DeletedForAll)
	})
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, f *fixture) ([]*domain.Message, *domain.Message) {
		var conv []*domain.Message
		conv = append(conv, f.send(t, "alice", "bob", "1"))
		conv = append(conv, f.send(t, "bob", "alice", "2"))
		conv = append(conv, f.send(t, "alice", "bob", "3"))
		conv = append(conv, f.send(t, "bob", "alice", "4"))
		conv = append(conv, f.send(t, "alice", "bob", "5"))
		other := f.send(t, "alice", "carol", "other")
		return conv, other
	}

	t.Run("EveryoneClearsOnce", func(t *testing.T) {
		f := newFixture(t)
		conv, other := seed(t, f)
		f.fanout.On("Dispatch", "bob", mock.MatchedBy(func(ev domain.Event) bool {
			cleared, ok := ev.Payload.(domain.ConversationCleared)
			return ok && ev.Type == domain.EventConversationCleared && cleared.CounterpartID == "alice"
		})).Return(true).Once()

		n, err := f.svc.DeleteAll(ctx, "alice", "bob", domain.ScopeEveryone)
		require.NoError(t, err)
		assert.EqualValues(t, 5, n)
		for _, m := range conv {
			assert.True(t, f.stored(t, m.ID).DeletedForAll)
		}
		assert.False(t, f.stored(t, other.ID).DeletedForAll)
		f.fanout.AssertExpectations(t)
		// five sends to bob or alice, one to carol, one clear
		f.fanout.AssertNumberOfCalls(t, "Dispatch", 7)
	})

	t.Run("EveryoneBlockedNoPush", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "hi")
		f.block(t, "bob", "alice")

		n, err := f.svc.DeleteAll(ctx, "alice", "bob", domain.ScopeEveryone)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		assert.True(t, f.stored(t, msg.ID).DeletedForAll)
		f.fanout.AssertNotCalled(t, "Dispatch", "bob", eventOfType(domain.EventConversationCleared))
		f.fanout.AssertNumberOfCalls(t, "Dispatch", 1)
	})

	t.Run("BlockerStillClears", func(t *testing.T) {
		f := newFixture(t)
		f.send(t, "alice", "bob", "hi")
		f.block(t, "bob", "alice")
		f.fanout.On("Dispatch", "alice", mock.MatchedBy(func(ev domain.Event) bool {
			cleared, ok := ev.Payload.(domain.ConversationCleared)
			return ok && ev.Type == domain.EventConversationCleared && cleared.CounterpartID == "bob"
		})).Return(true).Once()

		_, err := f.svc.DeleteAll(ctx, "bob", "alice", domain.ScopeEveryone)
		require.NoError(t, err)
		f.fanout.AssertExpectations(t)
		f.fanout.AssertNumberOfCalls(t, "Dispatch", 2)
	})

	t.Run("SelfOnlyPerRowRole", func(t *testing.T) {
		f := newFixture(t)
		conv, _ := seed(t, f)

		n, err := f.svc.DeleteAll(ctx, "bob", "alice", domain.ScopeSelfOnly)
		require.NoError(t, err)
		assert.EqualValues(t, 5, n)
		for _, m := range conv {
			stored := f.stored(t, m.ID)
			assert.False(t, stored.DeletedForAll)
			if m.SenderID == "bob" {
				assert.True(t, stored.DeletedForSender)
				assert.False(t, stored.DeletedForReceiver)
			} else {
				assert.True(t, stored.DeletedForReceiver)
				assert.False(t, stored.DeletedForSender)
			}
		}
		f.fanout.AssertNumberOfCalls(t, "Dispatch", 6)
	})

	t.Run("Idempotent", func(t *testing.T) {
		f := newFixture(t)
		conv, _ := seed(t, f)
		f.fanout.On("Dispatch", "bob", eventOfType(domain.EventConversationCleared)).Return(false)

		_, err := f.svc.DeleteAll(ctx, "alice", "bob", domain.ScopeEveryone)
		require.NoError(t, err)
		first := f.stored(t, conv[0].ID)

		_, err = f.svc.DeleteAll(ctx, "alice", "bob", domain.ScopeEveryone)
		require.NoError(t, err)
		second := f.stored(t, conv[0].ID)
		assert.Equal(t, first.DeletedForAll, second.DeletedForAll)
		assert.Equal(t, first.DeletedForSender, second.DeletedForSender)
		assert.Equal(t, first.DeletedForReceiver, second.DeletedForReceiver)
	})

	t.Run("SelfConversationSetsAllFlags", func(t *testing.T) {
		f := newFixture(t)
		env, err := f.svc.Send(ctx, "alice", service.SendInput{ReceiverID: "alice", Text: "note"})
		require.NoError(t, err)

		n, err := f.svc.DeleteAll(ctx, "alice", "alice", domain.ScopeSelfOnly)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		stored := f.stored(t, env.Message.ID)
		assert.True(t, stored.DeletedForSender)
		assert.True(t, stored.DeletedForReceiver)
		assert.True(t, stored.DeletedForAll)
		f.fanout.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("UnknownCounterpart", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.DeleteAll(ctx, "alice", "nobody", domain.ScopeEveryone)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
