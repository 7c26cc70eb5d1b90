package visibility_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/domain"
	"chatcore/internal/visibility"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name     string
		actor    string
		sender   string
		receiver string
		scope    domain.DeleteScope
		want     domain.DeleteFlags
	}{
		{"SenderSelfOnly", "u1", "u1", "u2", domain.ScopeSelfOnly, domain.DeleteFlags{ForSender: true}},
		{"ReceiverSelfOnly", "u2", "u1", "u2", domain.ScopeSelfOnly, domain.DeleteFlags{ForReceiver: true}},
		{"SenderEveryone", "u1", "u1", "u2", domain.ScopeEveryone, domain.DeleteFlags{ForAll: true}},
		{"ReceiverEveryone", "u2", "u1", "u2", domain.ScopeEveryone, domain.DeleteFlags{ForAll: true}},
		{"SelfConversationSelfOnly", "u3", "u3", "u3", domain.ScopeSelfOnly, domain.DeleteFlags{ForAll: true}},
		{"SelfConversationEveryone", "u3", "u3", "u3", domain.ScopeEveryone, domain.DeleteFlags{ForAll: true}},
		{"Outsider", "u9", "u1", "u2", domain.ScopeSelfOnly, domain.DeleteFlags{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, visibility.Resolve(tc.actor, tc.sender, tc.receiver, tc.scope))
		})
	}
}

func TestForRowUsesEachRowsRole(t *testing.T) {
	cd := domain.ConversationDelete{ActorID: "u1", CounterpartID: "u2", Scope: domain.ScopeSelfOnly}

	assert.Equal(t, domain.DeleteFlags{ForSender: true}, visibility.ForRow(cd, "u1", "u2"))
	assert.Equal(t, domain.DeleteFlags{ForReceiver: true}, visibility.ForRow(cd, "u2", "u1"))

	cd.Scope = domain.ScopeEveryone
	assert.Equal(t, domain.DeleteFlags{ForAll: true}, visibility.ForRow(cd, "u1", "u2"))
	assert.Equal(t, domain.DeleteFlags{ForAll: true}, visibility.ForRow(cd, "u2", "u1"))
}

func TestForRowSelfConversationSetsEverything(t *testing.T) {
	for _, scope := range []domain.DeleteScope{domain.ScopeSelfOnly, domain.ScopeEveryone} {
		cd := domain.ConversationDelete{ActorID: "u3", CounterpartID: "u3", Scope: scope}
		assert.Equal(t,
			domain.DeleteFlags{ForSender: true, ForReceiver: true, ForAll: true},
			visibility.ForRow(cd, "u3", "u3"))
	}
}

func TestApplyIsMonotonic(t *testing.T) {
	m := &domain.Message{SenderID: "u1", ReceiverID: "u2", DeletedForReceiver: true}

	visibility.Apply(m, domain.DeleteFlags{ForSender: true})
	assert.True(t, m.DeletedForSender)
	assert.True(t, m.DeletedForReceiver, "previously set flag must survive")

	visibility.Apply(m, domain.DeleteFlags{ForAll: true})
	visibility.Apply(m, domain.DeleteFlags{})
	assert.True(t, m.DeletedForAll)
	assert.False(t, m.VisibleTo("u1"))
	assert.False(t, m.VisibleTo("u2"))
}

func TestVisibleTo(t *testing.T) {
	m := &domain.Message{SenderID: "u1", ReceiverID: "u2"}
	assert.True(t, m.VisibleTo("u1"))
	assert.True(t, m.VisibleTo("u2"))
	assert.False(t, m.VisibleTo("u3"))

	m.DeletedForSender = true
	assert.False(t, m.VisibleTo("u1"))
	assert.True(t, m.VisibleTo("u2"))
}

func TestSendFlags(t *testing.T) {
	assert.True(t, visibility.SendFlags(false).IsZero())
	assert.Equal(t, domain.DeleteFlags{ForReceiver: true}, visibility.SendFlags(true))
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]domain.DeleteScope{
		"":             domain.ScopeSelfOnly,
		"for_me":       domain.ScopeSelfOnly,
		"self":         domain.ScopeSelfOnly,
		"everyone":     domain.ScopeEveryone,
		"FOR_EVERYONE": domain.ScopeEveryone,
	} {
		got, err := visibility.ParseScope(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := visibility.ParseScope("nobody")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBulkRuleMatchesForRow(t *testing.T) {
	rows := [][2]string{{"u1", "u2"}, {"u2", "u1"}}
	for _, cd := range []domain.ConversationDelete{
		{ActorID: "u1", CounterpartID: "u2", Scope: domain.ScopeSelfOnly},
		{ActorID: "u1", CounterpartID: "u2", Scope: domain.ScopeEveryone},
		{ActorID: "u2", CounterpartID: "u1", Scope: domain.ScopeSelfOnly},
	} {
		rule := visibility.BulkRule(cd)
		for _, row := range rows {
			assert.Equal(t, visibility.ForRow(cd, row[0], row[1]), rule.For(cd.ActorID, row[0], row[1]),
				"actor=%s scope=%s row=%v", cd.ActorID, cd.Scope, row)
		}
	}

	self := domain.ConversationDelete{ActorID: "u3", CounterpartID: "u3", Scope: domain.ScopeSelfOnly}
	assert.Equal(t, visibility.ForRow(self, "u3", "u3"), visibility.BulkRule(self).For("u3", "u3", "u3"))
}
