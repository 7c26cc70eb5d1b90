// Package visibility holds the decision table for soft-delete flags. Every
// mutation that touches a delete flag asks this package which flags to set;
// nothing here reads or writes storage.
package visibility

import (
	"fmt"
	"strings"

	"chatcore/internal/domain"
)

// ParseScope maps a wire value to a delete scope. An empty value means
// the acting user's own view.
func ParseScope(s string) (domain.DeleteScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "self", "self_only", "for_me":
		return domain.ScopeSelfOnly, nil
	case "everyone", "for_everyone":
		return domain.ScopeEveryone, nil
	default:
		return domain.ScopeSelfOnly, fmt.Errorf("%w: unknown delete scope %q", domain.ErrInvalidInput, s)
	}
}

// Resolve returns the flags a delete by actor turns on for a message
// between sender and receiver.
func Resolve(actor, sender, receiver string, scope domain.DeleteScope) domain.DeleteFlags {
	switch {
	case sender == receiver:
		// one party only, so there is no partial delete
		return domain.DeleteFlags{ForAll: true}
	case scope == domain.ScopeEveryone:
		return domain.DeleteFlags{ForAll: true}
	case actor == sender:
		return domain.DeleteFlags{ForSender: true}
	case actor == receiver:
		return domain.DeleteFlags{ForReceiver: true}
	default:
		return domain.DeleteFlags{}
	}
}

// ForRow returns the flags a bulk delete turns on for one stored row. The
// row's own sender and receiver decide the actor's role, so a single bulk
// update can cover both directions of the conversation.
func ForRow(cd domain.ConversationDelete, sender, receiver string) domain.DeleteFlags {
	if cd.IsSelfConversation() {
		return domain.DeleteFlags{ForSender: true, ForReceiver: true, ForAll: true}
	}
	return Resolve(cd.ActorID, sender, receiver, cd.Scope)
}

// SendFlags returns the flags a new message is created with. A message
// sent to a receiver who blocked the sender exists only in the sender's
// history.
func SendFlags(blockedByReceiver bool) domain.DeleteFlags {
	return domain.DeleteFlags{ForReceiver: blockedByReceiver}
}

// Apply joins f into m. Flags are only ever turned on.
func Apply(m *domain.Message, f domain.DeleteFlags) {
	m.DeletedForSender = m.DeletedForSender || f.ForSender
	m.DeletedForReceiver = m.DeletedForReceiver || f.ForReceiver
	m.DeletedForAll = m.DeletedForAll || f.ForAll
}

// Join returns the union of two flag sets.
func Join(a, b domain.DeleteFlags) domain.DeleteFlags {
	return domain.DeleteFlags{
		ForSender:   a.ForSender || b.ForSender,
		ForReceiver: a.ForReceiver || b.ForReceiver,
		ForAll:      a.ForAll || b.ForAll,
	}
}

// Of returns the flags currently stored on m.
func Of(m *domain.Message) domain.DeleteFlags {
	return domain.DeleteFlags{
		ForSender:   m.DeletedForSender,
		ForReceiver: m.DeletedForReceiver,
		ForAll:      m.DeletedForAll,
	}
}

// RowRule is ForRow split by the actor's role in a row, in a shape that a
// store can render as one conditional update: a row gets Always, plus
// AsSender when the actor sent it, plus AsReceiver when the actor received
// it.
type RowRule struct {
	Always     domain.DeleteFlags
	AsSender   domain.DeleteFlags
	AsReceiver domain.DeleteFlags
}

// BulkRule returns the RowRule equivalent of ForRow for cd.
func BulkRule(cd domain.ConversationDelete) RowRule {
	switch {
	case cd.IsSelfConversation():
		return RowRule{Always: domain.DeleteFlags{ForSender: true, ForReceiver: true, ForAll: true}}
	case cd.Scope == domain.ScopeEveryone:
		return RowRule{Always: domain.DeleteFlags{ForAll: true}}
	default:
		return RowRule{
			AsSender:   domain.DeleteFlags{ForSender: true},
			AsReceiver: domain.DeleteFlags{ForReceiver: true},
		}
	}
}

// For evaluates the rule for one row.
func (r RowRule) For(actor, sender, receiver string) domain.DeleteFlags {
	f := r.Always
	if sender == actor {
		f = Join(f, r.AsSender)
	}
	if receiver == actor {
		f = Join(f, r.AsReceiver)
	}
	return f
}
