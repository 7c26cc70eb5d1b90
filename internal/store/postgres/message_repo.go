package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"chatcore/internal/domain"
	"chatcore/internal/visibility"
)

const messageColumns = `id, sender_id, receiver_id, text, type, status, is_edited, is_forwarded, users_related,
	deleted_for_sender, deleted_for_receiver, deleted_for_all, created_at, updated_at`

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	related := m.UsersRelated
	if related == nil {
		related = []string{}
	}
	raw, err := json.Marshal(related)
	if err != nil {
		return fmt.Errorf("encode users_related: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO messages
			(id, sender_id, receiver_id, text, type, status, is_edited, is_forwarded, users_related,
			 deleted_for_sender, deleted_for_receiver, deleted_for_all, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at
	`, m.ID, m.SenderID, m.ReceiverID, m.Text, m.Type, m.Status, m.IsEdited, m.IsForwarded, string(raw),
		m.DeletedForSender, m.DeletedForReceiver, m.DeletedForAll,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (r *MessageRepo) UpdateText(ctx context.Context, id, participantID, text string) (*domain.Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx, `
		UPDATE messages SET text = $3, is_edited = TRUE, updated_at = NOW()
		WHERE id = $1 AND (sender_id = $2 OR receiver_id = $2)
		RETURNING `+messageColumns,
		id, participantID, text))
}

func (r *MessageRepo) MarkDeleted(ctx context.Context, id, participantID string, flags domain.DeleteFlags) (*domain.Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx, `
		UPDATE messages SET
			deleted_for_sender   = (deleted_for_sender OR $3::boolean),
			deleted_for_receiver = (deleted_for_receiver OR $4::boolean),
			deleted_for_all      = (deleted_for_all OR $5::boolean),
			updated_at           = NOW()
		WHERE id = $1 AND (sender_id = $2 OR receiver_id = $2)
		RETURNING `+messageColumns,
		id, participantID, flags.ForSender, flags.ForReceiver, flags.ForAll))
}

// MarkConversationDeleted renders the bulk rule as one UPDATE in which
// every flag column is recomputed from the row's own sender_id and
// receiver_id. $1 is the actor, $2 the counterpart.
func (r *MessageRepo) MarkConversationDeleted(ctx context.Context, cd domain.ConversationDelete) (int64, error) {
	rule := visibility.BulkRule(cd)
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET
			deleted_for_sender   = (deleted_for_sender   OR $3::boolean  OR (sender_id = $1 AND $4::boolean)  OR (receiver_id = $1 AND $5::boolean)),
			deleted_for_receiver = (deleted_for_receiver OR $6::boolean  OR (sender_id = $1 AND $7::boolean)  OR (receiver_id = $1 AND $8::boolean)),
			deleted_for_all      = (deleted_for_all      OR $9::boolean  OR (sender_id = $1 AND $10::boolean) OR (receiver_id = $1 AND $11::boolean)),
			updated_at           = NOW()
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	`, cd.ActorID, cd.CounterpartID,
		rule.Always.ForSender, rule.AsSender.ForSender, rule.AsReceiver.ForSender,
		rule.Always.ForReceiver, rule.AsSender.ForReceiver, rule.AsReceiver.ForReceiver,
		rule.Always.ForAll, rule.AsSender.ForAll, rule.AsReceiver.ForAll,
	)
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	return res.RowsAffected()
}

func scanMessage(row *sql.Row) (*domain.Message, error) {
	m := &domain.Message{}
	var related []byte
	err := row.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Type, &m.Status,
		&m.IsEdited, &m.IsForwarded, &related,
		&m.DeletedForSender, &m.DeletedForReceiver, &m.DeletedForAll,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if err := json.Unmarshal(related, &m.UsersRelated); err != nil {
		return nil, fmt.Errorf("decode users_related: %w", err)
	}
	return m, nil
}
