package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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
	related, err := json.Marshal(nonNil(m.UsersRelated))
	if err != nil {
		return fmt.Errorf("encode users_related: %w", err)
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		m.ID,
		m.SenderID,
		m.ReceiverID,
		m.Text,
		m.Type,
		m.Status,
		m.IsEdited,
		m.IsForwarded,
		string(related),
		m.DeletedForSender,
		m.DeletedForReceiver,
		m.DeletedForAll,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.CreatedAt, m.UpdatedAt = now, now
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
}

func (r *MessageRepo) UpdateText(ctx context.Context, id, participantID, text string) (*domain.Message, error) {
	return r.updateOne(ctx, id, participantID, `text = ?, is_edited = 1`, text)
}

func (r *MessageRepo) MarkDeleted(ctx context.Context, id, participantID string, flags domain.DeleteFlags) (*domain.Message, error) {
	return r.updateOne(ctx, id, participantID, `
		deleted_for_sender = (deleted_for_sender OR ?),
		deleted_for_receiver = (deleted_for_receiver OR ?),
		deleted_for_all = (deleted_for_all OR ?)`,
		flags.ForSender, flags.ForReceiver, flags.ForAll)
}

// MarkConversationDeleted renders the bulk rule as one UPDATE in which
// every flag column is recomputed from the row's own sender_id and
// receiver_id.
func (r *MessageRepo) MarkConversationDeleted(ctx context.Context, cd domain.ConversationDelete) (int64, error) {
	rule := visibility.BulkRule(cd)
	flag := func(col string, always, asSender, asReceiver bool) (string, []any) {
		return col + ` = (` + col + ` OR ? OR (sender_id = ? AND ?) OR (receiver_id = ? AND ?))`,
			[]any{always, cd.ActorID, asSender, cd.ActorID, asReceiver}
	}
	senderSet, senderArgs := flag("deleted_for_sender", rule.Always.ForSender, rule.AsSender.ForSender, rule.AsReceiver.ForSender)
	receiverSet, receiverArgs := flag("deleted_for_receiver", rule.Always.ForReceiver, rule.AsSender.ForReceiver, rule.AsReceiver.ForReceiver)
	allSet, allArgs := flag("deleted_for_all", rule.Always.ForAll, rule.AsSender.ForAll, rule.AsReceiver.ForAll)

	query := `
		UPDATE messages SET ` + senderSet + `, ` + receiverSet + `, ` + allSet + `, updated_at = ?
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
	`
	args := append(append(append(senderArgs, receiverArgs...), allArgs...),
		time.Now().UTC(), cd.ActorID, cd.CounterpartID, cd.CounterpartID, cd.ActorID)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// updateOne applies set to the message if participantID is its sender or
// receiver, and returns the row as stored afterwards.
func (r *MessageRepo) updateOne(ctx context.Context, id, participantID, set string, args ...any) (*domain.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE messages SET ` + set + `, updated_at = ? WHERE id = ? AND (sender_id = ? OR receiver_id = ?)`
	args = append(args, time.Now().UTC(), id, participantID, participantID)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrNotFound
	}

	m, err := scanMessage(tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

func scanMessage(row *sql.Row) (*domain.Message, error) {
	m := &domain.Message{}
	var related string
	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Text,
		&m.Type,
		&m.Status,
		&m.IsEdited,
		&m.IsForwarded,
		&related,
		&m.DeletedForSender,
		&m.DeletedForReceiver,
		&m.DeletedForAll,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if err := json.Unmarshal([]byte(related), &m.UsersRelated); err != nil {
		return nil, fmt.Errorf("decode users_related: %w", err)
	}
	return m, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
