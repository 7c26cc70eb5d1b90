package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

type BlockRepo struct {
	db *sql.DB
}

func NewBlockRepo(db *sql.DB) *BlockRepo {
	return &BlockRepo{db: db}
}

var _ domain.BlockRepository = (*BlockRepo)(nil)

// Create records the relation; recording an existing relation is a no-op.
func (r *BlockRepo) Create(ctx context.Context, b *domain.BlockRelation) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO block_relations (blocker_id, blocked_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`, b.BlockerID, b.BlockedID, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (r *BlockRepo) Delete(ctx context.Context, blockerID, blockedID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM block_relations WHERE blocker_id = ? AND blocked_id = ?
	`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BlockRepo) Find(ctx context.Context, blockerID, blockedID string) (*domain.BlockRelation, error) {
	b := &domain.BlockRelation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT blocker_id, blocked_id, created_at
		FROM block_relations
		WHERE blocker_id = ? AND blocked_id = ?
	`, blockerID, blockedID).Scan(&b.BlockerID, &b.BlockedID, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find block: %w", err)
	}
	return b, nil
}

func (r *BlockRepo) ListBlockedBy(ctx context.Context, blockerID string) ([]*domain.BlockRelation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT blocker_id, blocked_id, created_at
		FROM block_relations
		WHERE blocker_id = ?
		ORDER BY created_at ASC
	`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var res []*domain.BlockRelation
	for rows.Next() {
		b := &domain.BlockRelation{}
		if err := rows.Scan(&b.BlockerID, &b.BlockedID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
