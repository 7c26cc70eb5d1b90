package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatcore/internal/domain"
)

const userColumns = `id, username, email, hashed_password, is_active, is_connected, channel_id, created_at, last_seen`

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, username, email, hashed_password, is_active, is_connected, channel_id, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, 0, NULL, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, u.ID, u.Username, u.Email, u.HashedPassword, u.IsActive, now, now); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt, u.LastSeen = now, now
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *UserRepo) SetPresence(ctx context.Context, id string, channelID *string) error {
	query := `UPDATE users SET is_connected = ?, channel_id = ?, last_seen = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, channelID != nil, channelID, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func (r *UserRepo) ClearChannel(ctx context.Context, channelID string) error {
	query := `UPDATE users SET is_connected = 0, channel_id = NULL, last_seen = ? WHERE channel_id = ?`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), channelID); err != nil {
		return fmt.Errorf("clear channel: %w", err)
	}
	return nil
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.HashedPassword,
		&u.IsActive,
		&u.IsConnected,
		&u.ChannelID,
		&u.CreatedAt,
		&u.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
