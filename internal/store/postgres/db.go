package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               TEXT         PRIMARY KEY,
			username         VARCHAR(50)  UNIQUE NOT NULL,
			email            VARCHAR(100) UNIQUE,
			hashed_password  VARCHAR(255) NOT NULL,
			is_active        BOOLEAN      NOT NULL DEFAULT TRUE,
			is_connected     BOOLEAN      NOT NULL DEFAULT FALSE,
			channel_id       TEXT,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_seen        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id                   TEXT        PRIMARY KEY,
			sender_id            TEXT        NOT NULL REFERENCES users(id),
			receiver_id          TEXT        NOT NULL REFERENCES users(id),
			text                 TEXT        NOT NULL,
			type                 VARCHAR(32) NOT NULL DEFAULT 'text',
			status               VARCHAR(32) NOT NULL DEFAULT 'sent',
			is_edited            BOOLEAN     NOT NULL DEFAULT FALSE,
			is_forwarded         BOOLEAN     NOT NULL DEFAULT FALSE,
			users_related        JSONB       NOT NULL DEFAULT '[]',
			deleted_for_sender   BOOLEAN     NOT NULL DEFAULT FALSE,
			deleted_for_receiver BOOLEAN     NOT NULL DEFAULT FALSE,
			deleted_for_all      BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS block_relations (
			blocker_id TEXT        NOT NULL REFERENCES users(id),
			blocked_id TEXT        NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (blocker_id, blocked_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_users_channel ON users(channel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_block_relations_blocked ON block_relations(blocked_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
