package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigrations creates the database schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL,
			balance DECIMAL(16, 8) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			address TEXT NOT NULL DEFAULT '',
			registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Usernames are case-insensitive on the platform.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users(LOWER(username))`,

		`CREATE TABLE IF NOT EXISTS actions (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			source_message_id TEXT NOT NULL UNIQUE,
			from_user TEXT NOT NULL,
			to_user TEXT,
			amount DECIMAL(16, 8),
			address TEXT NOT NULL DEFAULT '',
			was_comment BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_actions_kind_state ON actions(kind, state)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_to_user ON actions(LOWER(to_user))`,
		`CREATE INDEX IF NOT EXISTS idx_actions_from_user ON actions(LOWER(from_user))`,
	}

	for i, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}
