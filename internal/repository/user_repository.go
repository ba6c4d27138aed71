package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/tipbot/internal/database"
	"gitlab.com/yelinaung/tipbot/internal/models"
)

// UserRepository handles user database operations.
type UserRepository struct {
	db database.PGXDB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db database.PGXDB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

// Register creates a user if one does not exist yet and returns the record.
// Registering twice is a no-op that returns the existing user.
func (r *UserRepository) Register(ctx context.Context, username, address string) (*models.User, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (username, address)
		VALUES ($1, $2)
		ON CONFLICT (LOWER(username)) DO NOTHING
	`, username, address)
	if err != nil {
		return nil, fmt.Errorf("failed to register user %s: %w", username, err)
	}
	return r.GetByUsername(ctx, username)
}

// GetByUsername retrieves a user by name, case-insensitively.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRow(ctx, `
		SELECT id, username, balance, address, registered_at
		FROM users WHERE LOWER(username) = LOWER($1)
	`, username).Scan(&user.ID, &user.Username, &user.Balance, &user.Address, &user.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return &user, nil
}

// IsRegistered reports whether a user exists.
func (r *UserRepository) IsRegistered(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))
	`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check registration for %s: %w", username, err)
	}
	return exists, nil
}

// All retrieves every registered user ordered by name. Used by the startup
// self-check.
func (r *UserRepository) All(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, balance, address, registered_at
		FROM users ORDER BY LOWER(username)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Balance, &u.Address, &u.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// Credit adds amount to a user's balance.
func (r *UserRepository) Credit(ctx context.Context, username string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET balance = balance + $2
		WHERE LOWER(username) = LOWER($1)
	`, username, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return nil
}

// Debit subtracts amount from a user's balance. The update is conditional on
// the balance covering the amount, so a debit can never go negative; an
// uncovered debit returns ErrInsufficientBalance and changes nothing.
func (r *UserRepository) Debit(ctx context.Context, username string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET balance = balance - $2
		WHERE LOWER(username) = LOWER($1) AND balance >= $2
	`, username, amount)
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		exists, existsErr := r.IsRegistered(ctx, username)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return fmt.Errorf("%w: %s cannot cover %s", ErrInsufficientBalance, username, amount)
	}
	return nil
}
