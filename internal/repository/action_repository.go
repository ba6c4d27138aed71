package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/tipbot/internal/database"
	"gitlab.com/yelinaung/tipbot/internal/models"
)

// ActionRepository handles action database operations.
type ActionRepository struct {
	db database.PGXDB
}

// NewActionRepository creates a new ActionRepository.
func NewActionRepository(db database.PGXDB) *ActionRepository {
	return &ActionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *ActionRepository) WithTx(tx pgx.Tx) *ActionRepository {
	return &ActionRepository{db: tx}
}

const actionColumns = `id, kind, state, source_message_id, from_user, COALESCE(to_user, ''), amount, address, was_comment, created_at, updated_at`

// Exists reports whether an action has already been recorded for the given
// source message id. This is the dedup check for re-delivered messages.
func (r *ActionRepository) Exists(ctx context.Context, sourceMessageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM actions WHERE source_message_id = $1)
	`, sourceMessageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check action existence: %w", err)
	}
	return exists, nil
}

// Create inserts a new action. The unique index on source_message_id makes
// creation idempotent: a second insert for the same message returns
// ErrDuplicateMessage and leaves the original untouched.
func (r *ActionRepository) Create(ctx context.Context, action *models.Action) error {
	if action.State == "" {
		action.State = models.StatePending
	}
	var toUser *string
	if action.ToUser != "" {
		toUser = &action.ToUser
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO actions (kind, state, source_message_id, from_user, to_user, amount, address, was_comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_message_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`, action.Kind, action.State, action.SourceMessageID, action.FromUser,
		toUser, action.Amount, action.Address, action.WasComment,
	).Scan(&action.ID, &action.CreatedAt, &action.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateMessage
	}
	if err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

// GetByID retrieves an action by ID.
func (r *ActionRepository) GetByID(ctx context.Context, id int64) (*models.Action, error) {
	row := r.db.QueryRow(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = $1`, id)
	return scanAction(row)
}

// GetBySourceMessageID retrieves the action recorded for an inbox message.
func (r *ActionRepository) GetBySourceMessageID(ctx context.Context, sourceMessageID string) (*models.Action, error) {
	row := r.db.QueryRow(ctx, `SELECT `+actionColumns+` FROM actions WHERE source_message_id = $1`, sourceMessageID)
	return scanAction(row)
}

// Filter narrows a List query. Zero fields are ignored.
type Filter struct {
	Kind          models.ActionKind
	State         models.ActionState
	ToUser        string
	CreatedBefore time.Time
	Limit         int
}

// List retrieves actions matching the filter, oldest first.
func (r *ActionRepository) List(ctx context.Context, filter Filter) ([]models.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if filter.ToUser != "" {
		args = append(args, filter.ToUser)
		query += fmt.Sprintf(" AND LOWER(to_user) = LOWER($%d)", len(args))
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// Transition moves an action from one state to another in a single guarded
// UPDATE. A zero-row update means the action was not in the expected state
// (double completion, expired meanwhile) and returns ErrInvalidStateTransition.
func (r *ActionRepository) Transition(ctx context.Context, id int64, from, to models.ActionState) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE actions SET state = $3, updated_at = NOW()
		WHERE id = $1 AND state = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition action %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: action %d not in state %s", ErrInvalidStateTransition, id, from)
	}
	return nil
}

// ExpirePendingTips transitions pending tips older than the cutoff to
// expired. Balances are untouched: funds are only checked, never reserved,
// at creation, so expiry needs no compensating credit.
func (r *ActionRepository) ExpirePendingTips(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := r.db.Exec(ctx, `
		UPDATE actions SET state = $1, updated_at = NOW()
		WHERE kind = $2 AND state = $3 AND created_at < $4
	`, models.StateExpired, models.KindTip, models.StatePending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending tips: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumPendingTips returns the total amount of all pending tips. Used by the
// startup self-check against the bot's coin float.
func (r *ActionRepository) SumPendingTips(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM actions
		WHERE kind = $1 AND state = $2
	`, models.KindTip, models.StatePending).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending tips: %w", err)
	}
	return total, nil
}

// scanAction scans a single action row.
func scanAction(row pgx.Row) (*models.Action, error) {
	var a models.Action
	err := row.Scan(&a.ID, &a.Kind, &a.State, &a.SourceMessageID, &a.FromUser,
		&a.ToUser, &a.Amount, &a.Address, &a.WasComment, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan action: %w", err)
	}
	return &a, nil
}

// scanActions scans all rows of an action query.
func scanActions(rows pgx.Rows) ([]models.Action, error) {
	var actions []models.Action
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(&a.ID, &a.Kind, &a.State, &a.SourceMessageID, &a.FromUser,
			&a.ToUser, &a.Amount, &a.Address, &a.WasComment, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}
