package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/tipbot/internal/database"
	"gitlab.com/yelinaung/tipbot/internal/models"
)

// StatsRepository runs the read-only aggregation queries behind the stats
// pages. Everything here is a projection of the ledger; nothing mutates.
type StatsRepository struct {
	db database.PGXDB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db database.PGXDB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GlobalStats summarizes the whole ledger.
type GlobalStats struct {
	RegisteredUsers int64
	CompletedTips   int64
	TotalTipped     decimal.Decimal
	TotalBalance    decimal.Decimal
}

// TipRow is one completed tip as displayed on the tips page.
type TipRow struct {
	FromUser  string
	ToUser    string
	Amount    decimal.Decimal
	State     models.ActionState
	CreatedAt time.Time
}

// HistoryRow is one action in a user's history, tips sent and received plus
// withdrawals.
type HistoryRow struct {
	Kind      models.ActionKind
	State     models.ActionState
	FromUser  string
	ToUser    string
	Amount    decimal.Decimal
	Address   string
	CreatedAt time.Time
}

// Global computes ledger-wide totals.
func (r *StatsRepository) Global(ctx context.Context) (*GlobalStats, error) {
	var s GlobalStats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM actions WHERE kind = $1 AND state = $2),
			(SELECT COALESCE(SUM(amount), 0) FROM actions WHERE kind = $1 AND state = $2),
			(SELECT COALESCE(SUM(balance), 0) FROM users)
	`, models.KindTip, models.StateCompleted).Scan(
		&s.RegisteredUsers, &s.CompletedTips, &s.TotalTipped, &s.TotalBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to compute global stats: %w", err)
	}
	return &s, nil
}

// CompletedTips returns the most recent completed tips, newest first.
func (r *StatsRepository) CompletedTips(ctx context.Context, limit int) ([]TipRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT from_user, COALESCE(to_user, ''), amount, state, created_at
		FROM actions
		WHERE kind = $1 AND state = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, models.KindTip, models.StateCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed tips: %w", err)
	}
	defer rows.Close()

	var tips []TipRow
	for rows.Next() {
		var t TipRow
		if err := rows.Scan(&t.FromUser, &t.ToUser, &t.Amount, &t.State, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tip row: %w", err)
		}
		tips = append(tips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tips: %w", err)
	}
	return tips, nil
}

// UserHistory returns all tips and withdrawals involving a user, oldest
// first.
func (r *StatsRepository) UserHistory(ctx context.Context, username string) ([]HistoryRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT kind, state, from_user, COALESCE(to_user, ''), COALESCE(amount, 0), address, created_at
		FROM actions
		WHERE kind IN ($1, $2)
		  AND (LOWER(from_user) = LOWER($3) OR LOWER(to_user) = LOWER($3))
		ORDER BY created_at ASC, id ASC
	`, models.KindTip, models.KindWithdraw, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", username, err)
	}
	defer rows.Close()

	var history []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.Kind, &h.State, &h.FromUser, &h.ToUser, &h.Amount, &h.Address, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}

// TipTotals returns a user's lifetime tipped and received totals for
// completed tips.
func (r *StatsRepository) TipTotals(ctx context.Context, username string) (tipped, received decimal.Decimal, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(amount), 0) FROM actions
			 WHERE kind = $1 AND state = $2 AND LOWER(from_user) = LOWER($3)),
			(SELECT COALESCE(SUM(amount), 0) FROM actions
			 WHERE kind = $1 AND state = $2 AND LOWER(to_user) = LOWER($3))
	`, models.KindTip, models.StateCompleted, username).Scan(&tipped, &received)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to compute tip totals for %s: %w", username, err)
	}
	return tipped, received, nil
}

// DailyTipVolume returns completed-tip volume per day over the last n days,
// oldest first. Used for the activity chart.
type DailyVolume struct {
	Day    time.Time
	Volume decimal.Decimal
	Count  int64
}

// DailyTipVolumes aggregates completed tips by calendar day (UTC).
func (r *StatsRepository) DailyTipVolumes(ctx context.Context, days int) ([]DailyVolume, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
		       COALESCE(SUM(amount), 0), COUNT(*)
		FROM actions
		WHERE kind = $1 AND state = $2
		  AND created_at >= NOW() - make_interval(days => $3)
		GROUP BY day
		ORDER BY day ASC
	`, models.KindTip, models.StateCompleted, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily tip volumes: %w", err)
	}
	defer rows.Close()

	var volumes []DailyVolume
	for rows.Next() {
		var v DailyVolume
		if err := rows.Scan(&v.Day, &v.Volume, &v.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily volume: %w", err)
		}
		volumes = append(volumes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily volumes: %w", err)
	}
	return volumes, nil
}
