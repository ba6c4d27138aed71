package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/tipbot/internal/models"
	"gitlab.com/yelinaung/tipbot/internal/repository"
	"gitlab.com/yelinaung/tipbot/internal/stats"
)

// executeRegister creates a tipping account. Registering twice is a no-op
// that re-sends the existing account details.
func (e *Executor) executeRegister(ctx context.Context, msg models.Message) (*Result, error) {
	action := newAction(msg, models.KindRegister, models.StateCompleted)

	registered, err := e.users.IsRegistered(ctx, msg.Author)
	if err != nil {
		return nil, err
	}

	var address string
	if !registered {
		address, err = e.coin.NewAddress(ctx, strings.ToLower(msg.Author))
		if err != nil {
			return nil, fmt.Errorf("failed to create deposit address: %w", err)
		}
	}

	var user *models.User
	err = e.inTx(ctx, func(tx pgx.Tx) error {
		if err := e.actions.WithTx(tx).Create(ctx, action); err != nil {
			return err
		}
		user, err = e.users.WithTx(tx).Register(ctx, msg.Author, address)
		return err
	})
	if errors.Is(err, repository.ErrDuplicateMessage) {
		return &Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}

	e.reply(ctx, replyTarget(msg), "registered", fmt.Sprintf(
		"Your tipping account is ready. Deposit address: %s. Balance: %s %s.",
		user.Address, e.cfg.CoinSymbol, user.Balance))
	return &Result{Action: action, Outcome: OutcomeCompleted}, nil
}

// executeInfo replies with the sender's balance and deposit address.
func (e *Executor) executeInfo(ctx context.Context, msg models.Message) (*Result, error) {
	action := newAction(msg, models.KindInfo, models.StateCompleted)

	user, err := e.users.GetByUsername(ctx, msg.Author)
	if errors.Is(err, repository.ErrUserNotFound) {
		return e.declineNew(ctx, action, msg, "You are not registered yet. Send me \"register\" first.")
	}
	if err != nil {
		return nil, err
	}

	err = e.actions.Create(ctx, action)
	if errors.Is(err, repository.ErrDuplicateMessage) {
		return &Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}

	e.reply(ctx, replyTarget(msg), "account info", fmt.Sprintf(
		"Balance: %s %s\nDeposit address: %s",
		e.cfg.CoinSymbol, user.Balance, user.Address))
	return &Result{Action: action, Outcome: OutcomeCompleted}, nil
}

// executeHistory replies with the sender's tip and withdrawal history as a
// Markdown table, the same projection the stats pages use.
func (e *Executor) executeHistory(ctx context.Context, msg models.Message) (*Result, error) {
	action := newAction(msg, models.KindHistory, models.StateCompleted)

	registered, err := e.users.IsRegistered(ctx, msg.Author)
	if err != nil {
		return nil, err
	}
	if !registered {
		return e.declineNew(ctx, action, msg, "You are not registered yet. Send me \"register\" first.")
	}

	err = e.actions.Create(ctx, action)
	if errors.Is(err, repository.ErrDuplicateMessage) {
		return &Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}

	history, err := e.stats.UserHistory(ctx, msg.Author)
	if err != nil {
		return nil, err
	}
	formatter := stats.NewFormatter(e.cfg.CoinSymbol, e.cfg.CoinExplorerURL)
	e.reply(ctx, replyTarget(msg), "your history",
		formatter.HistoryTable(msg.Author, history))
	return &Result{Action: action, Outcome: OutcomeCompleted}, nil
}
