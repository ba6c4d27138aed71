package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/tipbot/internal/logger"
	"gitlab.com/yelinaung/tipbot/internal/models"
	"gitlab.com/yelinaung/tipbot/internal/repository"
	"gitlab.com/yelinaung/tipbot/internal/source"
)

// executeAccept registers the sender and completes their pending incoming
// tips, oldest first. Each tip completes in its own transaction; a sender
// whose balance no longer covers a tip gets that tip declined instead.
// Balances were never reserved, so nothing needs unwinding.
func (e *Executor) executeAccept(ctx context.Context, msg models.Message) (*Result, error) {
	action := newAction(msg, models.KindAccept, models.StateCompleted)

	pending, err := e.actions.List(ctx, repository.Filter{
		Kind:   models.KindTip,
		State:  models.StatePending,
		ToUser: msg.Author,
	})
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return e.declineNew(ctx, action, msg, "You have no pending tips to accept.")
	}

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

	err = e.inTx(ctx, func(tx pgx.Tx) error {
		if err := e.actions.WithTx(tx).Create(ctx, action); err != nil {
			return err
		}
		_, err := e.users.WithTx(tx).Register(ctx, msg.Author, address)
		return err
	})
	if errors.Is(err, repository.ErrDuplicateMessage) {
		return &Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}

	var claimed, declined int
	for _, tip := range pending {
		completed, err := e.completePendingTip(ctx, tip)
		if err != nil {
			// Storage failure on one tip aborts only that tip.
			logger.Log.Error().Err(err).Int64("action_id", tip.ID).
				Msg("Failed to complete pending tip")
			continue
		}
		if completed {
			claimed++
			e.reply(ctx, source.ToUser(tip.FromUser), "tip accepted", fmt.Sprintf(
				"%s accepted your %s %s tip.", msg.Author, e.cfg.CoinSymbol, tip.Amount))
		} else {
			declined++
		}
	}

	e.reply(ctx, replyTarget(msg), "tips accepted", fmt.Sprintf(
		"Claimed %d tip(s); %d could no longer be covered by the sender.", claimed, declined))
	return &Result{Action: action, Outcome: OutcomeCompleted}, nil
}

// completePendingTip settles one pending tip in a single transaction.
// Returns false when the sender's balance no longer covers it, in which case
// the tip is declined.
func (e *Executor) completePendingTip(ctx context.Context, tip models.Action) (bool, error) {
	err := e.inTx(ctx, func(tx pgx.Tx) error {
		users := e.users.WithTx(tx)
		if err := users.Debit(ctx, tip.FromUser, *tip.Amount); err != nil {
			return err
		}
		if err := users.Credit(ctx, tip.ToUser, *tip.Amount); err != nil {
			return err
		}
		return e.actions.WithTx(tx).Transition(ctx, tip.ID, models.StatePending, models.StateCompleted)
	})
	if errors.Is(err, repository.ErrInsufficientBalance) {
		if err := e.actions.Transition(ctx, tip.ID, models.StatePending, models.StateDeclined); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// executeDecline refuses all pending incoming tips for the sender. No
// balance moves: pending tips never debited anyone.
func (e *Executor) executeDecline(ctx context.Context, msg models.Message) (*Result, error) {
	action := newAction(msg, models.KindDecline, models.StateCompleted)

	pending, err := e.actions.List(ctx, repository.Filter{
		Kind:   models.KindTip,
		State:  models.StatePending,
		ToUser: msg.Author,
	})
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return e.declineNew(ctx, action, msg, "You have no pending tips to decline.")
	}

	err = e.actions.Create(ctx, action)
	if errors.Is(err, repository.ErrDuplicateMessage) {
		return &Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}

	for _, tip := range pending {
		if err := e.actions.Transition(ctx, tip.ID, models.StatePending, models.StateDeclined); err != nil {
			logger.Log.Error().Err(err).Int64("action_id", tip.ID).
				Msg("Failed to decline pending tip")
			continue
		}
		e.reply(ctx, source.ToUser(tip.FromUser), "tip declined", fmt.Sprintf(
			"%s declined your %s %s tip. Your balance is untouched.",
			msg.Author, e.cfg.CoinSymbol, tip.Amount))
	}

	e.reply(ctx, replyTarget(msg), "tips declined", fmt.Sprintf(
		"Declined %d pending tip(s).", len(pending)))
	return &Result{Action: action, Outcome: OutcomeCompleted}, nil
}
