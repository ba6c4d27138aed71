package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/tipbot/internal/logger"
	"gitlab.com/yelinaung/tipbot/internal/models"
	"gitlab.com/yelinaung/tipbot/internal/parser"
	"gitlab.com/yelinaung/tipbot/internal/repository"
	"gitlab.com/yelinaung/tipbot/internal/source"
)

// executeTip moves balance from sender to recipient. When the recipient is
// not registered (and auto-register is off) the tip stays pending until the
// recipient accepts, declines, or the expiry sweep catches it. Balances are
// only checked, never reserved, before completion.
func (e *Executor) executeTip(ctx context.Context, msg models.Message, cmd *parser.Command) (*Result, error) {
	action := newAction(msg, models.KindTip, models.StatePending)
	action.ToUser = cmd.To
	amount := cmd.Amount
	action.Amount = &amount

	if strings.EqualFold(cmd.To, msg.Author) || e.cfg.IsSelf(cmd.To) {
		return e.declineNew(ctx, action, msg, "You cannot tip yourself or the bot.")
	}

	senderRegistered, err := e.users.IsRegistered(ctx, msg.Author)
	if err != nil {
		return nil, err
	}
	if !senderRegistered {
		return e.declineNew(ctx, action, msg,
			"You must +register before tipping. Send me a private message saying \"register\".")
	}

	sender, err := e.users.GetByUsername(ctx, msg.Author)
	if err != nil {
		return nil, err
	}
	if sender.Balance.LessThan(amount) {
		return e.declineNew(ctx, action, msg, fmt.Sprintf(
			"Your balance of %s %s does not cover a %s %s tip.",
			e.cfg.CoinSymbol, sender.Balance, e.cfg.CoinSymbol, amount))
	}

	recipientRegistered, err := e.users.IsRegistered(ctx, cmd.To)
	if err != nil {
		return nil, err
	}

	// A fresh deposit address is needed only when auto-registering, and the
	// daemon call has to happen outside the transaction.
	var autoRegisterAddress string
	if !recipientRegistered && e.cfg.AutoRegisterOnReceive {
		autoRegisterAddress, err = e.coin.NewAddress(ctx, strings.ToLower(cmd.To))
		if err != nil {
			return nil, fmt.Errorf("failed to create deposit address for %s: %w", cmd.To, err)
		}
	}

	completed := false
	err = e.inTx(ctx, func(tx pgx.Tx) error {
		actions := e.actions.WithTx(tx)
		users := e.users.WithTx(tx)

		if err := actions.Create(ctx, action); err != nil {
			return err
		}

		if !recipientRegistered {
			if !e.cfg.AutoRegisterOnReceive {
				// Leave pending; the recipient gets an invitation below.
				return nil
			}
			if _, err := users.Register(ctx, cmd.To, autoRegisterAddress); err != nil {
				return err
			}
		}

		if err := users.Debit(ctx, msg.Author, amount); err != nil {
			return err
		}
		if err := users.Credit(ctx, cmd.To, amount); err != nil {
			return err
		}
		if err := actions.Transition(ctx, action.ID, models.StatePending, models.StateCompleted); err != nil {
			return err
		}
		completed = true
		return nil
	})

	switch {
	case errors.Is(err, repository.ErrDuplicateMessage):
		return &Result{Outcome: OutcomeDuplicate}, nil
	case errors.Is(err, repository.ErrInsufficientBalance):
		// Balance moved between the check and the debit; the transaction
		// rolled back, so record the decline from scratch.
		return e.declineNew(ctx, action, msg, "Your balance no longer covers this tip.")
	case err != nil:
		return nil, err
	}

	if completed {
		action.State = models.StateCompleted
		e.reply(ctx, replyTarget(msg), "tip sent", fmt.Sprintf(
			"Sent %s %s to %s.", e.cfg.CoinSymbol, amount, cmd.To))
		return &Result{Action: action, Outcome: OutcomeCompleted}, nil
	}

	logger.Log.Info().
		Str("from", msg.Author).
		Str("to", cmd.To).
		Str("amount", amount.String()).
		Msg("Tip pending recipient registration")
	e.reply(ctx, source.ToUser(cmd.To), "you have a tip waiting", fmt.Sprintf(
		"%s sent you a %s %s tip. Reply \"accept\" to claim it or \"decline\" to refuse. "+
			"Unclaimed tips expire after %s.",
		msg.Author, e.cfg.CoinSymbol, amount, e.cfg.ExpirePendingAfter))
	return &Result{Action: action, Outcome: OutcomePending}, nil
}

// declineNew records a precondition failure for a not-yet-persisted action
// and tells the sender why. The action commits in declined state.
func (e *Executor) declineNew(ctx context.Context, action *models.Action, msg models.Message, reason string) (*Result, error) {
	action.State = models.StateDeclined
	err := e.actions.Create(ctx, action)
	if errors.Is(err, repository.ErrDuplicateMessage) {
		return &Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, err
	}
	e.reply(ctx, replyTarget(msg), "request declined", reason)
	return &Result{Action: action, Outcome: OutcomeDeclined}, nil
}

// replyTarget answers in thread for comments and by message otherwise.
func replyTarget(msg models.Message) source.Recipient {
	if msg.WasComment {
		return source.InThread(msg.ID)
	}
	return source.ToUser(msg.Author)
}
