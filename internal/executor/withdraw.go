package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/tipbot/internal/logger"
	"gitlab.com/yelinaung/tipbot/internal/models"
	"gitlab.com/yelinaung/tipbot/internal/parser"
	"gitlab.com/yelinaung/tipbot/internal/repository"
)

// executeWithdraw sends coins to an on-chain address. The debit covers
// amount plus the network fee; the fee leaves the ledger with the transfer.
// The daemon send happens inside the transaction boundary so a failed send
// rolls the debit back; a send that succeeds commits with the transition.
func (e *Executor) executeWithdraw(ctx context.Context, msg models.Message, cmd *parser.Command) (*Result, error) {
	action := newAction(msg, models.KindWithdraw, models.StatePending)
	action.Address = cmd.Address
	amount := cmd.Amount
	action.Amount = &amount

	registered, err := e.users.IsRegistered(ctx, msg.Author)
	if err != nil {
		return nil, err
	}
	if !registered {
		return e.declineNew(ctx, action, msg,
			"You must +register before withdrawing.")
	}

	valid, err := e.coin.ValidateAddress(ctx, cmd.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to validate address: %w", err)
	}
	if !valid {
		return e.declineNew(ctx, action, msg, fmt.Sprintf(
			"%s is not a valid %s address.", cmd.Address, e.cfg.CoinSymbol))
	}

	total := amount.Add(e.cfg.NetworkFee)
	var txid string
	err = e.inTx(ctx, func(tx pgx.Tx) error {
		actions := e.actions.WithTx(tx)
		users := e.users.WithTx(tx)

		if err := actions.Create(ctx, action); err != nil {
			return err
		}
		if err := users.Debit(ctx, msg.Author, total); err != nil {
			return err
		}

		txid, err = e.coin.Send(ctx, cmd.Address, amount)
		if err != nil {
			return fmt.Errorf("coin send failed: %w", err)
		}

		return actions.Transition(ctx, action.ID, models.StatePending, models.StateCompleted)
	})

	switch {
	case errors.Is(err, repository.ErrDuplicateMessage):
		return &Result{Outcome: OutcomeDuplicate}, nil
	case errors.Is(err, repository.ErrInsufficientBalance):
		return e.declineNew(ctx, action, msg, fmt.Sprintf(
			"Withdrawing %s %s requires %s %s including the %s network fee, which your balance does not cover.",
			e.cfg.CoinSymbol, amount, e.cfg.CoinSymbol, total, e.cfg.NetworkFee))
	case err != nil:
		// The transaction rolled back, balances are intact. Keep a failed
		// record so the re-delivered message dedups instead of retrying an
		// irreversible transfer.
		action.State = models.StateFailed
		if createErr := e.actions.Create(ctx, action); createErr != nil &&
			!errors.Is(createErr, repository.ErrDuplicateMessage) {
			logger.Log.Error().Err(createErr).Str("message_id", msg.ID).
				Msg("Failed to record failed withdrawal")
		}
		return nil, err
	}

	action.State = models.StateCompleted
	logger.Log.Info().
		Str("user", msg.Author).
		Str("amount", amount.String()).
		Str("txid", txid).
		Msg("Withdrawal completed")
	e.reply(ctx, replyTarget(msg), "withdrawal completed", fmt.Sprintf(
		"Sent %s %s to %s (fee %s %s). Transaction: %s",
		e.cfg.CoinSymbol, amount, cmd.Address, e.cfg.CoinSymbol, e.cfg.NetworkFee, txid))
	return &Result{Action: action, Outcome: OutcomeCompleted}, nil
}
