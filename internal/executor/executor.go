// Package executor validates parsed commands and applies them to the
// ledger. Every action is one transaction: the balance mutation and the
// state transition commit together or not at all.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/tipbot/internal/coin"
	"gitlab.com/yelinaung/tipbot/internal/config"
	"gitlab.com/yelinaung/tipbot/internal/database"
	"gitlab.com/yelinaung/tipbot/internal/logger"
	"gitlab.com/yelinaung/tipbot/internal/models"
	"gitlab.com/yelinaung/tipbot/internal/parser"
	"gitlab.com/yelinaung/tipbot/internal/repository"
	"gitlab.com/yelinaung/tipbot/internal/source"
)

// Outcome is the expected result of executing an action. Hard failures are
// reported through the error return instead.
type Outcome string

// Execution outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomePending   Outcome = "pending"
	OutcomeDeclined  Outcome = "declined"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result describes what an execution did.
type Result struct {
	Action  *models.Action
	Outcome Outcome
}

// DB is the database surface the executor needs: direct queries plus the
// ability to open a transaction. *pgxpool.Pool satisfies it.
type DB interface {
	database.PGXDB
	database.TxBeginner
}

// Executor executes parsed commands against the ledger.
type Executor struct {
	db      DB
	users   *repository.UserRepository
	actions *repository.ActionRepository
	stats   *repository.StatsRepository
	coin    coin.Backend
	inbox   source.Client
	cfg     *config.Config
}

// New creates an Executor.
func New(db DB, coinBackend coin.Backend, inbox source.Client, cfg *config.Config) *Executor {
	return &Executor{
		db:      db,
		users:   repository.NewUserRepository(db),
		actions: repository.NewActionRepository(db),
		stats:   repository.NewStatsRepository(db),
		coin:    coinBackend,
		inbox:   inbox,
		cfg:     cfg,
	}
}

// Execute runs one parsed command. Expected conditions (duplicate message,
// insufficient balance, unregistered sender) come back in the Result;
// returned errors are storage or upstream failures.
func (e *Executor) Execute(ctx context.Context, msg models.Message, cmd *parser.Command) (*Result, error) {
	switch cmd.Kind {
	case models.KindTip:
		return e.executeTip(ctx, msg, cmd)
	case models.KindWithdraw:
		return e.executeWithdraw(ctx, msg, cmd)
	case models.KindRegister:
		return e.executeRegister(ctx, msg)
	case models.KindInfo:
		return e.executeInfo(ctx, msg)
	case models.KindHistory:
		return e.executeHistory(ctx, msg)
	case models.KindAccept:
		return e.executeAccept(ctx, msg)
	case models.KindDecline:
		return e.executeDecline(ctx, msg)
	default:
		return nil, fmt.Errorf("unknown action kind %q", cmd.Kind)
	}
}

// inTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func (e *Executor) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Log.Error().Err(rbErr).Msg("Transaction rollback failed")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// newAction builds the persisted record for an inbound message.
func newAction(msg models.Message, kind models.ActionKind, state models.ActionState) *models.Action {
	return &models.Action{
		Kind:            kind,
		State:           state,
		SourceMessageID: msg.ID,
		FromUser:        msg.Author,
		WasComment:      msg.WasComment,
	}
}

// reply sends a response and logs (but tolerates) delivery failure: the
// action has already committed, and a re-delivered message dedups cleanly.
func (e *Executor) reply(ctx context.Context, to source.Recipient, subject, body string) {
	if err := e.inbox.Reply(ctx, to, subject, body); err != nil {
		logger.Log.Warn().Err(err).Str("subject", subject).Msg("Failed to send reply")
	}
}
