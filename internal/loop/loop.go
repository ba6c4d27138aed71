// Package loop runs the bot's poll cycle: expire stale pending tips, fetch
// unread messages, process them in delivery order, sleep, repeat. Transient
// upstream failures put the loop to sleep early; anything unexpected stops
// it so an external supervisor can restart from clean state.
package loop

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/yelinaung/tipbot/internal/config"
	"gitlab.com/yelinaung/tipbot/internal/executor"
	"gitlab.com/yelinaung/tipbot/internal/logger"
	"gitlab.com/yelinaung/tipbot/internal/models"
	"gitlab.com/yelinaung/tipbot/internal/parser"
	"gitlab.com/yelinaung/tipbot/internal/source"
)

// State is the loop's position in its cycle, for logging and tests.
type State string

// Loop states.
const (
	StateIdle            State = "idle"
	StateExpiring        State = "expiring"
	StateFetching        State = "fetching"
	StateProcessingBatch State = "processing_batch"
	StateSleeping        State = "sleeping"
	StateFailed          State = "failed"
)

// Ledger is the slice of the action repository the loop needs.
type Ledger interface {
	Exists(ctx context.Context, sourceMessageID string) (bool, error)
	ExpirePendingTips(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Executor runs one parsed command.
type Executor interface {
	Execute(ctx context.Context, msg models.Message, cmd *parser.Command) (*executor.Result, error)
}

// StatsUpdater republishes the stats pages after a batch that changed the
// ledger.
type StatsUpdater interface {
	UpdateAll(ctx context.Context) error
}

// Loop drives the poll cycle. Single worker: one iteration fully completes
// before the next begins, and messages within a batch are processed strictly
// in delivery order.
type Loop struct {
	cfg    *config.Config
	src    source.Client
	ledger Ledger
	exec   Executor
	parser *parser.Parser
	stats  StatsUpdater

	state State
	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Loop.
func New(cfg *config.Config, src source.Client, ledger Ledger, exec Executor, p *parser.Parser) *Loop {
	return &Loop{
		cfg:    cfg,
		src:    src,
		ledger: ledger,
		exec:   exec,
		parser: p,
		state:  StateIdle,
		sleep:  sleepCtx,
	}
}

// WithStats enables stats republishing after productive batches.
func (l *Loop) WithStats(updater StatsUpdater) *Loop {
	l.stats = updater
	return l
}

// State returns the loop's current state.
func (l *Loop) State() State {
	return l.state
}

// Run polls until the context is cancelled (returns nil) or an unexpected
// error occurs (returns it; the caller notifies the operator and exits
// non-zero).
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			logger.Log.Info().Msg("Poll loop stopped")
			return nil
		}

		if err := l.runOnce(ctx); err != nil {
			l.state = StateFailed
			return err
		}

		l.state = StateSleeping
		if err := l.sleep(ctx, l.cfg.PollInterval); err != nil {
			logger.Log.Info().Msg("Poll loop stopped")
			return nil
		}
		l.state = StateIdle
	}
}

// runOnce performs one cycle: expire, fetch, process. A nil return with an
// early exit from processing means the loop should just sleep.
func (l *Loop) runOnce(ctx context.Context) error {
	l.state = StateExpiring
	expired, err := l.ledger.ExpirePendingTips(ctx, l.cfg.ExpirePendingAfter)
	if err != nil {
		// The sweep failing is not fatal; the next iteration retries it.
		logger.Log.Error().Err(err).Msg("Expiry sweep failed")
	} else if expired > 0 {
		logger.Log.Info().Int64("count", expired).Msg("Expired stale pending tips")
	}

	l.state = StateFetching
	messages, err := l.src.FetchUnread(ctx, l.cfg.BatchLimit)
	if err != nil {
		if source.IsTransient(err) {
			logger.Log.Warn().Err(err).Msg("Inbox unreachable, sleeping")
			return nil
		}
		return fmt.Errorf("fetching unread messages: %w", err)
	}

	l.state = StateProcessingBatch
	executed := 0
	for _, msg := range messages {
		ran, err := l.processMessage(ctx, msg)
		if err != nil {
			if source.IsTransient(err) {
				logger.Log.Warn().Err(err).Str("message_id", msg.ID).
					Msg("Upstream failed mid-batch, sleeping")
				return nil
			}
			return fmt.Errorf("processing message %s: %w", msg.ID, err)
		}
		if ran {
			executed++
		}
	}

	if executed > 0 && l.stats != nil {
		if err := l.stats.UpdateAll(ctx); err != nil {
			// Stats pages are projections; failing to publish them never
			// blocks the ledger.
			logger.Log.Error().Err(err).Msg("Failed to update stats pages")
		}
	}

	return nil
}

// processMessage handles one inbox item: skip (self, banned, no author,
// duplicate), or parse and execute. The message is marked read in every
// handled case; executor storage failures leave it unread so the action is
// retried, with the dedup check preventing double execution. The bool
// reports whether an action actually executed.
func (l *Loop) processMessage(ctx context.Context, msg models.Message) (bool, error) {
	switch {
	case msg.Author == "":
		logger.Log.Info().Str("message_id", msg.ID).Msg("Ignoring message with no author")
		return false, l.src.MarkRead(ctx, msg.ID)

	case l.cfg.IsSelf(msg.Author):
		logger.Log.Debug().Str("message_id", msg.ID).Msg("Ignoring message from self")
		return false, l.src.MarkRead(ctx, msg.ID)

	case l.cfg.IsBanned(msg.Author):
		logger.Log.Info().Str("author", msg.Author).Msg("Ignoring banned author")
		return false, l.src.MarkRead(ctx, msg.ID)
	}

	exists, err := l.ledger.Exists(ctx, msg.ID)
	if err != nil {
		logger.Log.Error().Err(err).Str("message_id", msg.ID).Msg("Dedup check failed")
		return false, nil
	}
	if exists {
		logger.Log.Warn().Str("message_id", msg.ID).Msg("Duplicate delivery, ignoring")
		return false, l.src.MarkRead(ctx, msg.ID)
	}

	cmd, ok := l.parser.Parse(msg)
	if !ok {
		if l.cfg.SendSorryReply && !msg.IsBotReply() {
			body := fmt.Sprintf(
				"I did not understand your %s. Supported requests: tip, withdraw, register, info, history, accept, decline.",
				messageKind(msg))
			if err := l.src.Reply(ctx, replyTarget(msg), "What?", body); err != nil {
				if source.IsTransient(err) {
					return false, err
				}
				logger.Log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to send sorry reply")
			}
		}
		return false, l.src.MarkRead(ctx, msg.ID)
	}

	result, err := l.exec.Execute(ctx, msg, cmd)
	if err != nil {
		if source.IsTransient(err) {
			return false, err
		}
		// Storage failure aborts only this action; leave unread for retry.
		logger.Log.Error().Err(err).Str("message_id", msg.ID).
			Str("kind", string(cmd.Kind)).Msg("Action execution failed")
		return false, nil
	}

	logger.Log.Info().
		Str("message_id", msg.ID).
		Str("author", msg.Author).
		Str("kind", string(cmd.Kind)).
		Str("outcome", string(result.Outcome)).
		Msg("Processed message")
	return result.Outcome != executor.OutcomeDuplicate, l.src.MarkRead(ctx, msg.ID)
}

// messageKind names the message type for the sorry reply.
func messageKind(msg models.Message) string {
	if msg.WasComment {
		return "comment"
	}
	return "message"
}

// replyTarget answers in thread for comments and by message otherwise.
func replyTarget(msg models.Message) source.Recipient {
	if msg.WasComment {
		return source.InThread(msg.ID)
	}
	return source.ToUser(msg.Author)
}

// sleepCtx blocks for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
