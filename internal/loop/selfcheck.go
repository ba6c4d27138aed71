package loop

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/yelinaung/tipbot/internal/coin"
	"gitlab.com/yelinaung/tipbot/internal/config"
	"gitlab.com/yelinaung/tipbot/internal/logger"
	"gitlab.com/yelinaung/tipbot/internal/repository"
)

// SelfCheck verifies ledger integrity before the loop starts. Comparisons
// are exact decimal arithmetic: any shortfall between the coin float and the
// pending-tip liability is a hard failure, not a tolerance check.
func SelfCheck(
	ctx context.Context,
	cfg *config.Config,
	users *repository.UserRepository,
	actions *repository.ActionRepository,
	backend coin.Backend,
) error {
	// The bot itself must hold a registered account.
	registered, err := users.IsRegistered(ctx, cfg.BotUsername)
	if err != nil {
		return err
	}
	if !registered {
		address, err := backend.NewAddress(ctx, strings.ToLower(cfg.BotUsername))
		if err != nil {
			return fmt.Errorf("failed to create bot deposit address: %w", err)
		}
		if _, err := users.Register(ctx, cfg.BotUsername, address); err != nil {
			return err
		}
		logger.Log.Info().Str("user", cfg.BotUsername).Msg("Registered bot account")
	}

	// The coin float must cover every pending tip.
	float, err := backend.Balance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch coin balance: %w", err)
	}
	if float.IsNegative() {
		return fmt.Errorf("coin balance is negative: %s", float)
	}
	pending, err := actions.SumPendingTips(ctx)
	if err != nil {
		return err
	}
	if float.LessThan(pending) {
		return fmt.Errorf("coin balance %s does not cover pending tips %s", float, pending)
	}

	// No account may carry a negative balance. The schema forbids it too;
	// this catches external tampering.
	allUsers, err := users.All(ctx)
	if err != nil {
		return err
	}
	for _, u := range allUsers {
		if u.Balance.IsNegative() {
			return fmt.Errorf("user %s has negative balance %s", u.Username, u.Balance)
		}
	}

	logger.Log.Info().
		Str("float", float.String()).
		Str("pending_tips", pending.String()).
		Int("users", len(allUsers)).
		Msg("Self-checks passed")
	return nil
}
