package stats

import (
	"context"
	"fmt"

	"gitlab.com/yelinaung/tipbot/internal/logger"
	"gitlab.com/yelinaung/tipbot/internal/repository"
)

// ChartDays is the window of the tip-activity chart.
const ChartDays = 90

// Updater regenerates and publishes every stats page. Pages are pure
// projections of the ledger, so republishing on unchanged data rewrites
// identical content.
type Updater struct {
	builder    *Builder
	stats      *repository.StatsRepository
	publisher  Publisher
	coinSymbol string
}

// NewUpdater creates an Updater.
func NewUpdater(builder *Builder, statsRepo *repository.StatsRepository, publisher Publisher, coinSymbol string) *Updater {
	return &Updater{builder: builder, stats: statsRepo, publisher: publisher, coinSymbol: coinSymbol}
}

// UpdateAll publishes the global page, the tips page, and the activity
// chart.
func (u *Updater) UpdateAll(ctx context.Context) error {
	global, err := u.builder.GlobalPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to build global page: %w", err)
	}
	if err := u.publisher.Publish(ctx, "stats", global); err != nil {
		return err
	}

	tips, err := u.builder.TipsPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to build tips page: %w", err)
	}
	if err := u.publisher.Publish(ctx, "tips", tips); err != nil {
		return err
	}

	volumes, err := u.stats.DailyTipVolumes(ctx, ChartDays)
	if err != nil {
		return fmt.Errorf("failed to query tip volumes: %w", err)
	}
	if len(volumes) > 0 {
		chart, err := GenerateActivityChart(volumes, u.coinSymbol)
		if err != nil {
			// A chart that fails to render should not block the pages.
			logger.Log.Warn().Err(err).Msg("Failed to render activity chart")
		} else if err := u.publisher.PublishBinary(ctx, "activity.png", chart); err != nil {
			return err
		}
	}

	return nil
}

// UpdateUser publishes one user's summary page.
func (u *Updater) UpdateUser(ctx context.Context, username string) error {
	page, err := u.builder.UserPage(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to build user page for %s: %w", username, err)
	}
	return u.publisher.Publish(ctx, "stats_"+username, page)
}
