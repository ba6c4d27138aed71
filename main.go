// Package main is the entry point for the cointip bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/yelinaung/tipbot/internal/coin"
	"gitlab.com/yelinaung/tipbot/internal/config"
	"gitlab.com/yelinaung/tipbot/internal/database"
	"gitlab.com/yelinaung/tipbot/internal/executor"
	"gitlab.com/yelinaung/tipbot/internal/logger"
	"gitlab.com/yelinaung/tipbot/internal/loop"
	"gitlab.com/yelinaung/tipbot/internal/notify"
	"gitlab.com/yelinaung/tipbot/internal/parser"
	"gitlab.com/yelinaung/tipbot/internal/repository"
	"gitlab.com/yelinaung/tipbot/internal/source"
	"gitlab.com/yelinaung/tipbot/internal/stats"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("tipbot %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.SetLevel(cfg.LogLevel)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	logger.Log.Info().Msg("Database initialized successfully")

	users := repository.NewUserRepository(pool)
	actions := repository.NewActionRepository(pool)
	backend := coin.NewRPCClient(cfg.CoinRPCURL, 30*time.Second)
	inbox := source.NewHTTPClient(cfg.InboxBaseURL, cfg.InboxToken, 30*time.Second)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.NotifyEnabled {
		notifier = notify.NewSMTPNotifier(
			cfg.NotifySMTPHost, cfg.NotifySMTPUsername, cfg.NotifySMTPPassword,
			cfg.NotifyFrom, cfg.NotifyTo)
	}

	if err := loop.SelfCheck(ctx, cfg, users, actions, backend); err != nil {
		logger.Log.Fatal().Err(err).Msg("Self-checks failed")
	}

	exec := executor.New(pool, backend, inbox, cfg)
	p := parser.New(parser.DefaultRules(cfg.BotUsername))
	pollLoop := loop.New(cfg, inbox, actions, exec, p)

	if cfg.StatsDir != "" {
		statsRepo := repository.NewStatsRepository(pool)
		formatter := stats.NewFormatter(cfg.CoinSymbol, cfg.CoinExplorerURL)
		builder := stats.NewBuilder(statsRepo, formatter, cfg.StatsTipLimit)
		publisher := stats.NewDirPublisher(cfg.StatsDir)
		pollLoop.WithStats(stats.NewUpdater(builder, statsRepo, publisher, cfg.CoinSymbol))
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Log.Info().Msg("Shutting down...")
		cancel()
	}()

	logger.Log.Info().
		Dur("poll_interval", cfg.PollInterval).
		Int("batch_limit", cfg.BatchLimit).
		Msg("Bot started polling")

	if err := pollLoop.Run(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Poll loop failed")
		notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer notifyCancel()
		if notifyErr := notifier.Notify(notifyCtx, "tipbot fatal error", err.Error()); notifyErr != nil {
			logger.Log.Error().Err(notifyErr).Msg("Failed to notify operator")
		}
		os.Exit(1)
	}
}
