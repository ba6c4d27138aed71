// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application.
type Config struct {
	BotUsername string
	DatabaseURL string

	InboxBaseURL string
	InboxToken   string

	CoinRPCURL      string
	CoinSymbol      string
	CoinExplorerURL string
	NetworkFee      decimal.Decimal

	PollInterval       time.Duration
	BatchLimit         int
	ExpirePendingAfter time.Duration

	BannedUsers           []string
	AutoRegisterOnReceive bool
	SendSorryReply        bool

	StatsDir      string
	StatsTipLimit int

	NotifyEnabled      bool
	NotifySMTPHost     string
	NotifySMTPUsername string
	NotifySMTPPassword string
	NotifyFrom         string
	NotifyTo           string

	LogLevel string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BotUsername:     os.Getenv("BOT_USERNAME"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		InboxBaseURL:    os.Getenv("INBOX_BASE_URL"),
		InboxToken:      os.Getenv("INBOX_TOKEN"),
		CoinRPCURL:      os.Getenv("COIN_RPC_URL"),
		CoinSymbol:      os.Getenv("COIN_SYMBOL"),
		CoinExplorerURL: os.Getenv("COIN_EXPLORER_URL"),
		StatsDir:        os.Getenv("STATS_DIR"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
	}

	if cfg.CoinSymbol == "" {
		cfg.CoinSymbol = "Ł"
	}

	cfg.NetworkFee = decimal.RequireFromString("0.001")
	if feeStr := os.Getenv("NETWORK_FEE"); feeStr != "" {
		if fee, err := decimal.NewFromString(feeStr); err == nil && !fee.IsNegative() {
			cfg.NetworkFee = fee
		}
	}

	cfg.PollInterval = 60 * time.Second
	if secStr := os.Getenv("POLL_INTERVAL_SECONDS"); secStr != "" {
		if sec, err := strconv.Atoi(secStr); err == nil && sec > 0 {
			cfg.PollInterval = time.Duration(sec) * time.Second
		}
	}

	cfg.BatchLimit = 99
	if limStr := os.Getenv("BATCH_LIMIT"); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim > 0 {
			cfg.BatchLimit = lim
		}
	}

	cfg.ExpirePendingAfter = 72 * time.Hour
	if hrsStr := os.Getenv("EXPIRE_PENDING_HOURS"); hrsStr != "" {
		if hrs, err := strconv.Atoi(hrsStr); err == nil && hrs > 0 {
			cfg.ExpirePendingAfter = time.Duration(hrs) * time.Hour
		}
	}

	if bannedStr := os.Getenv("BANNED_USERS"); bannedStr != "" {
		for name := range strings.SplitSeq(bannedStr, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cfg.BannedUsers = append(cfg.BannedUsers, name)
		}
	}

	cfg.AutoRegisterOnReceive = os.Getenv("AUTO_REGISTER_ON_RECEIVE") == "true"
	cfg.SendSorryReply = os.Getenv("SEND_SORRY_REPLY") != "false"

	cfg.StatsTipLimit = 500
	if limStr := os.Getenv("STATS_TIP_LIMIT"); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim > 0 {
			cfg.StatsTipLimit = lim
		}
	}

	cfg.NotifyEnabled = os.Getenv("NOTIFY_ENABLED") == "true"
	cfg.NotifySMTPHost = os.Getenv("NOTIFY_SMTP_HOST")
	cfg.NotifySMTPUsername = os.Getenv("NOTIFY_SMTP_USERNAME")
	cfg.NotifySMTPPassword = os.Getenv("NOTIFY_SMTP_PASSWORD")
	cfg.NotifyFrom = os.Getenv("NOTIFY_FROM")
	cfg.NotifyTo = os.Getenv("NOTIFY_TO")

	// Validate required configuration.
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.BotUsername == "" {
		errs = append(errs, "BOT_USERNAME is required")
	}

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.InboxBaseURL == "" {
		errs = append(errs, "INBOX_BASE_URL is required")
	}

	if c.CoinRPCURL == "" {
		errs = append(errs, "COIN_RPC_URL is required")
	}

	if c.NotifyEnabled {
		if c.NotifySMTPHost == "" {
			errs = append(errs, "NOTIFY_SMTP_HOST is required when NOTIFY_ENABLED is true")
		}
		if c.NotifyFrom == "" || c.NotifyTo == "" {
			errs = append(errs, "NOTIFY_FROM and NOTIFY_TO are required when NOTIFY_ENABLED is true")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsBanned checks if a username is on the banned list (case-insensitive).
func (c *Config) IsBanned(username string) bool {
	if username == "" {
		return false
	}
	for _, banned := range c.BannedUsers {
		if strings.EqualFold(banned, username) {
			return true
		}
	}
	return false
}

// IsSelf checks if a username is the bot's own account (case-insensitive).
func (c *Config) IsSelf(username string) bool {
	return strings.EqualFold(username, c.BotUsername)
}
