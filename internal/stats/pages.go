package stats

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/yelinaung/tipbot/internal/repository"
)

// Builder assembles the published stats pages from repository queries.
type Builder struct {
	stats     *repository.StatsRepository
	formatter *Formatter
	tipLimit  int
}

// NewBuilder creates a Builder.
func NewBuilder(stats *repository.StatsRepository, formatter *Formatter, tipLimit int) *Builder {
	return &Builder{stats: stats, formatter: formatter, tipLimit: tipLimit}
}

// GlobalPage renders the ledger-wide summary page.
func (b *Builder) GlobalPage(ctx context.Context) (string, error) {
	global, err := b.stats.Global(ctx)
	if err != nil {
		return "", err
	}
	return FormatGlobalPage(b.formatter, global), nil
}

// FormatGlobalPage renders already-fetched global stats.
func FormatGlobalPage(f *Formatter, global *repository.GlobalStats) string {
	var sb strings.Builder
	sb.WriteString("### Global Statistics\n\n")
	fmt.Fprintf(&sb, "registered users = **%d**\n\n", global.RegisteredUsers)
	fmt.Fprintf(&sb, "completed tips = **%d**\n\n", global.CompletedTips)
	fmt.Fprintf(&sb, "total tipped = **%s**\n\n", f.Amount(global.TotalTipped))
	fmt.Fprintf(&sb, "total user balance = **%s**\n", f.Amount(global.TotalBalance))
	return sb.String()
}

// TipsPage renders the completed-tips table.
func (b *Builder) TipsPage(ctx context.Context) (string, error) {
	tips, err := b.stats.CompletedTips(ctx, b.tipLimit)
	if err != nil {
		return "", err
	}
	return FormatTipsPage(b.formatter, tips), nil
}

// FormatTipsPage renders already-fetched tip rows.
func FormatTipsPage(f *Formatter, tips []repository.TipRow) string {
	var sb strings.Builder
	sb.WriteString("### All Completed Tips\n\n")
	sb.WriteString("date|from|to|amount|state\n")
	sb.WriteString(":---|:---|:---|:---|:---\n")
	for _, t := range tips {
		fmt.Fprintf(&sb, "%s|%s|%s|%s|%s\n",
			f.Date(t.CreatedAt),
			f.Username(t.FromUser, ""),
			f.Username(t.ToUser, ""),
			f.Amount(t.Amount),
			f.State(t.State))
	}
	return sb.String()
}

// UserPage renders one user's stats page: lifetime totals plus history.
func (b *Builder) UserPage(ctx context.Context, username string) (string, error) {
	tipped, received, err := b.stats.TipTotals(ctx, username)
	if err != nil {
		return "", err
	}
	history, err := b.stats.UserHistory(ctx, username)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "### Tipping Summary for %s\n\n", username)
	fmt.Fprintf(&sb, "total tipped = **%s**\n\n", b.formatter.Amount(tipped))
	fmt.Fprintf(&sb, "total received = **%s**\n\n", b.formatter.Amount(received))
	sb.WriteString(b.formatter.HistoryTable(username, history))
	return sb.String(), nil
}
