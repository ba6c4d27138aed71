// Package stats renders read-only Markdown projections of the ledger:
// global totals, the completed-tips table, and per-user histories. Pages are
// pure functions of query results, so regenerating them on unchanged data
// yields identical output.
package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/tipbot/internal/models"
	"gitlab.com/yelinaung/tipbot/internal/repository"
)

// Formatter renders individual ledger values for display.
type Formatter struct {
	coinSymbol  string
	explorerURL string
}

// NewFormatter creates a Formatter. explorerURL is the address-browser
// prefix and may be empty.
func NewFormatter(coinSymbol, explorerURL string) *Formatter {
	return &Formatter{coinSymbol: coinSymbol, explorerURL: explorerURL}
}

// Amount renders a coin amount with the configured symbol.
func (f *Formatter) Amount(amount decimal.Decimal) string {
	return f.coinSymbol + " " + amount.String()
}

// Username renders a user link, bolded when it is the page's subject.
func (f *Formatter) Username(username, subject string) string {
	if username == "" {
		return "-"
	}
	if strings.EqualFold(username, subject) {
		return fmt.Sprintf("[**%s**](/u/%s)", username, username)
	}
	return fmt.Sprintf("[%s](/u/%s)", username, username)
}

// Address renders a shortened address, linked to the explorer when one is
// configured.
func (f *Formatter) Address(address string) string {
	if address == "" {
		return "-"
	}
	display := address
	if len(address) > 11 {
		display = address[:6] + "..." + address[len(address)-5:]
	}
	if f.explorerURL == "" {
		return display
	}
	return fmt.Sprintf("[%s](%s%s)", display, f.explorerURL, address)
}

// State renders an action state, a check mark for completed.
func (f *Formatter) State(state models.ActionState) string {
	if state == models.StateCompleted {
		return "✓"
	}
	return string(state)
}

// Date renders a timestamp as a UTC calendar date.
func (f *Formatter) Date(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// HistoryTable renders a user's history as a Markdown table headed by a
// summary line.
func (f *Formatter) HistoryTable(username string, history []repository.HistoryRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#### History for %s\n\n", username)

	if len(history) == 0 {
		b.WriteString("No tips or withdrawals yet.\n")
		return b.String()
	}

	b.WriteString("date|kind|from|to|amount|state\n")
	b.WriteString(":---|:---|:---|:---|:---|:---\n")
	for _, h := range history {
		to := f.Username(h.ToUser, username)
		if h.Kind == models.KindWithdraw {
			to = f.Address(h.Address)
		}
		fmt.Fprintf(&b, "%s|%s|%s|%s|%s|%s\n",
			f.Date(h.CreatedAt),
			h.Kind,
			f.Username(h.FromUser, username),
			to,
			f.Amount(h.Amount),
			f.State(h.State))
	}
	return b.String()
}
