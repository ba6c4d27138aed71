// Package parser classifies inbound messages and comments into typed
// commands using an ordered list of regular expressions. Parsing is pure:
// persistence and side effects belong to the executor.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/tipbot/internal/models"
)

// Command is a parsed request. Kind determines which fields are meaningful:
// tips carry To/Amount/Unit, withdrawals carry Address/Amount, the rest
// carry nothing.
type Command struct {
	Kind    models.ActionKind
	To      string
	Amount  decimal.Decimal
	Unit    string
	Address string
}

// Rule binds one regular expression to an action kind. Capture groups are
// referenced by name: to, amount, unit, address.
type Rule struct {
	Kind       models.ActionKind
	Regexp     *regexp.Regexp
	ForComment bool
	ForMessage bool
}

// Parser matches messages against its rule list, first match wins.
type Parser struct {
	rules []Rule
}

// New creates a Parser with the given rules.
func New(rules []Rule) *Parser {
	return &Parser{rules: rules}
}

const (
	amountPattern  = `(?P<amount>\d{1,10}(?:\.\d{1,8})?)`
	userPattern    = `(?:/u/|@)(?P<to>[A-Za-z0-9_-]{3,20})`
	addressPattern = `(?P<address>[A-Za-z0-9]{25,42})`
)

// DefaultRules builds the standard rule set for a bot running under the
// given username. Comment rules recognize the public mention grammar;
// message rules recognize private-message keywords. Order matters: more
// specific patterns come first.
func DefaultRules(botUsername string) []Rule {
	bot := regexp.QuoteMeta(strings.ToLower(botUsername))
	mention := `(?:\+/u/` + bot + `|\+tip)`

	compile := func(kind models.ActionKind, expr string, comment, message bool) Rule {
		return Rule{
			Kind:       kind,
			Regexp:     regexp.MustCompile(`(?i)` + expr),
			ForComment: comment,
			ForMessage: message,
		}
	}

	return []Rule{
		// Public comment mentions: "+/u/bot @user 1.5 coin" or "+tip @user 0.5".
		compile(models.KindTip, mention+`\s+`+userPattern+`\s+`+amountPattern+`(?:\s+(?P<unit>[a-z]{3,5}))?`, true, false),
		// Private-message tip: "tip @user 1.5".
		compile(models.KindTip, `^\s*tip\s+`+userPattern+`\s+`+amountPattern+`(?:\s+(?P<unit>[a-z]{3,5}))?\s*$`, false, true),
		compile(models.KindWithdraw, `^\s*withdraw\s+`+addressPattern+`\s+`+amountPattern+`\s*$`, false, true),
		compile(models.KindRegister, `^\s*\+?register\s*$`, false, true),
		compile(models.KindInfo, `^\s*\+?info\s*$`, false, true),
		compile(models.KindHistory, `^\s*\+?history\s*$`, false, true),
		compile(models.KindAccept, `^\s*\+?accept\s*$`, false, true),
		compile(models.KindDecline, `^\s*\+?decline\s*$`, false, true),
	}
}

// Parse matches the message body against the rule list. The second return
// is false when no rule matches; the caller decides whether to send a
// "didn't understand" reply.
func (p *Parser) Parse(msg models.Message) (*Command, bool) {
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return nil, false
	}

	for _, rule := range p.rules {
		if msg.WasComment && !rule.ForComment {
			continue
		}
		if !msg.WasComment && !rule.ForMessage {
			continue
		}

		match := rule.Regexp.FindStringSubmatch(body)
		if match == nil {
			continue
		}

		cmd, err := buildCommand(rule, match)
		if err != nil {
			// Matched the shape but carried an unusable value, e.g. a zero
			// amount. Treat as unmatched rather than guessing.
			continue
		}
		return cmd, true
	}

	return nil, false
}

// buildCommand extracts named captures into a Command.
func buildCommand(rule Rule, match []string) (*Command, error) {
	cmd := &Command{Kind: rule.Kind}

	for i, name := range rule.Regexp.SubexpNames() {
		if i == 0 || name == "" || match[i] == "" {
			continue
		}
		switch name {
		case "to":
			cmd.To = match[i]
		case "unit":
			cmd.Unit = strings.ToLower(match[i])
		case "address":
			cmd.Address = match[i]
		case "amount":
			amount, err := decimal.NewFromString(match[i])
			if err != nil {
				return nil, fmt.Errorf("invalid amount %q: %w", match[i], err)
			}
			if !amount.IsPositive() {
				return nil, fmt.Errorf("amount must be positive, got %s", amount)
			}
			cmd.Amount = amount
		}
	}

	switch rule.Kind {
	case models.KindTip:
		if cmd.To == "" || cmd.Amount.IsZero() {
			return nil, fmt.Errorf("tip requires recipient and amount")
		}
	case models.KindWithdraw:
		if cmd.Address == "" || cmd.Amount.IsZero() {
			return nil, fmt.Errorf("withdraw requires address and amount")
		}
	}

	return cmd, nil
}
