// Package models defines the domain entities for the tip bot.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind identifies what a parsed message asked the bot to do.
type ActionKind string

// Action kinds recognized by the parser.
const (
	KindTip      ActionKind = "tip"
	KindWithdraw ActionKind = "withdraw"
	KindRegister ActionKind = "register"
	KindInfo     ActionKind = "info"
	KindHistory  ActionKind = "history"
	KindAccept   ActionKind = "accept"
	KindDecline  ActionKind = "decline"
)

// ActionState is the lifecycle state of an action.
type ActionState string

// Action states. Only pending actions may transition further.
const (
	StatePending   ActionState = "pending"
	StateCompleted ActionState = "completed"
	StateDeclined  ActionState = "declined"
	StateExpired   ActionState = "expired"
	StateFailed    ActionState = "failed"
)

// Terminal reports whether the state permits no further transitions.
func (s ActionState) Terminal() bool {
	return s != StatePending
}

// CanTransition reports whether an action may move from one state to another.
func CanTransition(from, to ActionState) bool {
	if from.Terminal() || to == StatePending {
		return false
	}
	switch to {
	case StateCompleted, StateDeclined, StateExpired, StateFailed:
		return true
	default:
		return false
	}
}

// Action is the persisted record of a single inbound request.
// SourceMessageID is unique: re-delivery of the same message never creates
// a second action.
type Action struct {
	ID              int64
	Kind            ActionKind
	State           ActionState
	SourceMessageID string
	FromUser        string
	ToUser          string
	Amount          *decimal.Decimal
	Address         string
	WasComment      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// User represents a registered tipping account.
type User struct {
	ID           int64
	Username     string
	Balance      decimal.Decimal
	Address      string
	RegisteredAt time.Time
}

// Message is an inbound item from the platform inbox, either a private
// message or a comment mentioning the bot.
type Message struct {
	ID         string
	Author     string
	Subject    string
	Body       string
	WasComment bool
	Permalink  string
	CreatedAt  time.Time
}

// IsBotReply reports whether the message is the platform's notification of a
// reply to the bot's own post or comment. Unmatched bot replies are ignored
// silently instead of triggering a "didn't understand" response.
func (m Message) IsBotReply() bool {
	return !m.WasComment && (m.Subject == "post reply" || m.Subject == "comment reply")
}
