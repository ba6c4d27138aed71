package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/tipbot/internal/models"
)

func newTestParser() *Parser {
	return New(DefaultRules("cointipbot"))
}

func comment(body string) models.Message {
	return models.Message{ID: "c1", Author: "alice", Body: body, WasComment: true}
}

func message(subject, body string) models.Message {
	return models.Message{ID: "m1", Author: "alice", Subject: subject, Body: body}
}

func TestParseCommentTip(t *testing.T) {
	t.Parallel()

	p := newTestParser()

	tests := []struct {
		name       string
		body       string
		wantMatch  bool
		wantTo     string
		wantAmount string
		wantUnit   string
	}{
		{
			name:       "bot mention with amount",
			body:       "+/u/cointipbot @bob 1.5 ltc",
			wantMatch:  true,
			wantTo:     "bob",
			wantAmount: "1.5",
			wantUnit:   "ltc",
		},
		{
			name:       "tip keyword",
			body:       "great post! +tip @bob 0.25",
			wantMatch:  true,
			wantTo:     "bob",
			wantAmount: "0.25",
		},
		{
			name:       "slash u recipient",
			body:       "+tip /u/bob 10",
			wantMatch:  true,
			wantTo:     "bob",
			wantAmount: "10",
		},
		{
			name:       "case insensitive",
			body:       "+TIP @Bob 2",
			wantMatch:  true,
			wantTo:     "Bob",
			wantAmount: "2",
		},
		{name: "no mention", body: "nice weather today", wantMatch: false},
		{name: "zero amount", body: "+tip @bob 0", wantMatch: false},
		{name: "missing amount", body: "+tip @bob", wantMatch: false},
		{name: "empty body", body: "", wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, ok := p.Parse(comment(tt.body))

			if !tt.wantMatch {
				require.False(t, ok)
				return
			}

			require.True(t, ok)
			require.Equal(t, models.KindTip, cmd.Kind)
			require.Equal(t, tt.wantTo, cmd.To)
			require.Equal(t, tt.wantAmount, cmd.Amount.String())
			require.Equal(t, tt.wantUnit, cmd.Unit)
		})
	}
}

func TestParseMessageCommands(t *testing.T) {
	t.Parallel()

	p := newTestParser()

	tests := []struct {
		name     string
		body     string
		wantKind models.ActionKind
	}{
		{name: "register", body: "register", wantKind: models.KindRegister},
		{name: "register with plus", body: "+register", wantKind: models.KindRegister},
		{name: "register padded", body: "  register  ", wantKind: models.KindRegister},
		{name: "info", body: "info", wantKind: models.KindInfo},
		{name: "history", body: "history", wantKind: models.KindHistory},
		{name: "accept", body: "accept", wantKind: models.KindAccept},
		{name: "decline", body: "decline", wantKind: models.KindDecline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, ok := p.Parse(message("hi", tt.body))
			require.True(t, ok)
			require.Equal(t, tt.wantKind, cmd.Kind)
		})
	}
}

func TestParseMessageTip(t *testing.T) {
	t.Parallel()

	p := newTestParser()

	cmd, ok := p.Parse(message("tip", "tip @bob 3.50"))
	require.True(t, ok)
	require.Equal(t, models.KindTip, cmd.Kind)
	require.Equal(t, "bob", cmd.To)
	require.Equal(t, "3.5", cmd.Amount.String())
}

func TestParseWithdraw(t *testing.T) {
	t.Parallel()

	p := newTestParser()

	t.Run("valid withdraw", func(t *testing.T) {
		t.Parallel()
		cmd, ok := p.Parse(message("withdraw", "withdraw LQTpS3VaYTjCr4s9Y1t5zbeY26zevf7Fb3 5"))
		require.True(t, ok)
		require.Equal(t, models.KindWithdraw, cmd.Kind)
		require.Equal(t, "LQTpS3VaYTjCr4s9Y1t5zbeY26zevf7Fb3", cmd.Address)
		require.Equal(t, "5", cmd.Amount.String())
	})

	t.Run("address too short", func(t *testing.T) {
		t.Parallel()
		_, ok := p.Parse(message("withdraw", "withdraw abc123 5"))
		require.False(t, ok)
	})

	t.Run("missing amount", func(t *testing.T) {
		t.Parallel()
		_, ok := p.Parse(message("withdraw", "withdraw LQTpS3VaYTjCr4s9Y1t5zbeY26zevf7Fb3"))
		require.False(t, ok)
	})
}

func TestCommentRulesDoNotMatchMessages(t *testing.T) {
	t.Parallel()

	p := newTestParser()

	// "register" is a private-message command; the same text in a comment
	// means nothing.
	_, ok := p.Parse(comment("register"))
	require.False(t, ok)

	// The public mention grammar is comment-only.
	_, ok = p.Parse(message("hi", "+/u/cointipbot @bob 1.5"))
	require.False(t, ok)
}

func TestFirstMatchingRuleWins(t *testing.T) {
	t.Parallel()

	p := newTestParser()

	// A body that is both a valid tip and contains a keyword resolves by
	// rule order.
	cmd, ok := p.Parse(message("tip", "tip @bob 1"))
	require.True(t, ok)
	require.Equal(t, models.KindTip, cmd.Kind)
}
