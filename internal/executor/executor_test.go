package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/tipbot/internal/config"
	"gitlab.com/yelinaung/tipbot/internal/database"
	"gitlab.com/yelinaung/tipbot/internal/models"
	"gitlab.com/yelinaung/tipbot/internal/parser"
	"gitlab.com/yelinaung/tipbot/internal/repository"
	"gitlab.com/yelinaung/tipbot/internal/source"
)

// fakeCoin is an in-memory coin daemon.
type fakeCoin struct {
	balance      decimal.Decimal
	sendErr      error
	invalidAddrs map[string]bool
	sent         []string
	newAddrCalls int
}

func (f *fakeCoin) Balance(ctx context.Context) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeCoin) Send(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, address+":"+amount.String())
	return fmt.Sprintf("txid-%d", len(f.sent)), nil
}

func (f *fakeCoin) ValidateAddress(ctx context.Context, address string) (bool, error) {
	return !f.invalidAddrs[address], nil
}

func (f *fakeCoin) NewAddress(ctx context.Context, label string) (string, error) {
	f.newAddrCalls++
	return "addr-" + label, nil
}

// fakeInbox records replies.
type fakeInbox struct {
	replies []sentReply
}

type sentReply struct {
	To      source.Recipient
	Subject string
	Body    string
}

func (f *fakeInbox) FetchUnread(ctx context.Context, limit int) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeInbox) MarkRead(ctx context.Context, messageID string) error { return nil }

func (f *fakeInbox) Reply(ctx context.Context, to source.Recipient, subject, body string) error {
	f.replies = append(f.replies, sentReply{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeInbox) lastReply(t *testing.T) sentReply {
	t.Helper()
	require.NotEmpty(t, f.replies)
	return f.replies[len(f.replies)-1]
}

type testEnv struct {
	exec    *Executor
	users   *repository.UserRepository
	actions *repository.ActionRepository
	coin    *fakeCoin
	inbox   *fakeInbox
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pool := database.TestPool(t)
	database.CleanupTables(t, pool)

	cfg := &config.Config{
		BotUsername:        "cointipbot",
		CoinSymbol:         "Ł",
		NetworkFee:         decimal.RequireFromString("0.001"),
		ExpirePendingAfter: 72 * time.Hour,
		SendSorryReply:     true,
	}
	c := &fakeCoin{invalidAddrs: map[string]bool{}}
	inbox := &fakeInbox{}

	return &testEnv{
		exec:    New(pool, c, inbox, cfg),
		users:   repository.NewUserRepository(pool),
		actions: repository.NewActionRepository(pool),
		coin:    c,
		inbox:   inbox,
		cfg:     cfg,
	}
}

func (env *testEnv) register(t *testing.T, username, balance string) {
	t.Helper()
	ctx := context.Background()
	_, err := env.users.Register(ctx, username, "addr-"+username)
	require.NoError(t, err)
	if balance != "0" {
		require.NoError(t, env.users.Credit(ctx, username, decimal.RequireFromString(balance)))
	}
}

func (env *testEnv) balance(t *testing.T, username string) decimal.Decimal {
	t.Helper()
	user, err := env.users.GetByUsername(context.Background(), username)
	require.NoError(t, err)
	return user.Balance
}

func (env *testEnv) actionState(t *testing.T, messageID string) models.ActionState {
	t.Helper()
	action, err := env.actions.GetBySourceMessageID(context.Background(), messageID)
	require.NoError(t, err)
	return action.State
}

func tipCommand(to, amount string) *parser.Command {
	return &parser.Command{
		Kind:   models.KindTip,
		To:     to,
		Amount: decimal.RequireFromString(amount),
	}
}

func tipMessage(id, author string) models.Message {
	return models.Message{ID: id, Author: author, WasComment: true}
}

func TestExecuteTip(t *testing.T) {
	ctx := context.Background()

	t.Run("moves balance between registered users", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")
		env.register(t, "bob", "0")

		res, err := env.exec.Execute(ctx, tipMessage("m1", "alice"), tipCommand("bob", "1.5"))
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("8.5")))
		require.True(t, env.balance(t, "bob").Equal(decimal.RequireFromString("1.5")))
		require.Equal(t, models.StateCompleted, env.actionState(t, "m1"))

		// Comment tips are answered in thread.
		reply := env.inbox.lastReply(t)
		require.Equal(t, "m1", reply.To.MessageID)
		require.Contains(t, reply.Body, "bob")
	})

	t.Run("same message twice moves balance once", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")
		env.register(t, "bob", "0")

		msg := tipMessage("m1", "alice")
		first, err := env.exec.Execute(ctx, msg, tipCommand("bob", "2"))
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, first.Outcome)

		second, err := env.exec.Execute(ctx, msg, tipCommand("bob", "2"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDuplicate, second.Outcome)

		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("8")))
		require.True(t, env.balance(t, "bob").Equal(decimal.RequireFromString("2")))
	})

	t.Run("insufficient balance declines and moves nothing", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "1")
		env.register(t, "bob", "0")

		res, err := env.exec.Execute(ctx, tipMessage("m1", "alice"), tipCommand("bob", "1.00000001"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)

		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("1")))
		require.True(t, env.balance(t, "bob").IsZero())
		require.Equal(t, models.StateDeclined, env.actionState(t, "m1"))
	})

	t.Run("self tip declined", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")

		res, err := env.exec.Execute(ctx, tipMessage("m1", "alice"), tipCommand("Alice", "1"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)
		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("10")))
	})

	t.Run("tip to the bot declined", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")

		res, err := env.exec.Execute(ctx, tipMessage("m1", "alice"), tipCommand("cointipbot", "1"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)
	})

	t.Run("unregistered sender declined", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob", "0")

		res, err := env.exec.Execute(ctx, tipMessage("m1", "alice"), tipCommand("bob", "1"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)
		require.Contains(t, env.inbox.lastReply(t).Body, "register")
	})

	t.Run("unregistered recipient leaves tip pending", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")

		res, err := env.exec.Execute(ctx, tipMessage("m1", "alice"), tipCommand("bob", "3"))
		require.NoError(t, err)
		require.Equal(t, OutcomePending, res.Outcome)

		// Nothing moves until the recipient accepts.
		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("10")))
		require.Equal(t, models.StatePending, env.actionState(t, "m1"))

		// The recipient gets the invitation by private message.
		reply := env.inbox.lastReply(t)
		require.Equal(t, "bob", reply.To.Username)
		require.Contains(t, reply.Body, "accept")
	})

	t.Run("auto register completes immediately", func(t *testing.T) {
		env := newTestEnv(t)
		env.cfg.AutoRegisterOnReceive = true
		env.register(t, "alice", "10")

		res, err := env.exec.Execute(ctx, tipMessage("m1", "alice"), tipCommand("bob", "3"))
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		bob, err := env.users.GetByUsername(ctx, "bob")
		require.NoError(t, err)
		require.Equal(t, "addr-bob", bob.Address)
		require.True(t, bob.Balance.Equal(decimal.RequireFromString("3")))
	})
}

func TestExecuteAcceptDecline(t *testing.T) {
	ctx := context.Background()

	pendingTip := func(t *testing.T, env *testEnv, id, from, to, amount string) {
		t.Helper()
		res, err := env.exec.Execute(ctx, tipMessage(id, from), tipCommand(to, amount))
		require.NoError(t, err)
		require.Equal(t, OutcomePending, res.Outcome)
	}

	t.Run("accept registers and settles pending tips oldest first", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")
		env.register(t, "carol", "5")
		pendingTip(t, env, "m1", "alice", "bob", "2")
		pendingTip(t, env, "m2", "carol", "bob", "1")

		res, err := env.exec.Execute(ctx, models.Message{ID: "m3", Author: "bob"},
			&parser.Command{Kind: models.KindAccept})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("8")))
		require.True(t, env.balance(t, "carol").Equal(decimal.RequireFromString("4")))
		require.True(t, env.balance(t, "bob").Equal(decimal.RequireFromString("3")))
		require.Equal(t, models.StateCompleted, env.actionState(t, "m1"))
		require.Equal(t, models.StateCompleted, env.actionState(t, "m2"))

		bob, err := env.users.GetByUsername(ctx, "bob")
		require.NoError(t, err)
		require.Equal(t, "addr-bob", bob.Address)
	})

	t.Run("accept declines tips the sender can no longer cover", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")
		pendingTip(t, env, "m1", "alice", "bob", "4")

		// Alice spends her balance before bob accepts.
		require.NoError(t, env.users.Debit(ctx, "alice", decimal.RequireFromString("9")))

		res, err := env.exec.Execute(ctx, models.Message{ID: "m2", Author: "bob"},
			&parser.Command{Kind: models.KindAccept})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		require.Equal(t, models.StateDeclined, env.actionState(t, "m1"))
		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("1")))
		require.True(t, env.balance(t, "bob").IsZero())
	})

	t.Run("accept with nothing pending declined", func(t *testing.T) {
		env := newTestEnv(t)

		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "bob"},
			&parser.Command{Kind: models.KindAccept})
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)
	})

	t.Run("decline refuses all pending tips without moving balance", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")
		pendingTip(t, env, "m1", "alice", "bob", "2")

		res, err := env.exec.Execute(ctx, models.Message{ID: "m2", Author: "bob"},
			&parser.Command{Kind: models.KindDecline})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		require.Equal(t, models.StateDeclined, env.actionState(t, "m1"))
		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("10")))

		// The decliner is still unregistered.
		registered, err := env.users.IsRegistered(ctx, "bob")
		require.NoError(t, err)
		require.False(t, registered)

		// The original sender is told.
		var senderNotified bool
		for _, r := range env.inbox.replies {
			if r.To.Username == "alice" && strings.Contains(r.Body, "declined") {
				senderNotified = true
			}
		}
		require.True(t, senderNotified)
	})
}

func TestExecuteWithdraw(t *testing.T) {
	ctx := context.Background()
	const address = "LQTpS3VaYTjCr4s9Y1t5zbeY26zevf7Fb3"

	withdrawCommand := func(amount string) *parser.Command {
		return &parser.Command{
			Kind:    models.KindWithdraw,
			Address: address,
			Amount:  decimal.RequireFromString(amount),
		}
	}

	t.Run("debits amount plus fee and sends", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")

		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"}, withdrawCommand("5"))
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("4.999")))
		require.Equal(t, []string{address + ":5"}, env.coin.sent)
		require.Equal(t, models.StateCompleted, env.actionState(t, "m1"))
		require.Contains(t, env.inbox.lastReply(t).Body, "txid-1")
	})

	t.Run("insufficient balance including fee declines", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "5")

		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"}, withdrawCommand("5"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)

		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("5")))
		require.Empty(t, env.coin.sent)
	})

	t.Run("invalid address declines", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")
		env.coin.invalidAddrs[address] = true

		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"}, withdrawCommand("5"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)
		require.Empty(t, env.coin.sent)
	})

	t.Run("failed send rolls back the debit and dedups redelivery", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")
		env.coin.sendErr = errors.New("daemon unreachable")

		_, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"}, withdrawCommand("5"))
		require.Error(t, err)

		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("10")))
		require.Equal(t, models.StateFailed, env.actionState(t, "m1"))

		// The daemon comes back and the message is delivered again: the failed
		// record blocks a second irreversible send.
		env.coin.sendErr = nil
		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"}, withdrawCommand("5"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDuplicate, res.Outcome)
		require.Empty(t, env.coin.sent)
		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("10")))
	})

	t.Run("unregistered user declined", func(t *testing.T) {
		env := newTestEnv(t)

		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"}, withdrawCommand("5"))
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)
	})
}

func TestExecuteRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account with fresh address", func(t *testing.T) {
		env := newTestEnv(t)

		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"},
			&parser.Command{Kind: models.KindRegister})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		user, err := env.users.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "addr-alice", user.Address)
		require.Contains(t, env.inbox.lastReply(t).Body, "addr-alice")
	})

	t.Run("registering again keeps the account", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"},
			&parser.Command{Kind: models.KindRegister})
		require.NoError(t, err)
		require.NoError(t, env.users.Credit(ctx, "alice", decimal.RequireFromString("2")))

		res, err := env.exec.Execute(ctx, models.Message{ID: "m2", Author: "alice"},
			&parser.Command{Kind: models.KindRegister})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		// No second daemon address for an existing account.
		require.Equal(t, 1, env.coin.newAddrCalls)
		require.True(t, env.balance(t, "alice").Equal(decimal.RequireFromString("2")))
	})
}

func TestExecuteInfoHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("info replies with balance and address", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "7.5")

		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"},
			&parser.Command{Kind: models.KindInfo})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		reply := env.inbox.lastReply(t)
		require.Contains(t, reply.Body, "7.5")
		require.Contains(t, reply.Body, "addr-alice")
	})

	t.Run("info for unregistered user declined", func(t *testing.T) {
		env := newTestEnv(t)

		res, err := env.exec.Execute(ctx, models.Message{ID: "m1", Author: "alice"},
			&parser.Command{Kind: models.KindInfo})
		require.NoError(t, err)
		require.Equal(t, OutcomeDeclined, res.Outcome)
	})

	t.Run("history replies with the user's actions", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "alice", "10")
		env.register(t, "bob", "0")

		_, err := env.exec.Execute(ctx, tipMessage("m1", "alice"), tipCommand("bob", "1"))
		require.NoError(t, err)

		res, err := env.exec.Execute(ctx, models.Message{ID: "m2", Author: "alice"},
			&parser.Command{Kind: models.KindHistory})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, res.Outcome)

		reply := env.inbox.lastReply(t)
		require.Contains(t, reply.Body, "alice")
		require.Contains(t, reply.Body, "bob")
	})
}
