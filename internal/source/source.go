// Package source talks to the platform inbox: fetching unread messages,
// marking them read, and sending replies.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"

	"gitlab.com/yelinaung/tipbot/internal/models"
)

// Client is the consumed inbox interface. FetchUnread returns messages
// oldest-first; the upstream may duplicate deliveries, rate-limit, or become
// temporarily unreachable, all of which surface as transient errors.
type Client interface {
	FetchUnread(ctx context.Context, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID string) error
	Reply(ctx context.Context, to Recipient, subject, body string) error
}

// Recipient addresses a reply: either directly to a user by name, or in
// thread under the originating message.
type Recipient struct {
	Username  string
	MessageID string
}

// ToUser replies via a new private message.
func ToUser(username string) Recipient {
	return Recipient{Username: username}
}

// InThread replies under the originating message or comment.
func InThread(messageID string) Recipient {
	return Recipient{MessageID: messageID}
}

// TransientError marks an upstream failure worth retrying after a sleep:
// rate limits, timeouts, connection resets, upstream 5xx.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error chain contains a transient upstream
// failure, including raw network timeouts.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
