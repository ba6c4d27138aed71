// Package coin talks to the coin daemon's JSON-RPC interface.
package coin

import (
	"context"

	"github.com/shopspring/decimal"
)

// Backend is the consumed coin daemon interface. Send is irreversible: the
// on-chain transfer happens the moment it returns a txid.
type Backend interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	Send(ctx context.Context, address string, amount decimal.Decimal) (txid string, err error)
	ValidateAddress(ctx context.Context, address string) (bool, error)
	NewAddress(ctx context.Context, label string) (string, error)
}
