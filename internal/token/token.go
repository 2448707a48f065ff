// Package token defines the external stablecoin interface the engine
// settles against, and its implementations.
//
// The engine only ever delegates movement: it never owns token balances
// beyond its custody address. A failed transfer fails the whole enclosing
// entry point.
package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrTransferFailed      = errors.New("token: transfer failed")
)

// Token moves stablecoin between principals. Transfer is atomic with the
// enclosing entry point: it either succeeds or the entry point reverts.
type Token interface {
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
}
