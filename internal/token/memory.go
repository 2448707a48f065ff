package token

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Memory is an in-memory token for demo/development mode and tests.
// Balances are minted directly; transfers are strict (no overdraft).
type Memory struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// NewMemory creates an empty in-memory token.
func NewMemory() *Memory {
	return &Memory{balances: make(map[common.Address]*big.Int)}
}

// Mint credits addr with amount out of thin air.
func (m *Memory) Mint(addr common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[addr]
	if !ok {
		bal = big.NewInt(0)
		m.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

func (m *Memory) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrTransferFailed
	}
	if amount.Sign() == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.balances[from]
	if !ok || src.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	dst, ok := m.balances[to]
	if !ok {
		dst = big.NewInt(0)
		m.balances[to] = dst
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}

func (m *Memory) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal, ok := m.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

var _ Token = (*Memory)(nil)
