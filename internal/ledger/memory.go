package ledger

import (
	"context"
	"fmt"
	"sync"

	"meme-token-ledger/internal/fixedpoint"
	"meme-token-ledger/internal/solana"
)

// Memory is a thread-safe in-process ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[solana.Pubkey]map[solana.Pubkey]uint64
	supply   map[solana.Pubkey]uint64
}

// NewMemory creates an empty in-process ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[solana.Pubkey]map[solana.Pubkey]uint64),
		supply:   make(map[solana.Pubkey]uint64),
	}
}

// Compile-time interface checks.
var (
	_ Ledger        = (*Memory)(nil)
	_ BalanceOracle = (*Memory)(nil)
)

// MintTo issues amount new tokens of mint to owner.
func (m *Memory) MintTo(_ context.Context, mint, owner solana.Pubkey, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	supply, err := fixedpoint.Add(m.supply[mint], amount)
	if err != nil {
		return fmt.Errorf("mint %s supply: %w", mint, err)
	}
	accounts := m.accounts(mint)
	balance, err := fixedpoint.Add(accounts[owner], amount)
	if err != nil {
		return fmt.Errorf("mint %s owner %s balance: %w", mint, owner, err)
	}

	m.supply[mint] = supply
	accounts[owner] = balance
	return nil
}

// Transfer moves amount of mint between owners.
func (m *Memory) Transfer(_ context.Context, mint, from, to solana.Pubkey, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, ok := m.balances[mint]
	if !ok {
		return fmt.Errorf("mint %s: %w", mint, ErrUnknownMint)
	}
	if accounts[from] < amount {
		return fmt.Errorf("owner %s has %d, needs %d: %w", from, accounts[from], amount, ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	credited, err := fixedpoint.Add(accounts[to], amount)
	if err != nil {
		return fmt.Errorf("owner %s balance: %w", to, err)
	}

	accounts[from] -= amount
	accounts[to] = credited
	return nil
}

// BalanceOf returns the owner's balance of mint.
func (m *Memory) BalanceOf(_ context.Context, mint, owner solana.Pubkey) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[mint][owner], nil
}

// TotalSupply returns the issued supply of mint.
func (m *Memory) TotalSupply(_ context.Context, mint solana.Pubkey) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	supply, ok := m.supply[mint]
	if !ok {
		return 0, fmt.Errorf("mint %s: %w", mint, ErrUnknownMint)
	}
	return supply, nil
}

func (m *Memory) accounts(mint solana.Pubkey) map[solana.Pubkey]uint64 {
	accounts, ok := m.balances[mint]
	if !ok {
		accounts = make(map[solana.Pubkey]uint64)
		m.balances[mint] = accounts
	}
	return accounts
}
