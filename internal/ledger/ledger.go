// Package ledger defines the fungible-token ledger collaborators the core
// depends on and provides in-process and RPC-backed implementations.
package ledger

import (
	"context"
	"errors"

	"meme-token-ledger/internal/solana"
)

// Ledger errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownMint       = errors.New("unknown mint")
)

// Ledger moves tokens. Balances it reports are authoritative.
type Ledger interface {
	// MintTo issues amount new tokens of mint to owner.
	MintTo(ctx context.Context, mint, owner solana.Pubkey, amount uint64) error

	// Transfer moves amount of mint from one owner to another.
	Transfer(ctx context.Context, mint, from, to solana.Pubkey, amount uint64) error
}

// BalanceOracle reports balances used as vote, proposal and reward weights.
type BalanceOracle interface {
	// BalanceOf returns the owner's balance of mint. Unknown owners have zero.
	BalanceOf(ctx context.Context, mint, owner solana.Pubkey) (uint64, error)

	// TotalSupply returns the issued supply of mint.
	TotalSupply(ctx context.Context, mint solana.Pubkey) (uint64, error)
}
