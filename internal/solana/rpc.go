package solana

import "context"

// RPCClient defines the subset of the Solana JSON-RPC HTTP interface used by
// the ledger: SPL token balances, token supply and chain time.
type RPCClient interface {
	// GetTokenAccountBalance returns the balance of an SPL token account.
	GetTokenAccountBalance(ctx context.Context, account Pubkey) (*TokenAmount, error)

	// GetTokenSupply returns the total supply of an SPL token mint.
	GetTokenSupply(ctx context.Context, mint Pubkey) (*TokenAmount, error)

	// GetSlot returns the current slot.
	GetSlot(ctx context.Context) (int64, error)

	// GetBlockTime returns the estimated production time of a slot (Unix seconds).
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)
}
