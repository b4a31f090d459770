package ledger

import (
	"context"
	"fmt"

	"meme-token-ledger/internal/solana"
)

// RPCOracle reads SPL token balances from a Solana RPC node. An owner's
// balance is the balance of its associated token account.
type RPCOracle struct {
	client solana.RPCClient
}

// NewRPCOracle creates an oracle backed by client.
func NewRPCOracle(client solana.RPCClient) *RPCOracle {
	return &RPCOracle{client: client}
}

var _ BalanceOracle = (*RPCOracle)(nil)

// BalanceOf returns the balance of owner's associated token account for
// mint. A missing account has zero balance.
func (o *RPCOracle) BalanceOf(ctx context.Context, mint, owner solana.Pubkey) (uint64, error) {
	ata, err := solana.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("derive token account for %s: %w", owner, err)
	}

	amount, err := o.client.GetTokenAccountBalance(ctx, ata)
	if err != nil {
		if solana.IsAccountNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance of %s: %w", ata, err)
	}
	return amount.Amount, nil
}

// TotalSupply returns the on-chain supply of mint.
func (o *RPCOracle) TotalSupply(ctx context.Context, mint solana.Pubkey) (uint64, error) {
	amount, err := o.client.GetTokenSupply(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("get supply of %s: %w", mint, err)
	}
	return amount.Amount, nil
}
