// Package token creates the per-token records.
package token

import (
	"context"
	"fmt"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/fixedpoint"
	"meme-token-ledger/internal/ledger"
	"meme-token-ledger/internal/solana"
)

// NewState builds the initial records for mint created by creator at now:
// default rates, liquidity locked for LiquidityLockPeriod, the full initial
// supply circulating, default governance thresholds and analytics seeded
// with the creator as the only holder.
func NewState(creator, mint solana.Pubkey, now int64) (*domain.TokenState, error) {
	unlock, err := fixedpoint.AddInt64(now, domain.LiquidityLockPeriod)
	if err != nil {
		return nil, fmt.Errorf("liquidity unlock time: %w", domain.ErrArithmeticOverflow)
	}

	cfg := &domain.TokenConfig{
		Creator:             creator,
		Mint:                mint,
		LiquidityUnlockTime: unlock,
		TotalSupply:         domain.InitialSupply,
		CirculatingSupply:   domain.InitialSupply,
		TransactionFeeBps:   domain.DefaultTransactionFeeBps,
		BurnRateBps:         domain.DefaultBurnRateBps,
		RewardRateBps:       domain.DefaultRewardRateBps,
		MaxWalletBps:        domain.DefaultMaxWalletBps,
		MaxTxBps:            domain.DefaultMaxTxBps,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	analytics := domain.NewAnalytics(mint)
	analytics.UniqueHolders = 1

	return &domain.TokenState{
		Config:     cfg,
		RewardPool: domain.NewRewardPool(mint, now),
		Governance: domain.NewGovernanceConfig(mint),
		Analytics:  analytics,
	}, nil
}

// Initialize builds the initial records and mints InitialSupply to creator
// through l. It carries no re-initialization guard; persisting the returned
// state is what makes a mint's records unique.
func Initialize(ctx context.Context, l ledger.Ledger, creator, mint solana.Pubkey, now int64) (*domain.TokenState, domain.TokenInitialized, error) {
	state, err := NewState(creator, mint, now)
	if err != nil {
		return nil, domain.TokenInitialized{}, err
	}
	ev, err := MintInitialSupply(ctx, l, state, now)
	if err != nil {
		return nil, domain.TokenInitialized{}, err
	}
	return state, ev, nil
}

// MintInitialSupply mints InitialSupply of state's mint to its creator and
// returns the TokenInitialized event.
func MintInitialSupply(ctx context.Context, l ledger.Ledger, state *domain.TokenState, now int64) (domain.TokenInitialized, error) {
	cfg := state.Config
	if err := l.MintTo(ctx, cfg.Mint, cfg.Creator, domain.InitialSupply); err != nil {
		return domain.TokenInitialized{}, fmt.Errorf("mint initial supply: %w", err)
	}

	return domain.TokenInitialized{
		Mint:                cfg.Mint,
		Creator:             cfg.Creator,
		InitialSupply:       domain.InitialSupply,
		LiquidityUnlockTime: cfg.LiquidityUnlockTime,
		Timestamp:           now,
	}, nil
}
