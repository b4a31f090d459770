package token

import (
	"context"
	"errors"
	"math"
	"testing"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/ledger"
	"meme-token-ledger/internal/solana"
)

var (
	creator = solana.Pubkey{1}
	mint    = solana.Pubkey{0xAA}
)

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemory()

	state, ev, err := Initialize(ctx, l, creator, mint, 1_700_000_000)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	cfg := state.Config
	if cfg.TransactionFeeBps != 100 || cfg.BurnRateBps != 50 || cfg.RewardRateBps != 50 ||
		cfg.MaxWalletBps != 200 || cfg.MaxTxBps != 100 {
		t.Errorf("unexpected default rates: %+v", cfg)
	}
	if cfg.LiquidityUnlockTime != 1_700_000_000+180*24*60*60 {
		t.Errorf("LiquidityUnlockTime = %d", cfg.LiquidityUnlockTime)
	}
	if cfg.TotalSupply != domain.InitialSupply || cfg.CirculatingSupply != domain.InitialSupply {
		t.Errorf("supply = %d / %d", cfg.TotalSupply, cfg.CirculatingSupply)
	}

	if state.Governance.MinProposalThresholdBps != 100 || state.Governance.MinQuorumBps != 1000 {
		t.Errorf("unexpected governance thresholds: %+v", state.Governance)
	}
	if state.Analytics.UniqueHolders != 1 || state.Analytics.TotalTransactions != 0 {
		t.Errorf("unexpected analytics: %+v", state.Analytics)
	}
	if state.RewardPool.LastDistributionTime != 1_700_000_000 || len(state.RewardPool.Holders) != 0 {
		t.Errorf("unexpected reward pool: %+v", state.RewardPool)
	}

	balance, _ := l.BalanceOf(ctx, mint, creator)
	if balance != domain.InitialSupply {
		t.Errorf("creator balance = %d", balance)
	}

	if ev.Mint != mint || ev.Creator != creator || ev.InitialSupply != domain.InitialSupply {
		t.Errorf("unexpected event: %+v", ev)
	}
}

type failingLedger struct{}

func (failingLedger) MintTo(context.Context, solana.Pubkey, solana.Pubkey, uint64) error {
	return errors.New("ledger unavailable")
}

func (failingLedger) Transfer(context.Context, solana.Pubkey, solana.Pubkey, solana.Pubkey, uint64) error {
	return errors.New("ledger unavailable")
}

func TestInitialize_Failures(t *testing.T) {
	if _, _, err := Initialize(context.Background(), failingLedger{}, creator, mint, 0); err == nil {
		t.Error("expected ledger error")
	}

	if _, err := NewState(creator, mint, math.MaxInt64); !errors.Is(err, domain.ErrArithmeticOverflow) {
		t.Errorf("expected ErrArithmeticOverflow, got %v", err)
	}
}
