package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/analytics"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/rewards"
	"meme-token-ledger/internal/solana"
)

// TransferResult holds the settlements of both parties of a transfer.
type TransferResult struct {
	From rewards.SettleResult `json:"from"`
	To   rewards.SettleResult `json:"to"`
}

// Transfer moves amount from one holder to another through the ledger and
// settles both at their new balances. No fee, burn or size limit is applied.
// If either settlement fails the ledger transfer is reversed and the sender
// is settled again at its restored balance.
func (s *Service) Transfer(ctx context.Context, mint, from, to solana.Pubkey, amount uint64) (res TransferResult, err error) {
	start := time.Now()
	defer func() { observe("transfer", start, err) }()

	if amount == 0 {
		return TransferResult{}, fmt.Errorf("transfer amount: %w", domain.ErrInvalidAmount)
	}
	state, err := s.store.GetToken(ctx, mint)
	if err != nil {
		return TransferResult{}, err
	}
	if err := checkHolderCapacity(state.RewardPool, from, to); err != nil {
		return TransferResult{}, fmt.Errorf("transfer %d from %s to %s: %w", amount, from, to, err)
	}
	now, err := s.now(ctx)
	if err != nil {
		return TransferResult{}, err
	}

	if err := s.ledger.Transfer(ctx, mint, from, to, amount); err != nil {
		return TransferResult{}, fmt.Errorf("transfer %d from %s to %s: %w", amount, from, to, err)
	}

	res, fromSettled, err := s.settleParties(ctx, mint, from, to, now)
	if err != nil {
		s.reverseTransfer(ctx, mint, from, to, amount, now, fromSettled)
		return TransferResult{}, err
	}

	s.updateAnalytics(ctx, mint, "transfer", func(a *domain.Analytics) error {
		return analytics.RecordVolume(a, now, amount)
	})
	return res, nil
}

// checkHolderCapacity fails with ErrCapacityExceeded when the parties not yet
// tracked by pool would not fit.
func checkHolderCapacity(pool *domain.RewardPool, parties ...solana.Pubkey) error {
	added := 0
	for i, p := range parties {
		if pool.FindHolder(p) >= 0 || slices.Contains(parties[:i], p) {
			continue
		}
		added++
	}
	if len(pool.Holders)+added > domain.MaxHolders {
		return fmt.Errorf("reward pool holders (%d): %w", domain.MaxHolders, domain.ErrCapacityExceeded)
	}
	return nil
}

// settleParties settles both parties at their oracle balances. fromSettled
// reports whether the sender's settlement was committed.
func (s *Service) settleParties(ctx context.Context, mint, from, to solana.Pubkey, now int64) (res TransferResult, fromSettled bool, err error) {
	fromBalance, err := s.balance(ctx, mint, from)
	if err != nil {
		return TransferResult{}, false, err
	}
	toBalance, err := s.balance(ctx, mint, to)
	if err != nil {
		return TransferResult{}, false, err
	}
	if res.From, err = s.settleAt(ctx, mint, from, fromBalance, now); err != nil {
		return TransferResult{}, false, err
	}
	if res.To, err = s.settleAt(ctx, mint, to, toBalance, now); err != nil {
		return TransferResult{}, true, err
	}
	return res, true, nil
}

// reverseTransfer moves amount back to from after a failed settlement and
// resettles from if its lowered balance was already recorded.
func (s *Service) reverseTransfer(ctx context.Context, mint, from, to solana.Pubkey, amount uint64, now int64, resettle bool) {
	log := s.log.WithFields(logrus.Fields{
		"mint":   mint.String(),
		"from":   from.String(),
		"to":     to.String(),
		"amount": amount,
	})
	if err := s.ledger.Transfer(ctx, mint, to, from, amount); err != nil {
		log.WithError(err).Error("reverse transfer")
		return
	}
	if !resettle {
		return
	}
	balance, err := s.balance(ctx, mint, from)
	if err != nil {
		log.WithError(err).Error("read balance after reversed transfer")
		return
	}
	if _, err := s.settleAt(ctx, mint, from, balance, now); err != nil {
		log.WithError(err).Error("resettle sender after reversed transfer")
	}
}

// RecordPriceImpact appends a price-impact sample taken now.
func (s *Service) RecordPriceImpact(ctx context.Context, mint solana.Pubkey, amount uint64, impactBps int16) (err error) {
	start := time.Now()
	defer func() { observe("record_price_impact", start, err) }()

	now, err := s.now(ctx)
	if err != nil {
		return err
	}
	entry := domain.PriceImpactEntry{Timestamp: now, Amount: amount, PriceImpactBps: impactBps}
	return s.store.UpdateAnalytics(ctx, mint, func(a *domain.Analytics) error {
		return analytics.RecordPriceImpact(a, entry)
	})
}
