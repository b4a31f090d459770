package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/analytics"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/rewards"
	"meme-token-ledger/internal/solana"
)

// Settle settles holder at the balance reported by the oracle.
func (s *Service) Settle(ctx context.Context, mint, holder solana.Pubkey) (rewards.SettleResult, error) {
	balance, err := s.balance(ctx, mint, holder)
	if err != nil {
		return rewards.SettleResult{}, err
	}
	return s.SettleBalance(ctx, mint, holder, balance)
}

// SettleBalance settles holder at newBalance, the holder's full balance.
func (s *Service) SettleBalance(ctx context.Context, mint, holder solana.Pubkey, newBalance uint64) (res rewards.SettleResult, err error) {
	start := time.Now()
	defer func() { observe("settle", start, err) }()

	now, err := s.now(ctx)
	if err != nil {
		return rewards.SettleResult{}, err
	}
	return s.settleAt(ctx, mint, holder, newBalance, now)
}

func (s *Service) settleAt(ctx context.Context, mint, holder solana.Pubkey, newBalance uint64, now int64) (rewards.SettleResult, error) {
	var (
		res     rewards.SettleResult
		creator solana.Pubkey
		holders int
	)
	unlock := s.locks.lock(rewardsLock(mint))
	defer unlock()

	err := s.store.UpdateRewards(ctx, mint, func(pool *domain.RewardPool, cfg *domain.TokenConfig) error {
		var err error
		res, err = rewards.Settle(pool, holder, newBalance, now)
		creator = cfg.Creator
		holders = len(pool.Holders)
		return err
	})
	if err != nil {
		return rewards.SettleResult{}, fmt.Errorf("settle %s: %w", holder, err)
	}

	s.afterSettle(ctx, mint, creator, holders, res, now)
	return res, nil
}

// afterSettle emits the settlement event and counts a new holder. The
// creator is counted at initialization.
func (s *Service) afterSettle(ctx context.Context, mint, creator solana.Pubkey, holders int, res rewards.SettleResult, now int64) {
	observability.RecordSettlement(mint.String(), holders, res.RewardPerTokenStored)
	s.emitter.Emit(ctx, mint, now, res.Event(now))

	if res.NewHolder && res.Holder.Address != creator {
		s.updateAnalytics(ctx, mint, "settle", analytics.RecordHolder)
	}

	s.log.WithFields(logrus.Fields{
		"mint":       mint.String(),
		"holder":     res.Holder.Address.String(),
		"delta":      res.Delta,
		"new_holder": res.NewHolder,
	}).Debug("holder settled")
}

// Fund moves amount from funder into the reward vault and adds it to the
// undistributed reward balance.
func (s *Service) Fund(ctx context.Context, mint, funder solana.Pubkey, amount uint64) (err error) {
	start := time.Now()
	defer func() { observe("fund", start, err) }()

	if amount == 0 {
		return fmt.Errorf("fund amount: %w", domain.ErrInvalidAmount)
	}
	vault, err := s.vault(mint)
	if err != nil {
		return err
	}
	if err := s.ledger.Transfer(ctx, mint, funder, vault, amount); err != nil {
		return fmt.Errorf("transfer to reward vault: %w", err)
	}

	err = s.store.UpdateRewards(ctx, mint, func(pool *domain.RewardPool, _ *domain.TokenConfig) error {
		return rewards.Fund(pool, amount)
	})
	if err != nil {
		if rerr := s.ledger.Transfer(ctx, mint, vault, funder, amount); rerr != nil {
			s.log.WithError(rerr).WithFields(logrus.Fields{
				"mint":   mint.String(),
				"funder": funder.String(),
				"amount": amount,
			}).Error("refund reward vault transfer")
		}
		return fmt.Errorf("fund reward pool: %w", err)
	}

	observability.RecordFund(amount)
	s.log.WithFields(logrus.Fields{
		"mint":   mint.String(),
		"funder": funder.String(),
		"amount": amount,
	}).Info("reward pool funded")
	return nil
}

// Stake settles holder and moves amount of its balance into the staked position.
func (s *Service) Stake(ctx context.Context, mint, holder solana.Pubkey, amount uint64) (rewards.SettleResult, error) {
	return s.changeStake(ctx, "stake", mint, holder, amount, rewards.Stake)
}

// Unstake settles holder and releases amount from its staked position.
func (s *Service) Unstake(ctx context.Context, mint, holder solana.Pubkey, amount uint64) (rewards.SettleResult, error) {
	return s.changeStake(ctx, "unstake", mint, holder, amount, rewards.Unstake)
}

type stakeFunc func(pool *domain.RewardPool, holder solana.Pubkey, balance, amount uint64, now int64) (rewards.SettleResult, error)

func (s *Service) changeStake(ctx context.Context, op string, mint, holder solana.Pubkey, amount uint64, apply stakeFunc) (res rewards.SettleResult, err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	now, err := s.now(ctx)
	if err != nil {
		return rewards.SettleResult{}, err
	}
	balance, err := s.balance(ctx, mint, holder)
	if err != nil {
		return rewards.SettleResult{}, err
	}

	var (
		creator     solana.Pubkey
		holders     int
		totalStaked uint64
	)
	unlock := s.locks.lock(rewardsLock(mint))
	defer unlock()

	err = s.store.UpdateRewards(ctx, mint, func(pool *domain.RewardPool, cfg *domain.TokenConfig) error {
		var err error
		res, err = apply(pool, holder, balance, amount, now)
		creator = cfg.Creator
		holders = len(pool.Holders)
		totalStaked = pool.TotalStaked
		return err
	})
	if err != nil {
		return rewards.SettleResult{}, fmt.Errorf("%s %d for %s: %w", op, amount, holder, err)
	}

	s.afterSettle(ctx, mint, creator, holders, res, now)
	s.emitter.Emit(ctx, mint, now, domain.StakeChanged{
		Holder:       holder,
		StakedAmount: res.Holder.StakedAmount,
		TotalStaked:  totalStaked,
		Timestamp:    now,
	})
	return res, nil
}

// Claim settles holder and pays its unclaimed rewards out of the reward
// vault. A failed payout returns the amount to the holder's unclaimed rewards.
func (s *Service) Claim(ctx context.Context, mint, holder solana.Pubkey) (amount uint64, err error) {
	start := time.Now()
	defer func() { observe("claim", start, err) }()

	now, err := s.now(ctx)
	if err != nil {
		return 0, err
	}
	balance, err := s.balance(ctx, mint, holder)
	if err != nil {
		return 0, err
	}
	vault, err := s.vault(mint)
	if err != nil {
		return 0, err
	}

	var (
		res     rewards.SettleResult
		creator solana.Pubkey
		holders int
	)
	unlock := s.locks.lock(rewardsLock(mint))
	defer unlock()

	err = s.store.UpdateRewards(ctx, mint, func(pool *domain.RewardPool, cfg *domain.TokenConfig) error {
		var err error
		amount, res, err = rewards.Claim(pool, cfg, holder, balance, now)
		creator = cfg.Creator
		holders = len(pool.Holders)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("claim for %s: %w", holder, err)
	}
	s.afterSettle(ctx, mint, creator, holders, res, now)

	if amount == 0 {
		return 0, nil
	}
	if err := s.ledger.Transfer(ctx, mint, vault, holder, amount); err != nil {
		rerr := s.store.UpdateRewards(ctx, mint, func(pool *domain.RewardPool, cfg *domain.TokenConfig) error {
			return rewards.Refund(pool, cfg, holder, amount)
		})
		if rerr != nil {
			s.log.WithError(rerr).WithFields(logrus.Fields{
				"mint":   mint.String(),
				"holder": holder.String(),
				"amount": amount,
			}).Error("restore unclaimed rewards")
		}
		return 0, fmt.Errorf("pay out from reward vault: %w", err)
	}

	observability.RecordClaim(amount)
	s.emitter.Emit(ctx, mint, now, domain.RewardsClaimed{
		Holder:    holder,
		Amount:    amount,
		Timestamp: now,
	})
	return amount, nil
}
