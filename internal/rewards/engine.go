// Package rewards implements the reward-per-share accrual engine.
//
// The pool keeps a single fixed-point accumulator (reward per held token,
// scaled by domain.RewardPrecision). Each settlement advances the
// accumulator to the current instant and then settles one holder against
// it, so the cost of a settlement does not depend on the number of holders.
// Accrual is pull based: nothing advances unless Settle (or an operation
// that settles first) is called.
//
// A holder earns on its tracked balance, so the accumulator is spread over
// TotalStaked, the sum of all tracked balances. Settle keeps that sum in step
// with every balance it records. StakedAmount is the part of a balance the
// holder has locked; it is bounded by the balance and carries no extra weight.
package rewards

import (
	"fmt"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/fixedpoint"
	"meme-token-ledger/internal/solana"
)

// SettleResult describes the outcome of one settlement.
type SettleResult struct {
	Holder               domain.HolderInfo `json:"holder"`                  // holder record after settlement
	Delta                uint64            `json:"delta"`                   // rewards added to UnclaimedRewards by this call
	Increment            uint64            `json:"increment"`               // accumulator growth applied by this call
	Distributed          uint64            `json:"distributed"`             // pool amount attributed to stakers by this call
	RewardPerTokenStored uint64            `json:"reward_per_token_stored"` // accumulator snapshot used for the holder
	NewHolder            bool              `json:"new_holder"`
}

// Event returns the RewardsSettled event for this result.
func (r SettleResult) Event(now int64) domain.RewardsSettled {
	return domain.RewardsSettled{
		Holder:               r.Holder.Address,
		Balance:              r.Holder.Balance,
		Delta:                r.Delta,
		UnclaimedRewards:     r.Holder.UnclaimedRewards,
		RewardPerTokenStored: r.RewardPerTokenStored,
		NewHolder:            r.NewHolder,
		Timestamp:            now,
	}
}

// Settle advances the pool accumulator to now and settles holder against it,
// recording newBalance as the holder's tracked balance.
//
// newBalance is the holder's FULL balance after whatever movement prompted
// the call, never an increment. Passing a delta silently corrupts every
// later settlement for that holder.
//
// The pool is modified only when Settle returns a nil error.
func Settle(pool *domain.RewardPool, holder solana.Pubkey, newBalance uint64, now int64) (SettleResult, error) {
	work := pool.Clone()
	res, err := settle(work, holder, newBalance, now)
	if err != nil {
		return SettleResult{}, err
	}
	*pool = *work
	return res, nil
}

// settle runs the settlement algorithm in place. Callers pass a clone.
func settle(pool *domain.RewardPool, holder solana.Pubkey, newBalance uint64, now int64) (SettleResult, error) {
	var res SettleResult

	if pool.TotalStaked > 0 {
		inc, distributed, err := accrue(pool, now)
		if err != nil {
			return SettleResult{}, err
		}
		res.Increment = inc
		res.Distributed = distributed
	}

	// Single snapshot for both the pool and this holder.
	r := pool.RewardPerTokenStored
	res.RewardPerTokenStored = r

	idx := pool.FindHolder(holder)
	if idx < 0 {
		if len(pool.Holders) >= domain.MaxHolders {
			return SettleResult{}, fmt.Errorf("reward pool holders (%d): %w", domain.MaxHolders, domain.ErrCapacityExceeded)
		}
		if err := trackBalance(pool, 0, newBalance); err != nil {
			return SettleResult{}, err
		}
		pool.Holders = append(pool.Holders, domain.HolderInfo{
			Address:             holder,
			Balance:             newBalance,
			LastDepositTime:     now,
			RewardsPerTokenPaid: r,
			LastStakeTime:       now,
		})
		idx = len(pool.Holders) - 1
		res.NewHolder = true
	} else {
		h := &pool.Holders[idx]
		// R < paid only happens through caller error; treat as zero.
		owed := fixedpoint.SubFloor(r, h.RewardsPerTokenPaid)
		delta, err := scaleDown(newBalance, owed)
		if err != nil {
			return SettleResult{}, fmt.Errorf("holder %s reward delta: %w", holder, err)
		}
		unclaimed, err := fixedpoint.Add(h.UnclaimedRewards, delta)
		if err != nil {
			return SettleResult{}, fmt.Errorf("holder %s unclaimed rewards: %w", holder, domain.ErrArithmeticOverflow)
		}
		if err := trackBalance(pool, h.Balance, newBalance); err != nil {
			return SettleResult{}, err
		}
		h.UnclaimedRewards = unclaimed
		h.StakedAmount = min(h.StakedAmount, newBalance)
		h.RewardsPerTokenPaid = r
		h.Balance = newBalance
		h.LastDepositTime = now
		res.Delta = delta
	}

	pool.LastDistributionTime = now
	res.Holder = pool.Holders[idx]
	return res, nil
}

// accrue advances RewardPerTokenStored for the interval since the last
// distribution and deducts the attributed amount from AccumulatedRewards.
// It returns the accumulator increment and the attributed amount.
func accrue(pool *domain.RewardPool, now int64) (uint64, uint64, error) {
	elapsed := now - pool.LastDistributionTime
	if elapsed <= 0 {
		return 0, 0, nil
	}

	// A zero rate is a known precision loss, not an error.
	rate := pool.AccumulatedRewards / uint64(elapsed)
	if rate == 0 {
		return 0, 0, nil
	}

	scaled, err := fixedpoint.Mul(rate, domain.RewardPrecision)
	if err != nil {
		return 0, 0, fmt.Errorf("reward rate %d: %w", rate, domain.ErrArithmeticOverflow)
	}
	inc := scaled / pool.TotalStaked

	stored, err := fixedpoint.Add(pool.RewardPerTokenStored, inc)
	if err != nil {
		return 0, 0, fmt.Errorf("reward per token stored: %w", domain.ErrArithmeticOverflow)
	}

	distributed, err := scaleUp(pool.TotalStaked, inc)
	if err != nil {
		return 0, 0, fmt.Errorf("distributed rewards: %w", err)
	}
	if distributed > pool.AccumulatedRewards {
		distributed = pool.AccumulatedRewards
	}

	pool.RewardPerTokenStored = stored
	pool.AccumulatedRewards = fixedpoint.SubFloor(pool.AccumulatedRewards, distributed)
	return inc, distributed, nil
}

// scaleDown returns amount*perToken/RewardPrecision, failing if the
// multiplication overflows 64 bits.
func scaleDown(amount, perToken uint64) (uint64, error) {
	product, err := fixedpoint.Mul(amount, perToken)
	if err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	return product / domain.RewardPrecision, nil
}

// scaleUp is scaleDown rounded up, so the amount taken from the pool covers
// every holder's rounded-down share.
func scaleUp(amount, perToken uint64) (uint64, error) {
	product, err := fixedpoint.Mul(amount, perToken)
	if err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	q := product / domain.RewardPrecision
	if product%domain.RewardPrecision != 0 {
		q++
	}
	return q, nil
}

// trackBalance moves TotalStaked from a holder's old balance to its new one.
func trackBalance(pool *domain.RewardPool, oldBalance, newBalance uint64) error {
	if newBalance >= oldBalance {
		total, err := fixedpoint.Add(pool.TotalStaked, newBalance-oldBalance)
		if err != nil {
			return fmt.Errorf("total staked: %w", domain.ErrArithmeticOverflow)
		}
		pool.TotalStaked = total
		return nil
	}
	pool.TotalStaked = fixedpoint.SubFloor(pool.TotalStaked, oldBalance-newBalance)
	return nil
}

// Fund adds amount to the undistributed reward balance.
func Fund(pool *domain.RewardPool, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("fund amount: %w", domain.ErrInvalidAmount)
	}
	total, err := fixedpoint.Add(pool.AccumulatedRewards, amount)
	if err != nil {
		return fmt.Errorf("accumulated rewards: %w", domain.ErrArithmeticOverflow)
	}
	pool.AccumulatedRewards = total
	return nil
}

// Stake settles holder at balance and then locks amount of that balance in
// the staked position.
func Stake(pool *domain.RewardPool, holder solana.Pubkey, balance, amount uint64, now int64) (SettleResult, error) {
	if amount == 0 {
		return SettleResult{}, fmt.Errorf("stake amount: %w", domain.ErrInvalidAmount)
	}
	return changeStake(pool, holder, balance, now, func(h *domain.HolderInfo) error {
		staked, err := fixedpoint.Add(h.StakedAmount, amount)
		if err != nil {
			return domain.ErrArithmeticOverflow
		}
		if staked > balance {
			return fmt.Errorf("stake %d exceeds balance %d: %w", staked, balance, domain.ErrInvalidAmount)
		}
		h.StakedAmount = staked
		return nil
	})
}

// Unstake settles holder at balance and then releases amount from the
// staked position.
func Unstake(pool *domain.RewardPool, holder solana.Pubkey, balance, amount uint64, now int64) (SettleResult, error) {
	if amount == 0 {
		return SettleResult{}, fmt.Errorf("unstake amount: %w", domain.ErrInvalidAmount)
	}
	return changeStake(pool, holder, balance, now, func(h *domain.HolderInfo) error {
		staked, err := fixedpoint.Sub(h.StakedAmount, amount)
		if err != nil {
			return fmt.Errorf("unstake %d of %d: %w", amount, h.StakedAmount, domain.ErrInsufficientStake)
		}
		h.StakedAmount = staked
		return nil
	})
}

func changeStake(pool *domain.RewardPool, holder solana.Pubkey, balance uint64, now int64, apply func(h *domain.HolderInfo) error) (SettleResult, error) {
	work := pool.Clone()
	res, err := settle(work, holder, balance, now)
	if err != nil {
		return SettleResult{}, err
	}

	idx := work.FindHolder(holder)
	h := &work.Holders[idx]
	if err := apply(h); err != nil {
		return SettleResult{}, err
	}
	h.LastStakeTime = now
	res.Holder = *h

	*pool = *work
	return res, nil
}

// Claim settles holder at balance and moves its unclaimed rewards into
// cfg.TotalRewardsDistributed. It returns the claimed amount; paying it out
// is the caller's job. The holder's balance is recorded as it will be after
// the payout. Neither record changes on error.
func Claim(pool *domain.RewardPool, cfg *domain.TokenConfig, holder solana.Pubkey, balance uint64, now int64) (uint64, SettleResult, error) {
	work := pool.Clone()
	res, err := settle(work, holder, balance, now)
	if err != nil {
		return 0, SettleResult{}, err
	}

	idx := work.FindHolder(holder)
	h := &work.Holders[idx]
	amount := h.UnclaimedRewards

	distributed, err := fixedpoint.Add(cfg.TotalRewardsDistributed, amount)
	if err != nil {
		return 0, SettleResult{}, fmt.Errorf("total rewards distributed: %w", domain.ErrArithmeticOverflow)
	}
	paid, err := fixedpoint.Add(balance, amount)
	if err != nil {
		return 0, SettleResult{}, fmt.Errorf("holder %s balance after claim: %w", holder, domain.ErrArithmeticOverflow)
	}
	if err := trackBalance(work, h.Balance, paid); err != nil {
		return 0, SettleResult{}, err
	}

	h.Balance = paid
	h.UnclaimedRewards = 0
	res.Holder = *h

	*pool = *work
	cfg.TotalRewardsDistributed = distributed
	return amount, res, nil
}

// Refund returns amount to holder's unclaimed rewards after a failed
// payout, reversing the bookkeeping of Claim.
func Refund(pool *domain.RewardPool, cfg *domain.TokenConfig, holder solana.Pubkey, amount uint64) error {
	idx := pool.FindHolder(holder)
	if idx < 0 {
		return fmt.Errorf("refund to unknown holder %s: %w", holder, domain.ErrInvalidAmount)
	}
	unclaimed, err := fixedpoint.Add(pool.Holders[idx].UnclaimedRewards, amount)
	if err != nil {
		return fmt.Errorf("holder %s unclaimed rewards: %w", holder, domain.ErrArithmeticOverflow)
	}
	h := &pool.Holders[idx]
	restored := fixedpoint.SubFloor(h.Balance, amount)
	if err := trackBalance(pool, h.Balance, restored); err != nil {
		return err
	}
	h.Balance = restored
	h.UnclaimedRewards = unclaimed
	cfg.TotalRewardsDistributed = fixedpoint.SubFloor(cfg.TotalRewardsDistributed, amount)
	return nil
}
