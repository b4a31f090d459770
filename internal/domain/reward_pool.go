package domain

import "meme-token-ledger/internal/solana"

// RewardPool is the per-token reward accumulator.
// Corresponds to reward_pools and reward_holders tables in PostgreSQL.
type RewardPool struct {
	Mint                 solana.Pubkey `json:"mint"`
	AccumulatedRewards   uint64        `json:"accumulated_rewards"`     // undistributed reward balance
	LastDistributionTime int64         `json:"last_distribution_time"`  // Unix seconds
	RewardPerTokenStored uint64        `json:"reward_per_token_stored"` // scaled by RewardPrecision, never decreases
	TotalStaked          uint64        `json:"total_staked"`            // sum of holder balances, the reward weight
	Holders              []HolderInfo  `json:"holders"`                 // insertion ordered, at most MaxHolders
}

// HolderInfo is the settlement record of one holder.
type HolderInfo struct {
	Address             solana.Pubkey `json:"address"`
	Balance             uint64        `json:"balance"`
	LastDepositTime     int64         `json:"last_deposit_time"`
	RewardsPerTokenPaid uint64        `json:"rewards_per_token_paid"` // accumulator snapshot at last settlement
	UnclaimedRewards    uint64        `json:"unclaimed_rewards"`
	StakedAmount        uint64        `json:"staked_amount"`
	LastStakeTime       int64         `json:"last_stake_time"`
}

// NewRewardPool returns an empty pool with holder capacity preallocated.
func NewRewardPool(mint solana.Pubkey, now int64) *RewardPool {
	return &RewardPool{
		Mint:                 mint,
		LastDistributionTime: now,
		Holders:              make([]HolderInfo, 0, MaxHolders),
	}
}

// Clone returns a deep copy.
func (p *RewardPool) Clone() *RewardPool {
	c := *p
	c.Holders = make([]HolderInfo, len(p.Holders), MaxHolders)
	copy(c.Holders, p.Holders)
	return &c
}

// FindHolder returns the index of the holder record, or -1.
func (p *RewardPool) FindHolder(addr solana.Pubkey) int {
	for i := range p.Holders {
		if p.Holders[i].Address == addr {
			return i
		}
	}
	return -1
}

// Holder returns a copy of the holder record.
func (p *RewardPool) Holder(addr solana.Pubkey) (HolderInfo, bool) {
	i := p.FindHolder(addr)
	if i < 0 {
		return HolderInfo{}, false
	}
	return p.Holders[i], true
}
