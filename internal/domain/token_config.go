package domain

import (
	"fmt"

	"meme-token-ledger/internal/solana"
)

// TokenConfig is the identity and economic parameters of one token.
// Corresponds to token_configs table in PostgreSQL.
type TokenConfig struct {
	Creator                 solana.Pubkey `json:"creator"`
	Mint                    solana.Pubkey `json:"mint"`
	LiquidityUnlockTime     int64         `json:"liquidity_unlock_time"`
	TotalSupply             uint64        `json:"total_supply"`
	CirculatingSupply       uint64        `json:"circulating_supply"`
	TransactionFeeBps       uint16        `json:"transaction_fee_bps"`
	BurnRateBps             uint16        `json:"burn_rate_bps"`
	RewardRateBps           uint16        `json:"reward_rate_bps"`
	MaxWalletBps            uint16        `json:"max_wallet_bps"`
	MaxTxBps                uint16        `json:"max_tx_bps"`
	TotalBurned             uint64        `json:"total_burned"`
	TotalRewardsDistributed uint64        `json:"total_rewards_distributed"`
}

// Validate checks that every rate is within [0, 10000] bps.
func (c *TokenConfig) Validate() error {
	rates := []struct {
		name string
		bps  uint16
	}{
		{"transaction_fee_bps", c.TransactionFeeBps},
		{"burn_rate_bps", c.BurnRateBps},
		{"reward_rate_bps", c.RewardRateBps},
		{"max_wallet_bps", c.MaxWalletBps},
		{"max_tx_bps", c.MaxTxBps},
	}
	for _, r := range rates {
		if uint64(r.bps) > BpsDenominator {
			return fmt.Errorf("%s=%d: %w", r.name, r.bps, ErrInvalidBps)
		}
	}
	return nil
}

// TokenState bundles the singleton records created by initialization.
type TokenState struct {
	Config     *TokenConfig      `json:"config"`
	RewardPool *RewardPool       `json:"reward_pool"`
	Governance *GovernanceConfig `json:"governance"`
	Analytics  *Analytics        `json:"analytics"`
}
