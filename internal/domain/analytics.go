package domain

import "meme-token-ledger/internal/solana"

// Analytics holds write-only counters updated as a side effect of ledger
// operations.
// Corresponds to analytics and price_impact_entries tables in PostgreSQL.
type Analytics struct {
	Mint               solana.Pubkey             `json:"mint"`
	TotalTransactions  uint64                    `json:"total_transactions"`
	UniqueHolders      uint64                    `json:"unique_holders"`
	Volume24h          uint64                    `json:"volume_24h"`
	LargestTransfer    uint64                    `json:"largest_transfer"`
	TotalProposals     uint64                    `json:"total_proposals"`
	TotalVotes         uint64                    `json:"total_votes"`
	HourlyVolume       [HourlyVolumeSlots]uint64 `json:"hourly_volume"`
	DailyActiveWallets uint64                    `json:"daily_active_wallets"`
	AvgHoldingTime     int64                     `json:"avg_holding_time"`
	PriceImpactData    []PriceImpactEntry        `json:"price_impact_data"` // at most MaxPriceImpactData
}

// PriceImpactEntry is one price-impact sample.
type PriceImpactEntry struct {
	Timestamp      int64  `json:"timestamp"`
	Amount         uint64 `json:"amount"`
	PriceImpactBps int16  `json:"price_impact_bps"`
}

// NewAnalytics returns zeroed counters with the price-impact capacity preallocated.
func NewAnalytics(mint solana.Pubkey) *Analytics {
	return &Analytics{
		Mint:            mint,
		PriceImpactData: make([]PriceImpactEntry, 0, MaxPriceImpactData),
	}
}

// Clone returns a deep copy.
func (a *Analytics) Clone() *Analytics {
	c := *a
	c.PriceImpactData = append(make([]PriceImpactEntry, 0, MaxPriceImpactData), a.PriceImpactData...)
	return &c
}
