// Package analytics updates the write-only analytics counters. Nothing in
// this module reads them back; every update uses checked arithmetic and
// leaves the record unchanged on error.
package analytics

import (
	"fmt"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/fixedpoint"
)

const secondsPerHour = 3600

// RecordProposal counts a created proposal.
func RecordProposal(a *domain.Analytics) error {
	n, err := fixedpoint.Add(a.TotalProposals, 1)
	if err != nil {
		return fmt.Errorf("total proposals: %w", domain.ErrArithmeticOverflow)
	}
	a.TotalProposals = n
	return nil
}

// RecordVote counts a cast vote.
func RecordVote(a *domain.Analytics) error {
	n, err := fixedpoint.Add(a.TotalVotes, 1)
	if err != nil {
		return fmt.Errorf("total votes: %w", domain.ErrArithmeticOverflow)
	}
	a.TotalVotes = n
	return nil
}

// RecordHolder counts a holder seen for the first time.
func RecordHolder(a *domain.Analytics) error {
	n, err := fixedpoint.Add(a.UniqueHolders, 1)
	if err != nil {
		return fmt.Errorf("unique holders: %w", domain.ErrArithmeticOverflow)
	}
	a.UniqueHolders = n
	return nil
}

// HourSlot returns the hourly-volume ring index for a Unix timestamp.
func HourSlot(now int64) int {
	slot := (now / secondsPerHour) % domain.HourlyVolumeSlots
	if slot < 0 {
		slot += domain.HourlyVolumeSlots
	}
	return int(slot)
}

// RecordVolume adds amount moved at now to the transaction, volume and
// hourly counters.
func RecordVolume(a *domain.Analytics, now int64, amount uint64) error {
	txs, err := fixedpoint.Add(a.TotalTransactions, 1)
	if err != nil {
		return fmt.Errorf("total transactions: %w", domain.ErrArithmeticOverflow)
	}
	volume, err := fixedpoint.Add(a.Volume24h, amount)
	if err != nil {
		return fmt.Errorf("24h volume: %w", domain.ErrArithmeticOverflow)
	}
	slot := HourSlot(now)
	hourly, err := fixedpoint.Add(a.HourlyVolume[slot], amount)
	if err != nil {
		return fmt.Errorf("hourly volume slot %d: %w", slot, domain.ErrArithmeticOverflow)
	}

	a.TotalTransactions = txs
	a.Volume24h = volume
	a.HourlyVolume[slot] = hourly
	if amount > a.LargestTransfer {
		a.LargestTransfer = amount
	}
	return nil
}

// RecordPriceImpact appends a price-impact sample.
func RecordPriceImpact(a *domain.Analytics, entry domain.PriceImpactEntry) error {
	if len(a.PriceImpactData) >= domain.MaxPriceImpactData {
		return fmt.Errorf("price impact samples (%d): %w", domain.MaxPriceImpactData, domain.ErrCapacityExceeded)
	}
	a.PriceImpactData = append(a.PriceImpactData, entry)
	return nil
}
