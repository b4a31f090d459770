package domain

import (
	"encoding/json"
	"fmt"
)

// ProposalKind tags a ProposalType variant.
type ProposalKind string

const (
	ProposalKindUpdateFees           ProposalKind = "UPDATE_FEES"
	ProposalKindUpdateBurnRate       ProposalKind = "UPDATE_BURN_RATE"
	ProposalKindUpdateRewardRate     ProposalKind = "UPDATE_REWARD_RATE"
	ProposalKindUpdateMaxWallet      ProposalKind = "UPDATE_MAX_WALLET"
	ProposalKindUpdateMaxTransaction ProposalKind = "UPDATE_MAX_TRANSACTION"
)

// ProposalType is the closed set of governable parameter changes.
// Only the variants in this file implement it.
type ProposalType interface {
	Kind() ProposalKind
	NewBps() uint16
	isProposalType()
}

// UpdateFees proposes a new transaction fee.
type UpdateFees struct{ NewFeeBps uint16 }

// UpdateBurnRate proposes a new burn rate.
type UpdateBurnRate struct{ NewBurnBps uint16 }

// UpdateRewardRate proposes a new reward rate.
type UpdateRewardRate struct{ NewRewardBps uint16 }

// UpdateMaxWallet proposes a new max wallet size.
type UpdateMaxWallet struct{ NewMaxWalletBps uint16 }

// UpdateMaxTransaction proposes a new max transaction size.
type UpdateMaxTransaction struct{ NewMaxTxBps uint16 }

func (UpdateFees) Kind() ProposalKind           { return ProposalKindUpdateFees }
func (UpdateBurnRate) Kind() ProposalKind       { return ProposalKindUpdateBurnRate }
func (UpdateRewardRate) Kind() ProposalKind     { return ProposalKindUpdateRewardRate }
func (UpdateMaxWallet) Kind() ProposalKind      { return ProposalKindUpdateMaxWallet }
func (UpdateMaxTransaction) Kind() ProposalKind { return ProposalKindUpdateMaxTransaction }

func (p UpdateFees) NewBps() uint16           { return p.NewFeeBps }
func (p UpdateBurnRate) NewBps() uint16       { return p.NewBurnBps }
func (p UpdateRewardRate) NewBps() uint16     { return p.NewRewardBps }
func (p UpdateMaxWallet) NewBps() uint16      { return p.NewMaxWalletBps }
func (p UpdateMaxTransaction) NewBps() uint16 { return p.NewMaxTxBps }

func (UpdateFees) isProposalType()           {}
func (UpdateBurnRate) isProposalType()       {}
func (UpdateRewardRate) isProposalType()     {}
func (UpdateMaxWallet) isProposalType()      {}
func (UpdateMaxTransaction) isProposalType() {}

// NewProposalType builds the variant for kind.
func NewProposalType(kind ProposalKind, newBps uint16) (ProposalType, error) {
	var pt ProposalType
	switch kind {
	case ProposalKindUpdateFees:
		pt = UpdateFees{NewFeeBps: newBps}
	case ProposalKindUpdateBurnRate:
		pt = UpdateBurnRate{NewBurnBps: newBps}
	case ProposalKindUpdateRewardRate:
		pt = UpdateRewardRate{NewRewardBps: newBps}
	case ProposalKindUpdateMaxWallet:
		pt = UpdateMaxWallet{NewMaxWalletBps: newBps}
	case ProposalKindUpdateMaxTransaction:
		pt = UpdateMaxTransaction{NewMaxTxBps: newBps}
	default:
		return nil, fmt.Errorf("unknown proposal kind %q", kind)
	}
	if err := ValidateProposalType(pt); err != nil {
		return nil, err
	}
	return pt, nil
}

// ValidateProposalType checks the proposed rate is within [0, 10000] bps.
func ValidateProposalType(pt ProposalType) error {
	if pt == nil {
		return fmt.Errorf("missing proposal type")
	}
	if uint64(pt.NewBps()) > BpsDenominator {
		return fmt.Errorf("%s new_bps=%d: %w", pt.Kind(), pt.NewBps(), ErrInvalidBps)
	}
	return nil
}

// ProposalTypeJSON is the wire form of a ProposalType.
type ProposalTypeJSON struct {
	Kind   ProposalKind `json:"kind"`
	NewBps uint16       `json:"new_bps"`
}

// EncodeProposalType converts a variant to its wire form.
func EncodeProposalType(pt ProposalType) ProposalTypeJSON {
	if pt == nil {
		return ProposalTypeJSON{}
	}
	return ProposalTypeJSON{Kind: pt.Kind(), NewBps: pt.NewBps()}
}

// Decode converts the wire form back to a variant.
func (j ProposalTypeJSON) Decode() (ProposalType, error) {
	return NewProposalType(j.Kind, j.NewBps)
}

type proposalAlias Proposal

type proposalJSON struct {
	*proposalAlias
	ProposalType ProposalTypeJSON `json:"proposal_type"`
}

// MarshalJSON includes the proposal type in tagged form.
func (p Proposal) MarshalJSON() ([]byte, error) {
	alias := proposalAlias(p)
	return json.Marshal(proposalJSON{
		proposalAlias: &alias,
		ProposalType:  EncodeProposalType(p.Type),
	})
}

// UnmarshalJSON decodes the tagged proposal type.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	aux := proposalJSON{proposalAlias: (*proposalAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	pt, err := aux.ProposalType.Decode()
	if err != nil {
		return err
	}
	p.Type = pt
	return nil
}
