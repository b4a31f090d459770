package domain

import "meme-token-ledger/internal/solana"

// GovernanceConfig is the per-token governance singleton.
// Corresponds to governance_configs table in PostgreSQL.
type GovernanceConfig struct {
	Mint                    solana.Pubkey   `json:"mint"`
	Proposals               []solana.Pubkey `json:"proposals"`          // active proposal accounts, at most MaxActiveProposals
	ExecutedProposals       []solana.Pubkey `json:"executed_proposals"` // at most MaxExecutedProposals
	ProposalCount           uint64          `json:"proposal_count"`
	MinProposalThresholdBps uint16          `json:"min_proposal_threshold_bps"`
	MinQuorumBps            uint16          `json:"min_quorum_bps"`
}

// NewGovernanceConfig returns a governance record seeded with the default thresholds.
func NewGovernanceConfig(mint solana.Pubkey) *GovernanceConfig {
	return &GovernanceConfig{
		Mint:                    mint,
		Proposals:               make([]solana.Pubkey, 0, MaxActiveProposals),
		ExecutedProposals:       make([]solana.Pubkey, 0, MaxExecutedProposals),
		MinProposalThresholdBps: MinProposalThresholdBps,
		MinQuorumBps:            MinQuorumBps,
	}
}

// Clone returns a deep copy.
func (g *GovernanceConfig) Clone() *GovernanceConfig {
	c := *g
	c.Proposals = append(make([]solana.Pubkey, 0, MaxActiveProposals), g.Proposals...)
	c.ExecutedProposals = append(make([]solana.Pubkey, 0, MaxExecutedProposals), g.ExecutedProposals...)
	return &c
}

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus string

const (
	ProposalStatusActive    ProposalStatus = "ACTIVE"
	ProposalStatusSucceeded ProposalStatus = "SUCCEEDED"
	ProposalStatusFailed    ProposalStatus = "FAILED"
	ProposalStatusExecuted  ProposalStatus = "EXECUTED"
)

// String returns the string representation of ProposalStatus.
func (s ProposalStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalStatusActive, ProposalStatusSucceeded, ProposalStatusFailed, ProposalStatusExecuted:
		return true
	}
	return false
}

// Proposal is one governance action.
// Corresponds to proposals and proposal_voters tables in PostgreSQL.
type Proposal struct {
	ID           uint64          `json:"id"`
	Mint         solana.Pubkey   `json:"mint"`
	Account      solana.Pubkey   `json:"account"` // program-derived proposal address
	Proposer     solana.Pubkey   `json:"proposer"`
	Description  string          `json:"description"`
	Type         ProposalType    `json:"-"`
	Status       ProposalStatus  `json:"status"`
	StartTime    int64           `json:"start_time"`
	EndTime      int64           `json:"end_time"`
	ForVotes     uint64          `json:"for_votes"`
	AgainstVotes uint64          `json:"against_votes"`
	Executed     bool            `json:"executed"`
	Voters       []solana.Pubkey `json:"voters"` // dedup guard, at most MaxVoters
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Voters = append(make([]solana.Pubkey, 0, len(p.Voters)), p.Voters...)
	return &c
}

// HasVoted reports whether voter is already in the voter set.
func (p *Proposal) HasVoted(voter solana.Pubkey) bool {
	for _, v := range p.Voters {
		if v == voter {
			return true
		}
	}
	return false
}
