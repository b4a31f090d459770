package domain

import "meme-token-ledger/internal/solana"

// EventType names a ledger event.
type EventType string

const (
	EventTokenTransfer    EventType = "TokenTransfer"
	EventProposalCreated  EventType = "ProposalCreated"
	EventVoteCast         EventType = "VoteCast"
	EventTokenInitialized EventType = "TokenInitialized"
	EventRewardsSettled   EventType = "RewardsSettled"
	EventRewardsClaimed   EventType = "RewardsClaimed"
	EventStakeChanged     EventType = "StakeChanged"
)

// Event is implemented by every ledger event payload.
type Event interface {
	EventType() EventType
}

// TokenTransfer is declared for the transfer path, which this ledger does
// not implement; it is never emitted.
type TokenTransfer struct {
	From           solana.Pubkey `json:"from"`
	To             solana.Pubkey `json:"to"`
	Amount         uint64        `json:"amount"`
	Fee            uint64        `json:"fee"`
	Burned         uint64        `json:"burned"`
	Timestamp      int64         `json:"timestamp"`
	PriceImpactBps int16         `json:"price_impact_bps"`
}

// ProposalCreated is emitted by create-proposal.
type ProposalCreated struct {
	ProposalID   uint64           `json:"proposal_id"`
	Proposer     solana.Pubkey    `json:"proposer"`
	ProposalType ProposalTypeJSON `json:"proposal_type"`
	StartTime    int64            `json:"start_time"`
	EndTime      int64            `json:"end_time"`
}

// VoteCast is emitted by vote.
type VoteCast struct {
	ProposalID uint64        `json:"proposal_id"`
	Voter      solana.Pubkey `json:"voter"`
	VoteAmount uint64        `json:"vote_amount"`
	Support    bool          `json:"support"`
	Timestamp  int64         `json:"timestamp"`
}

// TokenInitialized is emitted once per token by initialize.
type TokenInitialized struct {
	Mint                solana.Pubkey `json:"mint"`
	Creator             solana.Pubkey `json:"creator"`
	InitialSupply       uint64        `json:"initial_supply"`
	LiquidityUnlockTime int64         `json:"liquidity_unlock_time"`
	Timestamp           int64         `json:"timestamp"`
}

// RewardsSettled is emitted after a holder settlement.
type RewardsSettled struct {
	Holder               solana.Pubkey `json:"holder"`
	Balance              uint64        `json:"balance"`
	Delta                uint64        `json:"delta"`
	UnclaimedRewards     uint64        `json:"unclaimed_rewards"`
	RewardPerTokenStored uint64        `json:"reward_per_token_stored"`
	NewHolder            bool          `json:"new_holder"`
	Timestamp            int64         `json:"timestamp"`
}

// RewardsClaimed is emitted when unclaimed rewards are paid out.
type RewardsClaimed struct {
	Holder    solana.Pubkey `json:"holder"`
	Amount    uint64        `json:"amount"`
	Timestamp int64         `json:"timestamp"`
}

// StakeChanged is emitted by stake and unstake.
type StakeChanged struct {
	Holder       solana.Pubkey `json:"holder"`
	StakedAmount uint64        `json:"staked_amount"`
	TotalStaked  uint64        `json:"total_staked"`
	Timestamp    int64         `json:"timestamp"`
}

func (TokenTransfer) EventType() EventType    { return EventTokenTransfer }
func (ProposalCreated) EventType() EventType  { return EventProposalCreated }
func (VoteCast) EventType() EventType         { return EventVoteCast }
func (TokenInitialized) EventType() EventType { return EventTokenInitialized }
func (RewardsSettled) EventType() EventType   { return EventRewardsSettled }
func (RewardsClaimed) EventType() EventType   { return EventRewardsClaimed }
func (StakeChanged) EventType() EventType     { return EventStakeChanged }
