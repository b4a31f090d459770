package domain

// Tokenomics constants.
const (
	InitialSupply       uint64 = 1_000_000_000 // 1 billion base units
	Decimals            uint8  = 9
	LiquidityLockPeriod int64  = 180 * 24 * 60 * 60 // 180 days (seconds)
	MinHoldingPeriod    int64  = 7 * 24 * 60 * 60   // 7 days, declared for reward eligibility; not enforced
)

// Default rates (bps). Changeable only through governance execution.
const (
	DefaultTransactionFeeBps uint16 = 100 // 1%
	DefaultBurnRateBps       uint16 = 50  // 0.5%
	DefaultRewardRateBps     uint16 = 50  // 0.5%
	DefaultMaxWalletBps      uint16 = 200 // 2% max wallet size
	DefaultMaxTxBps          uint16 = 100 // 1% max transaction size
)

// Governance constants.
const (
	ProposalVotingPeriod    int64  = 3 * 24 * 60 * 60 // 3 days (seconds)
	MinProposalThresholdBps uint16 = 100              // 1% of supply to create a proposal
	MinQuorumBps            uint16 = 1000             // 10% of supply for quorum
)

// Fixed-point scales.
const (
	BpsDenominator  uint64 = 10_000
	RewardPrecision uint64 = 1_000_000
)

// Record capacities. Each collection is preallocated to this size and
// growth past it fails with ErrCapacityExceeded.
const (
	MaxHolders           = 1000
	MaxActiveProposals   = 100
	MaxExecutedProposals = 100
	MaxVoters            = 1000
	MaxPriceImpactData   = 100
	MaxDescriptionLength = 200
	HourlyVolumeSlots    = 24
)
