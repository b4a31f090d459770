package domain

import "errors"

// Ledger errors. All are terminal for the call that returns them and leave
// every record unchanged.
var (
	ErrLiquidityLocked            = errors.New("liquidity is locked until the specified unlock time")
	ErrInsufficientProposalTokens = errors.New("insufficient tokens to create proposal")
	ErrInvalidVotingPeriod        = errors.New("invalid voting period")
	ErrAlreadyVoted               = errors.New("already voted on this proposal")
	ErrExceedsMaxWallet           = errors.New("transaction would exceed maximum wallet size")
	ErrExceedsMaxTransaction      = errors.New("transaction would exceed maximum transaction size")
	ErrProposalAlreadyExecuted    = errors.New("proposal has already been executed")
	ErrQuorumNotMet               = errors.New("proposal failed to meet quorum")

	// ErrCapacityExceeded is returned when a bounded collection is full.
	ErrCapacityExceeded = errors.New("record capacity exceeded")

	// ErrArithmeticOverflow is returned when checked arithmetic fails.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	ErrDescriptionTooLong = errors.New("proposal description too long")
	ErrInvalidBps         = errors.New("basis points out of range")
	ErrVotingOpen         = errors.New("voting period has not ended")
	ErrInsufficientStake  = errors.New("insufficient staked amount")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrZeroSupply         = errors.New("total supply is zero")
)
