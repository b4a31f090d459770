// Package governance implements proposal creation, voting and the outcome
// rule an executor applies once a voting window has closed.
//
// Vote weight is the voter's balance at the instant of voting as reported by
// the caller. The engine does not snapshot balances, so a holder who votes,
// moves tokens and votes again from another account is not prevented here.
package governance

import (
	"encoding/binary"
	"errors"
	"fmt"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/fixedpoint"
	"meme-token-ledger/internal/solana"
)

// ProposalSeed prefixes the seeds of a proposal account address.
const ProposalSeed = "proposal"

// ProposalAddress derives the program address of proposal id for mint.
func ProposalAddress(mint solana.Pubkey, id uint64, programID solana.Pubkey) (solana.Pubkey, error) {
	var idLE [8]byte
	binary.LittleEndian.PutUint64(idLE[:], id)
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(ProposalSeed), mint[:], idLE[:]}, programID)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("derive proposal %d address: %w", id, err)
	}
	return addr, nil
}

// CreateProposalInput holds the caller-supplied proposal fields.
type CreateProposalInput struct {
	Proposer        solana.Pubkey
	ProposerBalance uint64
	Description     string
	Type            domain.ProposalType
}

// CreateProposal opens a new proposal with a voting window of
// [now, now+ProposalVotingPeriod]. gov is modified only on success.
func CreateProposal(gov *domain.GovernanceConfig, cfg *domain.TokenConfig, in CreateProposalInput, now int64, programID solana.Pubkey) (*domain.Proposal, domain.ProposalCreated, error) {
	ok, err := meetsThreshold(in.ProposerBalance, cfg.TotalSupply, gov.MinProposalThresholdBps)
	if err != nil {
		return nil, domain.ProposalCreated{}, err
	}
	if !ok {
		return nil, domain.ProposalCreated{}, fmt.Errorf("proposer %s balance %d: %w", in.Proposer, in.ProposerBalance, domain.ErrInsufficientProposalTokens)
	}

	if len(in.Description) > domain.MaxDescriptionLength {
		return nil, domain.ProposalCreated{}, fmt.Errorf("%d bytes > %d: %w", len(in.Description), domain.MaxDescriptionLength, domain.ErrDescriptionTooLong)
	}
	if err := domain.ValidateProposalType(in.Type); err != nil {
		return nil, domain.ProposalCreated{}, err
	}
	if len(gov.Proposals) >= domain.MaxActiveProposals {
		return nil, domain.ProposalCreated{}, fmt.Errorf("active proposals (%d): %w", domain.MaxActiveProposals, domain.ErrCapacityExceeded)
	}

	id := gov.ProposalCount
	next, err := fixedpoint.Add(id, 1)
	if err != nil {
		return nil, domain.ProposalCreated{}, fmt.Errorf("proposal count: %w", domain.ErrArithmeticOverflow)
	}
	end, err := fixedpoint.AddInt64(now, domain.ProposalVotingPeriod)
	if err != nil {
		return nil, domain.ProposalCreated{}, fmt.Errorf("proposal end time: %w", domain.ErrArithmeticOverflow)
	}
	account, err := ProposalAddress(cfg.Mint, id, programID)
	if err != nil {
		return nil, domain.ProposalCreated{}, err
	}

	p := &domain.Proposal{
		ID:          id,
		Mint:        cfg.Mint,
		Account:     account,
		Proposer:    in.Proposer,
		Description: in.Description,
		Type:        in.Type,
		Status:      domain.ProposalStatusActive,
		StartTime:   now,
		EndTime:     end,
		Voters:      make([]solana.Pubkey, 0, domain.MaxVoters),
	}

	gov.Proposals = append(gov.Proposals, account)
	gov.ProposalCount = next

	ev := domain.ProposalCreated{
		ProposalID:   id,
		Proposer:     in.Proposer,
		ProposalType: domain.EncodeProposalType(in.Type),
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
	}
	return p, ev, nil
}

// Vote records voter's balance for or against p. Checks run in order:
// voting window, then duplicate voter. p is modified only on success.
func Vote(p *domain.Proposal, voter solana.Pubkey, voterBalance uint64, support bool, now int64) (domain.VoteCast, error) {
	if now < p.StartTime || now > p.EndTime {
		return domain.VoteCast{}, fmt.Errorf("proposal %d window [%d, %d] at %d: %w", p.ID, p.StartTime, p.EndTime, now, domain.ErrInvalidVotingPeriod)
	}
	if p.HasVoted(voter) {
		return domain.VoteCast{}, fmt.Errorf("proposal %d voter %s: %w", p.ID, voter, domain.ErrAlreadyVoted)
	}

	forVotes, againstVotes := p.ForVotes, p.AgainstVotes
	var err error
	if support {
		forVotes, err = fixedpoint.Add(forVotes, voterBalance)
	} else {
		againstVotes, err = fixedpoint.Add(againstVotes, voterBalance)
	}
	if err != nil {
		return domain.VoteCast{}, fmt.Errorf("proposal %d tally: %w", p.ID, domain.ErrArithmeticOverflow)
	}
	if len(p.Voters) >= domain.MaxVoters {
		return domain.VoteCast{}, fmt.Errorf("proposal %d voters (%d): %w", p.ID, domain.MaxVoters, domain.ErrCapacityExceeded)
	}

	p.ForVotes = forVotes
	p.AgainstVotes = againstVotes
	p.Voters = append(p.Voters, voter)

	return domain.VoteCast{
		ProposalID: p.ID,
		Voter:      voter,
		VoteAmount: voterBalance,
		Support:    support,
		Timestamp:  now,
	}, nil
}

// Outcome evaluates a closed proposal without modifying it. A proposal
// succeeds when for votes exceed against votes and turnout meets quorum.
func Outcome(p *domain.Proposal, totalSupply uint64, minQuorumBps uint16, now int64) (domain.ProposalStatus, error) {
	if now <= p.EndTime {
		return "", fmt.Errorf("proposal %d closes at %d: %w", p.ID, p.EndTime, domain.ErrVotingOpen)
	}
	if p.Executed || p.Status == domain.ProposalStatusExecuted {
		return "", fmt.Errorf("proposal %d: %w", p.ID, domain.ErrProposalAlreadyExecuted)
	}

	err := QuorumCheck(p, totalSupply, minQuorumBps)
	switch {
	case errors.Is(err, domain.ErrQuorumNotMet):
		return domain.ProposalStatusFailed, nil
	case err != nil:
		return "", err
	}

	if p.ForVotes > p.AgainstVotes {
		return domain.ProposalStatusSucceeded, nil
	}
	return domain.ProposalStatusFailed, nil
}

// QuorumCheck returns ErrQuorumNotMet unless
// (for+against)*10000/totalSupply >= minQuorumBps.
func QuorumCheck(p *domain.Proposal, totalSupply uint64, minQuorumBps uint16) error {
	turnout, err := fixedpoint.Add(p.ForVotes, p.AgainstVotes)
	if err != nil {
		return fmt.Errorf("proposal %d turnout: %w", p.ID, domain.ErrArithmeticOverflow)
	}
	ok, err := meetsThreshold(turnout, totalSupply, minQuorumBps)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("proposal %d turnout %d of %d: %w", p.ID, turnout, totalSupply, domain.ErrQuorumNotMet)
	}
	return nil
}

// meetsThreshold reports amount*10000/supply >= bps using a 128-bit
// intermediate product.
func meetsThreshold(amount, supply uint64, bps uint16) (bool, error) {
	if supply == 0 {
		return false, domain.ErrZeroSupply
	}
	share, err := fixedpoint.MulDiv(amount, domain.BpsDenominator, supply)
	if errors.Is(err, fixedpoint.ErrOverflow) {
		// The share does not fit in 64 bits, so it exceeds any bps value.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return share >= uint64(bps), nil
}
