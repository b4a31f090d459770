package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/analytics"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/governance"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/solana"
)

// CreateProposal opens a proposal weighted by the proposer's oracle balance.
func (s *Service) CreateProposal(ctx context.Context, mint, proposer solana.Pubkey, description string, pt domain.ProposalType) (p *domain.Proposal, err error) {
	start := time.Now()
	defer func() { observe("create_proposal", start, err) }()

	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.balance(ctx, mint, proposer)
	if err != nil {
		return nil, err
	}

	in := governance.CreateProposalInput{
		Proposer:        proposer,
		ProposerBalance: balance,
		Description:     description,
		Type:            pt,
	}
	unlock := s.locks.lock(governanceLock(mint))
	defer unlock()

	var ev domain.ProposalCreated
	p, err = s.store.CreateProposal(ctx, mint, func(gov *domain.GovernanceConfig, cfg *domain.TokenConfig) (*domain.Proposal, error) {
		created, e, err := governance.CreateProposal(gov, cfg, in, now, s.programID)
		ev = e
		return created, err
	})
	if err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}

	observability.RecordProposalCreated()
	s.emitter.Emit(ctx, mint, now, ev)
	s.updateAnalytics(ctx, mint, "create_proposal", analytics.RecordProposal)

	s.log.WithFields(logrus.Fields{
		"mint":        mint.String(),
		"proposal_id": p.ID,
		"proposer":    proposer.String(),
		"kind":        pt.Kind(),
	}).Info("proposal created")
	return p, nil
}

// Vote records voter's oracle balance for or against proposal id.
func (s *Service) Vote(ctx context.Context, mint solana.Pubkey, id uint64, voter solana.Pubkey, support bool) (p *domain.Proposal, err error) {
	start := time.Now()
	defer func() { observe("vote", start, err) }()

	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := s.balance(ctx, mint, voter)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(proposalLock(mint, id))
	defer unlock()

	var ev domain.VoteCast
	p, err = s.store.UpdateProposal(ctx, mint, id, func(p *domain.Proposal) error {
		var err error
		ev, err = governance.Vote(p, voter, balance, support, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vote on proposal %d: %w", id, err)
	}

	observability.RecordVote(support)
	s.emitter.Emit(ctx, mint, now, ev)
	s.updateAnalytics(ctx, mint, "vote", analytics.RecordVote)

	s.log.WithFields(logrus.Fields{
		"mint":        mint.String(),
		"proposal_id": id,
		"voter":       voter.String(),
		"support":     support,
		"weight":      balance,
	}).Info("vote cast")
	return p, nil
}

// Outcome evaluates a closed proposal against the current supply and quorum.
func (s *Service) Outcome(ctx context.Context, mint solana.Pubkey, id uint64) (domain.ProposalStatus, error) {
	now, err := s.now(ctx)
	if err != nil {
		return "", err
	}
	state, err := s.store.GetToken(ctx, mint)
	if err != nil {
		return "", err
	}
	p, err := s.store.GetProposal(ctx, mint, id)
	if err != nil {
		return "", err
	}
	return governance.Outcome(p, state.Config.TotalSupply, state.Governance.MinQuorumBps, now)
}

// Proposal returns one proposal.
func (s *Service) Proposal(ctx context.Context, mint solana.Pubkey, id uint64) (*domain.Proposal, error) {
	return s.store.GetProposal(ctx, mint, id)
}

// Proposals returns the proposals of mint ordered by id.
func (s *Service) Proposals(ctx context.Context, mint solana.Pubkey) ([]*domain.Proposal, error) {
	return s.store.ListProposals(ctx, mint)
}
