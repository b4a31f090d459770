package storage

import (
	"context"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/solana"
)

// Update functions run against copies of the stored records while the
// record set is held exclusively. The copies are committed only when the
// function returns nil; on error nothing is written and the error is
// returned unchanged. A store may call the function more than once for one
// update, so it must not have side effects outside its arguments.
type (
	// RewardsUpdate mutates the reward pool and token config of one mint.
	RewardsUpdate func(pool *domain.RewardPool, cfg *domain.TokenConfig) error

	// AnalyticsUpdate mutates the analytics counters of one mint.
	AnalyticsUpdate func(a *domain.Analytics) error

	// ProposalCreate mutates the governance config and returns the new
	// proposal to store with it. cfg is read-only.
	ProposalCreate func(gov *domain.GovernanceConfig, cfg *domain.TokenConfig) (*domain.Proposal, error)

	// ProposalUpdate mutates one proposal.
	ProposalUpdate func(p *domain.Proposal) error
)

// TokenStore provides access to the per-mint singleton records:
// token_configs, reward_pools, governance_configs and analytics.
type TokenStore interface {
	// CreateToken stores the initial records of a mint.
	// Returns ErrDuplicateKey if the mint exists.
	CreateToken(ctx context.Context, state *domain.TokenState) error

	// GetToken returns all singleton records of a mint. Returns ErrNotFound if not exists.
	GetToken(ctx context.Context, mint solana.Pubkey) (*domain.TokenState, error)

	// ListMints returns every stored mint.
	ListMints(ctx context.Context) ([]solana.Pubkey, error)

	// UpdateRewards applies fn to the reward pool and token config atomically.
	UpdateRewards(ctx context.Context, mint solana.Pubkey, fn RewardsUpdate) error

	// UpdateAnalytics applies fn to the analytics counters atomically.
	UpdateAnalytics(ctx context.Context, mint solana.Pubkey, fn AnalyticsUpdate) error

	// DeleteToken removes every record of a mint, proposals included.
	// Returns ErrNotFound if not exists.
	DeleteToken(ctx context.Context, mint solana.Pubkey) error
}

// ProposalStore provides access to proposals and their voter sets.
type ProposalStore interface {
	// CreateProposal applies fn to the governance config and stores the
	// returned proposal in the same atomic step.
	CreateProposal(ctx context.Context, mint solana.Pubkey, fn ProposalCreate) (*domain.Proposal, error)

	// GetProposal retrieves a proposal. Returns ErrNotFound if not exists.
	GetProposal(ctx context.Context, mint solana.Pubkey, id uint64) (*domain.Proposal, error)

	// ListProposals returns the proposals of a mint ordered by id ASC.
	ListProposals(ctx context.Context, mint solana.Pubkey) ([]*domain.Proposal, error)

	// UpdateProposal applies fn to one proposal atomically. Proposals of the
	// same mint are locked independently of each other and of the reward pool.
	UpdateProposal(ctx context.Context, mint solana.Pubkey, id uint64, fn ProposalUpdate) (*domain.Proposal, error)
}

// LedgerStore is a backend holding both token records and proposals.
type LedgerStore interface {
	TokenStore
	ProposalStore
	Close() error
}

// EventStore provides access to the append-only ledger_events log.
type EventStore interface {
	// Insert appends an event. Returns ErrDuplicateKey if the event id exists.
	Insert(ctx context.Context, env *events.Envelope) error

	// InsertBulk appends multiple events.
	InsertBulk(ctx context.Context, envs []*events.Envelope) error

	// GetByMint returns events of a mint with sequence > after, ordered by
	// sequence ASC, at most limit (0 means no limit).
	GetByMint(ctx context.Context, mint solana.Pubkey, after uint64, limit int) ([]*events.Envelope, error)

	// LastSequence returns the highest stored sequence, or 0 when empty.
	LastSequence(ctx context.Context) (uint64, error)
}

// EventSink adapts an EventStore to an events.Sink.
func EventSink(store EventStore) events.Sink {
	return events.SinkFunc(func(ctx context.Context, env events.Envelope) error {
		return store.Insert(ctx, &env)
	})
}
