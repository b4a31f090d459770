package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

// Store is an in-memory implementation of storage.LedgerStore.
//
// Each mint has independent locks for its reward records (pool and config),
// governance config, analytics and every proposal, so operations on disjoint
// record sets never wait for each other. Lock order when more than one is
// held: governance, then rewards.
type Store struct {
	mu     sync.RWMutex
	tokens map[solana.Pubkey]*tokenRecords
}

type tokenRecords struct {
	rewardsMu sync.Mutex
	cfg       *domain.TokenConfig
	pool      *domain.RewardPool

	govMu sync.Mutex
	gov   *domain.GovernanceConfig

	analyticsMu sync.Mutex
	analytics   *domain.Analytics

	proposalsMu sync.RWMutex
	proposals   map[uint64]*proposalRecord
}

type proposalRecord struct {
	mu sync.Mutex
	p  *domain.Proposal
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		tokens: make(map[solana.Pubkey]*tokenRecords),
	}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*Store)(nil)

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// CreateToken stores the initial records. Returns ErrDuplicateKey if the mint exists.
func (s *Store) CreateToken(_ context.Context, state *domain.TokenState) error {
	if state == nil || state.Config == nil || state.RewardPool == nil || state.Governance == nil || state.Analytics == nil {
		return storage.ErrInvalidInput
	}
	mint := state.Config.Mint

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[mint]; exists {
		return storage.ErrDuplicateKey
	}

	// Store copies to prevent external mutation
	cfg := *state.Config
	s.tokens[mint] = &tokenRecords{
		cfg:       &cfg,
		pool:      state.RewardPool.Clone(),
		gov:       state.Governance.Clone(),
		analytics: state.Analytics.Clone(),
		proposals: make(map[uint64]*proposalRecord),
	}
	return nil
}

// DeleteToken removes all records of mint. Returns ErrNotFound if not exists.
func (s *Store) DeleteToken(_ context.Context, mint solana.Pubkey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[mint]; !exists {
		return storage.ErrNotFound
	}
	delete(s.tokens, mint)
	return nil
}

// GetToken returns copies of all singleton records. Returns ErrNotFound if not exists.
func (s *Store) GetToken(_ context.Context, mint solana.Pubkey) (*domain.TokenState, error) {
	t, err := s.token(mint)
	if err != nil {
		return nil, err
	}

	state := &domain.TokenState{}

	t.govMu.Lock()
	state.Governance = t.gov.Clone()
	t.govMu.Unlock()

	t.rewardsMu.Lock()
	cfg := *t.cfg
	state.Config = &cfg
	state.RewardPool = t.pool.Clone()
	t.rewardsMu.Unlock()

	t.analyticsMu.Lock()
	state.Analytics = t.analytics.Clone()
	t.analyticsMu.Unlock()

	return state, nil
}

// ListMints returns every stored mint in byte order.
func (s *Store) ListMints(_ context.Context) ([]solana.Pubkey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mints := make([]solana.Pubkey, 0, len(s.tokens))
	for m := range s.tokens {
		mints = append(mints, m)
	}
	sort.Slice(mints, func(i, j int) bool {
		return bytes.Compare(mints[i][:], mints[j][:]) < 0
	})
	return mints, nil
}

// UpdateRewards applies fn to copies of the pool and config and commits them on success.
func (s *Store) UpdateRewards(_ context.Context, mint solana.Pubkey, fn storage.RewardsUpdate) error {
	t, err := s.token(mint)
	if err != nil {
		return err
	}

	t.rewardsMu.Lock()
	defer t.rewardsMu.Unlock()

	pool := t.pool.Clone()
	cfg := *t.cfg
	if err := fn(pool, &cfg); err != nil {
		return err
	}
	t.pool = pool
	t.cfg = &cfg
	return nil
}

// UpdateAnalytics applies fn to a copy of the analytics and commits it on success.
func (s *Store) UpdateAnalytics(_ context.Context, mint solana.Pubkey, fn storage.AnalyticsUpdate) error {
	t, err := s.token(mint)
	if err != nil {
		return err
	}

	t.analyticsMu.Lock()
	defer t.analyticsMu.Unlock()

	a := t.analytics.Clone()
	if err := fn(a); err != nil {
		return err
	}
	t.analytics = a
	return nil
}

// CreateProposal applies fn to a copy of the governance config and stores
// the returned proposal with it.
func (s *Store) CreateProposal(_ context.Context, mint solana.Pubkey, fn storage.ProposalCreate) (*domain.Proposal, error) {
	t, err := s.token(mint)
	if err != nil {
		return nil, err
	}

	t.govMu.Lock()
	defer t.govMu.Unlock()

	t.rewardsMu.Lock()
	cfg := *t.cfg
	t.rewardsMu.Unlock()

	gov := t.gov.Clone()
	p, err := fn(gov, &cfg)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, storage.ErrInvalidInput
	}

	t.proposalsMu.Lock()
	defer t.proposalsMu.Unlock()
	if _, exists := t.proposals[p.ID]; exists {
		return nil, storage.ErrDuplicateKey
	}
	t.proposals[p.ID] = &proposalRecord{p: p.Clone()}
	t.gov = gov

	return p.Clone(), nil
}

// GetProposal returns a copy of a proposal. Returns ErrNotFound if not exists.
func (s *Store) GetProposal(_ context.Context, mint solana.Pubkey, id uint64) (*domain.Proposal, error) {
	rec, err := s.proposal(mint, id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.p.Clone(), nil
}

// ListProposals returns copies of the proposals of a mint ordered by id ASC.
func (s *Store) ListProposals(_ context.Context, mint solana.Pubkey) ([]*domain.Proposal, error) {
	t, err := s.token(mint)
	if err != nil {
		return nil, err
	}

	t.proposalsMu.RLock()
	recs := make([]*proposalRecord, 0, len(t.proposals))
	for _, rec := range t.proposals {
		recs = append(recs, rec)
	}
	t.proposalsMu.RUnlock()

	result := make([]*domain.Proposal, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		result = append(result, rec.p.Clone())
		rec.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateProposal applies fn to a copy of one proposal and commits it on success.
func (s *Store) UpdateProposal(_ context.Context, mint solana.Pubkey, id uint64, fn storage.ProposalUpdate) (*domain.Proposal, error) {
	rec, err := s.proposal(mint, id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	p := rec.p.Clone()
	if err := fn(p); err != nil {
		return nil, err
	}
	rec.p = p
	return p.Clone(), nil
}

func (s *Store) token(mint solana.Pubkey) (*tokenRecords, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tokens[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) proposal(mint solana.Pubkey, id uint64) (*proposalRecord, error) {
	t, err := s.token(mint)
	if err != nil {
		return nil, err
	}

	t.proposalsMu.RLock()
	defer t.proposalsMu.RUnlock()

	rec, exists := t.proposals[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}
