package badger

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

// Store implements storage.LedgerStore on a Badger database.
type Store struct {
	db *DB
}

// NewStore creates a Store on db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*Store)(nil)

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateToken stores the initial records. Returns ErrDuplicateKey if the mint exists.
func (s *Store) CreateToken(_ context.Context, state *domain.TokenState) error {
	if state == nil || state.Config == nil || state.RewardPool == nil || state.Governance == nil || state.Analytics == nil {
		return storage.ErrInvalidInput
	}
	mint := state.Config.Mint

	return s.db.update(func(txn *badger.Txn) error {
		found, err := exists(txn, tokenKey(mint, "config"))
		if err != nil {
			return err
		}
		if found {
			return storage.ErrDuplicateKey
		}

		records := []struct {
			name string
			v    any
		}{
			{"config", state.Config},
			{"pool", state.RewardPool},
			{"gov", state.Governance},
			{"analytics", state.Analytics},
		}
		for _, r := range records {
			if err := setJSON(txn, tokenKey(mint, r.name), r.v); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteToken removes the token records and proposals of mint in one
// transaction. Returns ErrNotFound if not exists.
func (s *Store) DeleteToken(_ context.Context, mint solana.Pubkey) error {
	return s.db.update(func(txn *badger.Txn) error {
		found, err := exists(txn, tokenKey(mint, "config"))
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}

		keys := [][]byte{
			tokenKey(mint, "config"),
			tokenKey(mint, "pool"),
			tokenKey(mint, "gov"),
			tokenKey(mint, "analytics"),
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := proposalPrefix(mint)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// GetToken returns all singleton records from one snapshot. Returns ErrNotFound if not exists.
func (s *Store) GetToken(_ context.Context, mint solana.Pubkey) (*domain.TokenState, error) {
	state := &domain.TokenState{
		Config:     &domain.TokenConfig{},
		RewardPool: &domain.RewardPool{},
		Governance: &domain.GovernanceConfig{},
		Analytics:  &domain.Analytics{},
	}
	err := s.db.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, tokenKey(mint, "config"), state.Config); err != nil {
			return err
		}
		if err := getJSON(txn, tokenKey(mint, "pool"), state.RewardPool); err != nil {
			return err
		}
		if err := getJSON(txn, tokenKey(mint, "gov"), state.Governance); err != nil {
			return err
		}
		return getJSON(txn, tokenKey(mint, "analytics"), state.Analytics)
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ListMints returns every stored mint ordered by address text.
func (s *Store) ListMints(_ context.Context) ([]solana.Pubkey, error) {
	var mints []solana.Pubkey
	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("token:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			if !strings.HasSuffix(key, ":config") {
				continue
			}
			m, err := solana.ParsePubkey(strings.TrimSuffix(strings.TrimPrefix(key, "token:"), ":config"))
			if err != nil {
				return err
			}
			mints = append(mints, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mints, nil
}

// UpdateRewards applies fn to the pool and config and writes both on success.
func (s *Store) UpdateRewards(_ context.Context, mint solana.Pubkey, fn storage.RewardsUpdate) error {
	return s.db.update(func(txn *badger.Txn) error {
		var (
			cfg  domain.TokenConfig
			pool domain.RewardPool
		)
		if err := getJSON(txn, tokenKey(mint, "config"), &cfg); err != nil {
			return err
		}
		if err := getJSON(txn, tokenKey(mint, "pool"), &pool); err != nil {
			return err
		}

		before := cfg
		if err := fn(&pool, &cfg); err != nil {
			return err
		}
		if cfg != before {
			if err := setJSON(txn, tokenKey(mint, "config"), &cfg); err != nil {
				return err
			}
		}
		return setJSON(txn, tokenKey(mint, "pool"), &pool)
	})
}

// UpdateAnalytics applies fn to the analytics record and writes it on success.
func (s *Store) UpdateAnalytics(_ context.Context, mint solana.Pubkey, fn storage.AnalyticsUpdate) error {
	return s.db.update(func(txn *badger.Txn) error {
		var a domain.Analytics
		if err := getJSON(txn, tokenKey(mint, "analytics"), &a); err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		return setJSON(txn, tokenKey(mint, "analytics"), &a)
	})
}

// CreateProposal applies fn to the governance record and stores the
// returned proposal with it.
func (s *Store) CreateProposal(_ context.Context, mint solana.Pubkey, fn storage.ProposalCreate) (*domain.Proposal, error) {
	var created *domain.Proposal
	err := s.db.update(func(txn *badger.Txn) error {
		var (
			gov domain.GovernanceConfig
			cfg domain.TokenConfig
		)
		if err := getJSON(txn, tokenKey(mint, "gov"), &gov); err != nil {
			return err
		}
		if err := getJSON(txn, tokenKey(mint, "config"), &cfg); err != nil {
			return err
		}

		p, err := fn(&gov, &cfg)
		if err != nil {
			return err
		}
		if p == nil || p.Type == nil {
			return storage.ErrInvalidInput
		}

		key := proposalKey(mint, p.ID)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if found {
			return storage.ErrDuplicateKey
		}
		if err := setJSON(txn, key, p); err != nil {
			return err
		}
		if err := setJSON(txn, tokenKey(mint, "gov"), &gov); err != nil {
			return err
		}
		created = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetProposal retrieves a proposal. Returns ErrNotFound if not exists.
func (s *Store) GetProposal(_ context.Context, mint solana.Pubkey, id uint64) (*domain.Proposal, error) {
	var p domain.Proposal
	err := s.db.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, proposalKey(mint, id), &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProposals retrieves the proposals of a mint ordered by id ASC.
func (s *Store) ListProposals(_ context.Context, mint solana.Pubkey) ([]*domain.Proposal, error) {
	var result []*domain.Proposal
	err := s.db.db.View(func(txn *badger.Txn) error {
		found, err := exists(txn, tokenKey(mint, "config"))
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := proposalPrefix(mint)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p domain.Proposal
			if err := getJSON(txn, bytes.Clone(it.Item().Key()), &p); err != nil {
				return err
			}
			result = append(result, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateProposal applies fn to one proposal and writes it on success.
func (s *Store) UpdateProposal(_ context.Context, mint solana.Pubkey, id uint64, fn storage.ProposalUpdate) (*domain.Proposal, error) {
	var updated *domain.Proposal
	err := s.db.update(func(txn *badger.Txn) error {
		var p domain.Proposal
		key := proposalKey(mint, id)
		if err := getJSON(txn, key, &p); err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		if err := setJSON(txn, key, &p); err != nil {
			return err
		}
		updated = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
