package memory

import (
	"context"
	"sort"
	"sync"

	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*events.Envelope
	ids  map[string]struct{}
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{ids: make(map[string]struct{})}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert appends an event. Returns ErrDuplicateKey if the event id exists.
func (s *EventStore) Insert(ctx context.Context, env *events.Envelope) error {
	return s.InsertBulk(ctx, []*events.Envelope{env})
}

// InsertBulk appends multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, envs []*events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(envs))
	for _, env := range envs {
		if env == nil || env.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.ids[env.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := seen[env.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[env.ID] = struct{}{}
	}

	for _, env := range envs {
		envCopy := *env
		envCopy.Payload = append([]byte(nil), env.Payload...)
		s.data = append(s.data, &envCopy)
		s.ids[env.ID] = struct{}{}
	}
	return nil
}

// GetByMint returns events of a mint with sequence > after, ordered by sequence ASC.
func (s *EventStore) GetByMint(_ context.Context, mint solana.Pubkey, after uint64, limit int) ([]*events.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*events.Envelope
	for _, env := range s.data {
		if env.Mint == mint && env.Sequence > after {
			envCopy := *env
			result = append(result, &envCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// LastSequence returns the highest stored sequence, or 0 when empty.
func (s *EventStore) LastSequence(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last uint64
	for _, env := range s.data {
		if env.Sequence > last {
			last = env.Sequence
		}
	}
	return last, nil
}
