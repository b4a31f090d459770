package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"

	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

var lastSequenceKey = []byte("event:last")

// EventStore implements storage.EventStore on a Badger database.
type EventStore struct {
	db *DB
}

// NewEventStore creates an EventStore on db.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

func eventPrefix(mint solana.Pubkey) []byte {
	return []byte(fmt.Sprintf("event:%s:", mint))
}

func eventKey(mint solana.Pubkey, seq uint64) []byte {
	return []byte(fmt.Sprintf("event:%s:%020d", mint, seq))
}

func eventIDKey(id string) []byte {
	return []byte("eventid:" + id)
}

// Insert stores an event. Returns ErrDuplicateKey if the event id exists.
func (s *EventStore) Insert(ctx context.Context, env *events.Envelope) error {
	return s.InsertBulk(ctx, []*events.Envelope{env})
}

// InsertBulk stores multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, envs []*events.Envelope) error {
	if len(envs) == 0 {
		return nil
	}

	return s.db.update(func(txn *badger.Txn) error {
		last, err := readLastSequence(txn)
		if err != nil {
			return err
		}

		for _, env := range envs {
			if env == nil || env.ID == "" {
				return storage.ErrInvalidInput
			}
			idKey := eventIDKey(env.ID)
			// Pending writes of this transaction are visible to Get.
			found, err := exists(txn, idKey)
			if err != nil {
				return err
			}
			if found {
				return storage.ErrDuplicateKey
			}
			if err := txn.Set(idKey, nil); err != nil {
				return fmt.Errorf("set %s: %w", idKey, err)
			}
			if err := setJSON(txn, eventKey(env.Mint, env.Sequence), env); err != nil {
				return err
			}
			if env.Sequence > last {
				last = env.Sequence
			}
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], last)
		if err := txn.Set(lastSequenceKey, buf[:]); err != nil {
			return fmt.Errorf("set %s: %w", lastSequenceKey, err)
		}
		return nil
	})
}

// GetByMint returns events of a mint with sequence > after, ordered by sequence ASC.
func (s *EventStore) GetByMint(_ context.Context, mint solana.Pubkey, after uint64, limit int) ([]*events.Envelope, error) {
	if after == math.MaxUint64 {
		return nil, nil
	}

	var result []*events.Envelope
	err := s.db.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := eventPrefix(mint)
		start := eventKey(mint, after+1)
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(result) >= limit {
				break
			}
			var env events.Envelope
			if err := getJSON(txn, bytes.Clone(it.Item().Key()), &env); err != nil {
				return err
			}
			result = append(result, &env)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LastSequence returns the highest stored sequence, or 0 when empty.
func (s *EventStore) LastSequence(_ context.Context) (uint64, error) {
	var last uint64
	err := s.db.db.View(func(txn *badger.Txn) error {
		var err error
		last, err = readLastSequence(txn)
		return err
	})
	return last, err
}

func readLastSequence(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(lastSequenceKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get %s: %w", lastSequenceKey, err)
	}
	var last uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("%s: %d bytes", lastSequenceKey, len(val))
		}
		last = binary.BigEndian.Uint64(val)
		return nil
	})
	return last, err
}
