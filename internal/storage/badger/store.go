// Package badger stores ledger records in an embedded BadgerDB.
//
// Keys:
//
//	token:<mint>:config     -> TokenConfig JSON
//	token:<mint>:pool       -> RewardPool JSON
//	token:<mint>:gov        -> GovernanceConfig JSON
//	token:<mint>:analytics  -> Analytics JSON
//	proposal:<mint>:<id>    -> Proposal JSON, id zero padded to 20 digits
//	event:<mint>:<seq>      -> events.Envelope JSON, seq zero padded to 20 digits
//	eventid:<id>            -> empty, duplicate guard
//	event:last              -> highest stored sequence, 8 bytes big endian
//	supply:<mint>           -> Bank supply, 8 bytes big endian
//	balance:<mint>:<owner>  -> Bank balance, 8 bytes big endian
//
// Each operation runs in one Badger transaction. Concurrent writers to the
// same key fail with badger.ErrConflict and are retried.
package badger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

// maxConflictRetries bounds the retries of a transaction that lost a write conflict.
const maxConflictRetries = 16

// DB wraps an open Badger database shared by the stores of this package.
type DB struct {
	db *badger.DB
}

// Open creates or opens a BadgerDB at path.
// If path is empty, it opens an in-memory database (for testing).
func Open(path string) (*DB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	// Reduce logging noise
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (d *DB) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = d.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func tokenKey(mint solana.Pubkey, record string) []byte {
	return []byte(fmt.Sprintf("token:%s:%s", mint, record))
}

func proposalPrefix(mint solana.Pubkey) []byte {
	return []byte(fmt.Sprintf("proposal:%s:", mint))
}

func proposalKey(mint solana.Pubkey, id uint64) []byte {
	return []byte(fmt.Sprintf("proposal:%s:%020d", mint, id))
}

// getJSON decodes the value at key into v. Returns ErrNotFound if the key is missing.
func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("get %s: %w", key, err)
	}
}
