package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"meme-token-ledger/internal/fixedpoint"
	"meme-token-ledger/internal/ledger"
	"meme-token-ledger/internal/solana"
)

// Bank is a token ledger persisted next to the ledger records, for
// deployments without a chain behind them.
//
//	supply:<mint>           -> issued supply, 8 bytes big endian
//	balance:<mint>:<owner>  -> owner balance, 8 bytes big endian
type Bank struct {
	db *DB
}

// NewBank creates a Bank on db.
func NewBank(db *DB) *Bank {
	return &Bank{db: db}
}

// Compile-time interface checks.
var (
	_ ledger.Ledger        = (*Bank)(nil)
	_ ledger.BalanceOracle = (*Bank)(nil)
)

func supplyKey(mint solana.Pubkey) []byte {
	return []byte(fmt.Sprintf("supply:%s", mint))
}

func balanceKey(mint, owner solana.Pubkey) []byte {
	return []byte(fmt.Sprintf("balance:%s:%s", mint, owner))
}

// MintTo issues amount new tokens of mint to owner.
func (b *Bank) MintTo(_ context.Context, mint, owner solana.Pubkey, amount uint64) error {
	return b.db.update(func(txn *badger.Txn) error {
		supply, _, err := getUint64(txn, supplyKey(mint))
		if err != nil {
			return err
		}
		supply, err = fixedpoint.Add(supply, amount)
		if err != nil {
			return fmt.Errorf("mint %s supply: %w", mint, err)
		}
		balance, _, err := getUint64(txn, balanceKey(mint, owner))
		if err != nil {
			return err
		}
		balance, err = fixedpoint.Add(balance, amount)
		if err != nil {
			return fmt.Errorf("mint %s owner %s balance: %w", mint, owner, err)
		}

		if err := setUint64(txn, supplyKey(mint), supply); err != nil {
			return err
		}
		return setUint64(txn, balanceKey(mint, owner), balance)
	})
}

// Transfer moves amount of mint between owners.
func (b *Bank) Transfer(_ context.Context, mint, from, to solana.Pubkey, amount uint64) error {
	return b.db.update(func(txn *badger.Txn) error {
		if _, ok, err := getUint64(txn, supplyKey(mint)); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("mint %s: %w", mint, ledger.ErrUnknownMint)
		}

		fromBal, _, err := getUint64(txn, balanceKey(mint, from))
		if err != nil {
			return err
		}
		if fromBal < amount {
			return fmt.Errorf("owner %s has %d, needs %d: %w", from, fromBal, amount, ledger.ErrInsufficientFunds)
		}
		if from == to {
			return nil
		}
		toBal, _, err := getUint64(txn, balanceKey(mint, to))
		if err != nil {
			return err
		}
		credited, err := fixedpoint.Add(toBal, amount)
		if err != nil {
			return fmt.Errorf("owner %s balance: %w", to, err)
		}

		if err := setUint64(txn, balanceKey(mint, from), fromBal-amount); err != nil {
			return err
		}
		return setUint64(txn, balanceKey(mint, to), credited)
	})
}

// BalanceOf returns the owner's balance of mint. Unknown owners have zero.
func (b *Bank) BalanceOf(_ context.Context, mint, owner solana.Pubkey) (uint64, error) {
	var balance uint64
	err := b.db.db.View(func(txn *badger.Txn) error {
		var err error
		balance, _, err = getUint64(txn, balanceKey(mint, owner))
		return err
	})
	return balance, err
}

// TotalSupply returns the issued supply of mint.
func (b *Bank) TotalSupply(_ context.Context, mint solana.Pubkey) (uint64, error) {
	var (
		supply uint64
		ok     bool
	)
	err := b.db.db.View(func(txn *badger.Txn) error {
		var err error
		supply, ok, err = getUint64(txn, supplyKey(mint))
		return err
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("mint %s: %w", mint, ledger.ErrUnknownMint)
	}
	return supply, nil
}

// getUint64 reads a big endian counter. A missing key reads as zero.
func getUint64(txn *badger.Txn, key []byte) (uint64, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("value of %s has %d bytes", key, len(val))
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, true, err
}

func setUint64(txn *badger.Txn, key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	if err := txn.Set(key, buf[:]); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
