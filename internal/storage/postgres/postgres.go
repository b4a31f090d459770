// Package postgres stores ledger records in PostgreSQL.
//
// u64 quantities are NUMERIC(20, 0) columns. They are written as
// pgtype.Numeric and read back through a ::text cast so every value in
// [0, 2^64) survives the round trip exactly.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"meme-token-ledger/internal/solana"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// querier is satisfied by both *Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withTx runs fn in a transaction and commits when fn returns nil.
func (p *Pool) withTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := p.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// numeric encodes v for a NUMERIC(20, 0) parameter.
func numeric(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

// u64Text scans a NUMERIC column selected as ::text.
type u64Text struct {
	dst *uint64
}

func u64(dst *uint64) *u64Text {
	return &u64Text{dst: dst}
}

// Scan implements sql.Scanner.
func (s *u64Text) Scan(src any) error {
	var text string
	switch v := src.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("scan u64: unsupported source %T", src)
	}
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("scan u64: %w", err)
	}
	*s.dst = n
	return nil
}

// pubkeyText scans a base58 TEXT column.
type pubkeyText struct {
	dst *solana.Pubkey
}

func pubkey(dst *solana.Pubkey) *pubkeyText {
	return &pubkeyText{dst: dst}
}

// Scan implements sql.Scanner.
func (s *pubkeyText) Scan(src any) error {
	var text string
	switch v := src.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("scan pubkey: unsupported source %T", src)
	}
	pk, err := solana.ParsePubkey(text)
	if err != nil {
		return err
	}
	*s.dst = pk
	return nil
}

func pubkeyStrings(keys []solana.Pubkey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func parsePubkeys(texts []string) ([]solana.Pubkey, error) {
	out := make([]solana.Pubkey, 0, len(texts))
	for _, s := range texts {
		pk, err := solana.ParsePubkey(s)
		if err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, nil
}
