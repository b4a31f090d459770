package clickhouse

import (
	"context"
	"fmt"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert appends an event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, env *events.Envelope) error {
	return s.InsertBulk(ctx, []*events.Envelope{env})
}

// InsertBulk appends multiple events. Fails entire batch on duplicate event_id.
func (s *EventStore) InsertBulk(ctx context.Context, envs []*events.Envelope) error {
	if len(envs) == 0 {
		return nil
	}

	// MergeTree does not enforce uniqueness; check explicitly.
	seen := make(map[string]struct{}, len(envs))
	for _, env := range envs {
		if env == nil || env.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[env.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[env.ID] = struct{}{}

		exists, err := s.exists(ctx, env.ID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			event_id, sequence, mint, event_type, timestamp, payload
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, env := range envs {
		err = batch.Append(
			env.ID, env.Sequence, env.Mint.String(),
			string(env.Type), env.Timestamp, string(env.Payload),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint returns events of a mint with sequence > after, ordered by sequence ASC.
func (s *EventStore) GetByMint(ctx context.Context, mint solana.Pubkey, after uint64, limit int) ([]*events.Envelope, error) {
	query := `
		SELECT event_id, sequence, mint, event_type, timestamp, payload
		FROM ledger_events FINAL
		WHERE mint = ? AND sequence > ?
		ORDER BY sequence ASC
	`
	args := []interface{}{mint.String(), after}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LastSequence returns the highest stored sequence, or 0 when empty.
func (s *EventStore) LastSequence(ctx context.Context) (uint64, error) {
	var seq uint64
	if err := s.conn.QueryRow(ctx, `SELECT max(sequence) FROM ledger_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last sequence: %w", err)
	}
	return seq, nil
}

// exists checks if an event with the given id exists.
func (s *EventStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM ledger_events WHERE event_id = ?`, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*events.Envelope, error) {
	var out []*events.Envelope

	for rows.Next() {
		var (
			env             events.Envelope
			mint, eventType string
			payload         string
		)
		if err := rows.Scan(&env.ID, &env.Sequence, &mint, &eventType, &env.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		pk, err := solana.ParsePubkey(mint)
		if err != nil {
			return nil, fmt.Errorf("event %s mint: %w", env.ID, err)
		}
		env.Mint = pk
		env.Type = domain.EventType(eventType)
		env.Payload = []byte(payload)
		out = append(out, &env)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}
