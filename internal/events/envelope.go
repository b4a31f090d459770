// Package events delivers ledger events to their sinks in call order.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/idhash"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/solana"
)

// Envelope is the delivered form of an event.
// Corresponds to ledger_events table in ClickHouse.
type Envelope struct {
	ID        string           `json:"id"`
	Sequence  uint64           `json:"sequence"`
	Mint      solana.Pubkey    `json:"mint"`
	Type      domain.EventType `json:"type"`
	Timestamp int64            `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload"`

	Event domain.Event `json:"-"` // set on emission, not decoded
}

// Emitter stamps events with a sequence number and a deterministic ID and
// hands them to a sink. Sequence assignment and publication happen under one
// lock, so the sink receives envelopes in sequence order. Delivery is
// fire-and-forget: sink failures are logged and never fail the operation
// that emitted the event.
type Emitter struct {
	mu   sync.Mutex
	seq  uint64
	sink Sink
	log  *logrus.Entry
}

// NewEmitter creates an emitter whose first event gets sequence after+1.
func NewEmitter(sink Sink, after uint64, log *logrus.Entry) *Emitter {
	return &Emitter{seq: after, sink: sink, log: log}
}

// Emit publishes ev for mint at timestamp ts and returns the envelope.
func (e *Emitter) Emit(ctx context.Context, mint solana.Pubkey, ts int64, ev domain.Event) Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, err := NewEnvelope(e.seq+1, mint, ts, ev)
	if err != nil {
		e.log.WithError(err).WithField("type", ev.EventType()).Error("encode event")
		return env
	}
	e.seq = env.Sequence
	err = e.sink.Publish(ctx, env)
	observability.RecordEvent(string(env.Type), err)
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"type":     env.Type,
			"sequence": env.Sequence,
		}).Warn("publish event")
	}
	return env
}

// Sequence returns the sequence number of the last emitted event.
func (e *Emitter) Sequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// NewEnvelope encodes ev into an envelope.
func NewEnvelope(seq uint64, mint solana.Pubkey, ts int64, ev domain.Event) (Envelope, error) {
	env := Envelope{
		ID:        idhash.ComputeEventID(mint.String(), string(ev.EventType()), seq, ts),
		Sequence:  seq,
		Mint:      mint,
		Type:      ev.EventType(),
		Timestamp: ts,
		Event:     ev,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return env, fmt.Errorf("marshal %s payload: %w", ev.EventType(), err)
	}
	env.Payload = payload
	return env, nil
}
