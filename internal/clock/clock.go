// Package clock provides the Unix-second time source read once at the
// start of every ledger operation.
package clock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"meme-token-ledger/internal/solana"
)

// Clock returns the current Unix time in seconds.
type Clock interface {
	Now(ctx context.Context) (int64, error)
}

// System reads the local wall clock.
type System struct{}

// Now returns time.Now in Unix seconds.
func (System) Now(context.Context) (int64, error) {
	return time.Now().Unix(), nil
}

// Manual is a settable clock for tests and replays. Safe for concurrent use.
type Manual struct {
	now atomic.Int64
}

// NewManual creates a manual clock at start.
func NewManual(start int64) *Manual {
	c := &Manual{}
	c.now.Store(start)
	return c
}

// Now returns the current manual time.
func (c *Manual) Now(context.Context) (int64, error) {
	return c.now.Load(), nil
}

// Set moves the clock to t.
func (c *Manual) Set(t int64) {
	c.now.Store(t)
}

// Advance moves the clock forward by d seconds and returns the new time.
func (c *Manual) Advance(d int64) int64 {
	return c.now.Add(d)
}

// ErrNoBlockTime is returned when the node has no block time for the
// current slot.
var ErrNoBlockTime = errors.New("block time unavailable")

// Chain reads the block time of the node's current slot.
type Chain struct {
	client solana.RPCClient
}

// NewChain creates a chain clock backed by client.
func NewChain(client solana.RPCClient) *Chain {
	return &Chain{client: client}
}

// Now returns the estimated production time of the current slot.
func (c *Chain) Now(ctx context.Context) (int64, error) {
	slot, err := c.client.GetSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	bt, err := c.client.GetBlockTime(ctx, slot)
	if err != nil {
		return 0, fmt.Errorf("get block time for slot %d: %w", slot, err)
	}
	if bt == nil {
		return 0, fmt.Errorf("slot %d: %w", slot, ErrNoBlockTime)
	}
	return *bt, nil
}

var (
	_ Clock = System{}
	_ Clock = (*Manual)(nil)
	_ Clock = (*Chain)(nil)
)
