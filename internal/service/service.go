// Package service coordinates ledger operations.
//
// Every operation reads the clock once, runs the engine function inside the
// store's atomic update for the record set it touches, and only then emits
// its events and updates the analytics counters. Analytics is a separate
// atomic step: a failure there is logged and never undoes the committed
// operation.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/clock"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/ledger"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/rewards"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
	"meme-token-ledger/internal/token"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Store     storage.LedgerStore
	Ledger    ledger.Ledger
	Oracle    ledger.BalanceOracle
	Clock     clock.Clock
	Emitter   *events.Emitter
	ProgramID solana.Pubkey
	Log       *logrus.Entry
}

// Service runs ledger operations against a store.
type Service struct {
	store     storage.LedgerStore
	ledger    ledger.Ledger
	oracle    ledger.BalanceOracle
	clock     clock.Clock
	emitter   *events.Emitter
	programID solana.Pubkey
	log       *logrus.Entry
	locks     recordLocks
}

// New creates a Service.
func New(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		store:     d.Store,
		ledger:    d.Ledger,
		oracle:    d.Oracle,
		clock:     d.Clock,
		emitter:   d.Emitter,
		programID: d.ProgramID,
		log:       log.WithField("component", "service"),
	}
}

// ProgramID returns the program id used for address derivation.
func (s *Service) ProgramID() solana.Pubkey {
	return s.programID
}

func (s *Service) now(ctx context.Context) (int64, error) {
	now, err := s.clock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	return now, nil
}

func (s *Service) balance(ctx context.Context, mint, owner solana.Pubkey) (uint64, error) {
	b, err := s.oracle.BalanceOf(ctx, mint, owner)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", owner, err)
	}
	return b, nil
}

func (s *Service) vault(mint solana.Pubkey) (solana.Pubkey, error) {
	return rewards.VaultAddress(mint, s.programID)
}

// observe records the outcome of operation op started at start.
func observe(op string, start time.Time, err error) {
	observability.RecordOperation(op, time.Since(start).Seconds(), err)
}

// updateAnalytics applies fn as its own atomic step and logs a failure.
func (s *Service) updateAnalytics(ctx context.Context, mint solana.Pubkey, op string, fn storage.AnalyticsUpdate) {
	if err := s.store.UpdateAnalytics(ctx, mint, fn); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"mint":      mint.String(),
			"operation": op,
		}).Warn("update analytics")
	}
}

// InitializeToken creates the records of a new token and mints the initial
// supply to creator. The records are stored before minting, so a concurrent
// initialization of the same mint fails with storage.ErrDuplicateKey without
// minting; a failed mint removes the records again.
func (s *Service) InitializeToken(ctx context.Context, creator, mint solana.Pubkey) (state *domain.TokenState, err error) {
	start := time.Now()
	defer func() { observe("initialize", start, err) }()

	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}

	state, err = token.NewState(creator, mint, now)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(rewardsLock(mint))
	defer unlock()

	if err := s.store.CreateToken(ctx, state); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", mint, err)
	}

	ev, err := token.MintInitialSupply(ctx, s.ledger, state, now)
	if err != nil {
		if derr := s.store.DeleteToken(ctx, mint); derr != nil {
			s.log.WithError(derr).WithField("mint", mint.String()).Error("remove records of failed initialization")
		}
		return nil, err
	}

	s.emitter.Emit(ctx, mint, now, ev)
	s.log.WithFields(logrus.Fields{
		"mint":    mint.String(),
		"creator": creator.String(),
	}).Info("token initialized")
	return state, nil
}

// Token returns the singleton records of mint.
func (s *Service) Token(ctx context.Context, mint solana.Pubkey) (*domain.TokenState, error) {
	return s.store.GetToken(ctx, mint)
}

// Mints returns every initialized mint.
func (s *Service) Mints(ctx context.Context) ([]solana.Pubkey, error) {
	return s.store.ListMints(ctx)
}

// Holder returns the reward record of holder. Returns storage.ErrNotFound
// if the holder has never been settled.
func (s *Service) Holder(ctx context.Context, mint, holder solana.Pubkey) (domain.HolderInfo, error) {
	state, err := s.store.GetToken(ctx, mint)
	if err != nil {
		return domain.HolderInfo{}, err
	}
	h, ok := state.RewardPool.Holder(holder)
	if !ok {
		return domain.HolderInfo{}, fmt.Errorf("holder %s: %w", holder, storage.ErrNotFound)
	}
	return h, nil
}

// EventSequence returns the sequence number of the last emitted event.
func (s *Service) EventSequence() uint64 {
	if s.emitter == nil {
		return 0
	}
	return s.emitter.Sequence()
}
