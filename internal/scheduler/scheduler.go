// Package scheduler settles every tracked holder on a cron schedule.
//
// Accrual is pull based, so a holder that never transacts never sees its
// pending rewards. Periodic settlement at fresh oracle balances keeps
// UnclaimedRewards current for reads.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/rewards"
	"meme-token-ledger/internal/service"
	"meme-token-ledger/internal/solana"
)

// Settler is the subset of the service used by the scheduler.
type Settler interface {
	Mints(ctx context.Context) ([]solana.Pubkey, error)
	Token(ctx context.Context, mint solana.Pubkey) (*domain.TokenState, error)
	Settle(ctx context.Context, mint, holder solana.Pubkey) (rewards.SettleResult, error)
}

var _ Settler = (*service.Service)(nil)

// Summary describes one settlement run.
type Summary struct {
	Mints   int
	Settled int
	Failed  int
}

// Status is a snapshot of scheduler state.
type Status struct {
	Schedule string    `json:"schedule"`
	Running  bool      `json:"running"`
	Runs     int       `json:"runs"`
	LastRun  time.Time `json:"last_run"`
	Last     Summary   `json:"last"`
}

// Scheduler runs settlement passes on a cron schedule.
type Scheduler struct {
	settler  Settler
	schedule string
	cron     *cron.Cron
	log      *logrus.Entry

	mu      sync.Mutex
	running bool
	runs    int
	lastRun time.Time
	last    Summary
}

// New creates a scheduler for schedule, a standard cron expression or a
// descriptor such as "@every 5m".
func New(settler Settler, schedule string, log *logrus.Entry) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse settle schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		settler:  settler,
		schedule: schedule,
		cron:     cron.New(),
		log:      log.WithField("component", "scheduler"),
	}, nil
}

// Start registers the settlement job and starts the cron runner. The runner
// stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.WithError(err).Warn("settlement run")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule settlement: %w", err)
	}

	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("settlement scheduler started")

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.log.Info("settlement scheduler stopped")
	}()
	return nil
}

// ErrAlreadyRunning is returned by RunOnce while another run is in progress.
var ErrAlreadyRunning = errors.New("settlement already running")

// RunOnce settles every holder of every mint at its oracle balance.
// Failures are counted and logged; a run continues past them.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Summary{}, ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	start := time.Now()
	sum, err := s.run(ctx)

	s.mu.Lock()
	s.running = false
	s.runs++
	s.lastRun = time.Now()
	s.last = sum
	s.mu.Unlock()

	status := "ok"
	if err != nil || sum.Failed > 0 {
		status = "error"
	}
	observability.RecordSettlementRun(status, time.Since(start).Seconds(), time.Now().Unix())

	s.log.WithFields(logrus.Fields{
		"mints":    sum.Mints,
		"settled":  sum.Settled,
		"failed":   sum.Failed,
		"duration": time.Since(start),
	}).Info("settlement run completed")
	return sum, err
}

func (s *Scheduler) run(ctx context.Context) (Summary, error) {
	var sum Summary

	mints, err := s.settler.Mints(ctx)
	if err != nil {
		return sum, fmt.Errorf("list mints: %w", err)
	}

	for _, mint := range mints {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Mints++

		state, err := s.settler.Token(ctx, mint)
		if err != nil {
			sum.Failed++
			s.log.WithError(err).WithField("mint", mint.String()).Warn("load token")
			continue
		}

		for _, h := range state.RewardPool.Holders {
			if _, err := s.settler.Settle(ctx, mint, h.Address); err != nil {
				sum.Failed++
				s.log.WithError(err).WithFields(logrus.Fields{
					"mint":   mint.String(),
					"holder": h.Address.String(),
				}).Warn("settle holder")
				continue
			}
			sum.Settled++
		}
	}
	return sum, nil
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Schedule: s.schedule,
		Running:  s.running,
		Runs:     s.runs,
		LastRun:  s.lastRun,
		Last:     s.last,
	}
}
