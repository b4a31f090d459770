// Package main runs the ledger server:
// - REST API over the token, reward and governance operations
// - Live event stream on /ws, event log in ClickHouse or the primary store
// - Scheduled holder settlement
// - Prometheus metrics and status endpoints
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/clock"
	"meme-token-ledger/internal/config"
	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/httpapi"
	"meme-token-ledger/internal/ledger"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/scheduler"
	"meme-token-ledger/internal/service"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
	badgerstore "meme-token-ledger/internal/storage/badger"
	chstore "meme-token-ledger/internal/storage/clickhouse"
	"meme-token-ledger/internal/storage/memory"
	"meme-token-ledger/internal/storage/migrations"
	pgstore "meme-token-ledger/internal/storage/postgres"
)

// Server holds all components of the ledger service.
type Server struct {
	cfg       *config.Config
	svc       *service.Service
	events    storage.EventStore
	hub       *events.Hub
	scheduler *scheduler.Scheduler
	log       *logrus.Entry

	mu      sync.Mutex
	started time.Time
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Status      string            `json:"status"`
	Storage     string            `json:"storage"`
	Uptime      string            `json:"uptime"`
	Started     time.Time         `json:"started"`
	Subscribers int               `json:"subscribers"`
	Sequence    uint64            `json:"event_sequence"`
	Settlement  *scheduler.Status `json:"settlement,omitempty"`
}

// tokenBank moves tokens and reports their balances.
type tokenBank interface {
	ledger.Ledger
	ledger.BalanceOracle
}

// stores holds the storage backends.
type stores struct {
	ledger storage.LedgerStore
	events storage.EventStore
	bank   tokenBank
}

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		logrus.Fatalf("env file: %v", err)
	}

	cfg, err := config.Parse(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log := logrus.NewEntry(cfg.NewLogger(os.Stdout)).WithField("app", "ledger-server")

	ctx, cancel := context.WithCancel(context.Background())

	st, cleanup, err := createStores(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("create stores")
	}
	defer cleanup()

	server, err := newServer(ctx, cfg, st, log)
	if err != nil {
		log.WithError(err).Fatal("create server")
	}

	// Channel to signal completion
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		// A second signal forces exit.
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("server error")
	}
	log.Info("shutdown complete")
}

// createStores opens the configured ledger store and event log.
// ClickHouse holds the event log whenever a DSN is given.
func createStores(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*stores, func(), error) {
	st := &stores{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage {
	case config.StorageMemory:
		st.ledger = memory.NewStore()
		st.events = memory.NewEventStore()

	case config.StoragePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.ledger = pgstore.NewStore(pool)
		closers = append(closers, func() { st.ledger.Close() })

	case config.StorageBadger:
		db, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		st.ledger = badgerstore.NewStore(db)
		st.events = badgerstore.NewEventStore(db)
		st.bank = badgerstore.NewBank(db)
		closers = append(closers, func() { st.ledger.Close() })
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.events = chstore.NewEventStore(conn)
		closers = append(closers, func() { conn.Close() })
	}

	if st.events == nil {
		log.Warn("no event log backend configured, events are kept in memory")
		st.events = memory.NewEventStore()
	}
	if st.bank == nil {
		st.bank = ledger.NewMemory()
	}

	log.WithField("storage", cfg.Storage).Info("stores ready")
	return st, cleanup, nil
}

func newServer(ctx context.Context, cfg *config.Config, st *stores, log *logrus.Entry) (*Server, error) {
	bank := st.bank
	var (
		oracle ledger.BalanceOracle = bank
		clk    clock.Clock          = clock.System{}
	)
	if cfg.RPCEndpoint != "" {
		client := solana.NewHTTPClient(cfg.RPCEndpoint)
		oracle = ledger.NewRPCOracle(client)
		if cfg.Clock == config.ClockChain {
			clk = clock.NewChain(client)
		}
		log.WithField("endpoint", cfg.RPCEndpoint).Info("reading balances from RPC")
	}

	last, err := st.events.LastSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("read event sequence: %w", err)
	}

	hub := events.NewHub(log, nil)
	sink := events.Fanout{storage.EventSink(st.events), hub, events.NewLogSink(log)}

	svc := service.New(service.Deps{
		Store:     st.ledger,
		Ledger:    bank,
		Oracle:    oracle,
		Clock:     clk,
		Emitter:   events.NewEmitter(sink, last, log),
		ProgramID: cfg.ProgramID,
		Log:       log,
	})

	s := &Server{cfg: cfg, svc: svc, events: st.events, hub: hub, log: log}

	if cfg.SettleCron != "" {
		sched, err := scheduler.New(svc, cfg.SettleCron, log)
		if err != nil {
			return nil, err
		}
		s.scheduler = sched
	}
	return s, nil
}

// Run starts all components and blocks until ctx is cancelled or one fails.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	s.log.Info("starting ledger server")

	errCh := make(chan error, 2)

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	go s.runUptime(ctx)

	srv := &http.Server{
		Addr: s.cfg.HTTPAddr,
		Handler: httpapi.NewRouter(s.svc, httpapi.Options{
			Stream: s.hub,
			Status: s.status,
			Events: s.events,
			Log:    s.log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.cfg.HTTPAddr).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("http shutdown")
	}
	return runErr
}

// runUptime advances the uptime counter until ctx is cancelled.
func (s *Server) runUptime(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.UptimeEvery)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			observability.AddUptime(now.Sub(last).Seconds())
			last = now
		}
	}
}

func (s *Server) status() any {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	resp := StatusResponse{
		Status:      "running",
		Storage:     s.cfg.Storage,
		Uptime:      time.Since(started).Round(time.Second).String(),
		Started:     started,
		Subscribers: s.hub.Subscribers(),
		Sequence:    s.svc.EventSequence(),
	}
	if s.scheduler != nil {
		st := s.scheduler.Status()
		resp.Settlement = &st
	}
	return resp
}
