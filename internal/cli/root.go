// Package cli implements tokenctl, a command line client that runs ledger
// operations directly against a Badger data directory.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"meme-token-ledger/internal/clock"
	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/service"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
	badgerstore "meme-token-ledger/internal/storage/badger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DataDir   string
	Format    string // "yaml" | "json"
	ProgramID pubkeyValue
	At        int64 // Unix seconds; 0 uses the system clock
	Verbose   bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"yaml", "json"}

// NewRootCommand creates the root command of tokenctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tokenctl",
		Short: "Operate a meme token ledger",
		Long:  "Initialize tokens, settle and claim rewards, and run governance against a local ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.ProgramID.IsZero() {
				return fmt.Errorf("--program-id is required")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DataDir, "data", "data/ledger", "Badger data directory")
	cmd.PersistentFlags().StringVarP(&opts.Format, "output", "o", "yaml", "output format (yaml|json)")
	cmd.PersistentFlags().Var(&opts.ProgramID, "program-id", "program id used for address derivation")
	cmd.PersistentFlags().Int64Var(&opts.At, "at", 0, "operation time in Unix seconds (default: now)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log operations to stderr")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewMintsCommand(opts))
	cmd.AddCommand(NewSettleCommand(opts))
	cmd.AddCommand(NewFundCommand(opts))
	cmd.AddCommand(NewStakeCommand(opts, true))
	cmd.AddCommand(NewStakeCommand(opts, false))
	cmd.AddCommand(NewClaimCommand(opts))
	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewProposeCommand(opts))
	cmd.AddCommand(NewVoteCommand(opts))
	cmd.AddCommand(NewOutcomeCommand(opts))
	cmd.AddCommand(NewProposalsCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))

	return cmd
}

// session is an open ledger for the duration of one command.
type session struct {
	svc    *service.Service
	events storage.EventStore
	close  func() error
}

// open opens the data directory and builds a service over it.
func (o *RootOptions) open(ctx context.Context, stderr io.Writer) (*session, error) {
	db, err := badgerstore.Open(o.DataDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open data directory", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if o.Verbose {
		logger.SetOutput(stderr)
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger)

	eventLog := badgerstore.NewEventStore(db)
	last, err := eventLog.LastSequence(ctx)
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	var clk clock.Clock = clock.System{}
	if o.At != 0 {
		clk = clock.NewManual(o.At)
	}

	bank := badgerstore.NewBank(db)
	svc := service.New(service.Deps{
		Store:     badgerstore.NewStore(db),
		Ledger:    bank,
		Oracle:    bank,
		Clock:     clk,
		Emitter:   events.NewEmitter(storage.EventSink(eventLog), last, log),
		ProgramID: o.ProgramID.Pubkey,
		Log:       log,
	})
	return &session{svc: svc, events: eventLog, close: db.Close}, nil
}

// run opens a session, calls fn and prints its result.
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := o.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	result, err := fn(ctx, s)
	if err != nil {
		return WrapExitError(ExitFailure, cmd.Name()+" failed", err)
	}
	return writeOutput(cmd.OutOrStdout(), o.Format, result)
}

// pubkeyValue is a flag holding a base58 public key.
type pubkeyValue struct {
	solana.Pubkey
}

func (v *pubkeyValue) Set(s string) error {
	pk, err := solana.ParsePubkey(s)
	if err != nil {
		return err
	}
	v.Pubkey = pk
	return nil
}

func (v *pubkeyValue) String() string {
	if v.IsZero() {
		return ""
	}
	return v.Pubkey.String()
}

func (v *pubkeyValue) Type() string {
	return "pubkey"
}
