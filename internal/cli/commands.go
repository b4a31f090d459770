package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/events"
)

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	var creator, mint pubkeyValue

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a token and mint its supply to the creator",
		Example: `  tokenctl init --program-id <id> --creator <pubkey> --mint <pubkey>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.svc.InitializeToken(ctx, creator.Pubkey, mint.Pubkey)
			})
		},
	}
	cmd.Flags().Var(&creator, "creator", "token creator (required)")
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	_ = cmd.MarkFlagRequired("creator")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	var mint, holder pubkeyValue

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a token's records, or one holder with --holder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				if !holder.IsZero() {
					return s.svc.Holder(ctx, mint.Pubkey, holder.Pubkey)
				}
				return s.svc.Token(ctx, mint.Pubkey)
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Var(&holder, "holder", "show only this holder")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}

// NewMintsCommand creates the mints command.
func NewMintsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mints",
		Short: "List initialized mints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.svc.Mints(ctx)
			})
		},
	}
}

// NewSettleCommand creates the settle command.
func NewSettleCommand(opts *RootOptions) *cobra.Command {
	var (
		mint, holder pubkeyValue
		balance      uint64
	)

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle a holder's rewards",
		Long: `Settle a holder's rewards at its current ledger balance.

With --balance the holder is settled at the given full balance instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				if cmd.Flags().Changed("balance") {
					return s.svc.SettleBalance(ctx, mint.Pubkey, holder.Pubkey, balance)
				}
				return s.svc.Settle(ctx, mint.Pubkey, holder.Pubkey)
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Var(&holder, "holder", "holder to settle (required)")
	cmd.Flags().Uint64Var(&balance, "balance", 0, "full balance to settle at")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("holder")
	return cmd
}

// NewFundCommand creates the fund command.
func NewFundCommand(opts *RootOptions) *cobra.Command {
	var (
		mint, funder pubkeyValue
		amount       uint64
	)

	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Move tokens into the reward vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				if err := s.svc.Fund(ctx, mint.Pubkey, funder.Pubkey, amount); err != nil {
					return nil, err
				}
				return map[string]uint64{"funded": amount}, nil
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Var(&funder, "funder", "funding account (required)")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to fund (required)")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("funder")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// NewStakeCommand creates the stake command, or unstake when stake is false.
func NewStakeCommand(opts *RootOptions, stake bool) *cobra.Command {
	var (
		mint, holder pubkeyValue
		amount       uint64
	)

	use, short := "stake", "Stake part of a holder's balance"
	if !stake {
		use, short = "unstake", "Release staked tokens"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				if stake {
					return s.svc.Stake(ctx, mint.Pubkey, holder.Pubkey, amount)
				}
				return s.svc.Unstake(ctx, mint.Pubkey, holder.Pubkey, amount)
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Var(&holder, "holder", "staking holder (required)")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount (required)")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("holder")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// NewClaimCommand creates the claim command.
func NewClaimCommand(opts *RootOptions) *cobra.Command {
	var mint, holder pubkeyValue

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Pay out a holder's unclaimed rewards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				amount, err := s.svc.Claim(ctx, mint.Pubkey, holder.Pubkey)
				if err != nil {
					return nil, err
				}
				return map[string]uint64{"claimed": amount}, nil
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Var(&holder, "holder", "claiming holder (required)")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("holder")
	return cmd
}

// NewTransferCommand creates the transfer command.
func NewTransferCommand(opts *RootOptions) *cobra.Command {
	var (
		mint, from, to pubkeyValue
		amount         uint64
	)

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer tokens and settle both parties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.svc.Transfer(ctx, mint.Pubkey, from.Pubkey, to.Pubkey, amount)
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Var(&from, "from", "sender (required)")
	cmd.Flags().Var(&to, "to", "recipient (required)")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount (required)")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// NewProposeCommand creates the propose command.
func NewProposeCommand(opts *RootOptions) *cobra.Command {
	var (
		mint, proposer pubkeyValue
		description    string
		kind           string
		bps            uint16
	)

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Create a governance proposal",
		Example: `  tokenctl propose --program-id <id> --mint <pubkey> --proposer <pubkey> \
    --kind UPDATE_FEES --bps 150 --description "raise fees"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := domain.NewProposalType(domain.ProposalKind(kind), bps)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid proposal type", err)
			}
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.svc.CreateProposal(ctx, mint.Pubkey, proposer.Pubkey, description, pt)
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Var(&proposer, "proposer", "proposer (required)")
	cmd.Flags().StringVar(&description, "description", "", "proposal description")
	cmd.Flags().StringVar(&kind, "kind", "", fmt.Sprintf("proposal kind, one of %s, %s, %s, %s, %s (required)",
		domain.ProposalKindUpdateFees, domain.ProposalKindUpdateBurnRate, domain.ProposalKindUpdateRewardRate,
		domain.ProposalKindUpdateMaxWallet, domain.ProposalKindUpdateMaxTransaction))
	cmd.Flags().Uint16Var(&bps, "bps", 0, "proposed basis points (required)")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("proposer")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("bps")
	return cmd
}

// NewVoteCommand creates the vote command.
func NewVoteCommand(opts *RootOptions) *cobra.Command {
	var (
		mint, voter pubkeyValue
		id          uint64
		against     bool
	)

	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Vote on a proposal with the voter's balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				return s.svc.Vote(ctx, mint.Pubkey, id, voter.Pubkey, !against)
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Var(&voter, "voter", "voter (required)")
	cmd.Flags().Uint64Var(&id, "id", 0, "proposal id")
	cmd.Flags().BoolVar(&against, "against", false, "vote against instead of for")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("voter")
	return cmd
}

// NewOutcomeCommand creates the outcome command.
func NewOutcomeCommand(opts *RootOptions) *cobra.Command {
	var (
		mint pubkeyValue
		id   uint64
	)

	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Evaluate a closed proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				status, err := s.svc.Outcome(ctx, mint.Pubkey, id)
				if err != nil {
					return nil, err
				}
				return map[string]domain.ProposalStatus{"status": status}, nil
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Uint64Var(&id, "id", 0, "proposal id")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}

// NewProposalsCommand creates the proposals command.
func NewProposalsCommand(opts *RootOptions) *cobra.Command {
	var mint pubkeyValue

	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List a token's proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				props, err := s.svc.Proposals(ctx, mint.Pubkey)
				if props == nil {
					props = []*domain.Proposal{}
				}
				return props, err
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}

// NewEventsCommand creates the events command.
func NewEventsCommand(opts *RootOptions) *cobra.Command {
	var (
		mint  pubkeyValue
		after uint64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List a token's events in sequence order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) (any, error) {
				envs, err := s.events.GetByMint(ctx, mint.Pubkey, after, limit)
				if envs == nil {
					envs = []*events.Envelope{}
				}
				return envs, err
			})
		},
	}
	cmd.Flags().Var(&mint, "mint", "token mint (required)")
	cmd.Flags().Uint64Var(&after, "after", 0, "only events with a greater sequence")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 = all)")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}
