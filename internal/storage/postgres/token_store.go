package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

// Store implements storage.LedgerStore using PostgreSQL.
//
// Read-modify-write operations lock only the rows they change with
// SELECT ... FOR UPDATE, so updates to a mint's reward records never wait
// for a vote on one of its proposals.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*Store)(nil)

// Close closes the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// CreateToken stores the initial records. Returns ErrDuplicateKey if the mint exists.
func (s *Store) CreateToken(ctx context.Context, state *domain.TokenState) error {
	if state == nil || state.Config == nil || state.RewardPool == nil || state.Governance == nil || state.Analytics == nil {
		return storage.ErrInvalidInput
	}

	return s.pool.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		c := state.Config
		_, err := tx.Exec(ctx, `
			INSERT INTO token_configs (
				mint, creator, liquidity_unlock_time, total_supply, circulating_supply,
				transaction_fee_bps, burn_rate_bps, reward_rate_bps, max_wallet_bps, max_tx_bps,
				total_burned, total_rewards_distributed
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			c.Mint.String(), c.Creator.String(), c.LiquidityUnlockTime,
			numeric(c.TotalSupply), numeric(c.CirculatingSupply),
			c.TransactionFeeBps, c.BurnRateBps, c.RewardRateBps, c.MaxWalletBps, c.MaxTxBps,
			numeric(c.TotalBurned), numeric(c.TotalRewardsDistributed),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert token config: %w", err)
		}

		p := state.RewardPool
		_, err = tx.Exec(ctx, `
			INSERT INTO reward_pools (mint, accumulated_rewards, last_distribution_time, reward_per_token_stored, total_staked)
			VALUES ($1, $2, $3, $4, $5)
		`, c.Mint.String(), numeric(p.AccumulatedRewards), p.LastDistributionTime, numeric(p.RewardPerTokenStored), numeric(p.TotalStaked))
		if err != nil {
			return fmt.Errorf("insert reward pool: %w", err)
		}
		if err := upsertHolders(ctx, tx, c.Mint, nil, p.Holders); err != nil {
			return err
		}

		g := state.Governance
		_, err = tx.Exec(ctx, `
			INSERT INTO governance_configs (mint, proposals, executed_proposals, proposal_count, min_proposal_threshold_bps, min_quorum_bps)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.Mint.String(), pubkeyStrings(g.Proposals), pubkeyStrings(g.ExecutedProposals), numeric(g.ProposalCount), g.MinProposalThresholdBps, g.MinQuorumBps)
		if err != nil {
			return fmt.Errorf("insert governance config: %w", err)
		}

		a := state.Analytics
		_, err = tx.Exec(ctx, `
			INSERT INTO analytics (
				mint, total_transactions, unique_holders, volume_24h, largest_transfer, total_proposals,
				total_votes, hourly_volume, daily_active_wallets, avg_holding_time
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			c.Mint.String(), numeric(a.TotalTransactions), numeric(a.UniqueHolders), numeric(a.Volume24h),
			numeric(a.LargestTransfer), numeric(a.TotalProposals), numeric(a.TotalVotes),
			hourlyVolume(a), numeric(a.DailyActiveWallets), a.AvgHoldingTime,
		)
		if err != nil {
			return fmt.Errorf("insert analytics: %w", err)
		}
		return upsertPriceImpact(ctx, tx, c.Mint, nil, a.PriceImpactData)
	})
}

// DeleteToken removes every row of mint, children first. Returns ErrNotFound if not exists.
func (s *Store) DeleteToken(ctx context.Context, mint solana.Pubkey) error {
	return s.pool.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := loadConfig(ctx, tx, mint, true); err != nil {
			return err
		}
		tables := []string{
			"proposal_voters",
			"proposals",
			"price_impact_entries",
			"analytics",
			"governance_configs",
			"reward_holders",
			"reward_pools",
			"token_configs",
		}
		for _, table := range tables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE mint = $1", mint.String()); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

// GetToken returns all singleton records from one snapshot. Returns ErrNotFound if not exists.
func (s *Store) GetToken(ctx context.Context, mint solana.Pubkey) (*domain.TokenState, error) {
	var state domain.TokenState
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := s.pool.withTx(ctx, opts, func(tx pgx.Tx) error {
		var err error
		if state.Config, err = loadConfig(ctx, tx, mint, false); err != nil {
			return err
		}
		if state.RewardPool, err = loadPool(ctx, tx, mint, false); err != nil {
			return err
		}
		if state.Governance, err = loadGovernance(ctx, tx, mint, false); err != nil {
			return err
		}
		state.Analytics, err = loadAnalytics(ctx, tx, mint, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// ListMints returns every stored mint ordered by address text.
func (s *Store) ListMints(ctx context.Context) ([]solana.Pubkey, error) {
	rows, err := s.pool.Query(ctx, `SELECT mint FROM token_configs ORDER BY mint ASC`)
	if err != nil {
		return nil, fmt.Errorf("list mints: %w", err)
	}
	defer rows.Close()

	var mints []solana.Pubkey
	for rows.Next() {
		var m solana.Pubkey
		if err := rows.Scan(pubkey(&m)); err != nil {
			return nil, fmt.Errorf("scan mint: %w", err)
		}
		mints = append(mints, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mints: %w", err)
	}
	return mints, nil
}

// UpdateRewards locks the pool and config rows, applies fn and writes back
// the changed records on success.
func (s *Store) UpdateRewards(ctx context.Context, mint solana.Pubkey, fn storage.RewardsUpdate) error {
	return s.pool.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		cfg, err := loadConfig(ctx, tx, mint, true)
		if err != nil {
			return err
		}
		pool, err := loadPool(ctx, tx, mint, true)
		if err != nil {
			return err
		}

		before := pool.Clone()
		beforeCfg := *cfg
		if err := fn(pool, cfg); err != nil {
			return err
		}

		if *cfg != beforeCfg {
			if err := updateConfig(ctx, tx, cfg); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE reward_pools
			SET accumulated_rewards = $2, last_distribution_time = $3, reward_per_token_stored = $4, total_staked = $5
			WHERE mint = $1
		`, mint.String(), numeric(pool.AccumulatedRewards), pool.LastDistributionTime, numeric(pool.RewardPerTokenStored), numeric(pool.TotalStaked))
		if err != nil {
			return fmt.Errorf("update reward pool: %w", err)
		}
		return upsertHolders(ctx, tx, mint, before.Holders, pool.Holders)
	})
}

// UpdateAnalytics locks the analytics row, applies fn and writes it back on success.
func (s *Store) UpdateAnalytics(ctx context.Context, mint solana.Pubkey, fn storage.AnalyticsUpdate) error {
	return s.pool.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		a, err := loadAnalytics(ctx, tx, mint, true)
		if err != nil {
			return err
		}

		before := a.Clone()
		if err := fn(a); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE analytics
			SET total_transactions = $2, unique_holders = $3, volume_24h = $4, largest_transfer = $5,
				total_proposals = $6, total_votes = $7, hourly_volume = $8, daily_active_wallets = $9,
				avg_holding_time = $10
			WHERE mint = $1
		`,
			mint.String(), numeric(a.TotalTransactions), numeric(a.UniqueHolders), numeric(a.Volume24h),
			numeric(a.LargestTransfer), numeric(a.TotalProposals), numeric(a.TotalVotes),
			hourlyVolume(a), numeric(a.DailyActiveWallets), a.AvgHoldingTime,
		)
		if err != nil {
			return fmt.Errorf("update analytics: %w", err)
		}
		return upsertPriceImpact(ctx, tx, mint, before.PriceImpactData, a.PriceImpactData)
	})
}

func forUpdate(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func loadConfig(ctx context.Context, q querier, mint solana.Pubkey, lock bool) (*domain.TokenConfig, error) {
	c := &domain.TokenConfig{}
	err := q.QueryRow(ctx, `
		SELECT mint, creator, liquidity_unlock_time, total_supply::text, circulating_supply::text,
			transaction_fee_bps, burn_rate_bps, reward_rate_bps, max_wallet_bps, max_tx_bps,
			total_burned::text, total_rewards_distributed::text
		FROM token_configs
		WHERE mint = $1`+forUpdate(lock), mint.String()).Scan(
		pubkey(&c.Mint), pubkey(&c.Creator), &c.LiquidityUnlockTime,
		u64(&c.TotalSupply), u64(&c.CirculatingSupply),
		&c.TransactionFeeBps, &c.BurnRateBps, &c.RewardRateBps, &c.MaxWalletBps, &c.MaxTxBps,
		u64(&c.TotalBurned), u64(&c.TotalRewardsDistributed),
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token config: %w", err)
	}
	return c, nil
}

func updateConfig(ctx context.Context, q querier, c *domain.TokenConfig) error {
	_, err := q.Exec(ctx, `
		UPDATE token_configs
		SET liquidity_unlock_time = $2, total_supply = $3, circulating_supply = $4,
			transaction_fee_bps = $5, burn_rate_bps = $6, reward_rate_bps = $7, max_wallet_bps = $8,
			max_tx_bps = $9, total_burned = $10, total_rewards_distributed = $11
		WHERE mint = $1
	`,
		c.Mint.String(), c.LiquidityUnlockTime, numeric(c.TotalSupply), numeric(c.CirculatingSupply),
		c.TransactionFeeBps, c.BurnRateBps, c.RewardRateBps, c.MaxWalletBps, c.MaxTxBps,
		numeric(c.TotalBurned), numeric(c.TotalRewardsDistributed),
	)
	if err != nil {
		return fmt.Errorf("update token config: %w", err)
	}
	return nil
}

func loadPool(ctx context.Context, q querier, mint solana.Pubkey, lock bool) (*domain.RewardPool, error) {
	p := domain.NewRewardPool(mint, 0)
	err := q.QueryRow(ctx, `
		SELECT accumulated_rewards::text, last_distribution_time, reward_per_token_stored::text, total_staked::text
		FROM reward_pools
		WHERE mint = $1`+forUpdate(lock), mint.String()).Scan(
		u64(&p.AccumulatedRewards), &p.LastDistributionTime, u64(&p.RewardPerTokenStored), u64(&p.TotalStaked),
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get reward pool: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT address, balance::text, last_deposit_time, rewards_per_token_paid::text,
			unclaimed_rewards::text, staked_amount::text, last_stake_time
		FROM reward_holders
		WHERE mint = $1
		ORDER BY position ASC
	`, mint.String())
	if err != nil {
		return nil, fmt.Errorf("get reward holders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.HolderInfo
		if err := rows.Scan(
			pubkey(&h.Address), u64(&h.Balance), &h.LastDepositTime, u64(&h.RewardsPerTokenPaid),
			u64(&h.UnclaimedRewards), u64(&h.StakedAmount), &h.LastStakeTime,
		); err != nil {
			return nil, fmt.Errorf("scan reward holder: %w", err)
		}
		p.Holders = append(p.Holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reward holders: %w", err)
	}
	return p, nil
}

// upsertHolders writes the holder records that differ from before.
// Positions follow slice order; holders are never removed.
func upsertHolders(ctx context.Context, q querier, mint solana.Pubkey, before, after []domain.HolderInfo) error {
	for i, h := range after {
		if i < len(before) && before[i] == h {
			continue
		}
		_, err := q.Exec(ctx, `
			INSERT INTO reward_holders (
				mint, address, position, balance, last_deposit_time, rewards_per_token_paid,
				unclaimed_rewards, staked_amount, last_stake_time
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (mint, address) DO UPDATE SET
				balance = EXCLUDED.balance,
				last_deposit_time = EXCLUDED.last_deposit_time,
				rewards_per_token_paid = EXCLUDED.rewards_per_token_paid,
				unclaimed_rewards = EXCLUDED.unclaimed_rewards,
				staked_amount = EXCLUDED.staked_amount,
				last_stake_time = EXCLUDED.last_stake_time
		`,
			mint.String(), h.Address.String(), i, numeric(h.Balance), h.LastDepositTime,
			numeric(h.RewardsPerTokenPaid), numeric(h.UnclaimedRewards), numeric(h.StakedAmount), h.LastStakeTime,
		)
		if err != nil {
			return fmt.Errorf("upsert reward holder %s: %w", h.Address, err)
		}
	}
	return nil
}

func loadGovernance(ctx context.Context, q querier, mint solana.Pubkey, lock bool) (*domain.GovernanceConfig, error) {
	g := domain.NewGovernanceConfig(mint)
	var proposals, executed []string
	err := q.QueryRow(ctx, `
		SELECT proposals, executed_proposals, proposal_count::text, min_proposal_threshold_bps, min_quorum_bps
		FROM governance_configs
		WHERE mint = $1`+forUpdate(lock), mint.String()).Scan(
		&proposals, &executed, u64(&g.ProposalCount), &g.MinProposalThresholdBps, &g.MinQuorumBps,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get governance config: %w", err)
	}

	active, err := parsePubkeys(proposals)
	if err != nil {
		return nil, fmt.Errorf("governance proposals: %w", err)
	}
	done, err := parsePubkeys(executed)
	if err != nil {
		return nil, fmt.Errorf("governance executed proposals: %w", err)
	}
	g.Proposals = append(g.Proposals, active...)
	g.ExecutedProposals = append(g.ExecutedProposals, done...)
	return g, nil
}

func loadAnalytics(ctx context.Context, q querier, mint solana.Pubkey, lock bool) (*domain.Analytics, error) {
	a := domain.NewAnalytics(mint)
	var hourly []string
	err := q.QueryRow(ctx, `
		SELECT total_transactions::text, unique_holders::text, volume_24h::text, largest_transfer::text,
			total_proposals::text, total_votes::text, hourly_volume::text[], daily_active_wallets::text,
			avg_holding_time
		FROM analytics
		WHERE mint = $1`+forUpdate(lock), mint.String()).Scan(
		u64(&a.TotalTransactions), u64(&a.UniqueHolders), u64(&a.Volume24h), u64(&a.LargestTransfer),
		u64(&a.TotalProposals), u64(&a.TotalVotes), &hourly, u64(&a.DailyActiveWallets),
		&a.AvgHoldingTime,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get analytics: %w", err)
	}
	if len(hourly) != domain.HourlyVolumeSlots {
		return nil, fmt.Errorf("analytics hourly volume: %d slots", len(hourly))
	}
	for i, text := range hourly {
		if err := u64(&a.HourlyVolume[i]).Scan(text); err != nil {
			return nil, fmt.Errorf("analytics hourly volume slot %d: %w", i, err)
		}
	}

	rows, err := q.Query(ctx, `
		SELECT timestamp, amount::text, price_impact_bps
		FROM price_impact_entries
		WHERE mint = $1
		ORDER BY position ASC
	`, mint.String())
	if err != nil {
		return nil, fmt.Errorf("get price impact entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.PriceImpactEntry
		if err := rows.Scan(&e.Timestamp, u64(&e.Amount), &e.PriceImpactBps); err != nil {
			return nil, fmt.Errorf("scan price impact entry: %w", err)
		}
		a.PriceImpactData = append(a.PriceImpactData, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price impact entries: %w", err)
	}
	return a, nil
}

func hourlyVolume(a *domain.Analytics) []pgtype.Numeric {
	out := make([]pgtype.Numeric, len(a.HourlyVolume))
	for i, v := range a.HourlyVolume {
		out[i] = numeric(v)
	}
	return out
}

// upsertPriceImpact writes the entries whose position changed.
func upsertPriceImpact(ctx context.Context, q querier, mint solana.Pubkey, before, after []domain.PriceImpactEntry) error {
	for i, e := range after {
		if i < len(before) && before[i] == e {
			continue
		}
		_, err := q.Exec(ctx, `
			INSERT INTO price_impact_entries (mint, position, timestamp, amount, price_impact_bps)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (mint, position) DO UPDATE SET
				timestamp = EXCLUDED.timestamp,
				amount = EXCLUDED.amount,
				price_impact_bps = EXCLUDED.price_impact_bps
		`, mint.String(), i, e.Timestamp, numeric(e.Amount), e.PriceImpactBps)
		if err != nil {
			return fmt.Errorf("upsert price impact entry %d: %w", i, err)
		}
	}
	if len(after) < len(before) {
		_, err := q.Exec(ctx, `DELETE FROM price_impact_entries WHERE mint = $1 AND position >= $2`, mint.String(), len(after))
		if err != nil {
			return fmt.Errorf("trim price impact entries: %w", err)
		}
	}
	return nil
}
