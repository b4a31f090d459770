package postgres

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
	"meme-token-ledger/internal/token"
)

var (
	testCreator = solana.Pubkey{1, 1}
	testMint    = solana.Pubkey{2, 2}
	testVoter   = solana.Pubkey{3, 3}
)

// createTestToken stores the initial records of testMint.
func createTestToken(t *testing.T, ctx context.Context, store *Store) {
	t.Helper()

	state, err := token.NewState(testCreator, testMint, 1700000000)
	require.NoError(t, err)
	require.NoError(t, store.CreateToken(ctx, state))
}

func TestStore_CreateAndGetToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	createTestToken(t, ctx, store)

	got, err := store.GetToken(ctx, testMint)
	require.NoError(t, err)

	assert.Equal(t, testCreator, got.Config.Creator)
	assert.Equal(t, uint64(domain.InitialSupply), got.Config.TotalSupply)
	assert.Equal(t, int64(1700000000+domain.LiquidityLockPeriod), got.Config.LiquidityUnlockTime)
	assert.Equal(t, uint16(domain.DefaultTransactionFeeBps), got.Config.TransactionFeeBps)
	assert.Equal(t, int64(1700000000), got.RewardPool.LastDistributionTime)
	assert.Empty(t, got.RewardPool.Holders)
	assert.Equal(t, uint16(domain.MinQuorumBps), got.Governance.MinQuorumBps)
	assert.Equal(t, uint64(1), got.Analytics.UniqueHolders)

	mints, err := store.ListMints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []solana.Pubkey{testMint}, mints)
}

func TestStore_CreateTokenDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	createTestToken(t, ctx, store)

	state, err := token.NewState(testCreator, testMint, 1700000001)
	require.NoError(t, err)

	err = store.CreateToken(ctx, state)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestStore_GetTokenNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewStore(pool).GetToken(context.Background(), testMint)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_UpdateRewardsKeepsFullU64Range(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	createTestToken(t, ctx, store)

	err := store.UpdateRewards(ctx, testMint, func(p *domain.RewardPool, cfg *domain.TokenConfig) error {
		p.AccumulatedRewards = math.MaxUint64
		p.RewardPerTokenStored = math.MaxUint64 - 1
		p.Holders = append(p.Holders,
			domain.HolderInfo{Address: testCreator, Balance: math.MaxUint64, StakedAmount: 5},
			domain.HolderInfo{Address: testVoter, Balance: 7, UnclaimedRewards: 3},
		)
		cfg.TotalRewardsDistributed = math.MaxUint64
		return nil
	})
	require.NoError(t, err)

	// Only the second holder changes.
	err = store.UpdateRewards(ctx, testMint, func(p *domain.RewardPool, cfg *domain.TokenConfig) error {
		p.Holders[1].UnclaimedRewards = 0
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetToken(ctx, testMint)
	require.NoError(t, err)

	assert.Equal(t, uint64(math.MaxUint64), got.RewardPool.AccumulatedRewards)
	assert.Equal(t, uint64(math.MaxUint64-1), got.RewardPool.RewardPerTokenStored)
	assert.Equal(t, uint64(math.MaxUint64), got.Config.TotalRewardsDistributed)
	require.Len(t, got.RewardPool.Holders, 2)
	assert.Equal(t, testCreator, got.RewardPool.Holders[0].Address)
	assert.Equal(t, uint64(math.MaxUint64), got.RewardPool.Holders[0].Balance)
	assert.Equal(t, testVoter, got.RewardPool.Holders[1].Address)
	assert.Zero(t, got.RewardPool.Holders[1].UnclaimedRewards)
}

func TestStore_UpdateRewardsRollsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	createTestToken(t, ctx, store)

	failure := errors.New("rejected")
	err := store.UpdateRewards(ctx, testMint, func(p *domain.RewardPool, cfg *domain.TokenConfig) error {
		p.AccumulatedRewards = 99
		return failure
	})
	assert.ErrorIs(t, err, failure)

	got, err := store.GetToken(ctx, testMint)
	require.NoError(t, err)
	assert.Zero(t, got.RewardPool.AccumulatedRewards)
}

func TestStore_UpdateAnalytics(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	createTestToken(t, ctx, store)

	err := store.UpdateAnalytics(ctx, testMint, func(a *domain.Analytics) error {
		a.TotalTransactions = 2
		a.HourlyVolume[23] = math.MaxUint64
		a.PriceImpactData = append(a.PriceImpactData,
			domain.PriceImpactEntry{Timestamp: 1, Amount: 10, PriceImpactBps: -25},
			domain.PriceImpactEntry{Timestamp: 2, Amount: 20, PriceImpactBps: 40},
		)
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetToken(ctx, testMint)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), got.Analytics.TotalTransactions)
	assert.Equal(t, uint64(math.MaxUint64), got.Analytics.HourlyVolume[23])
	require.Len(t, got.Analytics.PriceImpactData, 2)
	assert.Equal(t, int16(-25), got.Analytics.PriceImpactData[0].PriceImpactBps)
	assert.Equal(t, uint64(20), got.Analytics.PriceImpactData[1].Amount)
}

func TestStore_ProposalLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	createTestToken(t, ctx, store)

	account := solana.Pubkey{4, 4}
	created, err := store.CreateProposal(ctx, testMint, func(gov *domain.GovernanceConfig, cfg *domain.TokenConfig) (*domain.Proposal, error) {
		gov.Proposals = append(gov.Proposals, account)
		gov.ProposalCount++
		return &domain.Proposal{
			ID:          0,
			Mint:        cfg.Mint,
			Account:     account,
			Proposer:    cfg.Creator,
			Description: "lower fees",
			Type:        domain.UpdateFees{NewFeeBps: 50},
			Status:      domain.ProposalStatusActive,
			StartTime:   100,
			EndTime:     200,
			Voters:      []solana.Pubkey{},
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, account, created.Account)

	_, err = store.UpdateProposal(ctx, testMint, 0, func(p *domain.Proposal) error {
		p.ForVotes = math.MaxUint64
		p.Voters = append(p.Voters, testVoter)
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetProposal(ctx, testMint, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.UpdateFees{NewFeeBps: 50}, got.Type)
	assert.Equal(t, uint64(math.MaxUint64), got.ForVotes)
	assert.Equal(t, []solana.Pubkey{testVoter}, got.Voters)
	assert.Equal(t, "lower fees", got.Description)

	list, err := store.ListProposals(ctx, testMint)
	require.NoError(t, err)
	require.Len(t, list, 1)

	state, err := store.GetToken(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.Governance.ProposalCount)
	assert.Equal(t, []solana.Pubkey{account}, state.Governance.Proposals)

	_, err = store.GetProposal(ctx, testMint, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_UpdateProposalRejectsDuplicateVoter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	createTestToken(t, ctx, store)

	_, err := store.CreateProposal(ctx, testMint, func(gov *domain.GovernanceConfig, cfg *domain.TokenConfig) (*domain.Proposal, error) {
		gov.ProposalCount++
		return &domain.Proposal{
			Mint:    cfg.Mint,
			Account: testVoter,
			Type:    domain.UpdateBurnRate{NewBurnBps: 10},
			Status:  domain.ProposalStatusActive,
			Voters:  []solana.Pubkey{testCreator},
		}, nil
	})
	require.NoError(t, err)

	_, err = store.UpdateProposal(ctx, testMint, 0, func(p *domain.Proposal) error {
		p.Voters = append(p.Voters, testCreator)
		return nil
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestStore_DeleteToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	createTestToken(t, ctx, store)

	_, err := store.CreateProposal(ctx, testMint, func(gov *domain.GovernanceConfig, cfg *domain.TokenConfig) (*domain.Proposal, error) {
		gov.ProposalCount++
		return &domain.Proposal{
			Mint:    cfg.Mint,
			Account: testVoter,
			Type:    domain.UpdateFees{NewFeeBps: 10},
			Status:  domain.ProposalStatusActive,
			Voters:  []solana.Pubkey{testCreator},
		}, nil
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateRewards(ctx, testMint, func(p *domain.RewardPool, _ *domain.TokenConfig) error {
		p.Holders = append(p.Holders, domain.HolderInfo{Address: testVoter, Balance: 5})
		return nil
	}))

	require.NoError(t, store.DeleteToken(ctx, testMint))

	_, err = store.GetToken(ctx, testMint)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetProposal(ctx, testMint, 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteToken(ctx, testMint), storage.ErrNotFound)

	createTestToken(t, ctx, store)
}
