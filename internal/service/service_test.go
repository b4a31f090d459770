package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meme-token-ledger/internal/clock"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/governance"
	"meme-token-ledger/internal/ledger"
	"meme-token-ledger/internal/rewards"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
	"meme-token-ledger/internal/storage/memory"
)

const startTime int64 = 1_700_000_000

var (
	creator   = solana.Pubkey{1}
	mint      = solana.Pubkey{2}
	alice     = solana.Pubkey{3}
	bob       = solana.Pubkey{4}
	programID = solana.Pubkey{9, 9, 9}
)

type fixture struct {
	svc      *Service
	store    *memory.Store
	ledger   *ledger.Memory
	clock    *clock.Manual
	recorder *events.Recorder
	emitter  *events.Emitter
	log      *logrus.Entry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)

	f := &fixture{
		store:    memory.NewStore(),
		ledger:   ledger.NewMemory(),
		clock:    clock.NewManual(startTime),
		recorder: events.NewRecorder(),
		log:      log,
	}
	f.emitter = events.NewEmitter(f.recorder, 0, log)
	f.svc = f.service(f.store, f.ledger)
	return f
}

// service builds a Service over the fixture's clock and emitter with the
// given store and ledger. The fixture's memory ledger stays the oracle.
func (f *fixture) service(store storage.LedgerStore, l ledger.Ledger) *Service {
	return New(Deps{
		Store:     store,
		Ledger:    l,
		Oracle:    f.ledger,
		Clock:     f.clock,
		Emitter:   f.emitter,
		ProgramID: programID,
		Log:       f.log,
	})
}

// slowMintLedger delays MintTo so concurrent callers overlap.
type slowMintLedger struct {
	*ledger.Memory
	delay time.Duration
}

func (l slowMintLedger) MintTo(ctx context.Context, mint, owner solana.Pubkey, amount uint64) error {
	time.Sleep(l.delay)
	return l.Memory.MintTo(ctx, mint, owner, amount)
}

var errMintRejected = errors.New("mint rejected")

type rejectMintLedger struct {
	*ledger.Memory
}

func (rejectMintLedger) MintTo(context.Context, solana.Pubkey, solana.Pubkey, uint64) error {
	return errMintRejected
}

var errStoreUnavailable = errors.New("store unavailable")

// flakyRewardsStore fails the failOn-th UpdateRewards call (1-based).
type flakyRewardsStore struct {
	*memory.Store
	mu     sync.Mutex
	calls  int
	failOn int
}

func (s *flakyRewardsStore) UpdateRewards(ctx context.Context, mint solana.Pubkey, fn storage.RewardsUpdate) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls == s.failOn
	s.mu.Unlock()
	if fail {
		return errStoreUnavailable
	}
	return s.Store.UpdateRewards(ctx, mint, fn)
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	_, err := f.svc.InitializeToken(context.Background(), creator, mint)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, owner solana.Pubkey) uint64 {
	t.Helper()
	b, err := f.ledger.BalanceOf(context.Background(), mint, owner)
	require.NoError(t, err)
	return b
}

func (f *fixture) types() []domain.EventType {
	var out []domain.EventType
	for _, env := range f.recorder.Events() {
		out = append(out, env.Type)
	}
	return out
}

func TestInitializeToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state, err := f.svc.InitializeToken(ctx, creator, mint)
	require.NoError(t, err)

	assert.Equal(t, domain.InitialSupply, state.Config.TotalSupply)
	assert.Equal(t, startTime+domain.LiquidityLockPeriod, state.Config.LiquidityUnlockTime)
	assert.Equal(t, domain.InitialSupply, f.balance(t, creator))

	_, err = f.svc.InitializeToken(ctx, creator, mint)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Equal(t, domain.InitialSupply, f.balance(t, creator), "second initialize must not mint")

	evs := f.recorder.OfType(domain.EventTokenInitialized)
	require.Len(t, evs, 1)
	assert.Equal(t, uint64(1), evs[0].Sequence)
}

func TestInitializeToken_ConcurrentCallsMintOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service(f.store, slowMintLedger{Memory: f.ledger, delay: 50 * time.Millisecond})

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.InitializeToken(ctx, creator, mint)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, storage.ErrDuplicateKey):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)

	supply, err := f.ledger.TotalSupply(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, domain.InitialSupply, supply)
	assert.Equal(t, domain.InitialSupply, f.balance(t, creator))
	assert.Len(t, f.recorder.OfType(domain.EventTokenInitialized), 1)
}

func TestInitializeToken_FailedMintRemovesRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service(f.store, rejectMintLedger{Memory: f.ledger}).InitializeToken(ctx, creator, mint)
	require.ErrorIs(t, err, errMintRejected)

	_, err = f.svc.Token(ctx, mint)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, f.recorder.Events())

	// The mint can be initialized once the ledger accepts it.
	f.initialize(t)
	assert.Equal(t, domain.InitialSupply, f.balance(t, creator))
}

func TestGovernanceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	p, err := f.svc.CreateProposal(ctx, mint, creator, "lower fees", domain.UpdateFees{NewFeeBps: 50})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p.ID)
	assert.Equal(t, startTime+domain.ProposalVotingPeriod, p.EndTime)

	wantAccount, err := governance.ProposalAddress(mint, 0, programID)
	require.NoError(t, err)
	assert.Equal(t, wantAccount, p.Account)

	p, err = f.svc.Vote(ctx, mint, 0, creator, true)
	require.NoError(t, err)
	assert.Equal(t, domain.InitialSupply, p.ForVotes)

	_, err = f.svc.Vote(ctx, mint, 0, creator, false)
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)

	_, err = f.svc.Outcome(ctx, mint, 0)
	assert.ErrorIs(t, err, domain.ErrVotingOpen)

	f.clock.Set(p.EndTime + 1)
	status, err := f.svc.Outcome(ctx, mint, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalStatusSucceeded, status)

	_, err = f.svc.Vote(ctx, mint, 0, alice, true)
	assert.ErrorIs(t, err, domain.ErrInvalidVotingPeriod)

	state, err := f.svc.Token(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.Analytics.TotalProposals)
	assert.Equal(t, uint64(1), state.Analytics.TotalVotes)
	assert.Equal(t, uint64(1), state.Governance.ProposalCount)

	assert.Equal(t, []domain.EventType{
		domain.EventTokenInitialized,
		domain.EventProposalCreated,
		domain.EventVoteCast,
	}, f.types())
}

func TestVote_ConcurrentVotesEmitInCommitOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	_, err := f.svc.CreateProposal(ctx, mint, creator, "", domain.UpdateFees{NewFeeBps: 50})
	require.NoError(t, err)

	const voters = 50
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Vote(ctx, mint, 0, solana.Pubkey{0x40, byte(i)}, i%2 == 0)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := f.svc.Proposal(ctx, mint, 0)
	require.NoError(t, err)
	require.Len(t, p.Voters, voters)

	evs := f.recorder.OfType(domain.EventVoteCast)
	require.Len(t, evs, voters)
	for i, env := range evs {
		if i > 0 {
			assert.Greater(t, env.Sequence, evs[i-1].Sequence)
		}
		ev, ok := env.Event.(domain.VoteCast)
		require.True(t, ok, "payload %T", env.Event)
		assert.Equal(t, p.Voters[i], ev.Voter, "vote %d", i)
	}
}

func TestCreateProposal_BelowThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	// 1% of supply is 10,000,000; one unit short fails.
	_, err := f.svc.Transfer(ctx, mint, creator, alice, 9_999_999)
	require.NoError(t, err)

	_, err = f.svc.CreateProposal(ctx, mint, alice, "", domain.UpdateBurnRate{NewBurnBps: 10})
	assert.ErrorIs(t, err, domain.ErrInsufficientProposalTokens)

	_, err = f.svc.Transfer(ctx, mint, creator, alice, 1)
	require.NoError(t, err)

	_, err = f.svc.CreateProposal(ctx, mint, alice, "", domain.UpdateBurnRate{NewBurnBps: 10})
	assert.NoError(t, err)
}

func TestTransfer_SettlesBothAndRecordsVolume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	res, err := f.svc.Transfer(ctx, mint, creator, alice, 500)
	require.NoError(t, err)
	assert.Equal(t, domain.InitialSupply-500, res.From.Holder.Balance)
	assert.Equal(t, uint64(500), res.To.Holder.Balance)
	assert.True(t, res.To.NewHolder)

	_, err = f.svc.Transfer(ctx, mint, alice, bob, 600)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	_, err = f.svc.Transfer(ctx, mint, alice, bob, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	state, err := f.svc.Token(ctx, mint)
	require.NoError(t, err)
	// Creator was counted at initialization.
	assert.Equal(t, uint64(2), state.Analytics.UniqueHolders)
	assert.Equal(t, uint64(1), state.Analytics.TotalTransactions)
	assert.Equal(t, uint64(500), state.Analytics.Volume24h)
	assert.Equal(t, uint64(500), state.Analytics.LargestTransfer)
	assert.Len(t, state.RewardPool.Holders, 2)
	assert.Equal(t, domain.InitialSupply, state.RewardPool.TotalStaked)
}

func TestTransfer_FullPoolLeavesBalancesUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	err := f.store.UpdateRewards(ctx, mint, func(pool *domain.RewardPool, _ *domain.TokenConfig) error {
		pool.Holders = append(pool.Holders, domain.HolderInfo{Address: creator, Balance: domain.InitialSupply})
		pool.TotalStaked = domain.InitialSupply
		for i := 1; len(pool.Holders) < domain.MaxHolders; i++ {
			pool.Holders = append(pool.Holders, domain.HolderInfo{Address: solana.Pubkey{0x50, byte(i), byte(i >> 8)}})
		}
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.Transfer(ctx, mint, creator, alice, 500)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	assert.Equal(t, domain.InitialSupply, f.balance(t, creator))
	assert.Zero(t, f.balance(t, alice))

	state, err := f.svc.Token(ctx, mint)
	require.NoError(t, err)
	assert.Len(t, state.RewardPool.Holders, domain.MaxHolders)
	assert.Zero(t, state.Analytics.TotalTransactions)

	// Moving tokens between tracked holders still works.
	_, err = f.svc.Transfer(ctx, mint, creator, solana.Pubkey{0x50, 1}, 500)
	assert.NoError(t, err)
}

func TestTransfer_FailedSettlementReversesTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	// The sender settles on the first call; the recipient's settlement fails.
	store := &flakyRewardsStore{Store: f.store, failOn: 2}
	svc := f.service(store, f.ledger)

	_, err := svc.Transfer(ctx, mint, creator, alice, 500)
	require.ErrorIs(t, err, errStoreUnavailable)

	assert.Equal(t, domain.InitialSupply, f.balance(t, creator))
	assert.Zero(t, f.balance(t, alice))

	h, err := svc.Holder(ctx, mint, creator)
	require.NoError(t, err)
	assert.Equal(t, domain.InitialSupply, h.Balance, "sender resettled at restored balance")

	_, err = svc.Holder(ctx, mint, alice)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	state, err := svc.Token(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, domain.InitialSupply, state.RewardPool.TotalStaked)
	assert.Zero(t, state.Analytics.TotalTransactions)
}

func TestRewardsFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	// Half the supply funds the pool and alice holds the rest, so she is the
	// only holder with weight.
	require.NoError(t, f.svc.Fund(ctx, mint, creator, 500_000_000))
	_, err := f.svc.Transfer(ctx, mint, creator, alice, 500_000_000)
	require.NoError(t, err)

	res, err := f.svc.Stake(ctx, mint, alice, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), res.Holder.StakedAmount)

	_, err = f.svc.Stake(ctx, mint, alice, 500_000_000)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	f.clock.Advance(100)

	// rate = 5e8/100, increment = 5e6*1e6/5e8, delta = 5e8*1e4/1e6
	claimed, err := f.svc.Claim(ctx, mint, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), claimed)
	assert.Equal(t, uint64(505_000_000), f.balance(t, alice))

	vault, err := rewards.VaultAddress(mint, programID)
	require.NoError(t, err)
	assert.Equal(t, uint64(495_000_000), f.balance(t, vault))

	state, err := f.svc.Token(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(495_000_000), state.RewardPool.AccumulatedRewards)
	assert.Equal(t, uint64(5_000_000), state.Config.TotalRewardsDistributed)
	assert.Equal(t, uint64(505_000_000), state.RewardPool.TotalStaked, "payout recorded in the balance")

	h, err := f.svc.Holder(ctx, mint, alice)
	require.NoError(t, err)
	assert.Zero(t, h.UnclaimedRewards)

	_, err = f.svc.Unstake(ctx, mint, alice, 1001)
	assert.ErrorIs(t, err, domain.ErrInsufficientStake)

	res, err = f.svc.Unstake(ctx, mint, alice, 1000)
	require.NoError(t, err)
	assert.Zero(t, res.Holder.StakedAmount)

	assert.Len(t, f.recorder.OfType(domain.EventRewardsClaimed), 1)
	assert.Len(t, f.recorder.OfType(domain.EventStakeChanged), 2)
}

func TestClaim_FailedPayoutRestoresRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	_, err := f.svc.Transfer(ctx, mint, creator, alice, domain.InitialSupply)
	require.NoError(t, err)
	_, err = f.svc.Stake(ctx, mint, alice, 1000)
	require.NoError(t, err)

	// Credit the pool without moving tokens into the vault.
	err = f.store.UpdateRewards(ctx, mint, func(pool *domain.RewardPool, _ *domain.TokenConfig) error {
		return rewards.Fund(pool, 1_000_000)
	})
	require.NoError(t, err)

	// rate = 1e6/100, increment = 1e4*1e6/1e9, delta = 1e9*10/1e6
	f.clock.Advance(100)
	_, err = f.svc.Claim(ctx, mint, alice)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	h, err := f.svc.Holder(ctx, mint, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), h.UnclaimedRewards)

	state, err := f.svc.Token(ctx, mint)
	require.NoError(t, err)
	assert.Zero(t, state.Config.TotalRewardsDistributed)
	assert.Equal(t, domain.InitialSupply, state.RewardPool.TotalStaked)
	assert.Empty(t, f.recorder.OfType(domain.EventRewardsClaimed))
}

func TestFund_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	assert.ErrorIs(t, f.svc.Fund(ctx, mint, creator, 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, f.svc.Fund(ctx, mint, alice, 10), ledger.ErrInsufficientFunds)

	state, err := f.svc.Token(ctx, mint)
	require.NoError(t, err)
	assert.Zero(t, state.RewardPool.AccumulatedRewards)
}

func TestSettle_UsesOracleBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	res, err := f.svc.Settle(ctx, mint, creator)
	require.NoError(t, err)
	assert.True(t, res.NewHolder)
	assert.Equal(t, domain.InitialSupply, res.Holder.Balance)

	_, err = f.svc.Settle(ctx, solana.Pubkey{8}, creator)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.Holder(ctx, mint, bob)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordPriceImpact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t)

	require.NoError(t, f.svc.RecordPriceImpact(ctx, mint, 1000, -15))

	state, err := f.svc.Token(ctx, mint)
	require.NoError(t, err)
	require.Len(t, state.Analytics.PriceImpactData, 1)
	assert.Equal(t, domain.PriceImpactEntry{Timestamp: startTime, Amount: 1000, PriceImpactBps: -15}, state.Analytics.PriceImpactData[0])
}
