package services

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-backend/internal/events"
	"settlement-backend/internal/models"
)

func TestRegisterParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.coordinator.RegisterParticipant(ctx, testUser, "acct-1"))

	// binding is immutable, even with a different account id
	err := env.coordinator.RegisterParticipant(ctx, testUser, "acct-2")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	err = env.coordinator.RegisterParticipant(ctx, "not-an-address", "acct-3")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	err = env.coordinator.RegisterParticipant(ctx, testUser2, "  ")
	assert.ErrorIs(t, err, ErrInvalidAccountID)
}

func TestMintGuards(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	_, err := env.coordinator.Mint(ctx, testUser2, big.NewInt(10_000), testTicker, nil)
	assert.ErrorIs(t, err, ErrParticipantNotRegistered)

	_, err = env.coordinator.Mint(ctx, testUser, big.NewInt(99), testTicker, nil)
	assert.ErrorIs(t, err, ErrAmountOutOfBounds)

	env.cooldown()
	_, err = env.coordinator.Mint(ctx, testUser, big.NewInt(1_000_001), testTicker, nil)
	assert.ErrorIs(t, err, ErrAmountOutOfBounds)

	env.cooldown()
	_, err = env.coordinator.Mint(ctx, testUser, big.NewInt(10_000), "TSLA", nil)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	env.mint(t, 10_000, 0)

	_, err := env.coordinator.Mint(ctx, testUser, big.NewInt(10_000), testTicker, nil)
	assert.ErrorIs(t, err, ErrRateLimited)

	env.clock.Advance(4 * time.Minute)
	_, err = env.coordinator.Mint(ctx, testUser, big.NewInt(10_000), testTicker, nil)
	assert.ErrorIs(t, err, ErrRateLimited)

	env.clock.Advance(time.Minute)
	_, err = env.coordinator.Mint(ctx, testUser, big.NewInt(10_000), testTicker, nil)
	assert.NoError(t, err)
}

func TestRateLimitConsumedByFailedRequest(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	// a request that fails after the rate limit check still burns the window
	_, err := env.coordinator.Mint(ctx, testUser, big.NewInt(10_000), "TSLA", nil)
	assert.ErrorIs(t, err, ErrAssetNotFound)

	_, err = env.coordinator.Mint(ctx, testUser, big.NewInt(10_000), testTicker, nil)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRedeemLowerBoundOnly(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()
	require.NoError(t, env.book.Mint(testUser, testTicker, big.NewInt(2_000_001)))

	_, err := env.coordinator.Redeem(ctx, testUser, big.NewInt(0), testTicker, nil)
	assert.ErrorIs(t, err, ErrAmountOutOfBounds)

	// the mint max does not apply to redeems
	env.cooldown()
	_, err = env.coordinator.Redeem(ctx, testUser, big.NewInt(2_000_001), testTicker, nil)
	assert.NoError(t, err)
}

func TestPauseBlocksSubmissionsOnly(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	id := env.mint(t, 10_000, 0)

	assert.ErrorIs(t, env.coordinator.Pause(testUser), ErrNotAuthorized)
	require.NoError(t, env.coordinator.Pause(testOwner))

	env.cooldown()
	_, err := env.coordinator.Mint(ctx, testUser, big.NewInt(10_000), testTicker, nil)
	assert.ErrorIs(t, err, ErrPaused)

	// in-flight settlement still completes while paused
	require.NoError(t, env.settle(t, id, 1, true))

	require.NoError(t, env.coordinator.Unpause(testOwner))
	_, err = env.coordinator.Mint(ctx, testUser, big.NewInt(10_000), testTicker, nil)
	assert.NoError(t, err)
}

func TestListAndDelistAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.coordinator.ListAsset(ctx, testUser, testTicker, "", ""), ErrNotAuthorized)

	require.NoError(t, env.coordinator.ListAsset(ctx, testOwner, testTicker, "Apple", ""))
	assert.ErrorIs(t, env.coordinator.ListAsset(ctx, testOwner, testTicker, "", ""), ErrAssetAlreadyExists)

	assets, err := env.coordinator.Assets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, testTicker, assets[0].Ticker)
	assert.Len(t, env.publisher.ByName(events.EventTokenRegistered), 1)

	assert.ErrorIs(t, env.coordinator.DelistAsset(ctx, testOwner, "TSLA"), ErrAssetNotFound)
	require.NoError(t, env.coordinator.DelistAsset(ctx, testOwner, testTicker))
	assert.Nil(t, env.coordinator.Registry(testTicker))
	assert.Len(t, env.publisher.ByName(events.EventTokenRemoved), 1)
}

func TestDelistedAssetStillSettlesInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	id := env.mint(t, 10_000, 0)
	require.NoError(t, env.coordinator.DelistAsset(ctx, testOwner, testTicker))

	// the orphaned callback routes to the delisted registry and settles
	require.NoError(t, env.settle(t, id, 42, true))
	assert.Equal(t, int64(42), env.book.Balance(testUser, testTicker).Int64())
}

func TestUpgradeExecutionLogicAffectsSettlement(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)

	id := env.mint(t, 10_000, 100)

	// widen the window after the request was created
	require.NoError(t, env.coordinator.UpgradeExecutionLogic(testOwner, ExecutionLogic{
		Version:       "v2",
		SlippageMinBP: 5000,
		SlippageMaxBP: 20000,
	}))

	require.NoError(t, env.settle(t, id, 150, true))
	req, err := env.requests.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFulfilled, req.Status)
}

func TestTwoStepOwnership(t *testing.T) {
	env := newTestEnv(t)

	assert.ErrorIs(t, env.coordinator.TransferOwnership(testUser, testUser2), ErrNotAuthorized)
	require.NoError(t, env.coordinator.TransferOwnership(testOwner, testUser2))

	// nomination alone changes nothing
	assert.Equal(t, testOwner, env.coordinator.Owner())
	assert.NoError(t, env.coordinator.Pause(testOwner))
	require.NoError(t, env.coordinator.Unpause(testOwner))

	assert.ErrorIs(t, env.coordinator.AcceptOwnership(testUser), ErrNotAuthorized)
	require.NoError(t, env.coordinator.AcceptOwnership(testUser2))
	assert.Equal(t, testUser2, env.coordinator.Owner())

	// old owner is out
	assert.ErrorIs(t, env.coordinator.Pause(testOwner), ErrNotAuthorized)
	assert.NoError(t, env.coordinator.Pause(testUser2))
}

func TestCleanupParticipantExpired(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	env.mint(t, 10_000, 0)
	env.cooldown()
	env.mint(t, 20_000, 0)

	env.clock.Advance(25 * time.Hour)

	n, err := env.coordinator.CleanupParticipantExpired(ctx, testUser, []string{testTicker})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(1_000_000), env.book.Balance(testUser, "USD").Int64())

	_, err = env.coordinator.CleanupParticipantExpired(ctx, testUser2, []string{testTicker})
	assert.ErrorIs(t, err, ErrParticipantNotRegistered)
}

func TestCleanupAfterLongRequestHistory(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	// more lifetime requests than one cleanup batch allows, all but the
	// last already settled
	for i := 0; i < 51; i++ {
		id := env.mint(t, 100, 0)
		if i < 50 {
			require.NoError(t, env.settle(t, id, 1, true))
		}
		env.cooldown()
	}

	env.clock.Advance(25 * time.Hour)
	n, err := env.coordinator.CleanupParticipantExpired(ctx, testUser, []string{testTicker})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// the lone expired escrow came back; the fulfilled ones stayed settled
	assert.Equal(t, int64(995_000), env.book.Balance(testUser, "USD").Int64())
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	env.mint(t, 10_000, 0)
	env.cooldown()
	env.mint(t, 20_000, 0)
	env.clock.Advance(25 * time.Hour)

	n, err := env.coordinator.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// nothing left to expire
	n, err = env.coordinator.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParticipantsSettleIndependently(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()
	require.NoError(t, env.coordinator.RegisterParticipant(ctx, testUser2, "broker-acct-2"))
	require.NoError(t, env.book.Mint(testUser2, "USD", big.NewInt(500_000)))

	first := env.mint(t, 10_000, 0)
	second, err := env.coordinator.Mint(ctx, testUser2, big.NewInt(20_000), testTicker, nil)
	require.NoError(t, err)

	// fulfilled out of order, no cross-talk between the two balances
	require.NoError(t, env.settle(t, second, 200, true))
	require.NoError(t, env.settle(t, first, 100, true))

	assert.Equal(t, int64(100), env.book.Balance(testUser, testTicker).Int64())
	assert.Equal(t, int64(200), env.book.Balance(testUser2, testTicker).Int64())
	assert.Equal(t, int64(990_000), env.book.Balance(testUser, "USD").Int64())
	assert.Equal(t, int64(480_000), env.book.Balance(testUser2, "USD").Int64())
}

func TestSetAssetTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)

	assert.ErrorIs(t, env.coordinator.SetAssetTimeout(testUser, testTicker, time.Hour), ErrNotAuthorized)
	assert.ErrorIs(t, env.coordinator.SetAssetTimeout(testOwner, "TSLA", time.Hour), ErrAssetNotFound)
	assert.ErrorIs(t, env.coordinator.SetAssetTimeout(testOwner, testTicker, time.Second), ErrInvalidTimeout)
	assert.NoError(t, env.coordinator.SetAssetTimeout(testOwner, testTicker, 2*time.Hour))
}

func TestRestoreAssets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.coordinator.ListAsset(ctx, testOwner, testTicker, "Apple", ""))

	// a second coordinator over the same stores picks the asset back up
	restored := NewSettlementCoordinator(SettlementCoordinatorDeps{
		Params: SettlementParams{
			BaseCurrency:        "USD",
			RequestTimeout:      time.Hour,
			RequestCooldown:     5 * time.Minute,
			MaxCleanupBatchSize: 50,
		},
		Owner:        testOwner,
		Participants: env.participants,
		Requests:     env.requests,
		Assets:       env.assets,
		Ledger:       env.book,
		Dispatcher:   env.dispatcher,
		Publisher:    env.publisher,
		Logic:        env.logic,
		Now:          env.clock.Now,
	})
	require.NoError(t, restored.RestoreAssets(ctx))
	assert.NotNil(t, restored.Registry(testTicker))
}
