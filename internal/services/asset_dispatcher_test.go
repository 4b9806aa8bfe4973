package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-backend/internal/models"
)

func TestDispatchRequiresAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()
	registry := env.coordinator.Registry(testTicker)

	// a registry instance that was never authorized cannot dispatch
	stranger := NewRequestRegistry(RequestRegistryParams{
		Asset:           models.Asset{ID: 99, Ticker: testTicker},
		Requests:        env.requests,
		Ledger:          env.book,
		Dispatcher:      env.dispatcher,
		Publisher:       env.publisher,
		Logic:           env.logic,
		BaseCurrency:    "USD",
		Timeout:         time.Hour,
		MaxCleanupBatch: 50,
		Now:             env.clock.Now,
	})
	_, err := env.dispatcher.Dispatch(ctx, stranger, models.DirectionMint, "100", "acct")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = env.dispatcher.Dispatch(ctx, registry, models.DirectionMint, "100", "acct")
	assert.NoError(t, err)
}

func TestDeauthorizeRejectsStaleInstance(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	registry := env.coordinator.Registry(testTicker)

	stale := NewRequestRegistry(RequestRegistryParams{
		Asset:           models.Asset{ID: 99, Ticker: testTicker},
		Requests:        env.requests,
		Ledger:          env.book,
		Dispatcher:      env.dispatcher,
		Logic:           env.logic,
		BaseCurrency:    "USD",
		Timeout:         time.Hour,
		MaxCleanupBatch: 50,
	})
	assert.ErrorIs(t, env.dispatcher.Deauthorize(testTicker, stale), ErrTokenAddressMismatch)
	assert.ErrorIs(t, env.dispatcher.Deauthorize("TSLA", registry), ErrAssetNotFound)
	assert.NoError(t, env.dispatcher.Deauthorize(testTicker, registry))
}

func TestUnknownCallbackRejected(t *testing.T) {
	env := newTestEnv(t)
	err := env.dispatcher.OnOracleResult(context.Background(), "never-issued", nil, nil)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestMalformedResultRejected(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)

	id := env.mint(t, 10_000, 0)
	err := env.dispatcher.OnOracleResult(context.Background(), id, make([]byte, 33), nil)
	require.Error(t, err)

	// the request is untouched and can still settle
	require.NoError(t, env.settle(t, id, 1, true))
}

func TestFailureCallbackIgnoresResultPayload(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)
	ctx := context.Background()

	id := env.mint(t, 10_000, 0)

	// a failure callback settles to Error even when its result bytes
	// would not decode
	require.NoError(t, env.dispatcher.OnOracleResult(ctx, id, make([]byte, 33), []byte("execution failed")))

	req, err := env.requests.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusError, req.Status)
	assert.Equal(t, int64(1_000_000), env.book.Balance(testUser, "USD").Int64())
}

func TestForgetDropsRouting(t *testing.T) {
	env := newTestEnv(t)
	env.listAndRegister(t)

	id := env.mint(t, 10_000, 0)
	env.dispatcher.Forget(id)

	err := env.settle(t, id, 1, true)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}
