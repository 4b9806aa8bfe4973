package services

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"settlement-backend/internal/clients"
	"settlement-backend/internal/events"
	"settlement-backend/internal/ledger"
	"settlement-backend/internal/repository"
)

const (
	testOwner  = "0x00000000000000000000000000000000000000aa"
	testUser   = "0x00000000000000000000000000000000000000bb"
	testUser2  = "0x00000000000000000000000000000000000000cc"
	testTicker = "AAPL"
)

// fakeClock is a mutable time source shared by every component under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock        *fakeClock
	book         *ledger.Ledger
	oracle       *clients.StubOracleClient
	dispatcher   *AssetDispatcher
	publisher    *events.MemoryPublisher
	logic        *LogicHandle
	coordinator  *SettlementCoordinator
	participants *repository.MemoryParticipantRepository
	requests     *repository.MemoryRequestRepository
	assets       *repository.MemoryAssetRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	book := ledger.New()
	oracle := clients.NewStubOracleClient()
	dispatcher := NewAssetDispatcher(oracle)
	publisher := events.NewMemoryPublisher()
	logic := NewLogicHandle(ExecutionLogic{
		Version:       "v1",
		SlippageMinBP: 9800,
		SlippageMaxBP: 10200,
	})
	requests := repository.NewMemoryRequestRepository()
	participants := repository.NewMemoryParticipantRepository()
	assets := repository.NewMemoryAssetRepository()

	coordinator := NewSettlementCoordinator(SettlementCoordinatorDeps{
		Params: SettlementParams{
			BaseCurrency:        "USD",
			RequestTimeout:      time.Hour,
			MinAmount:           big.NewInt(100),
			MaxAmount:           big.NewInt(1_000_000),
			RequestCooldown:     5 * time.Minute,
			MaxCleanupBatchSize: 50,
		},
		Owner:        testOwner,
		Participants: participants,
		Requests:     requests,
		Assets:       assets,
		Ledger:       book,
		Dispatcher:   dispatcher,
		Publisher:    publisher,
		Logic:        logic,
		Now:          clock.Now,
	})

	return &testEnv{
		clock:        clock,
		book:         book,
		oracle:       oracle,
		dispatcher:   dispatcher,
		publisher:    publisher,
		logic:        logic,
		coordinator:  coordinator,
		participants: participants,
		requests:     requests,
		assets:       assets,
	}
}

// listAndRegister is the standard fixture: one listed ticker, one funded
// registered participant.
func (e *testEnv) listAndRegister(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.coordinator.ListAsset(ctx, testOwner, testTicker, "Apple", ""))
	require.NoError(t, e.coordinator.RegisterParticipant(ctx, testUser, "broker-acct-1"))
	require.NoError(t, e.book.Mint(testUser, "USD", big.NewInt(1_000_000)))
	require.NoError(t, e.book.Mint(ledger.TreasuryAccount, "USD", big.NewInt(10_000_000)))
}

// mint submits a mint and returns the oracle request id.
func (e *testEnv) mint(t *testing.T, amount, expected int64) string {
	t.Helper()
	var exp *big.Int
	if expected > 0 {
		exp = big.NewInt(expected)
	}
	id, err := e.coordinator.Mint(context.Background(), testUser, big.NewInt(amount), testTicker, exp)
	require.NoError(t, err)
	return id
}

// settle replays an oracle callback with a numeric result.
func (e *testEnv) settle(t *testing.T, requestID string, result int64, success bool) error {
	t.Helper()
	var resultBytes []byte
	if result > 0 {
		resultBytes = big.NewInt(result).Bytes()
	}
	var errBytes []byte
	if !success {
		errBytes = []byte("execution failed")
	}
	return e.dispatcher.OnOracleResult(context.Background(), requestID, resultBytes, errBytes)
}

// cooldown skips past the rate limit window between submissions.
func (e *testEnv) cooldown() {
	e.clock.Advance(5*time.Minute + time.Second)
}
