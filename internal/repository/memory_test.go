package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-backend/internal/models"
)

func TestMarkTerminalWinsOnce(t *testing.T) {
	repo := NewMemoryRequestRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Request{
		ID:     "req-1",
		Status: models.RequestStatusPending,
	}))

	won, err := repo.MarkTerminal(ctx, "req-1", models.RequestStatusFulfilled, "100", "")
	require.NoError(t, err)
	assert.True(t, won)

	// second transition attempt must lose, regardless of target status
	won, err = repo.MarkTerminal(ctx, "req-1", models.RequestStatusError, "0", "oracle failure")
	require.NoError(t, err)
	assert.False(t, won)

	req, err := repo.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFulfilled, req.Status)
	assert.Equal(t, "100", req.ResultAmount)
	assert.Empty(t, req.RefundReason)
}

func TestMarkTerminalUnknownID(t *testing.T) {
	repo := NewMemoryRequestRepository()
	won, err := repo.MarkTerminal(context.Background(), "missing", models.RequestStatusExpired, "", "timeout")
	require.NoError(t, err)
	assert.False(t, won)
}

func TestFindPendingExpired(t *testing.T) {
	repo := NewMemoryRequestRepository()
	ctx := context.Background()
	now := time.Now()

	mk := func(id string, assetID uint64, status models.RequestStatus, deadline time.Time) {
		require.NoError(t, repo.Create(ctx, &models.Request{
			ID: id, AssetID: assetID, Status: status, Deadline: deadline,
		}))
	}
	mk("a", 1, models.RequestStatusPending, now.Add(-2*time.Hour))
	mk("b", 1, models.RequestStatusPending, now.Add(-1*time.Hour))
	mk("c", 1, models.RequestStatusPending, now.Add(time.Hour)) // not yet due
	mk("d", 1, models.RequestStatusFulfilled, now.Add(-3*time.Hour))
	mk("e", 2, models.RequestStatusPending, now.Add(-1*time.Hour)) // other asset

	reqs, err := repo.FindPendingExpired(ctx, 1, now, 10)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "a", reqs[0].ID)
	assert.Equal(t, "b", reqs[1].ID)

	reqs, err = repo.FindPendingExpired(ctx, 1, now, 1)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "a", reqs[0].ID)
}

func TestParticipantRequestIDs(t *testing.T) {
	repo := NewMemoryParticipantRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Participant{
		Address:           "0xabc",
		ExternalAccountID: "acct-1",
	}))
	require.NoError(t, repo.AppendRequestID(ctx, "0xabc", "req-1"))
	require.NoError(t, repo.AppendRequestID(ctx, "0xabc", "req-2"))

	p, err := repo.GetByAddress(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1", "req-2"}, p.RequestIDList())

	_, err = repo.GetByAddress(ctx, "0xdef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssetRepository(t *testing.T) {
	repo := NewMemoryAssetRepository()
	ctx := context.Background()

	a := &models.Asset{Ticker: "TSLA", DisplayName: "Tesla"}
	require.NoError(t, repo.Create(ctx, a))
	assert.NotZero(t, a.ID)

	b := &models.Asset{Ticker: "AAPL"}
	require.NoError(t, repo.Create(ctx, b))
	assert.NotEqual(t, a.ID, b.ID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "AAPL", list[0].Ticker)

	require.NoError(t, repo.Delete(ctx, "TSLA"))
	_, err = repo.GetByTicker(ctx, "TSLA")
	assert.ErrorIs(t, err, ErrNotFound)
}
