package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintBurnTransfer(t *testing.T) {
	l := New()

	require.NoError(t, l.Mint("alice", "USD", big.NewInt(1000)))
	assert.Equal(t, int64(1000), l.Balance("alice", "USD").Int64())

	require.NoError(t, l.Transfer("alice", EscrowAccount("AAPL"), "USD", big.NewInt(400)))
	assert.Equal(t, int64(600), l.Balance("alice", "USD").Int64())
	assert.Equal(t, int64(400), l.Balance(EscrowAccount("AAPL"), "USD").Int64())

	require.NoError(t, l.Burn(EscrowAccount("AAPL"), "USD", big.NewInt(400)))
	assert.Zero(t, l.Balance(EscrowAccount("AAPL"), "USD").Sign())
}

func TestInsufficientBalance(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint("alice", "USD", big.NewInt(100)))

	err := l.Transfer("alice", "bob", "USD", big.NewInt(101))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	// failed transfer must not touch either side
	assert.Equal(t, int64(100), l.Balance("alice", "USD").Int64())
	assert.Zero(t, l.Balance("bob", "USD").Sign())

	err = l.Burn("bob", "USD", big.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestInvalidAmounts(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Mint("alice", "USD", big.NewInt(0)), ErrInvalidAmount)
	assert.ErrorIs(t, l.Mint("alice", "USD", nil), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer("a", "b", "USD", big.NewInt(-1)), ErrInvalidAmount)
}

func TestBalanceReturnsCopy(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint("alice", "USD", big.NewInt(5)))
	b := l.Balance("alice", "USD")
	b.SetInt64(999)
	assert.Equal(t, int64(5), l.Balance("alice", "USD").Int64())
}

func TestCurrenciesAreIndependent(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint("alice", "USD", big.NewInt(10)))
	require.NoError(t, l.Mint("alice", "AAPL", big.NewInt(3)))
	assert.Equal(t, int64(10), l.Balance("alice", "USD").Int64())
	assert.Equal(t, int64(3), l.Balance("alice", "AAPL").Int64())
	assert.Zero(t, l.Balance("alice", "TSLA").Sign())
}
