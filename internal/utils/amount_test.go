package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000", v.String())

	// 256-bit values must round-trip without loss
	big256 := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	v, err = ParseAmount(big256)
	require.NoError(t, err)
	assert.Equal(t, big256, FormatAmount(v))

	_, err = ParseAmount("")
	assert.Error(t, err)
	_, err = ParseAmount("-5")
	assert.Error(t, err)
	_, err = ParseAmount("12.5")
	assert.Error(t, err)
}

func TestSlippageBounds(t *testing.T) {
	expected := big.NewInt(10_000_000)
	low, high := SlippageBounds(expected, 9800, 10200)
	assert.Equal(t, int64(9_800_000), low.Int64())
	assert.Equal(t, int64(10_200_000), high.Int64())

	assert.True(t, WithinBounds(big.NewInt(10_000_000), low, high))
	assert.True(t, WithinBounds(big.NewInt(9_800_000), low, high))
	assert.True(t, WithinBounds(big.NewInt(10_200_000), low, high))
	assert.False(t, WithinBounds(big.NewInt(9_799_999), low, high))
	assert.False(t, WithinBounds(big.NewInt(10_200_001), low, high))
}

func TestDecodeResultAmount(t *testing.T) {
	v, err := DecodeResultAmount([]byte{0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, int64(256), v.Int64())

	v, err = DecodeResultAmount(nil)
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	_, err = DecodeResultAmount(make([]byte, 33))
	assert.Error(t, err)
}
