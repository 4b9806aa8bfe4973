package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	require.NoError(t, LoadConfig(path))

	assert.Equal(t, 9000, AppConfig.Server.Port)
	assert.Equal(t, "USD", AppConfig.Settlement.BaseCurrency)
	assert.Equal(t, 3600, AppConfig.Settlement.RequestTimeout)
	assert.Equal(t, 300, AppConfig.Settlement.RequestCooldown)
	assert.Equal(t, 50, AppConfig.Settlement.MaxCleanupBatchSize)
	assert.Equal(t, uint32(9800), AppConfig.Settlement.SlippageMinBP)
	assert.Equal(t, uint32(10200), AppConfig.Settlement.SlippageMaxBP)
}

func TestRequestTimeoutClamped(t *testing.T) {
	path := writeConfig(t, "settlement:\n  request_timeout: 10\n")
	require.NoError(t, LoadConfig(path))
	assert.Equal(t, 300, AppConfig.Settlement.RequestTimeout)

	path = writeConfig(t, "settlement:\n  request_timeout: 100000\n")
	require.NoError(t, LoadConfig(path))
	assert.Equal(t, 86400, AppConfig.Settlement.RequestTimeout)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "oracle:\n  base_url: http://file:1\n")
	t.Setenv("ORACLE_BASE_URL", "http://env:2")
	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("SETTLEMENT_OWNER", "0x00000000000000000000000000000000000000aa")

	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "http://env:2", AppConfig.Oracle.BaseURL)
	assert.Equal(t, 7777, AppConfig.Server.Port)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", AppConfig.Settlement.Owner)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	require.NoError(t, LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Equal(t, 8080, AppConfig.Server.Port)
}
