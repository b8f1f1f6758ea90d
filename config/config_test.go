package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, BackendGateway, cfg.Backend)
	require.Equal(t, DefaultGatewayURL, cfg.GatewayURL)
	require.Equal(t, DefaultBeeURL, cfg.BeeURL)
	require.Equal(t, 17, cfg.Depth)
	require.Equal(t, uint64(1_000_000_000), cfg.Amount)
	require.False(t, cfg.X402.Enabled)
	require.Equal(t, "base-sepolia", cfg.X402.Network)
	require.Equal(t, 1.00, cfg.X402.MaxAutoPayUSD)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SWARMPROV_BACKEND", "bee")
	t.Setenv("SWARMPROV_BEE_URL", "http://node:1633")
	t.Setenv("SWARMPROV_X402_ENABLED", "true")
	t.Setenv("SWARMPROV_X402_NETWORK", "base")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, BackendBee, cfg.Backend)
	require.Equal(t, "http://node:1633", cfg.BeeURL)
	require.True(t, cfg.X402.Enabled)
	require.Equal(t, "base", cfg.X402.Network)
}

func TestFromEnvPrefixedPaymentVars(t *testing.T) {
	// These have no CLI flag equivalent, so the prefixed names are the
	// only documented way to set them.
	t.Setenv("SWARMPROV_X402_ENABLED", "true")
	t.Setenv("SWARMPROV_X402_AUTO_PAY", "true")
	t.Setenv("SWARMPROV_X402_MAX_AUTO_PAY_USD", "0.25")
	t.Setenv("SWARMPROV_X402_RPC_URL", "https://rpc.example.org")
	t.Setenv("SWARMPROV_X402_PRIVATE_KEY", "0xkey")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.True(t, cfg.X402.Enabled)
	require.True(t, cfg.X402.AutoPay)
	require.Equal(t, 0.25, cfg.X402.MaxAutoPayUSD)
	require.Equal(t, "https://rpc.example.org", cfg.X402.RPCURL)
	require.Equal(t, "0xkey", cfg.X402.PrivateKey)
}

func TestFromEnvBarePrivateKeyFallback(t *testing.T) {
	t.Setenv("X402_PRIVATE_KEY", "0xabc123")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "0xabc123", cfg.X402.PrivateKey)
}

func TestFromEnvPrefixedKeyWins(t *testing.T) {
	t.Setenv("X402_PRIVATE_KEY", "bare")
	t.Setenv("SWARMPROV_X402_PRIVATE_KEY", "prefixed")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "prefixed", cfg.X402.PrivateKey)
}

func TestFromEnvRejectsUnknownBackend(t *testing.T) {
	t.Setenv("SWARMPROV_BACKEND", "ipfs")

	_, err := FromEnv()
	require.Error(t, err)
}
