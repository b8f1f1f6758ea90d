// Package config holds the process-wide configuration, read once from the
// environment at startup and passed into component constructors. Components
// never read the environment themselves.
package config

import (
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"
)

const (
	BackendGateway = "gateway"
	BackendBee     = "bee"

	DefaultGatewayURL = "https://provenance-gateway.datafund.io"
	DefaultBeeURL     = "http://localhost:1633"
)

type Config struct {
	// Backend selects where uploads go: "gateway" or "bee".
	Backend    string `envconfig:"BACKEND" default:"gateway"`
	GatewayURL string `envconfig:"GATEWAY_URL" default:"https://provenance-gateway.datafund.io"`
	BeeURL     string `envconfig:"BEE_URL" default:"http://localhost:1633"`
	APIKey     string `envconfig:"API_KEY"`

	// Defaults for fresh stamp purchases.
	Depth  int    `envconfig:"DEPTH" default:"17"`
	Amount uint64 `envconfig:"AMOUNT" default:"1000000000"`

	// Embedded so envconfig resolves the payment fields under the plain
	// SWARMPROV prefix; a named field would stack a second X402 segment
	// into the variable names.
	X402
}

// X402 configures pay-per-request payment handling. Each variable is looked
// up under the SWARMPROV prefix first, then under the bare tag name; the
// bare X402_PRIVATE_KEY fallback matches the wider x402 tooling.
type X402 struct {
	Enabled       bool    `envconfig:"X402_ENABLED" default:"false"`
	Network       string  `envconfig:"X402_NETWORK" default:"base-sepolia"`
	AutoPay       bool    `envconfig:"X402_AUTO_PAY" default:"false"`
	MaxAutoPayUSD float64 `envconfig:"X402_MAX_AUTO_PAY_USD" default:"1.00"`
	PrivateKey    string  `envconfig:"X402_PRIVATE_KEY"`
	RPCURL        string  `envconfig:"X402_RPC_URL"`
}

// FromEnv builds the configuration from SWARMPROV_* environment variables.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("swarmprov", &cfg); err != nil {
		return nil, xerrors.Errorf("reading environment config: %w", err)
	}
	if cfg.Backend != BackendGateway && cfg.Backend != BackendBee {
		return nil, xerrors.Errorf("unknown backend %q, expected %q or %q", cfg.Backend, BackendGateway, BackendBee)
	}
	return &cfg, nil
}
