// Package cli defines the swarmprov commands. Each command file holds one
// top-level command var; shared client construction lives here.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/bee"
	"github.com/datafund/swarmprov/config"
	"github.com/datafund/swarmprov/gateway"
	"github.com/datafund/swarmprov/provenance"
	"github.com/datafund/swarmprov/stamp"
	"github.com/datafund/swarmprov/x402"
)

var log = logging.Logger("cli")

// Global flag names. Values fall back to the SWARMPROV_* environment via the
// config package; a set flag wins.
const (
	FlagBackend    = "backend"
	FlagGatewayURL = "gateway-url"
	FlagBeeURL     = "bee-url"
	FlagAPIKey     = "api-key"
	FlagX402       = "x402"
	FlagAutoPay    = "auto-pay"
	FlagNetwork    = "network"
)

// LoadConfig reads the environment config and applies global flag overrides.
func LoadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if cctx.IsSet(FlagBackend) {
		cfg.Backend = cctx.String(FlagBackend)
	}
	if cctx.IsSet(FlagGatewayURL) {
		cfg.GatewayURL = cctx.String(FlagGatewayURL)
	}
	if cctx.IsSet(FlagBeeURL) {
		cfg.BeeURL = cctx.String(FlagBeeURL)
	}
	if cctx.IsSet(FlagAPIKey) {
		cfg.APIKey = cctx.String(FlagAPIKey)
	}
	if cctx.IsSet(FlagX402) {
		cfg.X402.Enabled = cctx.Bool(FlagX402)
	}
	if cctx.IsSet(FlagAutoPay) {
		cfg.X402.AutoPay = cctx.Bool(FlagAutoPay)
	}
	if cctx.IsSet(FlagNetwork) {
		cfg.X402.Network = cctx.String(FlagNetwork)
	}
	if cfg.Backend != config.BackendGateway && cfg.Backend != config.BackendBee {
		return nil, xerrors.Errorf("unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}

// PaymentSigner selects the signer for the configured key. A missing key
// yields a signer that fails at first use, not an immediate error.
func PaymentSigner(cfg *config.Config) (x402.Signer, error) {
	if cfg.X402.PrivateKey == "" {
		return x402.MissingKey(), nil
	}
	return x402.NewSecpSigner(cfg.X402.PrivateKey)
}

// NewNegotiator builds the payment negotiator, or nil when payments are
// disabled.
func NewNegotiator(cfg *config.Config) (*x402.Negotiator, error) {
	if !cfg.X402.Enabled {
		return nil, nil
	}
	signer, err := PaymentSigner(cfg)
	if err != nil {
		return nil, err
	}
	neg, err := x402.New(cfg.X402.Network, signer, cfg.X402.AutoPay, cfg.X402.MaxAutoPayUSD)
	if err != nil {
		return nil, err
	}
	if cfg.X402.RPCURL != "" {
		neg.EnableBalanceCheck(cfg.X402.RPCURL)
	}
	return neg, nil
}

// promptConfirm asks on the terminal before an over-budget payment.
func promptConfirm(amountUSD, description string) (bool, error) {
	p := promptui.Prompt{
		Label:     fmt.Sprintf("Pay %s for %s", amountUSD, description),
		IsConfirm: true,
	}
	_, err := p.Run()
	if errors.Is(err, promptui.ErrAbort) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// clients bundles the per-backend handles. Exactly one of gw/node is set.
type clients struct {
	cfg  *config.Config
	gw   *gateway.Client
	node *bee.Client
}

// GetClients builds the backend clients from the context's config.
func GetClients(cctx *cli.Context) (*clients, error) {
	cfg, err := LoadConfig(cctx)
	if err != nil {
		return nil, err
	}
	c := &clients{cfg: cfg}
	switch cfg.Backend {
	case config.BackendBee:
		c.node = bee.New(cfg.BeeURL)
	default:
		neg, err := NewNegotiator(cfg)
		if err != nil {
			return nil, err
		}
		opts := []gateway.Option{gateway.WithPayment(neg, promptConfirm)}
		if cfg.APIKey != "" {
			opts = append(opts, gateway.WithAPIKey(cfg.APIKey))
		}
		c.gw = gateway.New(cfg.GatewayURL, opts...)
	}
	return c, nil
}

// Gateway returns the gateway client or fails for gateway-only commands.
func (c *clients) Gateway() (*gateway.Client, error) {
	if c.gw == nil {
		return nil, xerrors.Errorf("this command needs the gateway backend (current backend: %s)", c.cfg.Backend)
	}
	return c.gw, nil
}

func (c *clients) stampAPI() stamp.API {
	if c.node != nil {
		return c.node
	}
	return c.gw
}

// StampManager builds the lifecycle manager over the selected backend.
func (c *clients) StampManager() *stamp.Manager {
	return stamp.NewManager(c.stampAPI())
}

// Service builds the upload/download orchestrator.
func (c *clients) Service() *provenance.Service {
	var backend provenance.Backend
	if c.node != nil {
		backend = &provenance.BeeBackend{Client: c.node}
	} else {
		backend = &provenance.GatewayBackend{Client: c.gw}
	}
	return provenance.NewService(backend, c.StampManager())
}

// ListStamps lists batches on whichever backend is selected.
func (c *clients) ListStamps(cctx *cli.Context) (*gateway.StampList, error) {
	if c.node != nil {
		return c.node.ListStamps(cctx.Context)
	}
	return c.gw.ListStamps(cctx.Context)
}

// Health pings the selected backend.
func (c *clients) Health(cctx *cli.Context) error {
	if c.node != nil {
		return c.node.Health(cctx.Context)
	}
	return c.gw.Health(cctx.Context)
}

// BaseURL reports the endpoint in use, for status output.
func (c *clients) BaseURL() string {
	if c.node != nil {
		return c.node.BaseURL()
	}
	return c.gw.BaseURL()
}

// readInput loads the upload payload from a file path or stdin ("-").
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("reading %s: %w", path, err)
	}
	return b, nil
}

// shortID renders a batch ID for table output.
func shortID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "…" + id[len(id)-8:]
}
