package cli

import (
	"fmt"
	"math/big"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/x402"
)

var X402Cmd = &cli.Command{
	Name:  "x402",
	Usage: "Inspect the pay-per-request payment setup",
	Subcommands: []*cli.Command{
		x402StatusCmd,
		x402BalanceCmd,
		x402InfoCmd,
	},
}

var x402StatusCmd = &cli.Command{
	Name:  "status",
	Usage: "Show the payment configuration and wallet address",
	Action: func(cctx *cli.Context) error {
		cfg, err := LoadConfig(cctx)
		if err != nil {
			return err
		}

		fmt.Printf("Enabled:       %t\n", cfg.X402.Enabled)
		fmt.Printf("Network:       %s\n", cfg.X402.Network)
		fmt.Printf("Auto-pay:      %t", cfg.X402.AutoPay)
		if cfg.X402.AutoPay {
			fmt.Printf(" (up to $%.2f)", cfg.X402.MaxAutoPayUSD)
		}
		fmt.Println()

		signer, err := PaymentSigner(cfg)
		if err != nil {
			return err
		}
		addr, err := signer.Address()
		if err != nil {
			color.Yellow("Wallet:        no private key configured")
			return nil
		}
		fmt.Printf("Wallet:        %s\n", addr)
		return nil
	},
}

var x402BalanceCmd = &cli.Command{
	Name:  "balance",
	Usage: "Show the wallet's on-chain USDC balance",
	Action: func(cctx *cli.Context) error {
		cfg, err := LoadConfig(cctx)
		if err != nil {
			return err
		}
		net, ok := x402.Networks[cfg.X402.Network]
		if !ok {
			return xerrors.Errorf("unknown payment network %q", cfg.X402.Network)
		}
		signer, err := PaymentSigner(cfg)
		if err != nil {
			return err
		}
		addr, err := signer.Address()
		if err != nil {
			return err
		}

		balance, err := x402.NewBalanceChecker(net, cfg.X402.RPCURL).USDCBalance(cctx.Context, addr)
		if err != nil {
			return err
		}
		usd := new(big.Float).Quo(new(big.Float).SetInt(balance), big.NewFloat(1e6))
		fmt.Printf("Wallet:  %s\n", addr)
		fmt.Printf("Network: %s\n", net.Name)
		fmt.Printf("Balance: $%s USDC\n", usd.Text('f', 6))
		return nil
	},
}

var x402InfoCmd = &cli.Command{
	Name:  "info",
	Usage: "Explain how pay-per-request works",
	Action: func(cctx *cli.Context) error {
		fmt.Println(`The gateway may answer paid endpoints with HTTP 402 and a list of
accepted payment options. When payments are enabled, this client picks the
option matching the configured network, signs a USDC transfer authorization
(EIP-3009 TransferWithAuthorization) with the configured key, and retries the
request once with the signed payment attached. Nothing moves on-chain until
the gateway's facilitator settles the authorization.

Amounts within the auto-pay budget are approved automatically; anything
larger asks for confirmation first. A request is never retried with a second
payment.`)
		return nil
	},
}
