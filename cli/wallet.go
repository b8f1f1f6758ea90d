package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var WalletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Show the gateway's wallet address and BZZ balance",
	Action: func(cctx *cli.Context) error {
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		gw, err := c.Gateway()
		if err != nil {
			return err
		}
		info, err := gw.Wallet(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Printf("Address: %s\n", info.WalletAddress)
		fmt.Printf("Balance: %s BZZ\n", info.BZZBalance)
		return nil
	},
}

var ChequebookCmd = &cli.Command{
	Name:  "chequebook",
	Usage: "Show the gateway's chequebook contract state",
	Action: func(cctx *cli.Context) error {
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		gw, err := c.Gateway()
		if err != nil {
			return err
		}
		info, err := gw.Chequebook(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Printf("Contract:  %s\n", info.ChequebookAddress)
		fmt.Printf("Available: %s\n", info.AvailableBalance)
		fmt.Printf("Total:     %s\n", info.TotalBalance)
		return nil
	},
}

var HealthCmd = &cli.Command{
	Name:  "health",
	Usage: "Check that the configured backend is reachable",
	Action: func(cctx *cli.Context) error {
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		if err := c.Health(cctx); err != nil {
			color.Red("%s is not reachable: %s", c.BaseURL(), err)
			return err
		}
		color.Green("%s is up", c.BaseURL())
		return nil
	},
}
