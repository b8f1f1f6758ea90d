package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var NotaryCmd = &cli.Command{
	Name:  "notary",
	Usage: "Inspect the gateway's notarization service",
	Subcommands: []*cli.Command{
		{
			Name:  "info",
			Usage: "Show whether notarization is offered and under which address",
			Action: func(cctx *cli.Context) error {
				c, err := GetClients(cctx)
				if err != nil {
					return err
				}
				gw, err := c.Gateway()
				if err != nil {
					return err
				}
				info, err := gw.NotaryInfo(cctx.Context)
				if err != nil {
					return err
				}

				fmt.Printf("Enabled:   %t\n", info.Enabled)
				fmt.Printf("Available: %t\n", info.Available)
				if info.Address != "" {
					fmt.Printf("Signer:    %s\n", info.Address)
				}
				if info.Message != "" {
					fmt.Printf("Message:   %s\n", info.Message)
				}
				if info.Enabled && !info.Available {
					color.Yellow("Notarization is configured but currently unavailable")
				}
				return nil
			},
		},
	},
}
