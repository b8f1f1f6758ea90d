package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/datafund/swarmprov/build"
	swarmcli "github.com/datafund/swarmprov/cli"
)

var log = logging.Logger("swarmprov")

func main() {
	logging.SetLogLevel("*", "WARN") // nolint:errcheck

	app := &cli.App{
		Name:    "swarmprov",
		Usage:   "Provenance uploads to Swarm with integrity envelopes and pay-per-request",
		Version: build.UserVersion(),
		Commands: []*cli.Command{
			swarmcli.UploadCmd,
			swarmcli.DownloadCmd,
			swarmcli.StampsCmd,
			swarmcli.WalletCmd,
			swarmcli.ChequebookCmd,
			swarmcli.HealthCmd,
			swarmcli.X402Cmd,
			swarmcli.NotaryCmd,
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    swarmcli.FlagBackend,
				Usage:   "storage backend: gateway or bee",
				EnvVars: []string{"SWARMPROV_BACKEND"},
			},
			&cli.StringFlag{
				Name:    swarmcli.FlagGatewayURL,
				Usage:   "provenance gateway endpoint",
				EnvVars: []string{"SWARMPROV_GATEWAY_URL"},
			},
			&cli.StringFlag{
				Name:    swarmcli.FlagBeeURL,
				Usage:   "local bee node endpoint",
				EnvVars: []string{"SWARMPROV_BEE_URL"},
			},
			&cli.StringFlag{
				Name:    swarmcli.FlagAPIKey,
				Usage:   "gateway API key",
				EnvVars: []string{"SWARMPROV_API_KEY"},
			},
			&cli.BoolFlag{
				Name:    swarmcli.FlagX402,
				Usage:   "enable pay-per-request payment handling",
				EnvVars: []string{"SWARMPROV_X402_ENABLED"},
			},
			&cli.BoolFlag{
				Name:    swarmcli.FlagAutoPay,
				Usage:   "approve payments within the budget without prompting",
				EnvVars: []string{"SWARMPROV_X402_AUTO_PAY"},
			},
			&cli.StringFlag{
				Name:    swarmcli.FlagNetwork,
				Usage:   "payment network: base-sepolia or base",
				EnvVars: []string{"SWARMPROV_X402_NETWORK"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "minimum log level: debug, info, warn or error",
				Value: "warn",
			},
		},
		Before: func(cctx *cli.Context) error {
			return logging.SetLogLevel("*", cctx.String("log-level"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}
