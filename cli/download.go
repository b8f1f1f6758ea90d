package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/provenance"
)

var DownloadCmd = &cli.Command{
	Name:      "download",
	Usage:     "Fetch a stored document, verify its integrity and write the artifacts",
	ArgsUsage: "<reference>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output-dir",
			Aliases: []string{"o"},
			Usage:   "directory for <ref>.meta.json and <ref>.data; - skips writing",
			Value:   ".",
		},
		&cli.BoolFlag{
			Name:  "verify-signature",
			Usage: "verify the notary signature on the document",
		},
		&cli.StringFlag{
			Name:  "notary-address",
			Usage: "expected notary signer address (implies --verify-signature)",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected exactly one argument: the swarm reference")
		}

		c, err := GetClients(cctx)
		if err != nil {
			return err
		}

		report, err := c.Service().Download(cctx.Context, cctx.Args().First(), provenance.DownloadParams{
			OutDir:        cctx.String("output-dir"),
			RequireNotary: cctx.Bool("verify-signature"),
			VerifySigner:  cctx.String("notary-address"),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Reference: %s\n", report.Reference)
		fmt.Printf("Size:      %s\n", humanize.Bytes(uint64(len(report.Raw))))
		if report.Verified {
			color.Green("Content integrity verified")
		} else {
			color.Red("CONTENT INTEGRITY CHECK FAILED - data does not match its recorded hash")
		}
		if report.Notary != nil {
			if report.Notary.Verified {
				color.Green("Notary signature valid (signer %s)", report.Notary.Signer)
			} else {
				color.Red("Notary signature check failed: %s", report.Notary.Reason)
			}
		}
		if report.DataPath != "" {
			fmt.Printf("Data:      %s\n", report.DataPath)
			fmt.Printf("Metadata:  %s\n", report.MetaPath)
		}
		return nil
	},
}
