package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/provenance"
	"github.com/datafund/swarmprov/stamp"
)

var UploadCmd = &cli.Command{
	Name:      "upload",
	Usage:     "Wrap a file in an integrity envelope and store it on Swarm",
	ArgsUsage: "<file|->",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "stamp-id",
			Usage: "use an existing stamp batch",
		},
		&cli.BoolFlag{
			Name:  "use-pool",
			Usage: "acquire a pre-warmed stamp from the gateway pool",
		},
		&cli.StringFlag{
			Name:  "size",
			Usage: "stamp size class: small, medium or large",
			Value: "small",
		},
		&cli.BoolFlag{
			Name:  "fallback-purchase",
			Usage: "purchase a fresh stamp when the pool cannot serve",
		},
		&cli.IntFlag{
			Name:  "duration",
			Usage: "stamp duration in hours for a fresh purchase",
			Value: stamp.DefaultDurationHours,
		},
		&cli.IntFlag{
			Name:  "depth",
			Usage: "explicit stamp depth for a fresh purchase (overrides --size)",
		},
		&cli.StringFlag{
			Name:  "label",
			Usage: "label for a fresh stamp purchase",
		},
		&cli.StringFlag{
			Name:  "content-type",
			Usage: "content type recorded for serving",
			Value: "application/json",
		},
		&cli.StringFlag{
			Name:  "standard",
			Usage: "provenance standard label recorded in the envelope",
		},
		&cli.StringFlag{
			Name:  "encryption",
			Usage: "encryption marker recorded in the envelope",
			Value: "none",
		},
		&cli.BoolFlag{
			Name:  "sign",
			Usage: "request gateway-side notarization of the document",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected exactly one argument: the file to upload, or - for stdin")
		}
		raw, err := readInput(cctx.Args().First())
		if err != nil {
			return err
		}

		c, err := GetClients(cctx)
		if err != nil {
			return err
		}

		size, err := stamp.ParseSize(cctx.String("size"))
		if err != nil {
			return err
		}
		params := provenance.UploadParams{
			Stamp: provenance.StampSpec{
				ID:               cctx.String("stamp-id"),
				UsePool:          cctx.Bool("use-pool"),
				Size:             size,
				FallbackPurchase: cctx.Bool("fallback-purchase"),
				Purchase: stamp.PurchaseParams{
					DurationHours: cctx.Int("duration"),
					Size:          size,
					Depth:         cctx.Int("depth"),
					Label:         cctx.String("label"),
				},
			},
			ContentType: cctx.String("content-type"),
			Standard:    cctx.String("standard"),
			Encryption:  cctx.String("encryption"),
			Notarize:    cctx.Bool("sign"),
		}

		report, err := c.Service().Upload(cctx.Context, raw, params)
		if err != nil {
			return err
		}

		color.Green("Upload complete")
		fmt.Printf("Reference: %s\n", report.Reference)
		fmt.Printf("Size:      %s\n", humanize.Bytes(uint64(len(raw))))
		fmt.Printf("Stamp:     %s (depth %d)\n", report.Lease.ID, report.Lease.Depth)
		for _, w := range report.Warnings {
			color.Yellow("Warning: %s", w)
		}
		if params.Notarize {
			if sig := report.Envelope.NotarySignature(); sig != nil || len(report.SignedDocument) > 0 {
				color.Green("Document notarized by the gateway")
			}
			if len(report.SignedDocument) > 0 {
				path := report.Reference + ".signed.json"
				if err := os.WriteFile(path, report.SignedDocument, 0o644); err != nil {
					return xerrors.Errorf("writing signed document: %w", err)
				}
				fmt.Printf("Signed document written to %s\n", path)
			}
		}
		return nil
	},
}
