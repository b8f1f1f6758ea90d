package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/hako/durafmt"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/datafund/swarmprov/config"
	"github.com/datafund/swarmprov/stamp"
)

var StampsCmd = &cli.Command{
	Name:  "stamps",
	Usage: "Manage postage stamp batches",
	Subcommands: []*cli.Command{
		stampsListCmd,
		stampsInfoCmd,
		stampsPurchaseCmd,
		stampsExtendCmd,
		stampsCheckCmd,
		stampsAcquireCmd,
		stampsPoolStatusCmd,
	},
}

func fmtTTL(ttl time.Duration) string {
	if ttl <= 0 {
		return "expired"
	}
	return durafmt.Parse(ttl).LimitFirstN(2).String()
}

var stampsListCmd = &cli.Command{
	Name:  "list",
	Usage: "List stamp batches known to the backend",
	Action: func(cctx *cli.Context) error {
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		list, err := c.ListStamps(cctx)
		if err != nil {
			return err
		}
		if len(list.Stamps) == 0 {
			fmt.Println("No stamps.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSABLE\tTTL\tDEPTH\tUTILIZATION") // nolint:errcheck
		for _, s := range list.Stamps {
			util := "-"
			if s.Utilization != nil {
				util = fmt.Sprintf("%.1f%%", *s.Utilization)
			}
			fmt.Fprintf(tw, "%s\t%t\t%s\t%d\t%s\n", // nolint:errcheck
				shortID(s.BatchID), s.Usable, fmtTTL(time.Duration(s.BatchTTL)*time.Second), s.Depth, util)
		}
		return tw.Flush()
	},
}

var stampsInfoCmd = &cli.Command{
	Name:      "info",
	Usage:     "Show one stamp batch",
	ArgsUsage: "<batch-id>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected exactly one argument: the batch ID")
		}
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		lease, err := c.StampManager().Get(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}

		fmt.Printf("ID:          %s\n", lease.ID)
		fmt.Printf("Usable:      %t\n", lease.Usable)
		fmt.Printf("TTL:         %s\n", fmtTTL(lease.TTL))
		fmt.Printf("Depth:       %d", lease.Depth)
		if size := lease.Size(); size != "" {
			fmt.Printf(" (%s)", size)
		}
		fmt.Println()
		fmt.Printf("Utilization: %.1f%%\n", lease.Utilization)
		return nil
	},
}

var stampsPurchaseCmd = &cli.Command{
	Name:  "purchase",
	Usage: "Buy a fresh stamp batch and wait for it to become usable",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "duration",
			Usage: "duration in hours",
			Value: stamp.DefaultDurationHours,
		},
		&cli.StringFlag{
			Name:  "size",
			Usage: "size class: small, medium or large",
			Value: "small",
		},
		&cli.IntFlag{
			Name:  "depth",
			Usage: "explicit depth (overrides --size)",
		},
		&cli.StringFlag{
			Name:  "label",
			Usage: "batch label",
		},
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "return immediately instead of waiting for usability",
		},
	},
	Action: func(cctx *cli.Context) error {
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		size, err := stamp.ParseSize(cctx.String("size"))
		if err != nil {
			return err
		}

		mgr := c.StampManager()
		params := stamp.PurchaseParams{
			DurationHours: cctx.Int("duration"),
			Size:          size,
			Depth:         cctx.Int("depth"),
			Label:         cctx.String("label"),
		}
		if c.cfg.Backend == config.BackendBee {
			// The node API takes amount+depth only.
			params.DurationHours = 0
			params.Amount = c.cfg.Amount
			if params.Depth == 0 {
				params.Depth = size.Depth()
			}
		}
		lease, err := mgr.Purchase(cctx.Context, params)
		if err != nil {
			return err
		}
		fmt.Printf("Batch:  %s\n", lease.ID)

		if cctx.Bool("no-wait") {
			color.Yellow("Not waiting; the batch needs time to become usable")
			return nil
		}
		fmt.Println("Waiting for the batch to become usable...")
		lease, err = mgr.WaitUntilUsable(cctx.Context, lease.ID)
		if err != nil {
			return err
		}
		color.Green("Batch is usable (TTL %s)", fmtTTL(lease.TTL))
		return nil
	},
}

var stampsExtendCmd = &cli.Command{
	Name:      "extend",
	Usage:     "Top up an existing stamp batch",
	ArgsUsage: "<batch-id>",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "amount",
			Usage: "PLUR amount to add",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected exactly one argument: the batch ID")
		}
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		amount := cctx.Uint64("amount")
		if amount == 0 {
			amount = c.cfg.Amount
		}
		lease, err := c.StampManager().Extend(cctx.Context, cctx.Args().First(), amount)
		if err != nil {
			return err
		}
		color.Green("Extended %s (TTL now %s)", shortID(lease.ID), fmtTTL(lease.TTL))
		return nil
	},
}

var stampsCheckCmd = &cli.Command{
	Name:      "check",
	Usage:     "Run upload-readiness diagnostics on a stamp batch",
	ArgsUsage: "<batch-id>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return xerrors.Errorf("expected exactly one argument: the batch ID")
		}
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		health, err := c.StampManager().CheckHealth(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}

		for _, e := range health.Errors {
			color.Red("ERROR %s: %s", e.Code, e.Message)
		}
		for _, w := range health.Warnings {
			color.Yellow("WARN  %s: %s", w.Code, w.Message)
		}
		if health.CanUpload {
			color.Green("Stamp is ready for uploads")
		} else {
			color.Red("Stamp cannot be used for uploads")
		}
		return nil
	},
}

var stampsAcquireCmd = &cli.Command{
	Name:  "acquire",
	Usage: "Take a pre-warmed stamp from the gateway pool",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "size",
			Usage: "size class: small, medium or large",
			Value: "small",
		},
	},
	Action: func(cctx *cli.Context) error {
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		size, err := stamp.ParseSize(cctx.String("size"))
		if err != nil {
			return err
		}
		lease, err := c.StampManager().AcquireFromPool(cctx.Context, size)
		if err != nil {
			return err
		}
		fmt.Printf("Batch: %s (depth %d)\n", lease.ID, lease.Depth)
		if lease.Substituted {
			color.Yellow("The pool substituted a larger size class than requested")
		}
		return nil
	},
}

var stampsPoolStatusCmd = &cli.Command{
	Name:  "pool-status",
	Usage: "Show the gateway's stamp pool reserve",
	Action: func(cctx *cli.Context) error {
		c, err := GetClients(cctx)
		if err != nil {
			return err
		}
		gw, err := c.Gateway()
		if err != nil {
			return err
		}
		status, err := gw.PoolStatus(cctx.Context)
		if err != nil {
			return err
		}

		if !status.Enabled {
			fmt.Println("Pool: disabled")
			return nil
		}
		fmt.Printf("Pool: enabled, %d stamps\n", status.TotalStamps)

		depths := make([]string, 0, len(status.ReserveConfig))
		for d := range status.ReserveConfig {
			depths = append(depths, d)
		}
		sort.Strings(depths)
		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DEPTH\tTARGET\tAVAILABLE") // nolint:errcheck
		for _, d := range depths {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", d, status.ReserveConfig[d], status.CurrentLevels[d]) // nolint:errcheck
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if status.LowReserveWarning {
			color.Yellow("Low reserve warning is active")
		}
		if status.LastCheck != "" {
			fmt.Printf("Last maintenance check: %s\n", status.LastCheck)
		}
		if status.NextCheck != "" {
			fmt.Printf("Next maintenance check: %s\n", status.NextCheck)
		}
		for _, e := range status.Errors {
			color.Red("Pool error: %s", e)
		}
		return nil
	},
}
