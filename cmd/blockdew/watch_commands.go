package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/blockdew/client"
	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/stacks"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow a running server's fee dashboard",
		Description: `Connects to the server's event stream and prints every snapshot until
interrupted. --select and --threshold change the dashboard before watching.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Base URL of a running blockdew server",
				EnvVars: []string{"BLOCKDEW_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:  "select",
				Usage: "Switch the dashboard to this network first",
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Usage: "Set the busy threshold first",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Print the current snapshot and exit",
			},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"))
			cl := client.NewClient(c.String("server-url"), &http.Client{}, logger)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if n := c.String("select"); n != "" {
				network, err := stacks.ParseNetwork(n)
				if err != nil {
					return err
				}
				if _, err := cl.SelectNetwork(ctx, network); err != nil {
					return err
				}
			}
			if c.IsSet("threshold") {
				if _, err := cl.SetThreshold(ctx, c.Float64("threshold")); err != nil {
					return err
				}
			}

			if c.Bool("once") {
				snap, err := cl.Current(ctx)
				if err != nil {
					return err
				}
				return render(c, snap, func(w io.Writer) { printSnapshot(w, *snap) })
			}

			err := cl.Stream(ctx, func(snap fees.Snapshot) error {
				return render(c, snap, func(w io.Writer) { printSnapshot(w, snap) })
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func printSnapshot(w io.Writer, snap fees.Snapshot) {
	ts := snap.UpdatedAt.Format("15:04:05")
	switch {
	case snap.Loading:
		fmt.Fprintf(w, "[%s] %s loading\n", ts, snap.Network)
	case snap.Error != "":
		fmt.Fprintf(w, "[%s] %s %s\n", ts, snap.Network, snap.Error)
	default:
		fmt.Fprintf(w, "[%s] %s %v µSTX/byte %s (low %d, avg %d, high %d)\n",
			ts, snap.Network, *snap.Rate, snap.Status, snap.Tiers.Low, snap.Tiers.Avg, snap.Tiers.High)
	}
}
