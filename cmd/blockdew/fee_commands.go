package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/hiro"
	"github.com/brojonat/blockdew/service/stacks"
)

func feesCommand() *cli.Command {
	return &cli.Command{
		Name:  "fees",
		Usage: "Print the current transfer fee rate, tiers and congestion status",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:        "fee-threshold",
				Usage:       "Rates above this are reported as busy",
				EnvVars:     []string{"FEE_THRESHOLD"},
				DefaultText: "300",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
			dashboard := fees.NewDashboard(cfg.Network, cfg.FeeThreshold, func(n stacks.Network) (fees.Fetcher, error) {
				return hiro.NewClient(cfg.APIBaseURL(n), n.String(), httpClient, nil, logger), nil
			}, nil, logger)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout+5*time.Second)
			defer cancel()

			snap := dashboard.Refresh(ctx)
			if snap.Error != "" {
				return fmt.Errorf("%s for %s", snap.Error, snap.Network)
			}

			return render(c, snap, func(w io.Writer) {
				fmt.Fprintln(w, "Network:", snap.Network)
				fmt.Fprintf(w, "Fee rate: %v µSTX/byte (%s, threshold %v)\n", *snap.Rate, snap.Status, snap.Threshold)
				fmt.Fprintf(w, "Tiers: low %d, avg %d, high %d\n", snap.Tiers.Low, snap.Tiers.Avg, snap.Tiers.High)
			})
		},
	}
}
