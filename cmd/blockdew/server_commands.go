package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/hiro"
	"github.com/brojonat/blockdew/service/metrics"
	"github.com/brojonat/blockdew/service/server"
	"github.com/brojonat/blockdew/service/stacks"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the fee dashboard HTTP server and poller",
		Description: `Serves the live fee dashboard. History endpoints read from DATABASE_URL when
it is set; the history itself is written by the worker command.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "server-addr",
				Usage:       "HTTP listen address",
				EnvVars:     []string{"SERVER_ADDR"},
				DefaultText: ":8080",
			},
			&cli.Float64Flag{
				Name:        "fee-threshold",
				Usage:       "Rates above this are reported as busy",
				EnvVars:     []string{"FEE_THRESHOLD"},
				DefaultText: "300",
			},
			&cli.DurationFlag{
				Name:        "fee-poll-interval",
				Usage:       "How often the fee rate is refreshed",
				EnvVars:     []string{"FEE_POLL_INTERVAL"},
				DefaultText: "30s",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)
			logger.Info("starting server",
				"addr", cfg.ServerAddr,
				"network", cfg.Network.String(),
				"log_level", cfg.LogLevel,
			)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.NewMetrics(nil)

			// The dashboard only reads history; the worker records it.
			sinks := openSinks(ctx, "", cfg.DatabaseURL, m, logger)
			defer sinks.Close()

			httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
			dashboard := fees.NewDashboard(cfg.Network, cfg.FeeThreshold, func(n stacks.Network) (fees.Fetcher, error) {
				return hiro.NewClient(cfg.APIBaseURL(n), n.String(), httpClient, m, logger), nil
			}, m, logger)

			httpServer := server.New(cfg.ServerAddr, dashboard, sinks.history(), m, logger)
			if err := httpServer.WithTemplates(); err != nil {
				return err
			}

			go func() {
				if err := dashboard.Run(ctx, cfg.FeePollInterval); err != nil && ctx.Err() == nil {
					logger.Error("fee poller stopped", "error", err)
				}
			}()

			serverErrors := make(chan error, 1)
			go func() {
				serverErrors <- httpServer.Start()
			}()

			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
				logger.Info("shutdown signal received")

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer shutdownCancel()

				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("failed to shutdown server gracefully: %w", err)
				}
				logger.Info("server shutdown complete")
				return nil
			}
		},
	}
}
