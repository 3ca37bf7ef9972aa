package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/blockdew/service/config"
	"github.com/brojonat/blockdew/service/fees"
	"github.com/brojonat/blockdew/service/hiro"
	"github.com/brojonat/blockdew/service/metrics"
	natspkg "github.com/brojonat/blockdew/service/nats"
	"github.com/brojonat/blockdew/service/stacks"
	"github.com/brojonat/blockdew/service/temporal"
)

// newScheduler connects to Temporal for schedule management. Tests replace it.
var newScheduler = func(cfg *config.Config, logger *slog.Logger) (temporal.Scheduler, func(), error) {
	c, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

func temporalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "temporal-host",
			Usage:       "Temporal frontend address",
			EnvVars:     []string{"TEMPORAL_HOST"},
			DefaultText: "localhost:7233",
		},
		&cli.StringFlag{
			Name:        "temporal-namespace",
			Usage:       "Temporal namespace",
			EnvVars:     []string{"TEMPORAL_NAMESPACE"},
			DefaultText: "default",
		},
		&cli.StringFlag{
			Name:        "temporal-task-queue",
			Usage:       "Task queue the fee workflows run on",
			EnvVars:     []string{"TEMPORAL_TASK_QUEUE"},
			DefaultText: "blockdew-fees",
		},
	}
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the Temporal worker that records fee history",
		Description: `Executes RecordFeesWorkflow runs started by the fee schedules (see the
schedule command). Each run fetches the transfer fee rate, writes the snapshot to
DATABASE_URL and publishes it to NATS_URL when that is set.`,
		Flags: append(temporalFlags(),
			&cli.StringFlag{
				Name:        "metrics-addr",
				Usage:       "Prometheus metrics listen address",
				EnvVars:     []string{"METRICS_ADDR"},
				DefaultText: ":9091",
			},
		),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			logger := setupLogger(cfg.LogLevel)
			logger.Info("starting temporal worker",
				"temporal_host", cfg.TemporalHost,
				"namespace", cfg.TemporalNamespace,
				"task_queue", cfg.TemporalTaskQueue,
				"log_level", cfg.LogLevel,
			)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.NewMetrics(nil)

			store, pool, err := openStore(ctx, cfg.DatabaseURL, m)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()
			logger.Info("connected to database")

			metricsServer := &http.Server{
				Addr:    cfg.MetricsAddr,
				Handler: promhttp.Handler(),
			}
			go func() {
				logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server error", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown metrics server", "error", err)
				}
			}()

			httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
			workerConfig := temporal.WorkerConfig{
				TemporalHost:      cfg.TemporalHost,
				TemporalNamespace: cfg.TemporalNamespace,
				TaskQueue:         cfg.TemporalTaskQueue,
				Fetchers: func(n stacks.Network) (fees.Fetcher, error) {
					return hiro.NewClient(cfg.APIBaseURL(n), n.String(), httpClient, m, logger), nil
				},
				Store:   store,
				Metrics: m,
				Logger:  logger,
			}

			if cfg.NATSURL != "" {
				publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
				if err != nil {
					logger.Warn("NATS unavailable, snapshots will not be published", "error", err)
				} else {
					defer publisher.Close()
					workerConfig.Publisher = natspkg.NewRecorder(publisher)
					logger.Info("connected to NATS", "url", cfg.NATSURL)
				}
			}

			w, err := temporal.NewWorker(workerConfig)
			if err != nil {
				return fmt.Errorf("failed to create temporal worker: %w", err)
			}

			workerErrors := make(chan error, 1)
			go func() {
				workerErrors <- w.Start()
			}()

			select {
			case err := <-workerErrors:
				return err
			case <-ctx.Done():
				logger.Info("shutdown signal received")
				w.Stop()
				logger.Info("shutdown complete")
				return nil
			}
		},
	}
}

func scheduleCommands() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage the Temporal schedules that record fee history",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Create or update the fee schedule for --network",
				Flags: append(temporalFlags(),
					&cli.Float64Flag{
						Name:        "fee-threshold",
						Usage:       "Rates above this are recorded as busy",
						EnvVars:     []string{"FEE_THRESHOLD"},
						DefaultText: "300",
					},
					&cli.DurationFlag{
						Name:        "fee-poll-interval",
						Usage:       "How often a snapshot is recorded",
						EnvVars:     []string{"FEE_POLL_INTERVAL"},
						DefaultText: "30s",
					},
				),
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					logger := setupLogger(cfg.LogLevel)

					scheduler, closeFn, err := newScheduler(cfg, logger)
					if err != nil {
						return fmt.Errorf("failed to connect to temporal: %w", err)
					}
					defer closeFn()

					if err := scheduler.UpsertFeeSchedule(c.Context, cfg.Network, cfg.FeeThreshold, cfg.FeePollInterval); err != nil {
						return err
					}
					return render(c, map[string]interface{}{
						"network":   cfg.Network.String(),
						"threshold": cfg.FeeThreshold,
						"interval":  cfg.FeePollInterval.String(),
					}, func(w io.Writer) {
						fmt.Fprintf(w, "Fee schedule for %s: every %s, busy above %g\n",
							cfg.Network, cfg.FeePollInterval, cfg.FeeThreshold)
					})
				},
			},
			{
				Name:  "delete",
				Usage: "Delete the fee schedule for --network",
				Flags: temporalFlags(),
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					logger := setupLogger(cfg.LogLevel)

					scheduler, closeFn, err := newScheduler(cfg, logger)
					if err != nil {
						return fmt.Errorf("failed to connect to temporal: %w", err)
					}
					defer closeFn()

					if err := scheduler.DeleteFeeSchedule(c.Context, cfg.Network); err != nil {
						return err
					}
					return render(c, map[string]interface{}{
						"network": cfg.Network.String(),
						"deleted": true,
					}, func(w io.Writer) {
						fmt.Fprintf(w, "Fee schedule for %s deleted\n", cfg.Network)
					})
				},
			},
		},
	}
}
