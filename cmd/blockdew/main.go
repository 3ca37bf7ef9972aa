package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/blockdew/service/config"
	"github.com/brojonat/blockdew/service/stacks"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "blockdew",
		Usage: "Deploy Clarity contracts to Stacks and watch network fees",
		Description: `Derives a Stacks account from MNEMONIC, deploys the blockdew contract with a
size-based fee estimate, and serves a live transfer-fee dashboard.

Every flag can also be set through the environment variable shown next to it.
MNEMONIC is only read from the environment (or a .env file).`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			addressCommand(),
			deployCommand(),
			feesCommand(),
			serveCommand(),
			workerCommand(),
			scheduleCommands(),
			watchCommand(),
			historyCommands(),
			migrateCommands(),
		},
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "network",
			Aliases:     []string{"n"},
			Usage:       "Stacks network (mainnet or testnet)",
			EnvVars:     []string{"STACKS_NETWORK"},
			DefaultText: "testnet",
		},
		&cli.IntFlag{
			Name:        "account-index",
			Usage:       "Index of the derived account to use",
			EnvVars:     []string{"ACCOUNT_INDEX"},
			DefaultText: "0",
		},
		&cli.IntFlag{
			Name:        "account-count",
			Usage:       "Number of accounts to derive from the mnemonic",
			EnvVars:     []string{"ACCOUNT_COUNT"},
			DefaultText: "1",
		},
		&cli.StringFlag{
			Name:        "api-url",
			Usage:       "Override the Stacks API base URL for the selected network",
			EnvVars:     []string{"STACKS_API_URL"},
			DefaultText: "Hiro public API",
		},
		&cli.StringFlag{
			Name:        "explorer-url",
			Usage:       "Explorer used for transaction links",
			EnvVars:     []string{"EXPLORER_URL"},
			DefaultText: stacks.DefaultExplorerURL,
		},
		&cli.DurationFlag{
			Name:        "http-timeout",
			Usage:       "Timeout for each Stacks API request",
			EnvVars:     []string{"HTTP_TIMEOUT"},
			DefaultText: "30s",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			EnvVars:     []string{"LOG_LEVEL"},
			DefaultText: "info",
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL; events are published when set",
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Postgres URL; history is recorded when set",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "Filter JSON output through a jq expression (strings are printed raw)",
		},
	}
}

// loadConfig reads the environment and applies explicitly set flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if c.IsSet("network") {
		network, err := stacks.ParseNetwork(c.String("network"))
		if err != nil {
			return nil, err
		}
		cfg.Network = network
	}
	if c.IsSet("account-index") {
		cfg.AccountIndex = c.Int("account-index")
	}
	if c.IsSet("account-count") {
		cfg.AccountCount = c.Int("account-count")
	}
	if c.IsSet("api-url") {
		cfg.StacksAPIURL = strings.TrimRight(c.String("api-url"), "/")
	}
	if c.IsSet("explorer-url") {
		cfg.ExplorerURL = c.String("explorer-url")
	}
	if c.IsSet("http-timeout") {
		cfg.HTTPTimeout = c.Duration("http-timeout")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("nats-url") {
		cfg.NATSURL = c.String("nats-url")
	}
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	// command-specific flags
	if c.IsSet("contract-name") {
		cfg.ContractName = c.String("contract-name")
	}
	if c.IsSet("contract-path") {
		cfg.ContractPath = c.String("contract-path")
	}
	if c.IsSet("server-addr") {
		cfg.ServerAddr = c.String("server-addr")
	}
	if c.IsSet("fee-threshold") {
		cfg.FeeThreshold = c.Float64("fee-threshold")
	}
	if c.IsSet("fee-poll-interval") {
		cfg.FeePollInterval = c.Duration("fee-poll-interval")
	}
	if c.IsSet("temporal-host") {
		cfg.TemporalHost = c.String("temporal-host")
	}
	if c.IsSet("temporal-namespace") {
		cfg.TemporalNamespace = c.String("temporal-namespace")
	}
	if c.IsSet("temporal-task-queue") {
		cfg.TemporalTaskQueue = c.String("temporal-task-queue")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
