package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/blockdew/service/db"
	"github.com/brojonat/blockdew/service/history"
)

var errNoDatabase = errors.New("DATABASE_URL is required")

func historyCommands() *cli.Command {
	listFlags := []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum rows to return",
			Value: 20,
		},
		&cli.BoolFlag{
			Name:  "all-networks",
			Usage: "Include both networks instead of only the selected one",
		},
	}

	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded deployments and fee snapshots",
		Subcommands: []*cli.Command{
			{
				Name:  "deployments",
				Usage: "List recorded deployments, newest first",
				Flags: listFlags,
				Action: func(c *cli.Context) error {
					store, params, closeStore, err := historyStore(c)
					if err != nil {
						return err
					}
					defer closeStore()

					deployments, err := store.ListDeployments(c.Context, params)
					if err != nil {
						return fmt.Errorf("failed to list deployments: %w", err)
					}

					return render(c, deployments, func(w io.Writer) {
						tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
						fmt.Fprintln(tw, "DEPLOYED\tNETWORK\tCONTRACT\tFEE\tTXID")
						for _, d := range deployments {
							fmt.Fprintf(tw, "%s\t%s\t%s.%s\t%d\t%s\n",
								d.DeployedAt.Format(time.RFC3339), d.Network, d.Address, d.ContractName, d.Fee, d.TxID)
						}
						tw.Flush()
					})
				},
			},
			{
				Name:  "fees",
				Usage: "List recorded fee snapshots, newest first",
				Flags: listFlags,
				Action: func(c *cli.Context) error {
					store, params, closeStore, err := historyStore(c)
					if err != nil {
						return err
					}
					defer closeStore()

					snapshots, err := store.ListFeeSnapshots(c.Context, params)
					if err != nil {
						return fmt.Errorf("failed to list fee snapshots: %w", err)
					}

					return render(c, snapshots, func(w io.Writer) {
						tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
						fmt.Fprintln(tw, "FETCHED\tNETWORK\tRATE\tSTATUS\tERROR")
						for _, s := range snapshots {
							rate, status, msg := "-", "-", ""
							if s.Rate != nil {
								rate = fmt.Sprintf("%v", *s.Rate)
							}
							if s.Status != nil {
								status = *s.Status
							}
							if s.Error != nil {
								msg = *s.Error
							}
							fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
								s.FetchedAt.Format(time.RFC3339), s.Network, rate, status, msg)
						}
						tw.Flush()
					})
				},
			},
		},
	}
}

func historyStore(c *cli.Context) (*db.Store, history.ListParams, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, history.ListParams{}, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, history.ListParams{}, nil, errNoDatabase
	}

	limit := c.Int("limit")
	if limit < 1 || limit > 1000 {
		return nil, history.ListParams{}, nil, fmt.Errorf("limit must be between 1 and 1000, got %d", limit)
	}
	params := history.ListParams{Limit: int32(limit)}
	if !c.Bool("all-networks") {
		params.Network = cfg.Network.String()
	}

	store, pool, err := openStore(c.Context, cfg.DatabaseURL, nil)
	if err != nil {
		return nil, history.ListParams{}, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store, params, pool.Close, nil
}

func migrateCommands() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the history database schema",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(c *cli.Context) error {
					dbURL, err := databaseURL(c)
					if err != nil {
						return err
					}
					if err := db.Migrate(dbURL); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "Migrations applied")
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "Roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of migrations to roll back",
						Value: 1,
					},
				},
				Action: func(c *cli.Context) error {
					dbURL, err := databaseURL(c)
					if err != nil {
						return err
					}
					steps := c.Int("steps")
					if steps < 1 {
						return fmt.Errorf("steps must be positive, got %d", steps)
					}
					if err := db.MigrateDown(dbURL, steps); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Rolled back %d migration(s)\n", steps)
					return nil
				},
			},
		},
	}
}

// databaseURL avoids loadConfig so a migration never depends on unrelated
// settings being valid.
func databaseURL(c *cli.Context) (string, error) {
	if u := c.String("database-url"); u != "" {
		return u, nil
	}
	return "", errNoDatabase
}
