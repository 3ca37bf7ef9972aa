package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/blockdew/service/deploy"
	"github.com/brojonat/blockdew/service/hiro"
	"github.com/brojonat/blockdew/service/stacks"
)

func deployCommand() *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Deploy the contract with an estimated fee and print its txid",
		Description: `Fetches the account nonce, measures a sizing draft to estimate the fee,
then signs and broadcasts the final transaction once. Nothing is retried.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "contract-name",
				Usage:       "Contract name",
				EnvVars:     []string{"CONTRACT_NAME"},
				DefaultText: "blockdew",
			},
			&cli.StringFlag{
				Name:        "contract-path",
				Usage:       "Path to the Clarity source",
				EnvVars:     []string{"CONTRACT_PATH"},
				DefaultText: "contracts/blockdew.clar",
			},
			&cli.IntFlag{
				Name:  "clarity-version",
				Usage: "Clarity version of the payload (0 for the unversioned payload)",
				Value: int(stacks.ClarityVersion2),
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			// Credentials are checked before any sink or node is contacted.
			if _, _, err := deploy.ResolveAccount(cfg.Mnemonic, cfg.Network, cfg.AccountIndex, cfg.AccountCount); err != nil {
				return err
			}

			clarityVersion := c.Int("clarity-version")
			if clarityVersion < 0 || clarityVersion > int(stacks.ClarityVersion3) {
				return fmt.Errorf("unsupported clarity version %d", clarityVersion)
			}

			code, err := os.ReadFile(cfg.ContractPath)
			if err != nil {
				return fmt.Errorf("failed to read contract: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sinks := openSinks(ctx, cfg.NATSURL, cfg.DatabaseURL, nil, logger)
			defer sinks.Close()

			client := hiro.NewClient(
				cfg.APIBaseURL(cfg.Network),
				cfg.Network.String(),
				&http.Client{Timeout: cfg.HTTPTimeout},
				nil,
				logger,
			)
			orch := deploy.NewOrchestrator(client, cfg.ExplorerURL, nil, logger, sinks.deployRecorders()...)

			result, err := orch.Deploy(ctx, deploy.Request{
				Mnemonic:       cfg.Mnemonic,
				Network:        cfg.Network,
				AccountIndex:   cfg.AccountIndex,
				AccountCount:   cfg.AccountCount,
				ContractName:   cfg.ContractName,
				CodeBody:       string(code),
				ClarityVersion: stacks.ClarityVersion(clarityVersion),
			})
			if err != nil {
				return err
			}

			return render(c, result, func(w io.Writer) {
				fmt.Fprintln(w, "Deployed contract txid:", result.TxID)
				fmt.Fprintln(w, "Explorer:", result.ExplorerURL)
			})
		},
	}
}
