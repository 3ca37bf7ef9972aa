package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/blockdew/service/deploy"
	"github.com/brojonat/blockdew/service/stacks"
)

type addressOutput struct {
	Network        string `json:"network"`
	AccountIndex   int    `json:"account_index"`
	Address        string `json:"address"`
	DerivationPath string `json:"derivation_path"`
}

func addressCommand() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Print the STX address derived from MNEMONIC",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			_, address, err := deploy.ResolveAccount(cfg.Mnemonic, cfg.Network, cfg.AccountIndex, cfg.AccountCount)
			if err != nil {
				return err
			}

			out := addressOutput{
				Network:        cfg.Network.String(),
				AccountIndex:   cfg.AccountIndex,
				Address:        address,
				DerivationPath: stacks.DerivationPath(uint32(cfg.AccountIndex)),
			}
			return render(c, out, func(w io.Writer) {
				fmt.Fprintln(w, "Network:", out.Network)
				fmt.Fprintln(w, "Account index:", out.AccountIndex)
				fmt.Fprintln(w, "Derived STX address:", out.Address)
			})
		},
	}
}
