package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func balanceCommands() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Balance commands",
		Subcommands: []*cli.Command{
			balanceInitCommand(),
			balanceGetCommand(),
			balanceTransferCommand(),
			balanceLockCommand(),
			balanceReleaseCommand(),
		},
	}
}

func balanceInitCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Initialize an account's balance aggregate",
		ArgsUsage: "ACCOUNT_ID",
		Flags:     []cli.Flag{serverFlag(), filterFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account ID is required")
			}
			balance, err := newClient(c).InitializeBalance(c.Context, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to initialize balance: %w", err)
			}
			return printJSON(os.Stdout, balance, c.String("filter"))
		},
	}
}

func balanceGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get an account's balance",
		ArgsUsage: "ACCOUNT_ID",
		Flags:     []cli.Flag{serverFlag(), filterFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account ID is required")
			}
			balance, err := newClient(c).GetBalance(c.Context, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get balance: %w", err)
			}
			return printJSON(os.Stdout, balance, c.String("filter"))
		},
	}
}

func balanceTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Convert between assets within an account",
		ArgsUsage: "ACCOUNT_ID",
		Flags: []cli.Flag{
			serverFlag(),
			filterFlag(),
			&cli.StringFlag{Name: "from", Required: true, Usage: "Source asset"},
			&cli.StringFlag{Name: "to", Required: true, Usage: "Target asset"},
			&cli.StringFlag{Name: "amount", Required: true, Usage: "Amount of the source asset"},
			&cli.StringFlag{Name: "chain", Usage: "Chain for the target holding"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account ID is required")
			}
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.String("amount"), err)
			}
			result, err := newClient(c).Transfer(c.Context, c.Args().Get(0), c.String("from"), c.String("to"), amount, c.String("chain"))
			if err != nil {
				return fmt.Errorf("failed to transfer: %w", err)
			}
			return printJSON(os.Stdout, result, c.String("filter"))
		},
	}
}

func balanceLockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "Lock spendable funds into a yield strategy",
		ArgsUsage: "ACCOUNT_ID",
		Flags: []cli.Flag{
			serverFlag(),
			filterFlag(),
			&cli.StringFlag{Name: "strategy", Required: true, Usage: "Strategy ID"},
			&cli.StringFlag{Name: "amount", Required: true, Usage: "USD amount to lock"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account ID is required")
			}
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.String("amount"), err)
			}
			balance, err := newClient(c).LockStrategyFunds(c.Context, c.Args().Get(0), c.String("strategy"), amount)
			if err != nil {
				return fmt.Errorf("failed to lock funds: %w", err)
			}
			return printJSON(os.Stdout, balance, c.String("filter"))
		},
	}
}

func balanceReleaseCommand() *cli.Command {
	return &cli.Command{
		Name:      "release",
		Usage:     "Release strategy funds back to spendable",
		ArgsUsage: "ACCOUNT_ID",
		Flags: []cli.Flag{
			serverFlag(),
			filterFlag(),
			&cli.StringFlag{Name: "strategy", Required: true, Usage: "Strategy ID"},
			&cli.StringFlag{Name: "amount", Required: true, Usage: "USD amount to release"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account ID is required")
			}
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.String("amount"), err)
			}
			balance, err := newClient(c).ReleaseStrategyFunds(c.Context, c.Args().Get(0), c.String("strategy"), amount)
			if err != nil {
				return fmt.Errorf("failed to release funds: %w", err)
			}
			return printJSON(os.Stdout, balance, c.String("filter"))
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show aggregate transaction statistics for an account",
		ArgsUsage: "ACCOUNT_ID",
		Flags:     []cli.Flag{serverFlag(), filterFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account ID is required")
			}
			stats, err := newClient(c).GetStatistics(c.Context, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get statistics: %w", err)
			}
			return printJSON(os.Stdout, stats, c.String("filter"))
		},
	}
}
