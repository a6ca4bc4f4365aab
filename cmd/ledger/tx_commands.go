package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/diboas/ledger/client"
)

func txCommands() *cli.Command {
	return &cli.Command{
		Name:  "tx",
		Usage: "Transaction commands",
		Subcommands: []*cli.Command{
			txCreateCommand(),
			txGetCommand(),
			txProcessCommand(),
			txCancelCommand(),
			txListCommand(),
		},
	}
}

func txCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a new transaction",
		Flags: []cli.Flag{
			serverFlag(),
			filterFlag(),
			&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Required: true, Usage: "Account ID"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Required: true, Usage: "Transaction type (ADD, SEND, WITHDRAW, BUY, SELL, INVEST, TRANSFER, START_STRATEGY, STOP_STRATEGY)"},
			&cli.StringFlag{Name: "amount", Required: true, Usage: "Amount as a decimal string"},
			&cli.StringFlag{Name: "asset", Required: true, Usage: "Asset symbol (e.g. USD, USDC, BTC)"},
			&cli.StringFlag{Name: "chain", Usage: "Chain the asset lives on (e.g. SOL, ETH, BTC)"},
			&cli.StringFlag{Name: "destination-chain", Usage: "Destination chain for cross-chain transfers"},
			&cli.StringFlag{Name: "payment-method", Usage: "Payment method (e.g. credit_card, bank_account)"},
			&cli.StringFlag{Name: "recipient", Usage: "Recipient address or handle"},
			&cli.StringFlag{Name: "strategy", Usage: "Strategy ID for strategy transactions"},
		},
		Action: func(c *cli.Context) error {
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.String("amount"), err)
			}

			txn, err := newClient(c).CreateTransaction(c.Context, client.CreateTransactionRequest{
				AccountID:        c.String("account"),
				Type:             c.String("type"),
				Amount:           amount,
				Asset:            c.String("asset"),
				Chain:            c.String("chain"),
				DestinationChain: c.String("destination-chain"),
				PaymentMethod:    c.String("payment-method"),
				Recipient:        c.String("recipient"),
				StrategyID:       c.String("strategy"),
			})
			if err != nil {
				return fmt.Errorf("failed to create transaction: %w", err)
			}
			return printJSON(os.Stdout, txn, c.String("filter"))
		},
	}
}

func txGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get a transaction by ID",
		ArgsUsage: "TRANSACTION_ID",
		Flags:     []cli.Flag{serverFlag(), filterFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction ID is required")
			}
			txn, err := newClient(c).GetTransaction(c.Context, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}
			return printJSON(os.Stdout, txn, c.String("filter"))
		},
	}
}

func txProcessCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Run a transaction through settlement",
		ArgsUsage: "TRANSACTION_ID",
		Flags:     []cli.Flag{serverFlag(), filterFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction ID is required")
			}
			result, err := newClient(c).ProcessTransaction(c.Context, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to process transaction: %w", err)
			}
			if result.Transaction != nil {
				return printJSON(os.Stdout, result.Transaction, c.String("filter"))
			}
			return printJSON(os.Stdout, map[string]string{
				"transaction_id": c.Args().Get(0),
				"run_id":         result.RunID,
				"status":         "processing",
			}, c.String("filter"))
		},
	}
}

func txCancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a non-final transaction",
		ArgsUsage: "TRANSACTION_ID",
		Flags: []cli.Flag{
			serverFlag(),
			filterFlag(),
			&cli.StringFlag{Name: "reason", Aliases: []string{"r"}, Usage: "Cancellation reason", Value: "cancelled via CLI"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction ID is required")
			}
			txn, err := newClient(c).CancelTransaction(c.Context, c.Args().Get(0), c.String("reason"))
			if err != nil {
				return fmt.Errorf("failed to cancel transaction: %w", err)
			}
			return printJSON(os.Stdout, txn, c.String("filter"))
		},
	}
}

func txListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List an account's transactions, newest first",
		Flags: []cli.Flag{
			serverFlag(),
			filterFlag(),
			&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Required: true, Usage: "Account ID"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of transactions"},
			&cli.IntFlag{Name: "offset", Usage: "Number of transactions to skip"},
		},
		Action: func(c *cli.Context) error {
			txns, err := newClient(c).ListTransactions(c.Context, c.String("account"), c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			return printJSON(os.Stdout, txns, c.String("filter"))
		},
	}
}
