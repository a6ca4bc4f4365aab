package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "ledger",
		Usage: "Transaction and balance service CLI",
		Description: `A command-line tool for operating and debugging the ledger service.

Use this CLI to create and inspect transactions, drive them through
processing, and query account balances over the HTTP API.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			txCommands(),
			balanceCommands(),
			statsCommand(),
			healthCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
