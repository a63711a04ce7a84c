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
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "algotrace",
		Usage: "Algorand supply-chain note ingestion CLI",
		Description: `A command-line tool for operating and debugging the algotrace service.

Use this CLI to inspect stored transactions, run syncs in-process, parse notes,
manage the Temporal sync schedule, and watch extracted records on NATS.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					listTransactionsCommand(),
					getTransactionCommand(),
					checkDuplicatesCommand(),
					discoverAccountsCommand(),
				},
			},
			// In-process ingestion commands
			{
				Name:  "sync",
				Usage: "Run ingestion in-process against the configured ledger",
				Subcommands: []*cli.Command{
					syncRunCommand(),
					syncBackfillCommand(),
					syncReparseCommand(),
					syncStatusCommand(),
				},
			},
			// Note parsing commands
			{
				Name:  "notes",
				Usage: "Note parsing and analysis commands",
				Subcommands: []*cli.Command{
					parseNoteCommand(),
					analyzeNotesCommand(),
				},
			},
			// Temporal inspection and management commands
			{
				Name:  "temporal",
				Usage: "Temporal schedule and workflow commands",
				Subcommands: []*cli.Command{
					scheduleSyncCommand(),
					describeScheduleCommand(),
					deleteScheduleCommand(),
					triggerCommand(),
				},
			},
			// NATS record streaming commands
			{
				Name:  "nats",
				Usage: "NATS record streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			// Client commands (HTTP API)
			clientCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for API and health checks",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
