package main

import (
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/brojonat/algotrace/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the algotrace server",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Request timeout (0 waits for the run to finish)",
			},
		},
		Subcommands: []*cli.Command{
			clientSyncCommand(),
			clientBackfillCommand(),
			clientStatusCommand(),
			clientTransactionsCommand(),
			clientGetCommand(),
		},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	httpClient := &http.Client{Timeout: c.Duration("timeout")}
	return client.NewClient(c.String("server-url"), httpClient, newLogger())
}

func clientSyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Trigger an incremental sync on the server",
		Action: func(c *cli.Context) error {
			result, err := newAPIClient(c).TriggerSync(c.Context)
			var apiErr *client.APIError
			if err != nil && !(errors.As(err, &apiErr) && result != nil) {
				return fmt.Errorf("failed to trigger sync: %w", err)
			}
			if perr := printClientOutcomes(c, result, result.Status, result.Accounts); perr != nil {
				return perr
			}
			return err
		},
	}
}

func clientBackfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Trigger a historical backfill on the server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Records per page (server default when unset)",
			},
			&cli.DurationFlag{
				Name:  "pacing",
				Usage: "Pause between pages (server default when unset)",
			},
		},
		Action: func(c *cli.Context) error {
			var req client.BackfillRequest
			if c.IsSet("page-size") {
				n := c.Int("page-size")
				req.PageSize = &n
			}
			if c.IsSet("pacing") {
				ms := c.Duration("pacing").Milliseconds()
				req.PacingMs = &ms
			}

			result, err := newAPIClient(c).TriggerBackfill(c.Context, req)
			var apiErr *client.APIError
			if err != nil && !(errors.As(err, &apiErr) && result != nil) {
				return fmt.Errorf("failed to trigger backfill: %w", err)
			}
			if perr := printClientOutcomes(c, result, result.Status, result.Accounts); perr != nil {
				return perr
			}
			return err
		},
	}
}

func clientStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show per-account sync status from the server",
		Action: func(c *cli.Context) error {
			statuses, err := newAPIClient(c).SyncStatus(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get sync status: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, statuses)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tTRACKED\tLAST ROUND\tLAST SYNCED")
			for _, s := range statuses {
				round := "never"
				if s.LastProcessedRound != nil {
					round = fmt.Sprintf("%d", *s.LastProcessedRound)
				}
				synced := "never"
				if s.LastSyncedAt != nil {
					synced = s.LastSyncedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", s.Account, s.Tracked, round, synced)
			}
			return w.Flush()
		},
	}
}

func clientTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "transactions",
		Usage:   "List transactions through the server API",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Filter by tracked account",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   50,
				Usage:   "Limit number of transactions",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many transactions",
			},
		},
		Action: func(c *cli.Context) error {
			list, err := newAPIClient(c).ListTransactions(c.Context, c.String("account"), c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			return outputJSON(c.App.Writer, list)
		},
	}
}

func clientGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a transaction and its records through the server API",
		ArgsUsage: "<tx_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction ID")
			}
			detail, err := newAPIClient(c).GetTransaction(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}
			return outputJSON(c.App.Writer, detail)
		},
	}
}

func printClientOutcomes(c *cli.Context, result interface{}, status string, outcomes []client.AccountOutcome) error {
	if c.Bool("json") {
		return outputJSON(c.App.Writer, result)
	}

	fmt.Fprintf(c.App.Writer, "Status: %s\n\n", status)
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tPROCESSED\tFAILED\tPAGES\tERROR")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", o.Account, o.Processed, o.FailedRecords, o.Pages, o.Error)
	}
	return w.Flush()
}
