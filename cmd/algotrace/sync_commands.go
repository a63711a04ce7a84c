package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/algotrace/service/config"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/ingest"
	"github.com/urfave/cli/v2"
)

func publishFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "publish",
		Usage: "Publish extracted records to NATS",
	}
}

// withOrchestrator loads config, opens the store and builds an in-process
// orchestrator for the duration of fn.
func withOrchestrator(c *cli.Context, fn func(cfg *config.Config, orch *ingest.Orchestrator) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger()

	store, closeStore, err := getStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	orch, closeOrch, err := buildOrchestrator(cfg, store, c.Bool("publish"), cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer closeOrch()

	return fn(cfg, orch)
}

// errRunFailed is returned after printing a result whose status is failed.
var errRunFailed = errors.New("run failed for every account")

func syncRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one incremental sync over the tracked accounts",
		Flags: []cli.Flag{publishFlag()},
		Action: func(c *cli.Context) error {
			return withOrchestrator(c, func(_ *config.Config, orch *ingest.Orchestrator) error {
				ctx, cancel := interruptContext(c.Context)
				defer cancel()

				result, err := orch.RunIncrementalSync(ctx)
				if err != nil {
					return fmt.Errorf("failed to run sync: %w", err)
				}
				if err := printOutcomes(c, result, result.Status, result.Accounts); err != nil {
					return err
				}
				if result.Status == ingest.StatusFailed {
					return errRunFailed
				}
				return nil
			})
		},
	}
}

func syncBackfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Page through the full history of the tracked accounts",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Records per page (defaults to BACKFILL_PAGE_SIZE)",
			},
			&cli.DurationFlag{
				Name:  "pacing",
				Usage: "Pause between pages (defaults to BACKFILL_PACING)",
			},
			&cli.StringSliceFlag{
				Name:  "account",
				Usage: "Backfill only these accounts (repeatable)",
			},
			publishFlag(),
		},
		Action: func(c *cli.Context) error {
			return withOrchestrator(c, func(cfg *config.Config, orch *ingest.Orchestrator) error {
				pageSize := cfg.BackfillPageSize
				if c.IsSet("page-size") {
					pageSize = c.Int("page-size")
				}
				if pageSize < 1 || pageSize > config.MaxPageSize {
					return fmt.Errorf("page-size must be between 1 and %d", config.MaxPageSize)
				}
				pacing := cfg.BackfillPacing
				if c.IsSet("pacing") {
					pacing = c.Duration("pacing")
				}
				if pacing < 0 {
					return fmt.Errorf("pacing must not be negative")
				}

				ctx, cancel := interruptContext(c.Context)
				defer cancel()

				quiet := c.Bool("json")
				result, err := orch.RunBackfill(ctx, ingest.BackfillOptions{
					PageSize: uint64(pageSize),
					Pacing:   pacing,
					Accounts: c.StringSlice("account"),
					OnPage: func(p ingest.PageProgress) {
						if !quiet {
							fmt.Fprintf(c.App.ErrWriter, "  %s page %d: %d records\n", p.Account, p.Page, p.Records)
						}
					},
				})
				if err != nil {
					return fmt.Errorf("failed to run backfill: %w", err)
				}
				if err := printOutcomes(c, result, result.Status, result.Accounts); err != nil {
					return err
				}
				if !quiet {
					fmt.Fprintf(c.App.ErrWriter, "\nPages: %d, records: %d\n", result.PagesProcessed, result.TotalRecords)
				}
				if result.Status == ingest.StatusFailed {
					return errRunFailed
				}
				return nil
			})
		},
	}
}

func syncReparseCommand() *cli.Command {
	return &cli.Command{
		Name:  "reparse",
		Usage: "Re-extract records from every stored note",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Transactions read per batch (defaults to REPARSE_BATCH_SIZE)",
			},
			publishFlag(),
		},
		Action: func(c *cli.Context) error {
			return withOrchestrator(c, func(cfg *config.Config, orch *ingest.Orchestrator) error {
				batch := cfg.ReparseBatchSize
				if c.IsSet("batch-size") {
					batch = c.Int("batch-size")
				}
				if batch <= 0 {
					return fmt.Errorf("batch-size must be positive")
				}

				ctx, cancel := interruptContext(c.Context)
				defer cancel()

				result, err := orch.RunReparse(ctx, ingest.ReparseOptions{BatchSize: batch})
				if err != nil {
					return fmt.Errorf("failed to run reparse: %w", err)
				}

				if c.Bool("json") {
					return outputJSON(c.App.Writer, result)
				}
				out := c.App.Writer
				fmt.Fprintf(out, "Status:   %s\n", result.Status)
				fmt.Fprintf(out, "Scanned:  %d\n", result.Scanned)
				for kind, n := range result.Updated {
					fmt.Fprintf(out, "Updated:  %s=%d\n", kind, n)
				}
				fmt.Fprintf(out, "No match: %d\n", result.NoMatch)
				fmt.Fprintf(out, "Failed:   %d\n", result.Failed)
				if result.Error != "" {
					fmt.Fprintf(out, "Error:    %s\n", result.Error)
				}
				if result.Status == ingest.StatusFailed {
					return errRunFailed
				}
				return nil
			})
		},
	}
}

func syncStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the checkpoint of every account",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			cps, err := store.ListCheckpoints(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}
			if cps == nil {
				cps = []*db.Checkpoint{}
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, cps)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tLAST ROUND\tLAST SYNCED")
			for _, cp := range cps {
				round := "never"
				if cp.LastProcessedRound != nil {
					round = fmt.Sprintf("%d", *cp.LastProcessedRound)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", cp.Account, round, cp.LastSyncedAt.Format(time.RFC3339))
			}
			w.Flush()
			return nil
		},
	}
}

// printOutcomes writes a run result as JSON, or as a per-account table.
func printOutcomes(c *cli.Context, result interface{}, status ingest.Status, outcomes []ingest.AccountOutcome) error {
	if c.Bool("json") {
		return outputJSON(c.App.Writer, result)
	}

	fmt.Fprintf(c.App.Writer, "Status: %s\n\n", status)
	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tPROCESSED\tFAILED\tPAGES\tCHECKPOINT\tERROR")
	for _, o := range outcomes {
		checkpoint := "-"
		if o.CheckpointRound != nil {
			checkpoint = fmt.Sprintf("%d", *o.CheckpointRound)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
			o.Account, o.Processed, o.FailedRecords, o.Pages, checkpoint, o.Error)
	}
	return w.Flush()
}
