package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/algotrace/service/ingest"
	"github.com/brojonat/algotrace/service/temporal"
	"github.com/urfave/cli/v2"
)

func scheduleSyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule-sync",
		Usage: "Create or update the incremental sync schedule",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "How often the incremental sync runs",
				EnvVars: []string{"SYNC_INTERVAL"},
				Value:   5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			interval := c.Duration("interval")
			if interval < 10*time.Second {
				return fmt.Errorf("interval must be at least 10s, got %s", interval)
			}

			tc, err := getTemporalClient(c, newLogger())
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.UpsertSyncSchedule(c.Context, interval); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule %s runs every %s\n", temporal.SyncScheduleID, interval)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:    "describe-schedule",
		Usage:   "Describe the incremental sync schedule",
		Aliases: []string{"desc"},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c, newLogger())
			if err != nil {
				return err
			}
			defer tc.Close()

			info, err := tc.DescribeSyncSchedule(c.Context)
			if errors.Is(err, temporal.ErrScheduleNotFound) {
				return fmt.Errorf("schedule %s does not exist (create it with: algotrace temporal schedule-sync)", temporal.SyncScheduleID)
			}
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, info)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Schedule ID:  %s\n", info.ID)
			fmt.Fprintf(out, "Interval:     %s\n", info.Interval)
			fmt.Fprintf(out, "Paused:       %v\n", info.Paused)
			fmt.Fprintf(out, "Actions:      %d\n", info.NumActions)
			if info.LastActionTime != nil {
				fmt.Fprintf(out, "Last Action:  %s\n", info.LastActionTime.Format(time.RFC3339))
			} else {
				fmt.Fprintf(out, "Last Action:  never\n")
			}
			for i, t := range info.NextActionTimes {
				fmt.Fprintf(out, "Next %d:       %s\n", i+1, t.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-schedule",
		Usage: "Delete the incremental sync schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("force") {
				fmt.Fprintf(c.App.Writer, "Are you sure you want to delete schedule %s? (y/N): ", temporal.SyncScheduleID)
				var response string
				fmt.Fscanln(c.App.Reader, &response)
				if response != "y" && response != "Y" {
					fmt.Fprintln(c.App.Writer, "Cancelled")
					return nil
				}
			}

			tc, err := getTemporalClient(c, newLogger())
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteSyncSchedule(c.Context); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule %s deleted\n", temporal.SyncScheduleID)
			return nil
		},
	}
}

func triggerCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "Start a workflow on demand and wait for its result",
		Subcommands: []*cli.Command{
			{
				Name:  "incremental",
				Usage: "Run IncrementalSyncWorkflow",
				Action: func(c *cli.Context) error {
					return withTemporal(c, func(tc *temporal.Client) error {
						result, err := tc.RunIncrementalSync(c.Context)
						if err != nil {
							return err
						}
						return printOutcomes(c, result, result.Status, result.Accounts)
					})
				},
			},
			{
				Name:  "backfill",
				Usage: "Run BackfillWorkflow",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Records per page",
						Value: 100,
					},
					&cli.DurationFlag{
						Name:  "pacing",
						Usage: "Pause between pages",
						Value: time.Second,
					},
					&cli.StringSliceFlag{
						Name:  "account",
						Usage: "Backfill only these accounts (repeatable)",
					},
				},
				Action: func(c *cli.Context) error {
					if c.Int("page-size") < 1 || c.Int("page-size") > 1000 {
						return fmt.Errorf("page-size must be between 1 and 1000")
					}
					return withTemporal(c, func(tc *temporal.Client) error {
						result, err := tc.RunBackfill(c.Context, ingest.BackfillOptions{
							PageSize: uint64(c.Int("page-size")),
							Pacing:   c.Duration("pacing"),
							Accounts: c.StringSlice("account"),
						})
						if err != nil {
							return err
						}
						return printOutcomes(c, result, result.Status, result.Accounts)
					})
				},
			},
			{
				Name:  "reparse",
				Usage: "Run ReparseWorkflow",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Transactions read per batch",
						Value: ingest.DefaultReparseBatchSize,
					},
				},
				Action: func(c *cli.Context) error {
					return withTemporal(c, func(tc *temporal.Client) error {
						result, err := tc.RunReparse(c.Context, ingest.ReparseOptions{BatchSize: c.Int("batch-size")})
						if err != nil {
							return err
						}
						return outputJSON(c.App.Writer, result)
					})
				},
			},
		},
	}
}

func withTemporal(c *cli.Context, fn func(tc *temporal.Client) error) error {
	tc, err := getTemporalClient(c, newLogger())
	if err != nil {
		return err
	}
	defer tc.Close()
	return fn(tc)
}
