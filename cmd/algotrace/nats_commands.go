package main

import (
	"fmt"
	"time"

	"github.com/brojonat/algotrace/service/extract"
	natspkg "github.com/brojonat/algotrace/service/nats"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams extracted record events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to extracted record events",
		Description: `Subscribe to record events published to NATS JetStream.

Events are published to the subject records.{kind}. Without --kind every kind
is received.

Example:
  algotrace nats subscribe --kind roasting --json
  algotrace nats subscribe --jq '.fields.zone1_species == "Arabica"'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Only receive this kind (roasting, processing, harvest)",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "algotrace-cli",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq expression each event must satisfy (repeatable, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			kind := extract.Kind(c.String("kind"))
			if kind != "" && !validKind(kind) {
				return fmt.Errorf("unknown kind %q", kind)
			}
			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}
			jsonOutput := c.Bool("json")
			logger := newLogger()

			nc, err := natspkg.Connect(c.String("nats-url"), "algotrace-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			opts := natspkg.SubscribeOptions{
				Kind:         kind,
				Durable:      c.Bool("durable"),
				ConsumerName: c.String("consumer-name"),
			}
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "📡 Subscribing to: %s\n", opts.FilterSubject())
				fmt.Fprintf(c.App.ErrWriter, "\nWaiting for records... (Ctrl-C to exit)\n\n")
			}

			ctx, cancel := interruptContext(c.Context)
			defer cancel()

			count := 0
			err = natspkg.Subscribe(ctx, js, opts, logger, func(event *natspkg.RecordEvent) error {
				ok, err := matchesAll(filters, event)
				if err != nil || !ok {
					return err
				}
				count++
				if jsonOutput {
					return outputJSON(c.App.Writer, event)
				}
				printEvent(c, count, event)
				return nil
			})
			if err != nil {
				return err
			}

			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\n✅ Received %d records\n", count)
			}
			return nil
		},
	}
}

func printEvent(c *cli.Context, n int, event *natspkg.RecordEvent) {
	out := c.App.Writer
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Record #%d (%s)\n", n, event.Kind)
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "TX ID:      %s\n", event.TxID)
	fmt.Fprintf(out, "Account:    %s\n", event.Account)
	fmt.Fprintf(out, "Round:      %d\n", event.Round)
	fmt.Fprintf(out, "Mode:       %s\n", event.Mode)
	fmt.Fprintf(out, "Fields:     %s\n", string(event.Fields))
	fmt.Fprintf(out, "Published:  %s\n\n", event.PublishedAt.Format(time.RFC3339))
}

func validKind(kind extract.Kind) bool {
	for _, k := range extract.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
