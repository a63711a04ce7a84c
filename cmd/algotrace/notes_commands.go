package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/extract"
	"github.com/urfave/cli/v2"
)

func parseNoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Extract records from a note and print them as JSON",
		ArgsUsage: "[file]",
		Description: `Reads a note from the given file, or from stdin when no file is given,
and prints one JSON object per matching record kind.

Example:
  algotrace notes parse note.txt
  algotrace notes parse --base64 < encoded.txt`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Only run this kind (roasting, processing, harvest)",
			},
			&cli.BoolFlag{
				Name:  "base64",
				Usage: "Input is the base64 note field as served by the indexer",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("accepts at most one argument: note file")
			}

			var in io.Reader = c.App.Reader
			if c.NArg() == 1 {
				f, err := os.Open(c.Args().First())
				if err != nil {
					return fmt.Errorf("failed to open note file: %w", err)
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read note: %w", err)
			}

			text := string(data)
			if c.Bool("base64") {
				decoded := algorand.DecodeNoteBase64(strings.TrimSpace(text))
				if decoded == nil {
					return fmt.Errorf("note is not base64 encoded UTF-8 text")
				}
				text = *decoded
			}

			extractor := extract.NewExtractor(nil, newLogger())
			var records []extract.Record
			if kind := c.String("kind"); kind != "" {
				rec, err := extractor.Extract(extract.Kind(kind), text)
				if err != nil {
					return err
				}
				if rec != nil {
					records = append(records, rec)
				}
			} else {
				records = extractor.ExtractAll(c.Context, "cli", text)
			}

			return outputJSON(c.App.Writer, recordsJSON(records))
		},
	}
}

func analyzeNotesCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Count which labels appear across stored notes",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Analyze at most this many stored notes",
				Value:   1000,
			},
		},
		Action: func(c *cli.Context) error {
			if c.Int("limit") <= 0 {
				return fmt.Errorf("limit must be positive")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			notes, err := store.ListNotes(c.Context, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list notes: %w", err)
			}

			report := extract.AnalyzeLabels(notes)
			if c.Bool("json") {
				return outputJSON(c.App.Writer, report)
			}
			printLabelReport(c.App.Writer, report)
			return nil
		},
	}
}

func printLabelReport(out io.Writer, report extract.LabelReport) {
	fmt.Fprintf(out, "Notes analyzed: %d\n\n", report.Notes)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tNOTES\tSHARE")
	for _, l := range report.Labels {
		share := 0.0
		if report.Notes > 0 {
			share = 100 * float64(l.Count) / float64(report.Notes)
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", l.Label, l.Count, share)
	}
	w.Flush()

	if len(report.FieldNames) > 0 {
		fmt.Fprintf(out, "\nField names:\n")
		for _, n := range report.FieldNames {
			fmt.Fprintf(out, "  %s\n", n)
		}
	}
}
