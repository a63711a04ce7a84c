package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/algotrace/service/db"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "print",
				Usage: "Print the schema DDL instead of applying it",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("print") {
				fmt.Fprint(c.App.Writer, db.Schema())
				return nil
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(c.Context); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			fmt.Fprintln(c.App.ErrWriter, "Schema applied")
			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List stored transactions",
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
				Usage:   "Limit number of transactions",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many transactions",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq expression each transaction must satisfy (repeatable, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Int("limit") <= 0 {
				return fmt.Errorf("limit must be positive")
			}
			if c.Int("offset") < 0 {
				return fmt.Errorf("offset must not be negative")
			}
			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txs, err := store.ListTransactions(c.Context, c.String("account"), c.Int("limit"), c.Int("offset"))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			matched := make([]*db.Transaction, 0, len(txs))
			for _, tx := range txs {
				ok, err := matchesAll(filters, tx)
				if err != nil {
					return err
				}
				if ok {
					matched = append(matched, tx)
				}
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, matched)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TX ID\tACCOUNT\tROUND\tTIME\tTYPE\tNOTE")
			for _, tx := range matched {
				note := "(none)"
				if tx.NoteDecoded != nil {
					note = truncate(*tx.NoteDecoded, 40)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					tx.TxID,
					tx.Account,
					tx.Round,
					tx.RoundTime.Format(time.RFC3339),
					tx.TxType,
					note,
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d transactions\n", len(matched))
			return nil
		},
	}
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-transaction",
		Usage:     "Show a transaction and its parsed records",
		Aliases:   []string{"get"},
		ArgsUsage: "<tx_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction ID")
			}
			txID := c.Args().First()

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			tx, err := store.GetTransactionByTxID(c.Context, txID)
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}
			if tx == nil {
				return fmt.Errorf("transaction %s not found", txID)
			}

			records, err := store.ListExtractedRecords(c.Context, tx.Key)
			if err != nil {
				return fmt.Errorf("failed to list extracted records: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, struct {
					*db.Transaction
					Records []recordJSON `json:"records"`
				}{tx, recordsJSON(records)})
			}

			out := c.App.Writer
			fmt.Fprintf(out, "TX ID:      %s\n", tx.TxID)
			fmt.Fprintf(out, "Account:    %s\n", tx.Account)
			fmt.Fprintf(out, "Round:      %d\n", tx.Round)
			fmt.Fprintf(out, "Round Time: %s\n", tx.RoundTime.Format(time.RFC3339))
			fmt.Fprintf(out, "Sender:     %s\n", tx.Sender)
			fmt.Fprintf(out, "Receiver:   %s\n", formatOptional(tx.Receiver))
			fmt.Fprintf(out, "Type:       %s\n", tx.TxType)
			fmt.Fprintf(out, "Fee:        %d microAlgos\n", tx.Fee)
			fmt.Fprintf(out, "Note:       %s\n", formatOptional(tx.NoteDecoded))
			fmt.Fprintf(out, "\nRecords: %d\n", len(records))
			for _, rec := range records {
				fmt.Fprintf(out, "  - %s (%d fields)\n", rec.Kind(), rec.FieldCount())
			}
			return nil
		},
	}
}

func checkDuplicatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-duplicates",
		Usage: "Report duplicate transaction IDs and extracted records",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			dups, err := store.ListDuplicateTxIDs(c.Context)
			if err != nil {
				return fmt.Errorf("failed to check duplicates: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, dups)
			}

			if len(dups) == 0 {
				fmt.Fprintln(c.App.Writer, "No duplicates found")
				return nil
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tKEY\tCOUNT")
			for _, d := range dups {
				fmt.Fprintf(w, "%s\t%s\t%d\n", d.Table, d.Key, d.Count)
			}
			w.Flush()
			return nil
		},
	}
}

func discoverAccountsCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover-accounts",
		Usage: "List counterparties seen in stored transactions",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of accounts",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			accts, err := store.DiscoverAccounts(c.Context, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to discover accounts: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, accts)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tSENT\tRECEIVED\tFIRST SEEN\tLAST SEEN")
			for _, a := range accts {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
					a.Address,
					a.AsSender,
					a.AsReceiver,
					a.FirstSeen.Format(time.RFC3339),
					a.LastSeen.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d accounts\n", len(accts))
			return nil
		},
	}
}

// truncate flattens s to one line and shortens it to n runes.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
