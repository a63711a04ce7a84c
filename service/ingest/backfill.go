package ingest

import (
	"context"
	"time"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/db"
)

// PageProgress is reported after each backfill page.
type PageProgress struct {
	Account string
	Page    int
	Records int
}

// BackfillOptions configures a historical backfill.
type BackfillOptions struct {
	// PageSize defaults to algorand.DefaultPageSize.
	PageSize uint64
	// Pacing is slept between consecutive pages of the same account.
	Pacing time.Duration
	// Accounts overrides the tracked accounts when non-empty.
	Accounts []string
	// OnPage is called after every processed page.
	OnPage func(PageProgress)
}

// RunBackfill pages through the full history of every account. Each
// account's checkpoint is set to the highest round seen during the run.
//
// The pacing sleep is not interrupted by ctx. A restarted backfill resumes
// through idempotent writes.
func (o *Orchestrator) RunBackfill(ctx context.Context, opts BackfillOptions) (*BackfillResult, error) {
	accounts := opts.Accounts
	if len(accounts) == 0 {
		accounts = o.opts.Accounts
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if opts.PageSize == 0 {
		opts.PageSize = algorand.DefaultPageSize
	}
	start := time.Now()

	o.logger.InfoContext(ctx, "starting backfill",
		"accounts", len(accounts),
		"page_size", opts.PageSize,
		"pacing", opts.Pacing,
	)

	var t tally
	for i, account := range accounts {
		out, err := o.backfillAccount(ctx, account, opts)
		if err != nil {
			out.Error = err.Error()
			o.logger.ErrorContext(ctx, "backfill failed for account",
				"account", account,
				"pages", out.Pages,
				"error", err,
			)
		}
		t.add(out)

		if db.IsSystemic(err) {
			for _, rest := range accounts[i+1:] {
				t.add(AccountOutcome{Account: rest, Error: err.Error()})
			}
			break
		}
	}

	records, failedRecords, pages := t.processed()
	result := &BackfillResult{
		Status:            t.status(),
		TotalRecords:      records,
		PagesProcessed:    pages,
		AccountsProcessed: len(t.outcomes) - t.failed,
		FailedRecords:     failedRecords,
		Accounts:          t.outcomes,
		PerAccountErrors:  t.errs,
	}
	o.recordRun(modeBackfill, result.Status, start)

	o.logger.InfoContext(ctx, "backfill completed",
		"status", result.Status,
		"records", result.TotalRecords,
		"pages", result.PagesProcessed,
		"accounts", result.AccountsProcessed,
		"duration", time.Since(start),
	)
	return result, nil
}

func (o *Orchestrator) backfillAccount(ctx context.Context, account string, opts BackfillOptions) (AccountOutcome, error) {
	out := AccountOutcome{Account: account}

	var (
		cursor   string
		maxRound *uint64
	)
	for {
		page, err := o.ledger.FetchPage(ctx, account, algorand.PageRequest{Cursor: cursor, Limit: opts.PageSize})
		if err != nil {
			return out, err
		}
		out.Pages++
		if o.metrics != nil {
			o.metrics.RecordTransactionsFetched(account, modeBackfill, len(page.Transactions))
			o.metrics.RecordBackfillPage(account)
		}

		for _, txn := range page.Transactions {
			if err := o.processRecord(ctx, account, txn); err != nil {
				if db.IsSystemic(err) {
					return out, err
				}
				out.FailedRecords++
				o.logger.WarnContext(ctx, "failed to store transaction",
					"account", account,
					"tx_id", txn.ID,
					"error", err,
				)
				continue
			}
			out.Processed++
		}

		if r, ok := page.MaxRound(); ok && (maxRound == nil || r > *maxRound) {
			maxRound = &r
		}

		o.logger.DebugContext(ctx, "backfill page processed",
			"account", account,
			"page", out.Pages,
			"records", len(page.Transactions),
		)
		if opts.OnPage != nil {
			opts.OnPage(PageProgress{Account: account, Page: out.Pages, Records: len(page.Transactions)})
		}

		if !page.HasMore() {
			break
		}
		cursor = page.NextCursor
		if opts.Pacing > 0 {
			o.opts.Sleep(opts.Pacing)
		}
	}

	var err error
	out.CheckpointRound, err = o.advance(ctx, account, maxRound)
	if err != nil {
		return out, err
	}
	return out, nil
}
