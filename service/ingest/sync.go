package ingest

import (
	"context"
	"time"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/db"
)

// RunIncrementalSync fetches one page of new transactions per tracked
// account, starting after each account's checkpoint.
//
// Operational failures are reported in the result. An error is returned only
// when no accounts are configured.
func (o *Orchestrator) RunIncrementalSync(ctx context.Context) (*SyncResult, error) {
	if len(o.opts.Accounts) == 0 {
		return nil, ErrNoAccounts
	}
	start := time.Now()

	var t tally
	for i, account := range o.opts.Accounts {
		out, err := o.syncAccount(ctx, account)
		if err != nil {
			out.Error = err.Error()
			o.logger.ErrorContext(ctx, "incremental sync failed for account",
				"account", account,
				"error", err,
			)
		}
		t.add(out)

		if db.IsSystemic(err) {
			for _, rest := range o.opts.Accounts[i+1:] {
				t.add(AccountOutcome{Account: rest, Error: err.Error()})
			}
			break
		}
	}

	records, failedRecords, _ := t.processed()
	result := &SyncResult{
		Status:           t.status(),
		ProcessedCount:   records,
		FailedRecords:    failedRecords,
		Accounts:         t.outcomes,
		PerAccountErrors: t.errs,
	}
	o.recordRun(modeIncremental, result.Status, start)

	o.logger.InfoContext(ctx, "incremental sync completed",
		"status", result.Status,
		"processed", result.ProcessedCount,
		"failed_records", result.FailedRecords,
		"failed_accounts", len(result.PerAccountErrors),
		"duration", time.Since(start),
	)
	return result, nil
}

// syncAccount processes one page for account. The returned error aborts the
// account; per-record failures are counted in the outcome instead.
func (o *Orchestrator) syncAccount(ctx context.Context, account string) (AccountOutcome, error) {
	out := AccountOutcome{Account: account}

	cp, err := o.store.GetCheckpoint(ctx, account)
	if err != nil {
		return out, err
	}

	req := algorand.PageRequest{Limit: o.opts.PageSize}
	if cp != nil && cp.LastProcessedRound != nil {
		next := uint64(*cp.LastProcessedRound) + 1
		req.MinRound = &next
	}

	page, err := o.ledger.FetchPage(ctx, account, req)
	if err != nil {
		return out, err
	}
	out.Pages = 1
	if o.metrics != nil {
		o.metrics.RecordTransactionsFetched(account, modeIncremental, len(page.Transactions))
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

	var maxRound *uint64
	if r, ok := page.MaxRound(); ok {
		maxRound = &r
	}
	out.CheckpointRound, err = o.advance(ctx, account, maxRound)
	if err != nil {
		return out, err
	}
	return out, nil
}
