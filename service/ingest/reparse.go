package ingest

import (
	"context"
	"time"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
)

// DefaultReparseBatchSize is used when ReparseOptions.BatchSize is unset.
const DefaultReparseBatchSize = 500

// ReparseOptions configures a re-parse run.
type ReparseOptions struct {
	BatchSize int
}

// RunReparse re-extracts every stored note and upserts the results, so
// records reflect the current extraction rules. Transactions are walked in
// key order. A stored note without decoded text is decoded again from its
// raw bytes.
func (o *Orchestrator) RunReparse(ctx context.Context, opts ReparseOptions) (*ReparseResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultReparseBatchSize
	}
	start := time.Now()
	result := &ReparseResult{Updated: make(map[extract.Kind]int)}

	var after int64
	for {
		batch, err := o.store.ListTransactionsAfter(ctx, after, opts.BatchSize)
		if err != nil {
			result.Error = err.Error()
			break
		}
		if len(batch) == 0 {
			break
		}
		if err := o.reparseBatch(ctx, batch, result); err != nil {
			result.Error = err.Error()
			break
		}
		after = batch[len(batch)-1].Key
	}

	switch {
	case result.Error != "" && result.Scanned == 0:
		result.Status = StatusFailed
	case result.Error != "" || result.Failed > 0:
		result.Status = StatusPartial
	default:
		result.Status = StatusSuccess
	}
	o.recordRun(modeReparse, result.Status, start)

	o.logger.InfoContext(ctx, "reparse completed",
		"status", result.Status,
		"scanned", result.Scanned,
		"no_match", result.NoMatch,
		"failed", result.Failed,
		"duration", time.Since(start),
	)
	return result, nil
}

// reparseBatch returns an error only for a systemic failure.
func (o *Orchestrator) reparseBatch(ctx context.Context, batch []*db.Transaction, result *ReparseResult) error {
	for _, tx := range batch {
		result.Scanned++

		text := tx.NoteDecoded
		if text == nil && len(tx.NoteRaw) > 0 {
			text = algorand.NoteText(ctx, o.logger, tx.TxID, tx.NoteRaw)
		}
		if text == nil {
			result.NoMatch++
			continue
		}

		records := o.extractor.ExtractAll(ctx, tx.TxID, *text)
		if len(records) == 0 {
			result.NoMatch++
			continue
		}

		target := extractedTarget{
			key:     tx.Key,
			txID:    tx.TxID,
			account: tx.Account,
			round:   tx.Round,
			text:    *text,
		}
		for _, rec := range records {
			if _, err := o.saveRecord(ctx, target, rec, db.Upsert); err != nil {
				if db.IsSystemic(err) {
					return err
				}
				result.Failed++
				continue
			}
			result.Updated[rec.Kind()]++
		}
	}
	return nil
}
