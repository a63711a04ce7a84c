package ingest

import (
	"context"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
	natspkg "github.com/brojonat/algotrace/service/nats"
)

const (
	modeIncremental = "incremental"
	modeBackfill    = "backfill"
	modeReparse     = "reparse"
)

// processRecord decodes, stores and extracts one ledger transaction.
// A returned error is always a *db.PersistenceError; the caller decides
// whether it is per-record or systemic.
func (o *Orchestrator) processRecord(ctx context.Context, account string, txn *algorand.Transaction) error {
	text := algorand.NoteText(ctx, o.logger, txn.ID, txn.Note)
	if o.metrics != nil {
		o.metrics.RecordNoteDecoded(noteStatus(txn.Note, text))
	}

	key, err := o.store.SaveTransaction(ctx, toSaveParams(account, txn, text))
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordRecordFailure(account, "transaction")
		}
		return err
	}
	if o.metrics != nil {
		o.metrics.RecordTransactionStored(account)
	}

	if text == nil {
		return nil
	}
	return o.storeExtracted(ctx, extractedTarget{
		key:     key,
		txID:    txn.ID,
		account: account,
		round:   int64(txn.Round),
		text:    *text,
	}, db.InsertIfAbsent)
}

// extractedTarget identifies the stored transaction records are extracted from.
type extractedTarget struct {
	key     int64
	txID    string
	account string
	round   int64
	text    string
}

// storeExtracted extracts every kind from the target's text and saves each
// record with mode. A systemic failure stops immediately; otherwise the
// remaining kinds are still attempted and the first failure is returned.
func (o *Orchestrator) storeExtracted(ctx context.Context, t extractedTarget, mode db.WriteMode) error {
	var firstErr error
	for _, rec := range o.extractor.ExtractAll(ctx, t.txID, t.text) {
		if _, err := o.saveRecord(ctx, t, rec, mode); err != nil {
			if db.IsSystemic(err) {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (o *Orchestrator) saveRecord(ctx context.Context, t extractedTarget, rec extract.Record, mode db.WriteMode) (bool, error) {
	written, err := o.store.SaveExtracted(ctx, db.SaveExtractedParams{
		TransactionKey: t.key,
		TxID:           t.txID,
		Record:         rec,
		RawText:        t.text,
	}, mode)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to save extracted record",
			"tx_id", t.txID,
			"kind", rec.Kind(),
			"error", err,
		)
		if o.metrics != nil {
			o.metrics.RecordRecordFailure(t.account, "extracted")
		}
		return false, err
	}

	outcome := "unchanged"
	if written {
		outcome = "written"
	}
	if o.metrics != nil {
		o.metrics.RecordExtracted(string(rec.Kind()), outcome)
	}
	if written {
		o.publish(ctx, t, rec, mode)
	}
	return written, nil
}

// publish announces a written record. Failures are logged only.
func (o *Orchestrator) publish(ctx context.Context, t extractedTarget, rec extract.Record, mode db.WriteMode) {
	if o.publisher == nil {
		return
	}
	event, err := natspkg.NewRecordEvent(rec, t.txID, t.key, t.account, t.round, mode.String())
	if err == nil {
		err = o.publisher.PublishRecord(ctx, event)
	}
	if err != nil {
		o.logger.WarnContext(ctx, "failed to publish record event",
			"tx_id", t.txID,
			"kind", rec.Kind(),
			"error", err,
		)
	}
}

func noteStatus(raw []byte, text *string) string {
	switch {
	case len(raw) == 0:
		return "absent"
	case text == nil:
		return "invalid"
	default:
		return "text"
	}
}

func toSaveParams(account string, txn *algorand.Transaction, text *string) db.SaveTransactionParams {
	params := db.SaveTransactionParams{
		TxID:        txn.ID,
		Account:     account,
		Round:       int64(txn.Round),
		RoundTime:   txn.RoundTime,
		Sender:      txn.Sender,
		Receiver:    txn.Receiver,
		Fee:         int64(txn.Fee),
		TxType:      txn.Type,
		NoteRaw:     txn.Note,
		NoteDecoded: text,
		RawJSON:     txn.Raw,
	}
	if txn.Amount != nil {
		amount := int64(*txn.Amount)
		params.Amount = &amount
	}
	return params
}
