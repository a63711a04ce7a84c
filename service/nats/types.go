package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brojonat/algotrace/service/extract"
)

// RecordEvent is published whenever an extracted record is written.
// It goes to the subject "records.{kind}" in JetStream.
type RecordEvent struct {
	// Record identity
	Kind           extract.Kind `json:"kind"`
	TxID           string       `json:"tx_id"`
	TransactionKey int64        `json:"transaction_key"`

	// Ledger position
	Account string `json:"account"`
	Round   int64  `json:"round"`

	// Extracted fields, keyed by column name
	Fields json.RawMessage `json:"fields"`

	// Mode is "insert" during ingestion or "upsert" during re-parse.
	Mode string `json:"mode"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject the event is published to.
func (e *RecordEvent) Subject() string {
	return SubjectForKind(e.Kind)
}

// SubjectForKind returns the subject for a record kind.
func SubjectForKind(kind extract.Kind) string {
	return fmt.Sprintf("records.%s", kind)
}

// NewRecordEvent builds an event for rec stored against the given transaction.
func NewRecordEvent(rec extract.Record, txID string, txKey int64, account string, round int64, mode string) (*RecordEvent, error) {
	fields, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s record: %w", rec.Kind(), err)
	}
	return &RecordEvent{
		Kind:           rec.Kind(),
		TxID:           txID,
		TransactionKey: txKey,
		Account:        account,
		Round:          round,
		Fields:         fields,
		Mode:           mode,
		PublishedAt:    time.Now().UTC(),
	}, nil
}
