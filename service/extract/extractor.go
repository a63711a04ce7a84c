package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/algotrace/service/metrics"
)

// ExtractionError reports that extracting a kind failed unexpectedly.
// A failure for one kind never prevents the other kinds from being tried.
type ExtractionError struct {
	Kind  Kind
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s record: %v", e.Kind, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// Extractor runs a set of KindExtractors over note text.
type Extractor struct {
	kinds   []KindExtractor
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewExtractor creates an Extractor. With no kinds given, DefaultKinds is used.
func NewExtractor(m *metrics.Metrics, logger *slog.Logger, kinds ...KindExtractor) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if len(kinds) == 0 {
		kinds = DefaultKinds()
	}
	return &Extractor{kinds: kinds, metrics: m, logger: logger}
}

// ErrUnknownKind is returned by Extract for a kind with no registered extractor.
var ErrUnknownKind = errors.New("unknown record kind")

// Extract runs the extractor registered for kind over text.
// A nil Record with a nil error means no pattern matched.
func (e *Extractor) Extract(kind Kind, text string) (Record, error) {
	for _, ke := range e.kinds {
		if ke.Kind() == kind {
			return runKind(ke, text)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// runKind converts a panic inside a kind extractor into an ExtractionError.
func runKind(ke KindExtractor, text string) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = &ExtractionError{Kind: ke.Kind(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if text == "" {
		return nil, nil
	}
	return ke.Extract(text), nil
}

// ExtractAll runs every configured kind over text, in order, and returns one
// record per kind that matched. A failing kind is logged and skipped.
func (e *Extractor) ExtractAll(ctx context.Context, txID, text string) []Record {
	var records []Record
	for _, ke := range e.kinds {
		rec, err := runKind(ke, text)
		if err != nil {
			e.logger.ErrorContext(ctx, "note extraction failed",
				"tx_id", txID,
				"kind", ke.Kind(),
				"error", err,
			)
			if e.metrics != nil {
				e.metrics.RecordExtractionError(string(ke.Kind()))
			}
			continue
		}
		if rec == nil {
			continue
		}
		if r, ok := rec.(*Roasting); ok && r.ZonesFound > MaxZoneSlots {
			e.logger.DebugContext(ctx, "roasting note has more zones than slots",
				"tx_id", txID,
				"zones_found", r.ZonesFound,
				"zones_dropped", r.ZonesFound-MaxZoneSlots,
			)
		}
		records = append(records, rec)
	}
	return records
}
