package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
	"github.com/brojonat/algotrace/service/metrics"
	natspkg "github.com/brojonat/algotrace/service/nats"
)

// ErrNoAccounts is returned when a run is asked to sync an empty account set.
var ErrNoAccounts = errors.New("no tracked accounts configured")

// Ledger fetches pages of account transactions.
// This allows for easy mocking in tests.
type Ledger interface {
	FetchPage(ctx context.Context, account string, req algorand.PageRequest) (*algorand.Page, error)
}

// Store defines the database operations needed by the orchestrator.
// This allows for easy mocking in tests.
type Store interface {
	GetCheckpoint(ctx context.Context, account string) (*db.Checkpoint, error)
	AdvanceCheckpoint(ctx context.Context, account string, round *int64, at time.Time) (*db.Checkpoint, error)
	SaveTransaction(ctx context.Context, params db.SaveTransactionParams) (int64, error)
	SaveExtracted(ctx context.Context, params db.SaveExtractedParams, mode db.WriteMode) (bool, error)
	ListTransactionsAfter(ctx context.Context, afterKey int64, limit int) ([]*db.Transaction, error)
}

// Publisher announces extracted records.
type Publisher interface {
	PublishRecord(ctx context.Context, event *natspkg.RecordEvent) error
}

// Options configures an Orchestrator.
type Options struct {
	// Accounts are synced in order.
	Accounts []string
	// PageSize is the incremental sync page size.
	PageSize uint64
	// Sleep pauses between backfill pages. Defaults to time.Sleep.
	Sleep func(time.Duration)
	// Now stamps checkpoints. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Orchestrator drives incremental syncs, backfills and re-parses.
// Following go-kit pattern, all dependencies are explicit.
type Orchestrator struct {
	ledger    Ledger
	store     Store
	extractor *extract.Extractor
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options
}

// New creates an Orchestrator. publisher and m may be nil.
func New(ledger Ledger, store Store, extractor *extract.Extractor, publisher Publisher, m *metrics.Metrics, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = extract.NewExtractor(m, logger)
	}
	if opts.PageSize == 0 {
		opts.PageSize = algorand.DefaultPageSize
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		ledger:    ledger,
		store:     store,
		extractor: extractor,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		opts:      opts,
	}
}

// Accounts returns the tracked accounts in sync order.
func (o *Orchestrator) Accounts() []string {
	out := make([]string, len(o.opts.Accounts))
	copy(out, o.opts.Accounts)
	return out
}

func (o *Orchestrator) recordRun(mode string, status Status, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordSyncRun(mode, string(status), time.Since(start).Seconds())
	}
}

func (o *Orchestrator) advance(ctx context.Context, account string, round *uint64) (*int64, error) {
	var stored *int64
	if round != nil {
		r := int64(*round)
		stored = &r
	}
	cp, err := o.store.AdvanceCheckpoint(ctx, account, stored, o.opts.Now())
	if err != nil {
		return nil, err
	}
	if cp.LastProcessedRound != nil && o.metrics != nil {
		o.metrics.RecordCheckpoint(account, *cp.LastProcessedRound)
	}
	return cp.LastProcessedRound, nil
}
