package ingest

import "github.com/brojonat/algotrace/service/extract"

// Status summarizes how a run went.
type Status string

const (
	// StatusSuccess means every account synced and every record was stored.
	StatusSuccess Status = "success"
	// StatusPartial means some accounts or records failed.
	StatusPartial Status = "partial"
	// StatusFailed means every attempted account failed.
	StatusFailed Status = "failed"
)

// AccountOutcome reports what a run did for one account.
type AccountOutcome struct {
	Account         string `json:"account"`
	Processed       int    `json:"processed"`
	FailedRecords   int    `json:"failed_records"`
	Pages           int    `json:"pages"`
	CheckpointRound *int64 `json:"checkpoint_round,omitempty"`
	Error           string `json:"error,omitempty"`
}

// SyncResult is the outcome of an incremental sync.
type SyncResult struct {
	Status           Status            `json:"status"`
	ProcessedCount   int               `json:"processed_count"`
	FailedRecords    int               `json:"failed_records"`
	Accounts         []AccountOutcome  `json:"accounts"`
	PerAccountErrors map[string]string `json:"per_account_errors,omitempty"`
}

// BackfillResult is the outcome of a historical backfill.
type BackfillResult struct {
	Status            Status            `json:"status"`
	TotalRecords      int               `json:"total_records"`
	PagesProcessed    int               `json:"pages_processed"`
	AccountsProcessed int               `json:"accounts_processed"`
	FailedRecords     int               `json:"failed_records"`
	Accounts          []AccountOutcome  `json:"accounts"`
	PerAccountErrors  map[string]string `json:"per_account_errors,omitempty"`
}

// ReparseResult is the outcome of re-extracting stored notes.
type ReparseResult struct {
	Status  Status               `json:"status"`
	Scanned int                  `json:"scanned"`
	Updated map[extract.Kind]int `json:"updated"`
	NoMatch int                  `json:"no_match"`
	Failed  int                  `json:"failed"`
	Error   string               `json:"error,omitempty"`
}

// runStatus derives a Status from account and record failure counts.
func runStatus(attempted, failedAccounts, failedRecords int) Status {
	switch {
	case attempted > 0 && failedAccounts == attempted:
		return StatusFailed
	case failedAccounts == 0 && failedRecords == 0:
		return StatusSuccess
	default:
		return StatusPartial
	}
}

// tally collects per-account outcomes into run-level totals.
type tally struct {
	outcomes []AccountOutcome
	errs     map[string]string
	failed   int
}

func (t *tally) add(out AccountOutcome) {
	t.outcomes = append(t.outcomes, out)
	if out.Error != "" {
		if t.errs == nil {
			t.errs = make(map[string]string)
		}
		t.errs[out.Account] = out.Error
		t.failed++
	}
}

func (t *tally) processed() (records, failedRecords, pages int) {
	for _, o := range t.outcomes {
		records += o.Processed
		failedRecords += o.FailedRecords
		pages += o.Pages
	}
	return records, failedRecords, pages
}

func (t *tally) status() Status {
	_, failedRecords, _ := t.processed()
	return runStatus(len(t.outcomes), t.failed, failedRecords)
}
