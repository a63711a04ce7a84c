package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/brojonat/algotrace/service/config"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
	"github.com/brojonat/algotrace/service/ingest"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Algorand addresses are 58 chars, give buffer
	maxPacingMillis    = 60_000
	defaultListLimit   = 50
	maxListLimit       = 1000
)

var (
	// Algorand transaction IDs are unpadded base32.
	validTxIDRegex = regexp.MustCompile(`^[A-Z2-7]{52}$`)
)

// handleRunSync returns a handler that runs one incremental sync.
// POST /api/v1/sync
// Responds 502 when every account failed, 200 otherwise.
func handleRunSync(runner SyncRunner, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := runner.RunIncrementalSync(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "incremental sync could not run", "error", err)
			writeError(w, "failed to run sync: "+err.Error(), http.StatusInternalServerError)
			return
		}

		logger.InfoContext(r.Context(), "incremental sync triggered",
			"status", result.Status,
			"processed", result.ProcessedCount,
			"failed_records", result.FailedRecords,
		)

		writeJSON(w, result, syncStatusCode(result.Status))
	})
}

func syncStatusCode(status ingest.Status) int {
	if status == ingest.StatusFailed {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

// accountStatus is one tracked or previously seen account and its checkpoint.
type accountStatus struct {
	Account            string     `json:"account"`
	Tracked            bool       `json:"tracked"`
	LastProcessedRound *int64     `json:"last_processed_round"`
	LastSyncedAt       *time.Time `json:"last_synced_at,omitempty"`
}

// handleSyncStatus returns a handler that lists checkpoints for the tracked accounts.
// GET /api/v1/sync
// Tracked accounts without a checkpoint are listed with a null round.
func handleSyncStatus(store Store, tracked []string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkpoints, err := store.ListCheckpoints(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list checkpoints", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"accounts": mergeCheckpoints(tracked, checkpoints),
		}, http.StatusOK)
	})
}

// mergeCheckpoints lists tracked accounts in configured order, followed by
// checkpoints for accounts that are no longer tracked.
func mergeCheckpoints(tracked []string, checkpoints []*db.Checkpoint) []accountStatus {
	byAccount := make(map[string]*db.Checkpoint, len(checkpoints))
	for _, cp := range checkpoints {
		byAccount[cp.Account] = cp
	}

	out := make([]accountStatus, 0, len(tracked)+len(checkpoints))
	seen := make(map[string]bool, len(tracked))
	for _, acct := range tracked {
		st := accountStatus{Account: acct, Tracked: true}
		if cp, ok := byAccount[acct]; ok {
			st.LastProcessedRound = cp.LastProcessedRound
			synced := cp.LastSyncedAt
			st.LastSyncedAt = &synced
		}
		seen[acct] = true
		out = append(out, st)
	}
	for _, cp := range checkpoints {
		if seen[cp.Account] {
			continue
		}
		synced := cp.LastSyncedAt
		out = append(out, accountStatus{
			Account:            cp.Account,
			LastProcessedRound: cp.LastProcessedRound,
			LastSyncedAt:       &synced,
		})
	}
	return out
}

// handleBackfill returns a handler that runs a historical backfill.
// POST /api/v1/sync/historical
// The body is optional: {"page_size": N, "pacing_ms": N}.
func handleBackfill(runner SyncRunner, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			PageSize *int   `json:"page_size"`
			PacingMs *int64 `json:"pacing_ms"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.DebugContext(r.Context(), "failed to decode backfill request", "error", err)
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		opts, err := backfillOptions(req.PageSize, req.PacingMs, cfg)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		logger.InfoContext(r.Context(), "backfill triggered",
			"page_size", opts.PageSize,
			"pacing", opts.Pacing,
		)

		result, err := runner.RunBackfill(r.Context(), opts)
		if err != nil {
			logger.ErrorContext(r.Context(), "backfill could not run", "error", err)
			writeError(w, "failed to run backfill: "+err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, result, syncStatusCode(result.Status))
	})
}

func backfillOptions(pageSize *int, pacingMs *int64, cfg *config.Config) (ingest.BackfillOptions, error) {
	opts := ingest.BackfillOptions{
		PageSize: uint64(cfg.BackfillPageSize),
		Pacing:   cfg.BackfillPacing,
	}
	if pageSize != nil {
		if *pageSize < 1 || *pageSize > config.MaxPageSize {
			return opts, errorf("page_size must be between 1 and %d", config.MaxPageSize)
		}
		opts.PageSize = uint64(*pageSize)
	}
	if pacingMs != nil {
		if *pacingMs < 0 || *pacingMs > maxPacingMillis {
			return opts, errorf("pacing_ms must be between 0 and %d", maxPacingMillis)
		}
		opts.Pacing = time.Duration(*pacingMs) * time.Millisecond
	}
	return opts, nil
}

// handleListTransactions returns a handler that lists stored transactions.
// GET /api/v1/transactions?account=ADDRESS&limit=N&offset=N
// account is optional; without it every tracked account is listed.
func handleListTransactions(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		account := query.Get("account")
		if account != "" {
			if err := validateAddress(account); err != nil {
				logger.DebugContext(r.Context(), "invalid address", "address", account, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, err := intParam(query.Get("limit"), "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := intParam(query.Get("offset"), "offset", 0, 0, -1)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		transactions, err := store.ListTransactions(r.Context(), account, limit, offset)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list transactions", "account", account, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.DebugContext(r.Context(), "transactions listed", "account", account, "count", len(transactions))

		if transactions == nil {
			transactions = []*db.Transaction{}
		}
		writeJSON(w, map[string]interface{}{
			"transactions": transactions,
			"count":        len(transactions),
			"limit":        limit,
			"offset":       offset,
		}, http.StatusOK)
	})
}

// extractedResponse is one parsed record attached to a transaction.
type extractedResponse struct {
	Kind   extract.Kind   `json:"kind"`
	Fields extract.Record `json:"fields"`
}

// transactionDetail is a transaction together with its parsed records.
type transactionDetail struct {
	*db.Transaction
	Records []extractedResponse `json:"records"`
}

// handleGetTransaction returns a handler that shows one transaction and its records.
// GET /api/v1/transactions/{tx_id}
func handleGetTransaction(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txID := r.PathValue("tx_id")
		if !validTxIDRegex.MatchString(txID) {
			writeError(w, "invalid tx_id: must be a 52 character base32 transaction id", http.StatusBadRequest)
			return
		}

		txn, err := store.GetTransactionByTxID(r.Context(), txID)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get transaction", "tx_id", txID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if txn == nil {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}

		records, err := store.ListExtractedRecords(r.Context(), txn.Key)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list extracted records", "tx_id", txID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		detail := transactionDetail{Transaction: txn, Records: make([]extractedResponse, 0, len(records))}
		for _, rec := range records {
			detail.Records = append(detail.Records, extractedResponse{Kind: rec.Kind(), Fields: rec})
		}
		writeJSON(w, detail, http.StatusOK)
	})
}

// handleHealth reports whether the store is reachable.
// GET /health
func handleHealth(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeError(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates an account address for security and format.
func validateAddress(address string) error {
	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if _, err := types.DecodeAddress(address); err != nil {
		return errorf("invalid address format: %v", err)
	}

	return nil
}

// intParam parses an optional integer query parameter within [lo, hi].
// A negative hi means unbounded.
func intParam(raw, name string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorf("invalid %s parameter: must be an integer", name)
	}
	if v < lo {
		if lo == 0 {
			return 0, errorf("%s cannot be negative", name)
		}
		return 0, errorf("%s must be at least %d", name, lo)
	}
	if hi >= 0 && v > hi {
		return 0, errorf("%s cannot exceed %d", name, hi)
	}
	return v, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
