package algorand

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/brojonat/algotrace/service/metrics"
)

const (
	// DefaultPageSize is used when a PageRequest leaves Limit unset.
	DefaultPageSize uint64 = 100
	// MaxPageSize is the largest page the indexer serves.
	MaxPageSize uint64 = 1000
)

// RPCClient is an interface for the indexer operations we need.
// This allows us to mock the indexer in tests without hitting real nodes.
type RPCClient interface {
	LookupAccountTransactions(
		ctx context.Context,
		account string,
		params LookupParams,
	) (*models.TransactionsResponse, error)
}

// Client fetches account transactions from the Algorand indexer.
// It never retries: failures are returned as *TransportError and recovery is
// left to whoever drives the sync.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // identifier for metrics labeling, e.g. "algonode"
}

// NewClient creates a new ledger client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// FetchPage fetches one page of transactions for account.
func (c *Client) FetchPage(ctx context.Context, account string, req PageRequest) (*Page, error) {
	if req.Cursor != "" && req.MinRound != nil {
		return nil, ErrInvalidPageRequest
	}

	params := LookupParams{
		Limit:     req.Limit,
		NextToken: req.Cursor,
	}
	if params.Limit == 0 {
		params.Limit = DefaultPageSize
	}
	if params.Limit > MaxPageSize {
		params.Limit = MaxPageSize
	}
	if req.MinRound != nil {
		params.MinRound = *req.MinRound
	}

	c.logger.DebugContext(ctx, "calling LookupAccountTransactions",
		"account", account,
		"limit", params.Limit,
		"min_round", params.MinRound,
		"has_cursor", params.NextToken != "",
	)

	start := time.Now()
	resp, err := c.rpc.LookupAccountTransactions(ctx, account, params)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordLedgerCall("LookupAccountTransactions", status, c.endpoint, duration)
	}

	if err != nil {
		c.logger.ErrorContext(ctx, "failed to lookup account transactions",
			"account", account,
			"error", err,
		)
		return nil, &TransportError{Account: account, Op: "LookupAccountTransactions", Err: err}
	}

	page := &Page{
		Transactions: make([]*Transaction, 0, len(resp.Transactions)),
		NextCursor:   resp.NextToken,
	}
	for i := range resp.Transactions {
		page.Transactions = append(page.Transactions, fromModel(account, &resp.Transactions[i]))
	}

	if c.metrics != nil {
		c.metrics.RecordLedgerRecordsPerPage(c.endpoint, float64(len(page.Transactions)))
	}

	c.logger.DebugContext(ctx, "fetched account transactions",
		"account", account,
		"count", len(page.Transactions),
		"has_more", page.HasMore(),
	)

	return page, nil
}

// fromModel converts an indexer record to our domain Transaction.
func fromModel(account string, m *models.Transaction) *Transaction {
	txn := &Transaction{
		ID:        m.Id,
		Account:   account,
		Round:     m.ConfirmedRound,
		RoundTime: time.Unix(int64(m.RoundTime), 0).UTC(),
		Sender:    m.Sender,
		Fee:       m.Fee,
		Type:      m.Type,
	}
	if len(m.Note) > 0 {
		txn.Note = m.Note
	}
	if m.Type == "pay" {
		receiver := m.PaymentTransaction.Receiver
		amount := m.PaymentTransaction.Amount
		txn.Receiver = &receiver
		txn.Amount = &amount
	}
	txn.Raw = rawRecord(m)
	return txn
}

// rawRecord serializes the upstream record for forensic replay. It returns
// nil when marshaling fails or the JSON holds an escaped NUL, which jsonb
// rejects. Losing the copy never loses the transaction.
func rawRecord(m *models.Transaction) []byte {
	raw, err := json.Marshal(m)
	if err != nil || bytes.Contains(raw, []byte(`\u0000`)) {
		return nil
	}
	return raw
}
