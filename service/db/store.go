package db

import (
	"context"
	"errors"
	"time"

	"github.com/brojonat/algotrace/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// Metrics may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping database", s.pool.Ping(ctx))
}

func (s *Store) observe(op, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), err)
	}
}

// Transaction is a stored Algorand ledger transaction.
type Transaction struct {
	Key         int64     `json:"key"`
	TxID        string    `json:"tx_id"`
	Account     string    `json:"account"`
	Round       int64     `json:"round"`
	RoundTime   time.Time `json:"round_time"`
	Sender      string    `json:"sender"`
	Receiver    *string   `json:"receiver,omitempty"`
	Amount      *int64    `json:"amount,omitempty"`
	Fee         int64     `json:"fee"`
	TxType      string    `json:"tx_type"`
	NoteRaw     []byte    `json:"note_raw,omitempty"`
	NoteDecoded *string   `json:"note_decoded,omitempty"`
	RawJSON     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// SaveTransactionParams contains the parameters for saving a transaction.
type SaveTransactionParams struct {
	TxID        string
	Account     string
	Round       int64
	RoundTime   time.Time
	Sender      string
	Receiver    *string
	Amount      *int64
	Fee         int64
	TxType      string
	NoteRaw     []byte
	NoteDecoded *string
	RawJSON     []byte
}

const transactionColumns = `id, tx_id, account, round, round_time, sender, receiver, amount, fee,
	tx_type, note_raw, note_decoded, raw_json, created_at`

// SaveTransaction stores a transaction if its tx_id is new and returns the
// internal key of the stored row either way. Saving the same transaction
// twice leaves exactly one row.
func (s *Store) SaveTransaction(ctx context.Context, params SaveTransactionParams) (key int64, err error) {
	start := time.Now()
	defer func() { s.observe("save", "algorand_transactions", start, err) }()

	err = s.pool.QueryRow(ctx, `
		INSERT INTO algorand_transactions (
			tx_id, account, round, round_time, sender, receiver, amount, fee,
			tx_type, note_raw, note_decoded, raw_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tx_id) DO NOTHING
		RETURNING id`,
		params.TxID,
		params.Account,
		params.Round,
		pgtype.Timestamptz{Time: params.RoundTime, Valid: true},
		params.Sender,
		pgtextFromStringPtr(params.Receiver),
		pgint8FromInt64Ptr(params.Amount),
		params.Fee,
		params.TxType,
		params.NoteRaw,
		pgtextFromStringPtr(params.NoteDecoded),
		jsonOrNil(params.RawJSON),
	).Scan(&key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, wrap("save transaction "+params.TxID, err)
	}

	// Already stored; look up the existing key.
	err = s.pool.QueryRow(ctx, `SELECT id FROM algorand_transactions WHERE tx_id = $1`, params.TxID).Scan(&key)
	if err != nil {
		return 0, wrap("look up transaction "+params.TxID, err)
	}
	return key, nil
}

// GetTransactionByTxID retrieves a transaction by its ledger ID.
// It returns nil, nil when no such transaction is stored.
func (s *Store) GetTransactionByTxID(ctx context.Context, txID string) (tx *Transaction, err error) {
	start := time.Now()
	defer func() { s.observe("get", "algorand_transactions", start, err) }()

	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM algorand_transactions WHERE tx_id = $1`, txID)
	tx, err = scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get transaction "+txID, err)
	}
	return tx, nil
}

// ListTransactions lists transactions newest first. An empty account lists
// every account.
func (s *Store) ListTransactions(ctx context.Context, account string, limit, offset int) (txs []*Transaction, err error) {
	start := time.Now()
	defer func() { s.observe("list", "algorand_transactions", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM algorand_transactions
		WHERE ($1 = '' OR account = $1)
		ORDER BY round DESC, id DESC
		LIMIT $2 OFFSET $3`,
		account, limit, offset,
	)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	txs, err = collectTransactions(rows)
	if err != nil {
		return nil, wrap("list transactions", err)
	}
	return txs, nil
}

// ListTransactionsAfter returns up to limit transactions whose key is
// greater than afterKey, in key order.
func (s *Store) ListTransactionsAfter(ctx context.Context, afterKey int64, limit int) (txs []*Transaction, err error) {
	start := time.Now()
	defer func() { s.observe("scan", "algorand_transactions", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM algorand_transactions
		WHERE id > $1
		ORDER BY id
		LIMIT $2`,
		afterKey, limit,
	)
	if err != nil {
		return nil, wrap("scan transactions", err)
	}
	txs, err = collectTransactions(rows)
	if err != nil {
		return nil, wrap("scan transactions", err)
	}
	return txs, nil
}

// CountTransactions counts stored transactions. An empty account counts all.
func (s *Store) CountTransactions(ctx context.Context, account string) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("count", "algorand_transactions", start, err) }()

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM algorand_transactions WHERE ($1 = '' OR account = $1)`,
		account,
	).Scan(&n)
	if err != nil {
		return 0, wrap("count transactions", err)
	}
	return n, nil
}

// ListNotes returns up to limit decoded notes, newest first.
func (s *Store) ListNotes(ctx context.Context, limit int) (notes []string, err error) {
	start := time.Now()
	defer func() { s.observe("notes", "algorand_transactions", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT note_decoded FROM algorand_transactions
		WHERE note_decoded IS NOT NULL AND note_decoded <> ''
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("list notes", err)
	}
	notes, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrap("list notes", err)
	}
	return notes, nil
}

// DuplicateRow is a key that appears more than once where it should be unique.
type DuplicateRow struct {
	Table string `json:"table"`
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// ListDuplicateTxIDs reports repeated transaction IDs and extracted records
// sharing a transaction. With the schema's unique constraints in place the
// result is always empty.
func (s *Store) ListDuplicateTxIDs(ctx context.Context) (dups []DuplicateRow, err error) {
	start := time.Now()
	defer func() { s.observe("duplicates", "algorand_transactions", start, err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT 'algorand_transactions', tx_id, COUNT(*) FROM algorand_transactions GROUP BY tx_id HAVING COUNT(*) > 1
		UNION ALL
		SELECT 'roasting_records', transaction_id::text, COUNT(*) FROM roasting_records GROUP BY transaction_id HAVING COUNT(*) > 1
		UNION ALL
		SELECT 'processing_records', transaction_id::text, COUNT(*) FROM processing_records GROUP BY transaction_id HAVING COUNT(*) > 1
		UNION ALL
		SELECT 'harvest_records', transaction_id::text, COUNT(*) FROM harvest_records GROUP BY transaction_id HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, wrap("list duplicates", err)
	}
	dups, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (DuplicateRow, error) {
		var d DuplicateRow
		err := row.Scan(&d.Table, &d.Key, &d.Count)
		return d, err
	})
	if err != nil {
		return nil, wrap("list duplicates", err)
	}
	return dups, nil
}

// AccountActivity summarizes how often an address appears as a counterparty.
type AccountActivity struct {
	Address    string    `json:"address"`
	AsSender   int64     `json:"as_sender"`
	AsReceiver int64     `json:"as_receiver"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// DiscoverAccounts lists every address seen as sender or receiver in stored
// transactions, most active first.
func (s *Store) DiscoverAccounts(ctx context.Context, limit int) (accts []AccountActivity, err error) {
	start := time.Now()
	defer func() { s.observe("discover", "algorand_transactions", start, err) }()

	rows, err := s.pool.Query(ctx, `
		WITH parties AS (
			SELECT sender AS address, 1 AS sent, 0 AS received, round_time FROM algorand_transactions
			UNION ALL
			SELECT receiver, 0, 1, round_time FROM algorand_transactions WHERE receiver IS NOT NULL
		)
		SELECT address, SUM(sent)::bigint, SUM(received)::bigint, MIN(round_time), MAX(round_time)
		FROM parties
		GROUP BY address
		ORDER BY SUM(sent) + SUM(received) DESC, address
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("discover accounts", err)
	}
	accts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (AccountActivity, error) {
		var a AccountActivity
		err := row.Scan(&a.Address, &a.AsSender, &a.AsReceiver, &a.FirstSeen, &a.LastSeen)
		return a, err
	})
	if err != nil {
		return nil, wrap("discover accounts", err)
	}
	return accts, nil
}

func collectTransactions(rows pgx.Rows) ([]*Transaction, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Transaction, error) {
		return scanTransaction(row)
	})
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		tx        Transaction
		roundTime pgtype.Timestamptz
		receiver  pgtype.Text
		amount    pgtype.Int8
		decoded   pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := row.Scan(
		&tx.Key,
		&tx.TxID,
		&tx.Account,
		&tx.Round,
		&roundTime,
		&tx.Sender,
		&receiver,
		&amount,
		&tx.Fee,
		&tx.TxType,
		&tx.NoteRaw,
		&decoded,
		&tx.RawJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	tx.RoundTime = roundTime.Time
	tx.Receiver = stringPtrFromPgtext(receiver)
	tx.Amount = int64PtrFromPgint8(amount)
	tx.NoteDecoded = stringPtrFromPgtext(decoded)
	tx.CreatedAt = createdAt.Time
	return &tx, nil
}

// Helper functions to convert between pgtype values and domain types

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func pgint8FromInt64Ptr(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func int64PtrFromPgint8(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// jsonOrNil returns nil for empty JSON so the column is stored as NULL.
func jsonOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
