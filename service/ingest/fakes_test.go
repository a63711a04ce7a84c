package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brojonat/algotrace/service/algorand"
	"github.com/brojonat/algotrace/service/db"
	"github.com/brojonat/algotrace/service/extract"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	accountA = "N47UY6POHDWRJEUCSPD5R22FN3HW2ZKMNHWYLQQJT45ATUFWNU2A4EC6SY"
	accountB = "Z6HQTZYTKIHPBJQCYVHNVJZQXIZGRQO2QIKFRTWXMDMW2MI4OCAMKCELUU"
	accountC = "H3DPLANFSSNCGJOQ6FOKZHJAXPHMCR7F2BNW2QA5P5T7KPE3ZC5XXM2MQQ"
)

// fakeLedger serves scripted pages per account, in call order.
type fakeLedger struct {
	mu       sync.Mutex
	pages    map[string][]*algorand.Page
	errs     map[string]error
	requests map[string][]algorand.PageRequest
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		pages:    make(map[string][]*algorand.Page),
		errs:     make(map[string]error),
		requests: make(map[string][]algorand.PageRequest),
	}
}

func (l *fakeLedger) addPage(account, next string, txns ...*algorand.Transaction) {
	l.pages[account] = append(l.pages[account], &algorand.Page{Transactions: txns, NextCursor: next})
}

func (l *fakeLedger) FetchPage(ctx context.Context, account string, req algorand.PageRequest) (*algorand.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requests[account] = append(l.requests[account], req)
	if err := l.errs[account]; err != nil {
		return nil, &algorand.TransportError{Account: account, Op: "LookupAccountTransactions", Err: err}
	}
	n := len(l.requests[account]) - 1
	if n >= len(l.pages[account]) {
		return &algorand.Page{}, nil
	}
	return l.pages[account][n], nil
}

func (l *fakeLedger) calls(account string) []algorand.PageRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests[account]
}

type savedRecord struct {
	params db.SaveExtractedParams
	mode   db.WriteMode
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu          sync.Mutex
	nextKey     int64
	txs         []*db.Transaction
	byTxID      map[string]*db.Transaction
	checkpoints map[string]*db.Checkpoint
	extracted   map[string]savedRecord // "<key>/<kind>"

	// failSave fails SaveTransaction for these tx IDs.
	failSave map[string]error
	// failExtracted fails SaveExtracted for these tx IDs.
	failExtracted map[string]error
	// failCheckpoint fails AdvanceCheckpoint.
	failCheckpoint error
	// failList fails ListTransactionsAfter.
	failList error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byTxID:        make(map[string]*db.Transaction),
		checkpoints:   make(map[string]*db.Checkpoint),
		extracted:     make(map[string]savedRecord),
		failSave:      make(map[string]error),
		failExtracted: make(map[string]error),
	}
}

func (s *fakeStore) GetCheckpoint(ctx context.Context, account string) (*db.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[account]
	if !ok {
		return nil, nil
	}
	c := *cp
	return &c, nil
}

func (s *fakeStore) AdvanceCheckpoint(ctx context.Context, account string, round *int64, at time.Time) (*db.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCheckpoint != nil {
		return nil, &db.PersistenceError{Op: "advance checkpoint", Err: s.failCheckpoint}
	}
	cp, ok := s.checkpoints[account]
	if !ok {
		cp = &db.Checkpoint{Account: account, CreatedAt: at}
		s.checkpoints[account] = cp
	}
	if round != nil && (cp.LastProcessedRound == nil || *round > *cp.LastProcessedRound) {
		r := *round
		cp.LastProcessedRound = &r
	}
	cp.LastSyncedAt = at
	c := *cp
	return &c, nil
}

func (s *fakeStore) setCheckpoint(account string, round int64) {
	s.checkpoints[account] = &db.Checkpoint{Account: account, LastProcessedRound: &round}
}

func (s *fakeStore) checkpointRound(account string) *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp, ok := s.checkpoints[account]; ok {
		return cp.LastProcessedRound
	}
	return nil
}

func (s *fakeStore) SaveTransaction(ctx context.Context, p db.SaveTransactionParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failSave[p.TxID]; err != nil {
		return 0, &db.PersistenceError{Op: "save transaction " + p.TxID, Err: err}
	}
	if tx, ok := s.byTxID[p.TxID]; ok {
		return tx.Key, nil
	}
	s.nextKey++
	tx := &db.Transaction{
		Key:         s.nextKey,
		TxID:        p.TxID,
		Account:     p.Account,
		Round:       p.Round,
		RoundTime:   p.RoundTime,
		Sender:      p.Sender,
		Receiver:    p.Receiver,
		Amount:      p.Amount,
		Fee:         p.Fee,
		TxType:      p.TxType,
		NoteRaw:     p.NoteRaw,
		NoteDecoded: p.NoteDecoded,
		RawJSON:     p.RawJSON,
	}
	s.txs = append(s.txs, tx)
	s.byTxID[p.TxID] = tx
	return tx.Key, nil
}

func (s *fakeStore) SaveExtracted(ctx context.Context, p db.SaveExtractedParams, mode db.WriteMode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failExtracted[p.TxID]; err != nil {
		return false, &db.PersistenceError{Op: "save extracted " + p.TxID, Err: err}
	}
	k := fmt.Sprintf("%d/%s", p.TransactionKey, p.Record.Kind())
	if _, ok := s.extracted[k]; ok && mode == db.InsertIfAbsent {
		return false, nil
	}
	s.extracted[k] = savedRecord{params: p, mode: mode}
	return true, nil
}

func (s *fakeStore) ListTransactionsAfter(ctx context.Context, afterKey int64, limit int) ([]*db.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, &db.PersistenceError{Op: "scan transactions", Err: s.failList}
	}
	var out []*db.Transaction
	for _, tx := range s.txs {
		if tx.Key > afterKey && len(out) < limit {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *fakeStore) record(txID string, kind extract.Kind) (savedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byTxID[txID]
	if !ok {
		return savedRecord{}, false
	}
	r, ok := s.extracted[fmt.Sprintf("%d/%s", tx.Key, kind)]
	return r, ok
}

func (s *fakeStore) txCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

// Errors shaped like the ones pgx returns.
var (
	errConnLost        = &pgconn.PgError{Code: "08006", Message: "connection failure"}
	errCheckViolation  = &pgconn.PgError{Code: "23514", Message: "check violation"}
	errUpstreamTimeout = errors.New("indexer: 503 service unavailable")
)

func txn(id string, round uint64, note string) *algorand.Transaction {
	t := &algorand.Transaction{
		ID:        id,
		Round:     round,
		RoundTime: time.Unix(1700000000+int64(round), 0).UTC(),
		Sender:    accountA,
		Fee:       1000,
		Type:      "pay",
	}
	if note != "" {
		t.Note = []byte(note)
	}
	return t
}
