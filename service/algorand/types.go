package algorand

import (
	"time"
)

// Transaction represents one ledger entry observed for a tracked account.
// This is our domain model, independent of the indexer response format.
type Transaction struct {
	ID        string
	Account   string // tracked account the record was fetched under
	Round     uint64
	RoundTime time.Time
	Sender    string
	Receiver  *string // nil unless the transaction is a payment
	Amount    *uint64 // nil unless the transaction is a payment
	Fee       uint64
	Type      string
	Note      []byte // raw annotation bytes, nil when absent
	Raw       []byte // JSON serialization of the upstream record
}

// PageRequest selects one page of account transactions.
// At most one of Cursor and MinRound may be set. With neither, the most
// recent Limit records are returned.
type PageRequest struct {
	Cursor   string
	MinRound *uint64
	Limit    uint64
}

// Page is one page of transactions plus the continuation cursor.
// An empty NextCursor means the upstream reported no further pages.
type Page struct {
	Transactions []*Transaction
	NextCursor   string
}

// HasMore reports whether another page should be requested. A page with no
// records ends pagination even when a cursor is present, so a misbehaving
// upstream cannot keep a backfill looping.
func (p *Page) HasMore() bool {
	return p != nil && p.NextCursor != "" && len(p.Transactions) > 0
}

// MaxRound returns the highest round on the page and whether there was one.
// Records are not assumed to be sorted.
func (p *Page) MaxRound() (uint64, bool) {
	if p == nil || len(p.Transactions) == 0 {
		return 0, false
	}
	var highest uint64
	for _, txn := range p.Transactions {
		if txn.Round > highest {
			highest = txn.Round
		}
	}
	return highest, true
}
