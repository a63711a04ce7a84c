package db

import (
	"context"
	"testing"
	"time"

	"github.com/brojonat/algotrace/service/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccountA = "N47UY6POHDWRJEUCSPD5R22FN3HW2ZKMNHWYLQQJT45ATUFWNU2A4EC6SY"
	testAccountB = "Z6HQTZYTKIHPBJQCYVHNVJZQXIZGRQO2QIKFRTWXMDMW2MI4OCAMKCELUU"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func txParams(txID string, round int64) SaveTransactionParams {
	note := "Roast date: 12/01/2024"
	return SaveTransactionParams{
		TxID:        txID,
		Account:     testAccountA,
		Round:       round,
		RoundTime:   time.Now().UTC().Truncate(time.Microsecond),
		Sender:      testAccountA,
		Receiver:    strPtr(testAccountB),
		Amount:      int64Ptr(1000),
		Fee:         1000,
		TxType:      "pay",
		NoteRaw:     []byte(note),
		NoteDecoded: &note,
		RawJSON:     []byte(`{"id":"` + txID + `"}`),
	}
}

func TestSaveTransaction(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("save and read back", func(t *testing.T) {
		params := txParams("TX-SAVE-1", 100)
		key, err := store.SaveTransaction(ctx, params)
		require.NoError(t, err)
		assert.Positive(t, key)

		tx, err := store.GetTransactionByTxID(ctx, "TX-SAVE-1")
		require.NoError(t, err)
		require.NotNil(t, tx)
		assert.Equal(t, key, tx.Key)
		assert.Equal(t, params.Account, tx.Account)
		assert.Equal(t, int64(100), tx.Round)
		assert.Equal(t, testAccountB, *tx.Receiver)
		assert.Equal(t, int64(1000), *tx.Amount)
		assert.Equal(t, params.NoteRaw, tx.NoteRaw)
		assert.Equal(t, *params.NoteDecoded, *tx.NoteDecoded)
		assert.WithinDuration(t, params.RoundTime, tx.RoundTime, time.Microsecond)
		assert.JSONEq(t, `{"id":"TX-SAVE-1"}`, string(tx.RawJSON))
	})

	t.Run("saving twice keeps one row and the same key", func(t *testing.T) {
		params := txParams("TX-IDEMPOTENT", 101)
		first, err := store.SaveTransaction(ctx, params)
		require.NoError(t, err)

		second, err := store.SaveTransaction(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		count, err := store.CountTransactions(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		dups, err := store.ListDuplicateTxIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, dups)
	})

	t.Run("missing transaction", func(t *testing.T) {
		tx, err := store.GetTransactionByTxID(ctx, "NOPE")
		require.NoError(t, err)
		assert.Nil(t, tx)
	})

	t.Run("non-payment without receiver or note", func(t *testing.T) {
		params := txParams("TX-APPL", 102)
		params.Receiver = nil
		params.Amount = nil
		params.NoteRaw = nil
		params.NoteDecoded = nil
		params.TxType = "appl"

		_, err := store.SaveTransaction(ctx, params)
		require.NoError(t, err)

		tx, err := store.GetTransactionByTxID(ctx, "TX-APPL")
		require.NoError(t, err)
		assert.Nil(t, tx.Receiver)
		assert.Nil(t, tx.Amount)
		assert.Nil(t, tx.NoteDecoded)
	})
}

func TestListTransactions(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	for i, id := range []string{"TX-L1", "TX-L2", "TX-L3"} {
		_, err := store.SaveTransaction(ctx, txParams(id, int64(200+i)))
		require.NoError(t, err)
	}
	other := txParams("TX-OTHER", 300)
	other.Account = testAccountB
	_, err := store.SaveTransaction(ctx, other)
	require.NoError(t, err)

	t.Run("newest first for one account", func(t *testing.T) {
		txs, err := store.ListTransactions(ctx, testAccountA, 10, 0)
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, "TX-L3", txs[0].TxID)
		assert.Equal(t, "TX-L1", txs[2].TxID)
	})

	t.Run("offset", func(t *testing.T) {
		txs, err := store.ListTransactions(ctx, testAccountA, 1, 1)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, "TX-L2", txs[0].TxID)
	})

	t.Run("all accounts", func(t *testing.T) {
		txs, err := store.ListTransactions(ctx, "", 10, 0)
		require.NoError(t, err)
		assert.Len(t, txs, 4)
	})

	t.Run("keyset walk", func(t *testing.T) {
		var seen []string
		var after int64
		for {
			batch, err := store.ListTransactionsAfter(ctx, after, 2)
			require.NoError(t, err)
			if len(batch) == 0 {
				break
			}
			for _, tx := range batch {
				seen = append(seen, tx.TxID)
				after = tx.Key
			}
		}
		assert.Equal(t, []string{"TX-L1", "TX-L2", "TX-L3", "TX-OTHER"}, seen)
	})

	t.Run("discover accounts", func(t *testing.T) {
		accts, err := store.DiscoverAccounts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, accts, 2)
		assert.Equal(t, testAccountA, accts[0].Address)
		assert.Equal(t, int64(4), accts[0].AsSender)
		assert.Equal(t, testAccountB, accts[1].Address)
		assert.Equal(t, int64(4), accts[1].AsReceiver)
	})

	t.Run("notes", func(t *testing.T) {
		notes, err := store.ListNotes(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, notes, 4)
	})
}

func TestSaveExtracted(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	key, err := store.SaveTransaction(ctx, txParams("TX-EXTRACT", 400))
	require.NoError(t, err)

	roasting := &extract.Roasting{RoastDate: strPtr("12/01/2024")}
	params := SaveExtractedParams{TransactionKey: key, TxID: "TX-EXTRACT", Record: roasting, RawText: "Roast date: 12/01/2024"}

	t.Run("insert if absent writes once", func(t *testing.T) {
		written, err := store.SaveExtracted(ctx, params, InsertIfAbsent)
		require.NoError(t, err)
		assert.True(t, written)

		written, err = store.SaveExtracted(ctx, params, InsertIfAbsent)
		require.NoError(t, err)
		assert.False(t, written)
	})

	t.Run("insert if absent does not overwrite", func(t *testing.T) {
		changed := params
		changed.Record = &extract.Roasting{RoastDate: strPtr("01/01/1999")}
		_, err := store.SaveExtracted(ctx, changed, InsertIfAbsent)
		require.NoError(t, err)

		records, err := store.ListExtractedRecords(ctx, key)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "12/01/2024", *records[0].(*extract.Roasting).RoastDate)
	})

	t.Run("upsert replaces fields", func(t *testing.T) {
		changed := params
		changed.Record = &extract.Roasting{ParentCompanyID: strPtr("4521"), Zone1Species: strPtr("Arabica")}
		written, err := store.SaveExtracted(ctx, changed, Upsert)
		require.NoError(t, err)
		assert.True(t, written)

		records, err := store.ListExtractedRecords(ctx, key)
		require.NoError(t, err)
		require.Len(t, records, 1)
		r := records[0].(*extract.Roasting)
		assert.Nil(t, r.RoastDate)
		assert.Equal(t, "4521", *r.ParentCompanyID)
		assert.Equal(t, "Arabica", *r.Zone1Species)
	})

	t.Run("co-occurring kinds", func(t *testing.T) {
		_, err := store.SaveExtracted(ctx, SaveExtractedParams{
			TransactionKey: key, TxID: "TX-EXTRACT", RawText: "x",
			Record: &extract.Processing{HarvestBegin: strPtr("01/03/2023")},
		}, InsertIfAbsent)
		require.NoError(t, err)
		_, err = store.SaveExtracted(ctx, SaveExtractedParams{
			TransactionKey: key, TxID: "TX-EXTRACT", RawText: "x",
			Record: &extract.Harvest{
				FarmID: strPtr("FARM-1"),
				Fields: []extract.HarvestField{{Label: "FIELD 1", Species: strPtr("Caturra")}},
			},
		}, InsertIfAbsent)
		require.NoError(t, err)

		records, err := store.ListExtractedRecords(ctx, key)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, extract.KindRoasting, records[0].Kind())
		assert.Equal(t, extract.KindProcessing, records[1].Kind())
		h := records[2].(*extract.Harvest)
		require.Len(t, h.Fields, 1)
		assert.Equal(t, "Caturra", *h.Fields[0].Species)
	})

	t.Run("unknown transaction key is not systemic", func(t *testing.T) {
		bad := params
		bad.TransactionKey = 999999
		_, err := store.SaveExtracted(ctx, bad, InsertIfAbsent)
		require.Error(t, err)

		var pe *PersistenceError
		require.ErrorAs(t, err, &pe)
		assert.False(t, pe.Systemic())
	})
}

func TestCheckpoints(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("absent checkpoint", func(t *testing.T) {
		cp, err := store.GetCheckpoint(ctx, testAccountA)
		require.NoError(t, err)
		assert.Nil(t, cp)
	})

	t.Run("freshness only on first sync", func(t *testing.T) {
		cp, err := store.AdvanceCheckpoint(ctx, testAccountB, nil, t0)
		require.NoError(t, err)
		assert.Nil(t, cp.LastProcessedRound)
		assert.WithinDuration(t, t0, cp.LastSyncedAt, time.Microsecond)
	})

	t.Run("round never decreases", func(t *testing.T) {
		cp, err := store.AdvanceCheckpoint(ctx, testAccountA, int64Ptr(500), t0)
		require.NoError(t, err)
		assert.Equal(t, int64(500), *cp.LastProcessedRound)

		cp, err = store.AdvanceCheckpoint(ctx, testAccountA, int64Ptr(450), t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(500), *cp.LastProcessedRound)
		assert.WithinDuration(t, t0.Add(time.Minute), cp.LastSyncedAt, time.Microsecond)

		cp, err = store.AdvanceCheckpoint(ctx, testAccountA, nil, t0.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(500), *cp.LastProcessedRound)

		cp, err = store.AdvanceCheckpoint(ctx, testAccountA, int64Ptr(501), t0.Add(3*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(501), *cp.LastProcessedRound)
	})

	t.Run("list checkpoints", func(t *testing.T) {
		cps, err := store.ListCheckpoints(ctx)
		require.NoError(t, err)
		require.Len(t, cps, 2)

		byAccount := map[string]*Checkpoint{}
		for _, cp := range cps {
			byAccount[cp.Account] = cp
		}
		assert.Equal(t, int64(501), *byAccount[testAccountA].LastProcessedRound)
		assert.Nil(t, byAccount[testAccountB].LastProcessedRound)
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
}
