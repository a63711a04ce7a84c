package db

import (
	"errors"
	"strings"
	"testing"

	"github.com/brojonat/algotrace/service/extract"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistenceError_Systemic(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		systemic bool
	}{
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"invalid text", &pgconn.PgError{Code: "22021"}, false},
		{"network error", errors.New("dial tcp: connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrap("save transaction", tt.err)
			var pe *PersistenceError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.systemic, pe.Systemic())
			assert.Equal(t, tt.systemic, IsSystemic(err))
		})
	}
}

func TestPersistenceError_EncodingIsNotSystemic(t *testing.T) {
	pe := &PersistenceError{Op: "prepare", Err: errors.New("bad"), encoding: true}
	assert.False(t, pe.Systemic())
	assert.Equal(t, "failed to prepare: bad", pe.Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, wrap("anything", nil))
	assert.False(t, IsSystemic(nil))
}

func TestInsertSQL(t *testing.T) {
	insert := processingTable.insertSQL(InsertIfAbsent)
	assert.True(t, strings.HasPrefix(insert, "INSERT INTO processing_records (transaction_id, tx_id, reception_ids"))
	assert.Contains(t, insert, "$11)")
	assert.True(t, strings.HasSuffix(insert, "ON CONFLICT (transaction_id) DO NOTHING"))

	upsert := harvestTable.insertSQL(Upsert)
	assert.Contains(t, upsert, "DO UPDATE SET tx_id = EXCLUDED.tx_id")
	assert.Contains(t, upsert, "fields = EXCLUDED.fields")
	assert.Contains(t, upsert, "raw_text = EXCLUDED.raw_text")
	assert.True(t, strings.HasSuffix(upsert, "updated_at = NOW()"))
	assert.NotContains(t, upsert, "transaction_id = EXCLUDED")
}

func TestRecordValues(t *testing.T) {
	tests := []struct {
		name   string
		rec    extract.Record
		table  string
		values int
	}{
		{"roasting", &extract.Roasting{}, "roasting_records", 13},
		{"processing", &extract.Processing{}, "processing_records", 8},
		{"harvest", &extract.Harvest{}, "harvest_records", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, values, err := recordValues(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.table, table.name)
			assert.Len(t, values, tt.values)
			assert.Len(t, table.columns, tt.values)
		})
	}

	t.Run("harvest fields default to empty list", func(t *testing.T) {
		_, values, err := recordValues(&extract.Harvest{})
		require.NoError(t, err)
		assert.Equal(t, []byte("[]"), values[3])
	})
}
