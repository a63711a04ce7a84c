package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/algotrace/service/extract"
	"github.com/jackc/pgx/v5"
)

// WriteMode selects how SaveExtracted treats an existing record.
type WriteMode int

const (
	// InsertIfAbsent leaves an existing record untouched. Used during ingestion.
	InsertIfAbsent WriteMode = iota
	// Upsert replaces every field of an existing record. Used by re-parse.
	Upsert
)

func (m WriteMode) String() string {
	if m == Upsert {
		return "upsert"
	}
	return "insert"
}

// SaveExtractedParams contains the parameters for saving an extracted record.
type SaveExtractedParams struct {
	TransactionKey int64
	TxID           string
	Record         extract.Record
	RawText        string
}

type extractedTable struct {
	name    string
	columns []string
}

var (
	roastingTable = extractedTable{
		name: "roasting_records",
		columns: []string{
			"parent_company_id", "production_batch_id", "type_of_roast", "location_of_roasting_plant",
			"kg_coffee_roasted", "roast_date", "child_tx",
			"zone1_species", "zone1_harvest_begin", "zone1_harvest_end",
			"zone2_species", "zone2_harvest_begin", "zone2_harvest_end",
		},
	}
	processingTable = extractedTable{
		name: "processing_records",
		columns: []string{
			"reception_ids", "post_hull_ids", "size_of_beans", "qty_green_coffee",
			"sort_entry", "sort_exit", "harvest_begin", "harvest_end",
		},
	}
	harvestTable = extractedTable{
		name:    "harvest_records",
		columns: []string{"farm_id", "farm_anagraphic", "farm_location", "fields"},
	}
)

// insertSQL builds the INSERT for a table. Parameters are, in order,
// transaction_id, tx_id, the table's columns, then raw_text.
func (t extractedTable) insertSQL(mode WriteMode) string {
	cols := append([]string{"transaction_id", "tx_id"}, t.columns...)
	cols = append(cols, "raw_text")

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (transaction_id) ",
		t.name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if mode != Upsert {
		b.WriteString("DO NOTHING")
		return b.String()
	}

	sets := make([]string, 0, len(cols))
	for _, c := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	sets = append(sets, "updated_at = NOW()")
	b.WriteString("DO UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

// recordValues maps a record onto its table and column values.
func recordValues(rec extract.Record) (extractedTable, []any, error) {
	switch r := rec.(type) {
	case *extract.Roasting:
		return roastingTable, []any{
			r.ParentCompanyID, r.ProductionBatchID, r.TypeOfRoast, r.LocationOfRoastingPlant,
			r.KgCoffeeRoasted, r.RoastDate, r.ChildTx,
			r.Zone1Species, r.Zone1HarvestBegin, r.Zone1HarvestEnd,
			r.Zone2Species, r.Zone2HarvestBegin, r.Zone2HarvestEnd,
		}, nil
	case *extract.Processing:
		return processingTable, []any{
			r.ReceptionIDs, r.PostHullIDs, r.SizeOfBeans, r.QtyGreenCoffee,
			r.SortEntry, r.SortExit, r.HarvestBegin, r.HarvestEnd,
		}, nil
	case *extract.Harvest:
		fields := r.Fields
		if fields == nil {
			fields = []extract.HarvestField{}
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return extractedTable{}, nil, fmt.Errorf("failed to encode harvest fields: %w", err)
		}
		return harvestTable, []any{r.FarmID, r.FarmAnagraphic, r.FarmLocation, encoded}, nil
	default:
		return extractedTable{}, nil, fmt.Errorf("unsupported record type %T", rec)
	}
}

// SaveExtracted stores an extracted record for a transaction. It reports
// whether a row was written; InsertIfAbsent returns false when a record of
// the same kind already exists for the transaction.
func (s *Store) SaveExtracted(ctx context.Context, params SaveExtractedParams, mode WriteMode) (written bool, err error) {
	table, values, err := recordValues(params.Record)
	if err != nil {
		return false, &PersistenceError{Op: "prepare extracted record " + params.TxID, Err: err, encoding: true}
	}

	start := time.Now()
	defer func() { s.observe(mode.String(), table.name, start, err) }()

	args := make([]any, 0, len(values)+3)
	args = append(args, params.TransactionKey, params.TxID)
	args = append(args, values...)
	args = append(args, params.RawText)

	tag, err := s.pool.Exec(ctx, table.insertSQL(mode), args...)
	if err != nil {
		return false, wrap(fmt.Sprintf("save %s record %s", params.Record.Kind(), params.TxID), err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListExtractedRecords returns every extracted record stored for a
// transaction, in roasting, processing, harvest order.
func (s *Store) ListExtractedRecords(ctx context.Context, txKey int64) (records []extract.Record, err error) {
	start := time.Now()
	defer func() { s.observe("list", "extracted_records", start, err) }()

	roasting := &extract.Roasting{}
	err = s.pool.QueryRow(ctx, `
		SELECT `+strings.Join(roastingTable.columns, ", ")+`
		FROM roasting_records WHERE transaction_id = $1`, txKey,
	).Scan(
		&roasting.ParentCompanyID, &roasting.ProductionBatchID, &roasting.TypeOfRoast, &roasting.LocationOfRoastingPlant,
		&roasting.KgCoffeeRoasted, &roasting.RoastDate, &roasting.ChildTx,
		&roasting.Zone1Species, &roasting.Zone1HarvestBegin, &roasting.Zone1HarvestEnd,
		&roasting.Zone2Species, &roasting.Zone2HarvestBegin, &roasting.Zone2HarvestEnd,
	)
	if err = found(err); err != nil {
		return nil, wrap("list roasting records", err)
	} else if roasting.FieldCount() > 0 {
		records = append(records, roasting)
	}

	processing := &extract.Processing{}
	err = s.pool.QueryRow(ctx, `
		SELECT `+strings.Join(processingTable.columns, ", ")+`
		FROM processing_records WHERE transaction_id = $1`, txKey,
	).Scan(
		&processing.ReceptionIDs, &processing.PostHullIDs, &processing.SizeOfBeans, &processing.QtyGreenCoffee,
		&processing.SortEntry, &processing.SortExit, &processing.HarvestBegin, &processing.HarvestEnd,
	)
	if err = found(err); err != nil {
		return nil, wrap("list processing records", err)
	} else if processing.FieldCount() > 0 {
		records = append(records, processing)
	}

	harvest := &extract.Harvest{}
	var fields []byte
	err = s.pool.QueryRow(ctx, `
		SELECT farm_id, farm_anagraphic, farm_location, fields
		FROM harvest_records WHERE transaction_id = $1`, txKey,
	).Scan(&harvest.FarmID, &harvest.FarmAnagraphic, &harvest.FarmLocation, &fields)
	if err = found(err); err != nil {
		return nil, wrap("list harvest records", err)
	}
	if len(fields) > 0 {
		if err = json.Unmarshal(fields, &harvest.Fields); err != nil {
			return nil, &PersistenceError{Op: "decode harvest fields", Err: err, encoding: true}
		}
	}
	if harvest.FieldCount() > 0 {
		records = append(records, harvest)
	}

	return records, nil
}

// found maps a missing row to nil so callers can treat absence as empty.
func found(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
