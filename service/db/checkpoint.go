package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Checkpoint records how far ingestion has progressed for one account.
type Checkpoint struct {
	Account            string    `json:"account"`
	LastProcessedRound *int64    `json:"last_processed_round"`
	LastSyncedAt       time.Time `json:"last_synced_at"`
	CreatedAt          time.Time `json:"created_at"`
}

const checkpointColumns = `address, last_processed_round, last_synced_at, created_at`

// GetCheckpoint returns the checkpoint for account, or nil, nil if the
// account has never been synced.
func (s *Store) GetCheckpoint(ctx context.Context, account string) (cp *Checkpoint, err error) {
	start := time.Now()
	defer func() { s.observe("get", "sync_checkpoints", start, err) }()

	row := s.pool.QueryRow(ctx, `SELECT `+checkpointColumns+` FROM sync_checkpoints WHERE address = $1`, account)
	cp, err = scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get checkpoint "+account, err)
	}
	return cp, nil
}

// AdvanceCheckpoint records a sync for account in one atomic upsert.
// The stored round only moves forward: a round lower than the stored one, or
// a nil round, leaves it unchanged. last_synced_at is always set to at.
func (s *Store) AdvanceCheckpoint(ctx context.Context, account string, round *int64, at time.Time) (cp *Checkpoint, err error) {
	start := time.Now()
	defer func() { s.observe("advance", "sync_checkpoints", start, err) }()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO sync_checkpoints (address, last_processed_round, last_synced_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET
			last_processed_round = GREATEST(sync_checkpoints.last_processed_round, EXCLUDED.last_processed_round),
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING `+checkpointColumns,
		account,
		pgint8FromInt64Ptr(round),
		pgtype.Timestamptz{Time: at, Valid: true},
	)
	cp, err = scanCheckpoint(row)
	if err != nil {
		return nil, wrap("advance checkpoint "+account, err)
	}
	return cp, nil
}

// ListCheckpoints returns every checkpoint ordered by account.
func (s *Store) ListCheckpoints(ctx context.Context) (cps []*Checkpoint, err error) {
	start := time.Now()
	defer func() { s.observe("list", "sync_checkpoints", start, err) }()

	rows, err := s.pool.Query(ctx, `SELECT `+checkpointColumns+` FROM sync_checkpoints ORDER BY address`)
	if err != nil {
		return nil, wrap("list checkpoints", err)
	}
	cps, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Checkpoint, error) {
		return scanCheckpoint(row)
	})
	if err != nil {
		return nil, wrap("list checkpoints", err)
	}
	return cps, nil
}

func scanCheckpoint(row pgx.Row) (*Checkpoint, error) {
	var (
		cp        Checkpoint
		round     pgtype.Int8
		syncedAt  pgtype.Timestamptz
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&cp.Account, &round, &syncedAt, &createdAt); err != nil {
		return nil, err
	}
	cp.LastProcessedRound = int64PtrFromPgint8(round)
	cp.LastSyncedAt = syncedAt.Time
	cp.CreatedAt = createdAt.Time
	return &cp, nil
}
