package db

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by Migrate.
func Schema() string { return schemaSQL }

// Migrate applies the schema. Every statement is idempotent, so Migrate is
// safe to run on each startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return wrap("apply schema", err)
	}
	return nil
}
