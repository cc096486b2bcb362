package cutover

import (
	"context"
	"database/sql"
	"fmt"
)

// Bookkeeper records a finished cutover in the new database's migrations table
// so later migration runs against it know the cutover already happened.
type Bookkeeper struct {
	db    *sql.DB
	table string
}

func NewBookkeeper(db *sql.DB, table string) *Bookkeeper {
	if table == "" {
		table = "migrations"
	}
	return &Bookkeeper{db: db, table: table}
}

// Record inserts migration at batch max(batch)+1 in newDB and returns the batch
// it used. An empty table yields batch 1.
func (b *Bookkeeper) Record(ctx context.Context, newDB, migration string) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin bookkeeping: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx, MaxBatchQuery(newDB, b.table)).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read max batch: %w", err)
	}

	batch := current + 1
	if _, err := tx.ExecContext(ctx, InsertBookkeepingStatement(newDB, b.table), migration, batch); err != nil {
		return 0, fmt.Errorf("failed to insert bookkeeping row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bookkeeping: %w", err)
	}
	return batch, nil
}
