package engine

import (
	"context"
	"database/sql"
	"errors"
)

// nextID hands out the next primary key value for a table. Ids are tracked
// in the keys table rather than via backend autoincrement so they stay
// stable across backends and survive row deletion without reuse. Must run
// inside the transaction that inserts the row.
func (e *Engine) nextID(ctx context.Context, tx DBTX, table, idColumn string) (int64, error) {
	var recent int64
	err := e.queryRow(ctx, tx,
		"SELECT recent FROM "+keysTable+" WHERE tablename = ?", table).Scan(&recent)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Seed from the table itself so it keeps working for tables
		// that predate the allocator.
		if err := e.queryRow(ctx, tx,
			"SELECT COALESCE( MAX( "+idColumn+" ), 0 ) FROM "+table).Scan(&recent); err != nil {
			return 0, storagef("id seed", err)
		}
		recent++
		if _, err := e.exec(ctx, tx,
			"INSERT INTO "+keysTable+" ( tablename, recent ) VALUES ( ?, ? )",
			table, recent); err != nil {
			return 0, storagef("id insert", err)
		}
		return recent, nil
	case err != nil:
		return 0, storagef("id read", err)
	}

	recent++
	if _, err := e.exec(ctx, tx,
		"UPDATE "+keysTable+" SET recent = ? WHERE tablename = ?",
		recent, table); err != nil {
		return 0, storagef("id update", err)
	}
	return recent, nil
}
