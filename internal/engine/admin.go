package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// TableInfo describes one table of the backing store for the admin console.
type TableInfo struct {
	Name string
	Rows int
}

// UserTables lists all non-engine tables with their row counts.
func (e *Engine) UserTables(ctx context.Context) ([]TableInfo, error) {
	names, err := e.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	var infos []TableInfo
	for _, name := range names {
		if strings.HasPrefix(name, "__") || strings.HasPrefix(name, "sqlite_") {
			continue
		}
		n, err := e.RowCount(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, TableInfo{Name: name, Rows: n})
	}
	return infos, nil
}

// EngineTables lists the engine-owned tables with their row counts. Tables
// not yet migrated are skipped.
func (e *Engine) EngineTables(ctx context.Context) ([]TableInfo, error) {
	var infos []TableInfo
	for _, name := range []string{lockTable, keysTable, logTable} {
		exists, err := e.tableExists(ctx, e.db, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		n, err := e.RowCount(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, TableInfo{Name: name, Rows: n})
	}
	return infos, nil
}

func (e *Engine) tableNames(ctx context.Context) ([]string, error) {
	rows, err := e.query(ctx, e.db, e.dialect.ListTablesQuery())
	if err != nil {
		return nil, storagef("list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storagef("list tables", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RowCount returns the number of rows of one table. The name must have
// passed NormalizeTableName or be engine-owned.
func (e *Engine) RowCount(ctx context.Context, table string) (int, error) {
	var n int
	err := e.queryRow(ctx, e.db, "SELECT COUNT(*) FROM "+table).Scan(&n)
	if err != nil {
		return 0, storagef("count "+table, err)
	}
	return n, nil
}

// TableDump is a generic snapshot of one table, used by the admin console
// to inspect the engine tables.
type TableDump struct {
	Columns []string
	Rows    [][]string
}

// DumpTable reads a whole table into string cells. Only engine-owned
// tables may be dumped.
func (e *Engine) DumpTable(ctx context.Context, table string) (*TableDump, error) {
	switch table {
	case lockTable, keysTable, logTable:
	default:
		return nil, fmt.Errorf("table %s is not inspectable", table)
	}

	rows, err := e.query(ctx, e.db, "SELECT * FROM "+table)
	if err != nil {
		return nil, storagef("dump "+table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, storagef("dump "+table, err)
	}

	dump := &TableDump{Columns: cols}
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storagef("dump "+table, err)
		}
		cells := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				cells[i] = v.String
			}
		}
		dump.Rows = append(dump.Rows, cells)
	}
	return dump, rows.Err()
}

// PruneLog drops change log entries older than the retention window and
// returns the number of removed entries.
func (e *Engine) PruneLog(ctx context.Context) (int64, error) {
	horizon := e.now().Unix() - int64(e.cfg.LogRetention.Seconds())
	res, err := e.exec(ctx, e.db, "DELETE FROM "+logTable+" WHERE ctime < ?", horizon)
	if err != nil {
		return 0, storagef("log prune", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearLocks releases all locks, or all locks of one table when table is
// non-empty. Meant for operator intervention on orphaned locks.
func (e *Engine) ClearLocks(ctx context.Context, table string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if table == "" {
		res, err = e.exec(ctx, e.db, "DELETE FROM "+lockTable)
	} else {
		if table, err = NormalizeTableName(table); err != nil {
			return 0, err
		}
		res, err = e.exec(ctx, e.db, "DELETE FROM "+lockTable+" WHERE tablename = ?", table)
	}
	if err != nil {
		return 0, storagef("clear locks", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AdminDrop removes a user table outright, bypassing block-level locking.
// The drop is still recorded in the change log.
func (e *Engine) AdminDrop(ctx context.Context, ident *Identity, table string) error {
	table, err := NormalizeTableName(table)
	if err != nil {
		return err
	}
	return e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.exec(ctx, tx, "DROP TABLE "+table); err != nil {
			return storagef("drop "+table, err)
		}
		if _, err := e.exec(ctx, tx, "DELETE FROM "+keysTable+" WHERE tablename = ?", table); err != nil {
			return storagef("drop "+table, err)
		}
		if _, err := e.exec(ctx, tx, "DELETE FROM "+lockTable+" WHERE tablename = ?", table); err != nil {
			return storagef("drop "+table, err)
		}
		return e.logChange(ctx, tx, ident, table, nil, actionDrop)
	})
}

// MediaBlob reads the raw stored value of one file column of one record,
// serving the media retrieval frontend. All names must be plain
// identifiers; the wire format of the blob is mime|name|bytes.
func (e *Engine) MediaBlob(ctx context.Context, table, column, idColumn string, rowID int64) ([]byte, error) {
	var err error
	if table, err = NormalizeTableName(table); err != nil {
		return nil, &RequestIntegrityError{Reason: "invalid media selector"}
	}
	if column, err = NormalizeTableName(column); err != nil {
		return nil, &RequestIntegrityError{Reason: "invalid media selector"}
	}
	if idColumn, err = NormalizeTableName(idColumn); err != nil {
		return nil, &RequestIntegrityError{Reason: "invalid media selector"}
	}
	if rowID == 0 {
		return nil, &RequestIntegrityError{Reason: "invalid media selector"}
	}

	var blob []byte
	err = e.queryRow(ctx, e.db,
		"SELECT "+column+" FROM "+table+" WHERE "+idColumn+" = ?", rowID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSuchRecord
	}
	if err != nil {
		return nil, storagef("media read", err)
	}
	return blob, nil
}
