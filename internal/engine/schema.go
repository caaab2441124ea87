package engine

import (
	"context"
	"strings"
)

// Engine-owned tables. User definitions must not name them.
const (
	lockTable = "__locks"
	keysTable = "__keys"
	logTable  = "__log"
)

// Migrate creates the engine-owned tables when missing. It runs once at
// startup; the read/write paths assume the tables exist.
func (e *Engine) Migrate(ctx context.Context) error {
	ddl := []struct {
		name string
		stmt string
	}{
		{lockTable, `CREATE TABLE ` + lockTable + ` (
	tablename CHAR(64) NOT NULL,
	record INTEGER NOT NULL,
	username CHAR(64) NOT NULL,
	obtained INTEGER NOT NULL,
	PRIMARY KEY ( tablename, record )
)`},
		{keysTable, `CREATE TABLE ` + keysTable + ` (
	tablename CHAR(64) NOT NULL PRIMARY KEY,
	recent INTEGER NOT NULL
)`},
		{logTable, `CREATE TABLE ` + logTable + ` (
	tablename CHAR(64) NOT NULL,
	rowid INTEGER NULL,
	action CHAR(8) NOT NULL,
	username CHAR(64) NOT NULL,
	ctime INTEGER NOT NULL
)`},
	}

	for _, t := range ddl {
		exists, err := e.tableExists(ctx, e.db, t.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := e.db.ExecContext(ctx, t.stmt); err != nil {
			return storagef("create "+t.name, err)
		}
	}
	return nil
}

// tableExists checks for a table in the backing store.
func (e *Engine) tableExists(ctx context.Context, tx DBTX, name string) (bool, error) {
	rows, err := e.query(ctx, tx, e.dialect.TableExistsQuery(), name)
	if err != nil {
		return false, storagef("table lookup", err)
	}
	defer rows.Close()
	if rows.Next() {
		return true, rows.Err()
	}
	return false, rows.Err()
}

// createTable creates the physical table of a definition when it does not
// exist yet, using the DDL fragments derived by the parser.
func (e *Engine) createTable(ctx context.Context, table string, meta *TableMeta) error {
	exists, err := e.tableExists(ctx, e.db, table)
	if err != nil || exists {
		return err
	}

	var defs []string
	for _, col := range meta.Columns {
		if col.Options.Aliasing != "" {
			// expression-backed, no physical column
			continue
		}
		defs = append(defs, col.Definition)
	}
	for _, c := range meta.Constraints {
		defs = append(defs, c.Definition)
	}

	stmt := "CREATE TABLE " + table + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return storagef("create table "+table, err)
	}
	return nil
}

// dropTable removes a user table.
func (e *Engine) dropTable(ctx context.Context, table string) error {
	if _, err := e.db.ExecContext(ctx, "DROP TABLE "+table); err != nil {
		return storagef("drop table "+table, err)
	}
	return nil
}
