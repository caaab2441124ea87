package engine

import (
	"context"
	"database/sql"
)

// Change log actions.
const (
	actionInsert = "insert"
	actionUpdate = "update"
	actionDelete = "delete"
	actionAlter  = "alter"
	actionDrop   = "drop"
)

// logChange records a structural or data change. On embedded backends the
// write also prunes entries past the retention window; server backends are
// expected to prune out of band.
func (e *Engine) logChange(ctx context.Context, tx DBTX, ident *Identity, table string, rowID any, action string) error {
	now := e.now().Unix()

	if e.dialect.Embedded() {
		horizon := now - int64(e.cfg.LogRetention.Seconds())
		if _, err := e.exec(ctx, tx,
			"DELETE FROM "+logTable+" WHERE ctime < ?", horizon); err != nil {
			return storagef("log prune", err)
		}
	}

	_, err := e.exec(ctx, tx,
		"INSERT INTO "+logTable+" ( tablename, rowid, action, username, ctime ) VALUES ( ?, ?, ?, ?, ? )",
		table, rowID, action, ident.Name, now)
	if err != nil {
		return storagef("log write", err)
	}
	return nil
}

// ChangeLog returns the retained change history, newest first, optionally
// restricted to one table.
func (e *Engine) ChangeLog(ctx context.Context, table string) ([]LogEntry, error) {
	clause := "SELECT tablename, rowid, action, username, ctime FROM " + logTable
	var args []any
	if table != "" {
		clause += " WHERE tablename = ?"
		args = append(args, table)
	}
	clause += " ORDER BY ctime DESC"

	rows, err := e.query(ctx, e.db, clause, args...)
	if err != nil {
		return nil, storagef("log read", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var entry LogEntry
		var rowID sql.NullInt64
		if err := rows.Scan(&entry.Table, &rowID, &entry.Action, &entry.User, &entry.Time); err != nil {
			return nil, storagef("log scan", err)
		}
		if rowID.Valid {
			entry.RowID = rowID.Int64
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
