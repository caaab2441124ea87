package engine

import (
	"context"
	"database/sql"
)

// Locks guard concurrent editing. A record id of 0 locks the whole table
// (used while altering or dropping it); any other id locks a single row.
// A table lock cannot be obtained while foreign row locks exist, and a row
// lock cannot be obtained while a foreign table lock exists. Locks older
// than the configured staleness are treated as abandoned and may be taken
// over by the next requester.
const wholeTable int64 = 0

// obtainLock acquires or refreshes a lock for ident. With checkOnly it
// only verifies that ident currently holds a fresh lock and changes
// nothing. Returns false when the lock is held by someone else.
func (e *Engine) obtainLock(ctx context.Context, ident *Identity, table string, record int64, checkOnly bool) (bool, error) {
	owner := ident.LockOwner()
	now := e.now().Unix()
	stale := now - int64(e.cfg.LockStaleness.Seconds())

	ok := false
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var clause string
		args := []any{table}
		if record == wholeTable {
			clause = "SELECT record, username, obtained FROM " + lockTable + " WHERE tablename = ?"
		} else {
			clause = "SELECT record, username, obtained FROM " + lockTable + " WHERE tablename = ? AND record IN ( ?, ? )"
			args = append(args, wholeTable, record)
		}

		rows, err := e.query(ctx, tx, clause, args...)
		if err != nil {
			return storagef("lock lookup", err)
		}

		held := false
		blocked := false
		for rows.Next() {
			var rec, obtained int64
			var user string
			if err := rows.Scan(&rec, &user, &obtained); err != nil {
				rows.Close()
				return storagef("lock scan", err)
			}
			switch {
			case user == owner && rec == record:
				held = true
			case user == owner:
				// own lock on another scope never blocks
			case obtained < stale:
				// abandoned, free to take over
			default:
				blocked = true
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storagef("lock lookup", err)
		}

		if blocked {
			return nil
		}
		if checkOnly {
			ok = held
			return nil
		}

		if _, err := e.exec(ctx, tx,
			"DELETE FROM "+lockTable+" WHERE tablename = ? AND record = ?",
			table, record); err != nil {
			return storagef("lock release", err)
		}
		if _, err := e.exec(ctx, tx,
			"INSERT INTO "+lockTable+" ( tablename, record, username, obtained ) VALUES ( ?, ?, ?, ? )",
			table, record, owner, now); err != nil {
			return storagef("lock insert", err)
		}
		ok = true
		return nil
	})
	return ok, err
}

// releaseLock drops ident's lock on the given scope. Releasing a lock not
// held is a no-op.
func (e *Engine) releaseLock(ctx context.Context, ident *Identity, table string, record int64) error {
	_, err := e.exec(ctx, e.db,
		"DELETE FROM "+lockTable+" WHERE tablename = ? AND record = ? AND username = ?",
		table, record, ident.LockOwner())
	if err != nil {
		return storagef("lock release", err)
	}
	return nil
}
