package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/wikitab/wikitab/internal/session"
)

// Record is one decoded row. Values is keyed by column name and holds the
// internal representation of every selected column; ID is the value of the
// single numeric primary key, 0 when the table has none.
type Record struct {
	ID     int64
	Values map[string]Value
}

// selectColumns lists the column expressions to fetch: the primary key
// first, then the qualifying columns, with expression-backed columns
// expanded to `expr AS name`.
func selectColumns(meta *TableMeta, visibleOnly bool) []string {
	idCol, _ := meta.SingleNumericPrimaryKey()

	var names []string
	for _, col := range meta.Columns {
		if col.Name == idCol {
			continue
		}
		if visibleOnly && col.Options.Visible == Hidden {
			continue
		}
		names = append(names, col.Name)
	}
	if !visibleOnly && len(names) == 0 {
		for _, col := range meta.Columns {
			if col.Name != idCol {
				names = append(names, col.Name)
			}
		}
	}

	cols := make([]string, 0, len(names)+1)
	if idCol != "" {
		cols = append(cols, idCol)
	}
	for _, name := range names {
		if alias := meta.Column(name).Options.Aliasing; alias != "" {
			cols = append(cols, alias+" AS "+name)
		} else {
			cols = append(cols, name)
		}
	}
	return cols
}

var countRewrite = regexp.MustCompile(`(?i)^SELECT .+ (FROM .+)$`)

// recordsCount counts the rows matching the current filter. A custom view
// query carrying its own WHERE clause suppresses the filter entirely.
func (e *Engine) recordsCount(ctx context.Context, table string, meta *TableMeta, state *session.ViewState, customQuery string) (int, error) {
	clause, args := CompileFilter(state.Filter, meta)

	customQuery = strings.TrimSpace(customQuery)
	var query string
	if customQuery == "" {
		query = "SELECT COUNT(*) FROM " + table
	} else {
		query = countRewrite.ReplaceAllString(customQuery, "SELECT COUNT(*) $1")
		if containsWhere(query) {
			clause = ""
			args = nil
		}
	}

	var count int
	if err := e.queryRow(ctx, e.db, query+clause, args...).Scan(&count); err != nil {
		return 0, storagef("count", err)
	}
	return count, nil
}

func containsWhere(query string) bool {
	return strings.Contains(strings.ToUpper(query), " WHERE ")
}

// recordsList fetches the page of rows selected by the current filter,
// sort and paging state, decoded to internal values.
func (e *Engine) recordsList(ctx context.Context, table string, meta *TableMeta, state *session.ViewState, offset, limit int, customQuery string) ([]Record, error) {
	clause, args := CompileFilter(state.Filter, meta)
	order := CompileSort(state.Sort, meta)
	cols := selectColumns(meta, true)

	customQuery = strings.TrimSpace(customQuery)
	var query string
	if customQuery == "" {
		query = "SELECT " + strings.Join(cols, ",") + " FROM " + table
	} else {
		query = customQuery
		if containsWhere(query) {
			clause = ""
			args = nil
		}
	}

	var window string
	if offset > 0 || limit > 0 {
		if limit <= 0 {
			limit = 10
		}
		window = fmt.Sprintf(" LIMIT %d", limit)
		if offset > 0 {
			window += fmt.Sprintf(" OFFSET %d", offset)
		}
	}

	rows, err := e.query(ctx, e.db, query+clause+order+window, args...)
	if err != nil {
		return nil, storagef("list", err)
	}
	defer rows.Close()

	fetched, err := rows.Columns()
	if err != nil {
		return nil, storagef("list", err)
	}

	idCol, _ := meta.SingleNumericPrimaryKey()
	var out []Record
	for rows.Next() {
		raw := make([]any, len(fetched))
		ptrs := make([]any, len(fetched))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storagef("list scan", err)
		}

		rec := Record{Values: make(map[string]Value, len(fetched))}
		for i, name := range fetched {
			col := meta.Column(name)
			if col == nil {
				continue
			}
			v := e.codec.fromStorage(raw[i], col)
			rec.Values[name] = v
			if name == idCol && !v.Null {
				rec.ID = v.Int
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// recordByID fetches one row by primary key for the editor, all columns
// included. Returns ErrNoSuchRecord when the id does not exist.
func (e *Engine) recordByID(ctx context.Context, table string, meta *TableMeta, id int64) (Record, error) {
	idCol, ok := meta.SingleNumericPrimaryKey()
	if !ok {
		return Record{}, ErrNoPrimaryKey
	}

	cols := selectColumns(meta, false)
	rows, err := e.query(ctx, e.db,
		"SELECT "+strings.Join(cols, ",")+" FROM "+table+" WHERE "+idCol+" = ?", id)
	if err != nil {
		return Record{}, storagef("fetch", err)
	}
	defer rows.Close()

	fetched, err := rows.Columns()
	if err != nil {
		return Record{}, storagef("fetch", err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Record{}, storagef("fetch", err)
		}
		return Record{}, ErrNoSuchRecord
	}

	raw := make([]any, len(fetched))
	ptrs := make([]any, len(fetched))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return Record{}, storagef("fetch scan", err)
	}

	rec := Record{ID: id, Values: make(map[string]Value, len(fetched))}
	for i, name := range fetched {
		if col := meta.Column(name); col != nil {
			rec.Values[name] = e.codec.fromStorage(raw[i], col)
		}
	}
	return rec, nil
}

// recordI2X resolves a row id to its zero-based position under the current
// filter and sort. Returns found=false when the row is filtered out.
func (e *Engine) recordI2X(ctx context.Context, table string, meta *TableMeta, state *session.ViewState, rowID int64) (int, bool, error) {
	idCol, ok := meta.SingleNumericPrimaryKey()
	if !ok {
		return 0, false, nil
	}

	clause, args := CompileFilter(state.Filter, meta)
	order := CompileSort(state.Sort, meta)

	rows, err := e.query(ctx, e.db,
		"SELECT "+idCol+" FROM "+table+clause+order, args...)
	if err != nil {
		return 0, false, storagef("index", err)
	}
	defer rows.Close()

	index := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, false, storagef("index scan", err)
		}
		if id == rowID {
			return index, true, nil
		}
		index++
	}
	return 0, false, rows.Err()
}

// recordX2I resolves a zero-based position under the current filter and
// sort back to a row id.
func (e *Engine) recordX2I(ctx context.Context, table string, meta *TableMeta, state *session.ViewState, index int) (int64, bool, error) {
	idCol, ok := meta.SingleNumericPrimaryKey()
	if !ok || index < 0 {
		return 0, false, nil
	}

	clause, args := CompileFilter(state.Filter, meta)
	order := CompileSort(state.Sort, meta)

	rows, err := e.query(ctx, e.db,
		"SELECT "+idCol+" FROM "+table+clause+order+fmt.Sprintf(" LIMIT 1 OFFSET %d", index), args...)
	if err != nil {
		return 0, false, storagef("index", err)
	}
	defer rows.Close()

	if rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, false, storagef("index scan", err)
		}
		return id, true, nil
	}
	return 0, false, rows.Err()
}
