package engine

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EditorField is one rendered form field with its current draft value and
// any validation failure from the last submission.
type EditorField struct {
	Column *ColumnDef
	Value  Value
	Error  string
}

// NavEntry is one record navigation control of the single-record editor.
// Command is "" for the plain return-to-list entry, otherwise "P<id>" or
// "N<id>" switching the editor to the neighbouring record.
type NavEntry struct {
	Command string
	Label   string
	Active  bool
}

// EditorForm is the single-record editor handed to the render layer.
type EditorForm struct {
	RowID    int64
	ReadOnly bool
	Token    string
	Index    int
	Fields   []EditorField
	Nav      []NavEntry
}

// editorOutcome mirrors the three ways an editor interaction resolves:
// close and re-render the list, switch the editor to another record, or
// keep the form open (Form set, list must not render).
type editorOutcome struct {
	close    bool
	switchTo int64
	form     *EditorForm
}

// editorToken ties a form submission to the record it was opened on, so a
// stale submit against another row id is ignored rather than applied.
func editorToken(rowID int64) string {
	sum := md5.Sum([]byte(strconv.FormatInt(rowID, 10)))
	return hex.EncodeToString(sum[:])
}

// sortedColumns orders the editable columns by explicit tab index, columns
// without one following in definition order.
func (b *block) sortedColumns(idCol string) []*ColumnDef {
	type entry struct {
		col *ColumnDef
		idx int
	}
	var tabbed, rest []entry
	for _, col := range b.meta.Columns {
		if col.Name == idCol {
			continue
		}
		if col.Options.TabIndex > 0 {
			tabbed = append(tabbed, entry{col, col.Options.TabIndex})
		} else {
			rest = append(rest, entry{col, 0})
		}
	}
	sort.SliceStable(tabbed, func(i, j int) bool { return tabbed[i].idx < tabbed[j].idx })

	out := make([]*ColumnDef, 0, len(tabbed)+len(rest))
	for _, e := range tabbed {
		out = append(out, e.col)
	}
	for _, e := range rest {
		out = append(out, e.col)
	}
	return out
}

// initialValue computes a new record's starting value for one column from
// its default option.
func (b *block) initialValue(col *ColumnDef) Value {
	if col.Class == "data" || col.Options.NoDefault {
		return NullValue()
	}

	def := b.e.replaceMarkup(strings.TrimSpace(col.Options.Default), b.req.Page, &b.req.Identity, nil)
	if def == "" {
		return NullValue()
	}

	switch col.Format {
	case FormatBool:
		return BoolValue(asBool(def))
	default:
		v, verr := b.e.codec.toInternal(def, col, b.req.Identity.Admin)
		if verr != nil {
			return NullValue()
		}
		return v
	}
}

// checkValue validates one submitted field against its column, resolving
// the interplay between the draft kept in the session and a possible file
// upload. Returns the value to keep as draft plus an error message, empty
// when the input was acceptable.
func (b *block) checkValue(col *ColumnDef, raw string, upload *FileValue, draft Value) (Value, string) {
	switch col.Format {
	case FormatFile, FormatImage:
		if draft.Untouched {
			// externally stored file the user never touched
			return draft, ""
		}

		if strings.TrimSpace(raw) != "" {
			// explicit request to drop the stored file
			draft = NullValue()
		}

		if upload == nil {
			// nothing uploaded, keep what the session has
			return draft, ""
		}
		if len(upload.Data) == 0 {
			return draft, "uploaded file is empty"
		}
		if int64(len(upload.Data)) > b.e.cfg.MaxUploadSize {
			return draft, "uploaded file exceeds size limit"
		}
		if col.Options.Accept != nil {
			if !col.Options.Accept.MatchString(upload.MIME) {
				return draft, "uploaded file type not accepted"
			}
		} else if col.Format == FormatImage {
			major, _, _ := strings.Cut(upload.MIME, "/")
			if !strings.EqualFold(strings.TrimSpace(major), "image") {
				return draft, "uploaded file is not an image"
			}
		}
		return Value{File: upload}, ""

	case FormatBool:
		set := asBool(raw)
		if !set && col.Options.Required {
			return BoolValue(false), "mark is required"
		}
		return BoolValue(set), ""
	}

	v, verr := b.e.codec.toInternal(raw, col, b.req.Identity.Admin)
	if verr != nil {
		return StrValue(raw), verr.Reason
	}
	if col.Options.Required && v.Null {
		return v, "value is required"
	}
	return v, ""
}

// editRecord drives the single-record editor. rowID 0 opens a blank
// insert; duplicateOf copies an existing record into a new one. The
// outcome tells the dispatcher whether to close, switch records or render
// the returned form instead of the list.
func (b *block) editRecord(ctx context.Context, rowID int64, readOnly bool, duplicateOf int64, rowACL map[string]string) (editorOutcome, error) {
	idCol, _ := b.meta.SingleNumericPrimaryKey()
	isNew := rowID == 0 || duplicateOf != 0

	if rowID != 0 && !readOnly {
		ok, err := b.e.obtainLock(ctx, &b.req.Identity, b.table, rowID, false)
		if err != nil {
			return editorOutcome{}, err
		}
		if !ok {
			b.notice("this record is currently locked by another user")
			return editorOutcome{close: true}, nil
		}
	}

	if b.state.Drafts == nil {
		b.state.Drafts = map[string]any{}
	}
	drafts := b.state.Drafts
	errors := map[string]string{}

	input := b.req.Input
	submitted := input.Get("____single") == editorToken(rowID)

	idx, haveIdx := input.Int("____idx")

	if submitted {
		result := editorOutcome{close: true}
		if nav := input.Get("____nav"); nav != "" {
			if nav[0] == 'P' {
				b.state.Nav = "previous"
			} else {
				b.state.Nav = "next"
			}
			if id, err := strconv.ParseInt(nav[1:], 10, 64); err == nil && id != 0 {
				result = editorOutcome{switchTo: id}
			}
		} else {
			b.state.Nav = ""
		}

		if input.Has("____cancel") {
			if rowID != 0 && !readOnly {
				if err := b.e.releaseLock(ctx, &b.req.Identity, b.table, rowID); err != nil {
					b.notice("could not release the record lock")
				}
			}
			b.state.ResetEditor()
			return result, nil
		}

		if !readOnly {
			for _, col := range b.sortedColumns(idCol) {
				if !b.mayEditColumn(col, rowACL, rowID != 0) {
					continue
				}

				raw := input.Get("data" + col.Name)
				var draft Value
				if d, ok := drafts[col.Name].(Value); ok {
					draft = d
				}
				v, msg := b.checkValue(col, raw, input.Upload(col.Name), draft)
				drafts[col.Name] = v
				if msg != "" {
					errors[col.Name] = msg
				}
				if col.Format == FormatACL && msg == "" {
					b.state.DropRowACL(rowID)
				}
			}
		}

		if !readOnly && len(errors) == 0 && input.Has("____save") {
			if err := b.saveRecord(ctx, rowID, isNew, idCol, drafts); err != nil {
				if IsStorage(err) {
					b.notice(fmt.Sprintf("could not save record: %v", err))
				} else {
					return editorOutcome{}, err
				}
			} else {
				if rowID != 0 && !readOnly {
					if err := b.e.releaseLock(ctx, &b.req.Identity, b.table, rowID); err != nil {
						return editorOutcome{}, err
					}
				}
				b.state.ResetEditor()
				return result, nil
			}
		}
	} else {
		// editor freshly opened
		if isNew && readOnly {
			return editorOutcome{close: true}, nil
		}

		if isNew && duplicateOf == 0 {
			clear(drafts)
			for _, col := range b.sortedColumns(idCol) {
				drafts[col.Name] = b.initialValue(col)
			}
		} else {
			loadID := rowID
			if duplicateOf != 0 {
				loadID = duplicateOf
			}
			rec, err := b.loadRecord(ctx, idCol, loadID)
			if err != nil {
				return editorOutcome{}, err
			}

			clear(drafts)
			for _, col := range b.sortedColumns(idCol) {
				v, ok := rec.Values[col.Name]
				if !ok {
					continue
				}
				if duplicateOf != 0 && col.Options.ACL["mayview"] != "" &&
					!b.auth.AuthorizedMulti(rowACL, col.Options.ACL, "mayview", "", false) {
					// the copy must not leak values the user cannot see
					v = b.initialValue(col)
				}
				drafts[col.Name] = v
			}
		}
	}

	var nav []NavEntry
	if !isNew {
		if !haveIdx {
			var found bool
			var err error
			idx, found, err = b.e.recordI2X(ctx, b.table, b.meta, b.state, rowID)
			if err != nil {
				return editorOutcome{}, err
			}
			if !found {
				idx = 0
			}
		}

		if idx > 0 {
			if prev, ok, err := b.e.recordX2I(ctx, b.table, b.meta, b.state, idx-1); err != nil {
				return editorOutcome{}, err
			} else if ok {
				nav = append(nav, NavEntry{
					Command: "P" + strconv.FormatInt(prev, 10),
					Label:   "previous",
					Active:  b.state.Nav == "previous",
				})
			}
		}
		if next, ok, err := b.e.recordX2I(ctx, b.table, b.meta, b.state, idx+1); err != nil {
			return editorOutcome{}, err
		} else if ok {
			nav = append(nav, NavEntry{
				Command: "N" + strconv.FormatInt(next, 10),
				Label:   "next",
				Active:  b.state.Nav == "next",
			})
		}
		if len(nav) > 0 {
			nav = append([]NavEntry{{Label: "return to list"}}, nav...)
		}
	}

	form := &EditorForm{
		RowID:    rowID,
		ReadOnly: readOnly,
		Token:    editorToken(rowID),
		Index:    idx,
		Nav:      nav,
	}
	for _, col := range b.sortedColumns(idCol) {
		v, ok := drafts[col.Name].(Value)
		if !ok {
			continue
		}
		form.Fields = append(form.Fields, EditorField{
			Column: col,
			Value:  v,
			Error:  errors[col.Name],
		})
	}
	return editorOutcome{form: form}, nil
}

// mayEditColumn applies the per-column ACL asymmetry: a user allowed to
// edit but not view a column may still fill it on a brand-new record,
// since there is no existing value to disclose.
func (b *block) mayEditColumn(col *ColumnDef, rowACL map[string]string, existing bool) bool {
	if col.Options.Aliasing != "" || col.Options.ReadOnly {
		return false
	}
	acl := col.Options.ACL
	if acl["mayedit"] != "" && !b.auth.AuthorizedMulti(rowACL, acl, "mayedit", "", false) {
		return false
	}
	if existing && acl["mayview"] != "" && !b.auth.AuthorizedMulti(rowACL, acl, "mayview", "", false) {
		return false
	}
	return true
}

// loadRecord fetches a row for editing, honoring a configured custom view.
func (b *block) loadRecord(ctx context.Context, idCol string, id int64) (Record, error) {
	if b.opts.View != "" {
		rows, err := b.e.query(ctx, b.e.db, b.opts.View+" WHERE "+idCol+" = ?", id)
		if err != nil {
			return Record{}, storagef("fetch", err)
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return Record{}, storagef("fetch", err)
		}
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return Record{}, storagef("fetch", err)
			}
			return Record{}, ErrNoSuchRecord
		}
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Record{}, storagef("fetch scan", err)
		}
		rec := Record{ID: id, Values: make(map[string]Value, len(cols))}
		for i, name := range cols {
			if col := b.meta.Column(name); col != nil {
				rec.Values[name] = b.e.codec.fromStorage(raw[i], col)
			}
		}
		return rec, nil
	}
	return b.e.recordByID(ctx, b.table, b.meta, id)
}

// saveRecord writes the validated drafts in one transaction: storage
// conversion, id allocation on insert, the row write and the log entry all
// commit together or not at all.
func (b *block) saveRecord(ctx context.Context, rowID int64, isNew bool, idCol string, drafts map[string]any) error {
	return b.e.withTx(ctx, func(tx *sql.Tx) error {
		var names []string
		var values []any
		for _, col := range b.sortedColumns(idCol) {
			v, ok := drafts[col.Name].(Value)
			if !ok || col.Options.Aliasing != "" {
				continue
			}
			stored, omit := b.e.codec.toStorage(v, col)
			if omit {
				continue
			}
			names = append(names, col.Name)
			values = append(values, stored)
		}

		var logID int64
		var action string
		if isNew {
			id, err := b.e.nextID(ctx, tx, b.table, idCol)
			if err != nil {
				return err
			}
			names = append(names, idCol)
			values = append(values, id)

			stmt := "INSERT INTO " + b.table + " (" + strings.Join(names, ",") +
				") VALUES (" + strings.TrimSuffix(strings.Repeat("?,", len(values)), ",") + ")"
			if _, err := b.e.exec(ctx, tx, stmt, values...); err != nil {
				return storagef("insert", err)
			}
			logID, action = id, actionInsert
		} else {
			assignments := make([]string, len(names))
			for i, n := range names {
				assignments[i] = n + " = ?"
			}
			values = append(values, rowID)
			stmt := "UPDATE " + b.table + " SET " + strings.Join(assignments, ",") +
				" WHERE " + idCol + " = ?"
			if _, err := b.e.exec(ctx, tx, stmt, values...); err != nil {
				return storagef("update", err)
			}
			logID, action = rowID, actionUpdate
		}

		return b.e.logChange(ctx, tx, &b.req.Identity, b.table, logID, action)
	})
}

// deleteRecord removes one row under a checked lock, logging the deletion
// in the same transaction.
func (b *block) deleteRecord(ctx context.Context, rowID int64) error {
	if rowID == 0 {
		return ErrNoSuchRecord
	}
	idCol, ok := b.meta.SingleNumericPrimaryKey()
	if !ok {
		return ErrNoPrimaryKey
	}

	got, err := b.e.obtainLock(ctx, &b.req.Identity, b.table, rowID, false)
	if err != nil {
		return err
	}
	if !got {
		b.notice("this record is currently locked by another user")
		return nil
	}

	err = b.e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := b.e.exec(ctx, tx,
			"DELETE FROM "+b.table+" WHERE "+idCol+" = ?", rowID); err != nil {
			return storagef("delete", err)
		}
		return b.e.logChange(ctx, tx, &b.req.Identity, b.table, rowID, actionDelete)
	})
	if err != nil {
		return err
	}
	return b.e.releaseLock(ctx, &b.req.Identity, b.table, rowID)
}

// dropTable removes the whole table after obtaining the table-wide lock,
// which fails while any foreign row lock exists.
func (b *block) dropTable(ctx context.Context) error {
	ok, err := b.e.obtainLock(ctx, &b.req.Identity, b.table, wholeTable, false)
	if err != nil {
		return err
	}
	if !ok {
		b.notice("this table is currently locked by another user")
		return nil
	}
	err = b.e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+b.table); err != nil {
			return storagef("drop table "+b.table, err)
		}
		return b.e.logChange(ctx, tx, &b.req.Identity, b.table, nil, actionDrop)
	})
	if err != nil {
		return err
	}
	return b.e.releaseLock(ctx, &b.req.Identity, b.table, wholeTable)
}
