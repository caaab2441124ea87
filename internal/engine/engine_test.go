package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wikitab/wikitab/internal/session"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	e := New(db, sqliteDialect{}, session.NewMemoryStore(), Config{})
	if err := e.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return e
}

func testIdentity() Identity {
	return Identity{
		Name:          "alice",
		Authenticated: true,
		SessionID:     "sid",
		RemoteAddr:    "10.0.0.9",
	}
}

func peopleRequest(in *Input) *Request {
	if in == nil {
		in = NewInput(true)
	}
	return &Request{
		Page:       "start",
		Revision:   "rev1",
		Table:      "people",
		Definition: "name, text, Name\nage, int, Age",
		Options: TableOptions{ACL: map[string]string{
			"mayinsert": "@ALL",
			"mayedit":   "@ALL",
			"maydelete": "@ALL",
		}},
		Identity: testIdentity(),
		Input:    in,
	}
}

func TestProcessCreatesAndLists(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	res := e.Process(ctx, peopleRequest(nil))
	if res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	if res.List == nil {
		t.Fatal("no list")
	}
	if res.List.Count != 0 {
		t.Errorf("count = %d", res.List.Count)
	}

	exists, err := e.tableExists(ctx, e.db, "people")
	if err != nil || !exists {
		t.Errorf("table not created: %v", err)
	}

	// insert is offered, drop is not granted
	hasInsert, hasDrop := false, false
	for _, a := range res.List.Actions {
		switch a {
		case "insert":
			hasInsert = true
		case "drop":
			hasDrop = true
		}
	}
	if !hasInsert || hasDrop {
		t.Errorf("actions = %v", res.List.Actions)
	}
}

func TestEditorInsertFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// first view creates the table
	if res := e.Process(ctx, peopleRequest(nil)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}

	// opening the editor renders the empty form
	in := NewInput(true)
	in.Set("cmdinsert", "1")
	res := e.Process(ctx, peopleRequest(in))
	if res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	if res.Form == nil {
		t.Fatal("no editor form")
	}
	if res.List != nil {
		t.Error("list rendered alongside the editor")
	}
	if res.Form.Token != editorToken(0) {
		t.Errorf("token = %q", res.Form.Token)
	}
	if len(res.Form.Fields) != 2 {
		t.Errorf("fields = %+v", res.Form.Fields)
	}

	// submitting the form persists the record and returns to the list
	in = NewInput(true)
	in.Set("cmdinsert", "1")
	in.Set("____single", editorToken(0))
	in.Set("____save", "1")
	in.Set("dataname", "Smith")
	in.Set("dataage", "42")
	res = e.Process(ctx, peopleRequest(in))
	if res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	if res.Form != nil {
		t.Fatal("editor still open after save")
	}
	if res.List == nil || res.List.Count != 1 {
		t.Fatalf("list = %+v", res.List)
	}

	row := res.List.Rows[0]
	if row.Record.ID != 1 {
		t.Errorf("id = %d", row.Record.ID)
	}
	if got := row.Record.Values["name"]; got.Str != "Smith" {
		t.Errorf("name = %+v", got)
	}
	if got := row.Record.Values["age"]; got.Int != 42 {
		t.Errorf("age = %+v", got)
	}
}

func TestEditorValidationKeepsFormOpen(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if res := e.Process(ctx, peopleRequest(nil)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}

	in := NewInput(true)
	in.Set("cmdinsert", "1")
	in.Set("____single", editorToken(0))
	in.Set("____save", "1")
	in.Set("dataname", "Smith")
	in.Set("dataage", "not a number")
	res := e.Process(ctx, peopleRequest(in))
	if res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	if res.Form == nil {
		t.Fatal("editor closed despite the invalid field")
	}

	var ageErr string
	for _, f := range res.Form.Fields {
		if f.Column.Name == "age" {
			ageErr = f.Error
		}
	}
	if ageErr == "" {
		t.Error("age field carries no error")
	}

	// nothing was written
	count, err := e.RowCount(ctx, "people")
	if err != nil || count != 0 {
		t.Errorf("count = %d, err = %v", count, err)
	}
}

func TestDeleteRecord(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if res := e.Process(ctx, peopleRequest(nil)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	in := NewInput(true)
	in.Set("cmdinsert", "1")
	in.Set("____single", editorToken(0))
	in.Set("____save", "1")
	in.Set("dataname", "Smith")
	if res := e.Process(ctx, peopleRequest(in)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}

	in = NewInput(false)
	in.Set("cmddelete1", "1")
	res := e.Process(ctx, peopleRequest(in))
	if res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	if res.List == nil || res.List.Count != 0 {
		t.Fatalf("list = %+v", res.List)
	}

	entries, err := e.ChangeLog(ctx, "people")
	if err != nil {
		t.Fatal(err)
	}
	actions := map[string]bool{}
	for _, entry := range entries {
		actions[entry.Action] = true
	}
	if !actions[actionInsert] || !actions[actionDelete] {
		t.Errorf("logged actions = %v", actions)
	}
}

func TestUnauthorizedCommandLeavesNotice(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	req := peopleRequest(nil)
	req.Options.ACL = map[string]string{"mayinsert": "@NONE"}
	if res := e.Process(ctx, req); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}

	in := NewInput(true)
	in.Set("cmdinsert", "1")
	req = peopleRequest(in)
	req.Options.ACL = map[string]string{"mayinsert": "@NONE"}
	res := e.Process(ctx, req)
	if res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	if res.Form != nil {
		t.Error("editor opened without authorization")
	}
	if len(res.Messages) == 0 {
		t.Error("no notice for the refused command")
	}
	if res.List == nil {
		t.Error("list suppressed")
	}
}

func TestLocks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := testIdentity()
	bob := Identity{Name: "bob", Authenticated: true, SessionID: "sid2"}

	t.Run("foreign lock blocks", func(t *testing.T) {
		ok, err := e.obtainLock(ctx, &alice, "people", 5, false)
		if err != nil || !ok {
			t.Fatalf("ok = %v, err = %v", ok, err)
		}
		ok, err = e.obtainLock(ctx, &bob, "people", 5, false)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("bob obtained alice's lock")
		}
	})

	t.Run("own lock refreshes", func(t *testing.T) {
		ok, err := e.obtainLock(ctx, &alice, "people", 5, false)
		if err != nil || !ok {
			t.Errorf("ok = %v, err = %v", ok, err)
		}
	})

	t.Run("row lock blocks table lock", func(t *testing.T) {
		ok, err := e.obtainLock(ctx, &bob, "people", wholeTable, false)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("table lock obtained past a foreign row lock")
		}
	})

	t.Run("release frees the row", func(t *testing.T) {
		if err := e.releaseLock(ctx, &alice, "people", 5); err != nil {
			t.Fatal(err)
		}
		ok, err := e.obtainLock(ctx, &bob, "people", 5, false)
		if err != nil || !ok {
			t.Errorf("ok = %v, err = %v", ok, err)
		}
		if err := e.releaseLock(ctx, &bob, "people", 5); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("stale lock taken over", func(t *testing.T) {
		if _, err := e.obtainLock(ctx, &alice, "people", 9, false); err != nil {
			t.Fatal(err)
		}
		e.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { e.now = time.Now }()

		ok, err := e.obtainLock(ctx, &bob, "people", 9, false)
		if err != nil || !ok {
			t.Errorf("ok = %v, err = %v", ok, err)
		}
	})
}

func TestEditorNavigationSwitchesRecord(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if res := e.Process(ctx, peopleRequest(nil)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	for _, name := range []string{"Smith", "Jones"} {
		in := NewInput(true)
		in.Set("cmdinsert", "1")
		in.Set("____single", editorToken(0))
		in.Set("____save", "1")
		in.Set("dataname", name)
		if res := e.Process(ctx, peopleRequest(in)); res.Failure != nil {
			t.Fatalf("failure: %s", res.Failure.Message)
		}
	}

	// saving record 1 with the next command lands the editor on record 2
	in := NewInput(true)
	in.Set("cmdedit1", "1")
	in.Set("____single", editorToken(1))
	in.Set("____save", "1")
	in.Set("____nav", "N2")
	in.Set("dataname", "Smith")
	res := e.Process(ctx, peopleRequest(in))
	if res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	if res.Form == nil {
		t.Fatal("editor closed instead of switching")
	}
	if res.Form.RowID != 2 {
		t.Errorf("row = %d, want 2", res.Form.RowID)
	}
	if res.Form.Token != editorToken(2) {
		t.Errorf("token = %q", res.Form.Token)
	}

	var name string
	for _, f := range res.Form.Fields {
		if f.Column.Name == "name" {
			name = f.Value.Str
		}
	}
	if name != "Jones" {
		t.Errorf("name = %q", name)
	}
}

func TestEditLockedRowLeavesRecordUntouched(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if res := e.Process(ctx, peopleRequest(nil)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	in := NewInput(true)
	in.Set("cmdinsert", "1")
	in.Set("____single", editorToken(0))
	in.Set("____save", "1")
	in.Set("dataname", "Smith")
	if res := e.Process(ctx, peopleRequest(in)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}

	bob := Identity{Name: "bob", Authenticated: true, SessionID: "sid2"}
	if ok, err := e.obtainLock(ctx, &bob, "people", 1, false); err != nil || !ok {
		t.Fatalf("ok = %v, err = %v", ok, err)
	}

	in = NewInput(true)
	in.Set("cmdedit1", "1")
	in.Set("____single", editorToken(1))
	in.Set("____save", "1")
	in.Set("dataname", "Jones")
	res := e.Process(ctx, peopleRequest(in))
	if res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	if res.Form != nil {
		t.Error("editor opened on a foreign-locked row")
	}
	if len(res.Messages) == 0 {
		t.Error("no lock notice")
	}
	if res.List == nil || res.List.Count != 1 {
		t.Fatalf("list = %+v", res.List)
	}
	if got := res.List.Rows[0].Record.Values["name"]; got.Str != "Smith" {
		t.Errorf("name = %+v", got)
	}
}

func TestCheckValueKeepsStoredFile(t *testing.T) {
	e := newTestEngine(t)
	req := peopleRequest(nil)
	b := &block{e: e, req: req, table: "people"}
	col := &ColumnDef{Name: "photo", Format: FormatFile}

	stored := Value{Untouched: true}
	got, msg := b.checkValue(col, "", nil, stored)
	if msg != "" {
		t.Fatalf("msg = %q", msg)
	}
	if !got.Untouched {
		t.Error("stored file not retained")
	}

	// an explicit drop request clears the value
	got, msg = b.checkValue(col, "1", nil, Value{File: &FileValue{Name: "a", Data: []byte("x")}})
	if msg != "" {
		t.Fatalf("msg = %q", msg)
	}
	if !got.Null {
		t.Errorf("value = %+v", got)
	}
}

func TestIDAllocatorSurvivesDeletion(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if res := e.Process(ctx, peopleRequest(nil)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}

	insert := func() {
		in := NewInput(true)
		in.Set("cmdinsert", "1")
		in.Set("____single", editorToken(0))
		in.Set("____save", "1")
		in.Set("dataname", "x")
		if res := e.Process(ctx, peopleRequest(in)); res.Failure != nil {
			t.Fatalf("failure: %s", res.Failure.Message)
		}
	}

	insert()
	in := NewInput(false)
	in.Set("cmddelete1", "1")
	if res := e.Process(ctx, peopleRequest(in)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}
	insert()

	res := e.Process(ctx, peopleRequest(nil))
	if res.List == nil || len(res.List.Rows) != 1 {
		t.Fatalf("list = %+v", res.List)
	}
	// the deleted id 1 is never reused
	if got := res.List.Rows[0].Record.ID; got != 2 {
		t.Errorf("id = %d", got)
	}
}

func TestAdminSurface(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if res := e.Process(ctx, peopleRequest(nil)); res.Failure != nil {
		t.Fatalf("failure: %s", res.Failure.Message)
	}

	t.Run("user tables", func(t *testing.T) {
		tables, err := e.UserTables(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(tables) != 1 || tables[0].Name != "people" {
			t.Errorf("tables = %+v", tables)
		}
	})

	t.Run("engine tables", func(t *testing.T) {
		tables, err := e.EngineTables(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(tables) != 3 {
			t.Errorf("tables = %+v", tables)
		}
	})

	t.Run("dump refuses user tables", func(t *testing.T) {
		if _, err := e.DumpTable(ctx, "people"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("admin drop", func(t *testing.T) {
		ident := testIdentity()
		ident.Admin = true
		if err := e.AdminDrop(ctx, &ident, "people"); err != nil {
			t.Fatal(err)
		}
		exists, err := e.tableExists(ctx, e.db, "people")
		if err != nil || exists {
			t.Errorf("exists = %v, err = %v", exists, err)
		}
		entries, err := e.ChangeLog(ctx, "people")
		if err != nil || len(entries) == 0 {
			t.Fatalf("entries = %+v, err = %v", entries, err)
		}
		if entries[0].Action != actionDrop {
			t.Errorf("action = %q", entries[0].Action)
		}
	})
}
