package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wikitab/wikitab/internal/engine"
)

func TestVarname(t *testing.T) {
	tests := []struct {
		name  string
		field string
		rowID int64
		index int
		want  string
	}{
		{"plain", "save", 0, 0, "db2dosave[0]"},
		{"block index", "sort", 0, 2, "db2dosort[2]"},
		{"row id appended", "cmdedit", 17, 1, "db2docmdedit17[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Varname(tt.field, tt.rowID, tt.index); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextSort(t *testing.T) {
	tests := []struct {
		name    string
		current string
		want    string
	}{
		{"unsorted to ascending", "", "name"},
		{"ascending to descending", "name", "!name"},
		{"descending to unsorted", "!name", "-"},
		{"other column resets", "age", "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextSort(tt.current, "name"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPagerLinks(t *testing.T) {
	t.Run("single page suppressed", func(t *testing.T) {
		if links := PagerLinks(8, 0, 10, 3); links != nil {
			t.Errorf("links = %+v", links)
		}
	})

	t.Run("first page", func(t *testing.T) {
		links := PagerLinks(100, 0, 10, 2)
		// no back controls, pages 1..3, gap, forward controls
		if links[0].Label != "1" || !links[0].Current {
			t.Fatalf("links = %+v", links)
		}
		last := links[len(links)-1]
		if last.Label != ">|" || last.Skip != 90 {
			t.Errorf("last = %+v", last)
		}
		gap := false
		for _, l := range links {
			if l.Gap {
				gap = true
			}
		}
		if !gap {
			t.Error("expected a gap marker toward the far pages")
		}
	})

	t.Run("middle page window", func(t *testing.T) {
		links := PagerLinks(100, 50, 10, 1)
		want := []string{"|<", "<", "…", "5", "6", "7", "…", ">", ">|"}
		if len(links) != len(want) {
			t.Fatalf("links = %+v", links)
		}
		for i, label := range want {
			if links[i].Label != label {
				t.Errorf("link %d = %q, want %q", i, links[i].Label, label)
			}
		}
		if !links[4].Current || links[4].Skip != 50 {
			t.Errorf("current = %+v", links[4])
		}
		if links[1].Skip != 40 || links[7].Skip != 60 {
			t.Errorf("prev/next = %+v / %+v", links[1], links[7])
		}
	})

	t.Run("last page", func(t *testing.T) {
		links := PagerLinks(100, 90, 10, 2)
		last := links[len(links)-1]
		if last.Label != "10" || !last.Current {
			t.Errorf("last = %+v", last)
		}
	})
}

func TestCSV(t *testing.T) {
	t.Run("field quoting", func(t *testing.T) {
		if got := csvField(`say "hi"`); got != `"say ""hi"""` {
			t.Errorf("got %q", got)
		}
		if got := csvField(""); got != `""` {
			t.Errorf("got %q", got)
		}
	})

	t.Run("listing", func(t *testing.T) {
		name := &engine.ColumnDef{Name: "name", Format: engine.FormatText, Label: "Name"}
		age := &engine.ColumnDef{Name: "age", Format: engine.FormatInteger}
		res := &engine.BlockResult{
			List: &engine.ListView{
				Columns: []*engine.ColumnDef{name, age},
				Rows: []engine.RowView{
					{Record: engine.Record{ID: 1, Values: map[string]engine.Value{
						"name": engine.StrValue("Smith; J"),
						"age":  engine.IntValue(40),
					}}},
					{Record: engine.Record{ID: 2, Values: map[string]engine.Value{
						"name": engine.NullValue(),
						"age":  engine.IntValue(7),
					}}},
				},
			},
		}

		var b strings.Builder
		if err := WriteCSV(&b, res); err != nil {
			t.Fatal(err)
		}
		want := "\"Name\";\"age\"\n\"Smith; J\";\"40\"\n\"\";\"7\"\n"
		if b.String() != want {
			t.Errorf("got %q, want %q", b.String(), want)
		}
	})

	t.Run("change log", func(t *testing.T) {
		var b strings.Builder
		err := WriteLogCSV(&b, []engine.LogEntry{
			{Table: "people", RowID: 3, Action: "update", User: "alice", Time: 0},
			{Table: "people", Action: "drop", User: "root", Time: 0},
		})
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
		if len(lines) != 3 {
			t.Fatalf("lines = %q", lines)
		}
		if lines[0] != `"time";"table";"record";"action";"user"` {
			t.Errorf("header = %q", lines[0])
		}
		if !strings.Contains(lines[1], `"3";"update";"alice"`) {
			t.Errorf("row = %q", lines[1])
		}
		// whole-table actions carry no record id
		if !strings.Contains(lines[2], `"";"drop";"root"`) {
			t.Errorf("row = %q", lines[2])
		}
	})
}

func TestValueText(t *testing.T) {
	tests := []struct {
		name string
		v    engine.Value
		col  *engine.ColumnDef
		want string
	}{
		{"null", engine.NullValue(), &engine.ColumnDef{Format: engine.FormatText}, ""},
		{"bool set", engine.BoolValue(true), &engine.ColumnDef{Format: engine.FormatBool}, "✔"},
		{"bool clear", engine.BoolValue(false), &engine.ColumnDef{Format: engine.FormatBool}, ""},
		{"integer", engine.IntValue(-3), &engine.ColumnDef{Format: engine.FormatInteger}, "-3"},
		{"real trims zeros", engine.FloatValue(2.5), &engine.ColumnDef{Format: engine.FormatReal}, "2.5"},
		{"time passthrough", engine.StrValue("09:05:00"), &engine.ColumnDef{Format: engine.FormatTime}, "09:05:00"},
		{"zero date blank", engine.IntValue(0), &engine.ColumnDef{Format: engine.FormatDate}, ""},
		{
			// stored timestamps are noon-pinned local time, so rendering
			// must stay in local time to round-trip the date
			"date",
			engine.IntValue(time.Date(2024, 3, 7, 12, 0, 0, 0, time.Local).Unix()),
			&engine.ColumnDef{Format: engine.FormatDate},
			"2024-03-07",
		},
		{
			"datetime",
			engine.IntValue(time.Date(2024, 3, 7, 8, 30, 15, 0, time.Local).Unix()),
			&engine.ColumnDef{Format: engine.FormatDatetime},
			"2024-03-07 08:30:15",
		},
		{
			"enum label",
			engine.IntValue(1),
			&engine.ColumnDef{Format: engine.FormatEnum, Options: engine.ColumnOptions{Enum: []string{"new", "open"}}},
			"open",
		},
		{
			"enum out of range",
			engine.IntValue(5),
			&engine.ColumnDef{Format: engine.FormatEnum, Options: engine.ColumnOptions{Enum: []string{"new"}}},
			"",
		},
		{
			"related label",
			engine.IntValue(7),
			&engine.ColumnDef{Format: engine.FormatRelated, Options: engine.ColumnOptions{Related: []engine.RelatedChoice{{ID: 7, Label: "Smith"}}}},
			"Smith",
		},
		{
			"file name",
			engine.Value{File: &engine.FileValue{MIME: "text/plain", Name: "a.txt"}},
			&engine.ColumnDef{Format: engine.FormatFile},
			"a.txt",
		},
		{"untouched file", engine.Value{Untouched: true}, &engine.ColumnDef{Format: engine.FormatFile}, "(file)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValueText(tt.v, tt.col); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEditorFormNavControl(t *testing.T) {
	res := &engine.BlockResult{
		Table: "people",
		Index: 1,
		Form: &engine.EditorForm{
			RowID: 3,
			Token: "tok",
			Nav: []engine.NavEntry{
				{Label: "return to list"},
				{Command: "P2", Label: "previous"},
				{Command: "N4", Label: "next"},
			},
		},
	}

	var buf bytes.Buffer
	if err := (Renderer{}).EditorFormView(res).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	html := buf.String()

	// every entry posts under the plain field name the editor reads
	if got := strings.Count(html, `name="db2do____nav[1]"`); got != 3 {
		t.Errorf("nav controls = %d, want 3\n%s", got, html)
	}
	if strings.Contains(html, "____nav0") || strings.Contains(html, "____nav1") {
		t.Error("nav control carries a per-entry suffix")
	}
	for _, cmd := range []string{`value="P2"`, `value="N4"`} {
		if !strings.Contains(html, cmd) {
			t.Errorf("missing %s", cmd)
		}
	}
}
