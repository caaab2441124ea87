package web

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wikitab/wikitab/internal/config"
	"github.com/wikitab/wikitab/internal/engine"
)

func TestParseBlockHeader(t *testing.T) {
	t.Run("table and options", func(t *testing.T) {
		b := parseBlockHeader(` staff sort=!name rowsperpage=25 width=600 readonly`)
		if b.table != "staff" {
			t.Errorf("table = %q", b.table)
		}
		if b.options.Sort != "!name" {
			t.Errorf("sort = %q", b.options.Sort)
		}
		if b.options.RowsPerPage != 25 {
			t.Errorf("rowsperpage = %d", b.options.RowsPerPage)
		}
		if b.options.Width != 600 {
			t.Errorf("width = %d", b.options.Width)
		}
		if !b.options.ReadOnly {
			t.Error("readonly not set")
		}
	})

	t.Run("capabilities", func(t *testing.T) {
		b := parseBlockHeader(`staff mayedit=@users,!bob maydelete`)
		if b.options.ACL["mayedit"] != "@users,!bob" {
			t.Errorf("mayedit = %q", b.options.ACL["mayedit"])
		}
		// a bare capability token grants it to everyone
		if b.options.ACL["maydelete"] != "@ALL" {
			t.Errorf("maydelete = %q", b.options.ACL["maydelete"])
		}
	})

	t.Run("quoted filter value", func(t *testing.T) {
		b := parseBlockHeader(`staff filter="name like smith"`)
		if b.options.BaseFilter != "name like smith" {
			t.Errorf("filter = %q", b.options.BaseFilter)
		}
	})
}

func TestSplitHeaderFields(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "a b c", []string{"a", "b", "c"}},
		{"collapsed whitespace", "  a \t b  ", []string{"a", "b"}},
		{"quoted value", `sort="a b" x`, []string{"sort=a b", "x"}},
		{"single quotes", `f='x y'`, []string{"f=x y"}},
		{"escaped quote", `f="say \"hi\""`, []string{`f=say "hi"`}},
		{"empty quoted field kept", `"" x`, []string{"", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitHeaderFields(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("field %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPageStoreLoad(t *testing.T) {
	dir := t.TempDir()
	content := `Welcome.

<database staff mayedit=@users>
name, text, Name
age, int
</database>

Between the tables.

<database log readonly>
entry, text
</database>`
	if err := os.WriteFile(filepath.Join(dir, "start.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	ps := &pageStore{dir: dir}

	p, err := ps.load("start")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.blocks) != 2 {
		t.Fatalf("blocks = %d", len(p.blocks))
	}
	if p.blocks[0].table != "staff" || p.blocks[0].index != 0 {
		t.Errorf("block 0 = %+v", p.blocks[0])
	}
	if p.blocks[1].table != "log" || p.blocks[1].index != 1 {
		t.Errorf("block 1 = %+v", p.blocks[1])
	}
	if p.blocks[0].definition != "name, text, Name\nage, int" {
		t.Errorf("definition = %q", p.blocks[0].definition)
	}
	if p.revision == "" {
		t.Error("no revision")
	}

	t.Run("revision tracks content", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "start.txt"), []byte(content+"\nmore"), 0o644); err != nil {
			t.Fatal(err)
		}
		p2, err := ps.load("start")
		if err != nil {
			t.Fatal(err)
		}
		if p2.revision == p.revision {
			t.Error("revision unchanged after edit")
		}
	})

	t.Run("unterminated block", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "open.txt"), []byte("<database t>\na, text"), 0o644); err != nil {
			t.Fatal(err)
		}
		p, err := ps.load("open")
		if err != nil {
			t.Fatal(err)
		}
		if len(p.blocks) != 1 || p.blocks[0].definition != "a, text" {
			t.Errorf("blocks = %+v", p.blocks)
		}
	})

	t.Run("missing page", func(t *testing.T) {
		if _, err := ps.load("nosuch"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("bad names rejected", func(t *testing.T) {
		for _, name := range []string{"../etc/passwd", "UPPER", "a b", ""} {
			if _, err := ps.load(name); err == nil {
				t.Errorf("load(%q) succeeded", name)
			}
		}
	})
}

func TestGroupInputs(t *testing.T) {
	t.Run("trusted fields land on their block", func(t *testing.T) {
		fields := []formField{
			{name: "sectok", value: "tok"},
			{name: "db2dodataname[0]", value: "Smith"},
			{name: "db2docmdedit17[1]", value: "1"},
			{name: "unrelated", value: "x"},
		}
		inputs := groupInputs(fields, "tok")
		if inputs[0].Get("dataname") != "Smith" {
			t.Errorf("block 0 dataname = %q", inputs[0].Get("dataname"))
		}
		if inputs[1].Get("cmdedit17") != "1" {
			t.Errorf("block 1 cmdedit17 = %q", inputs[1].Get("cmdedit17"))
		}
		if len(inputs) != 2 {
			t.Errorf("blocks = %d", len(inputs))
		}
	})

	t.Run("untrusted admits commands only", func(t *testing.T) {
		fields := []formField{
			{name: "db2docmdedit17[0]", value: "1"},
			{name: "db2dodataname[0]", value: "Smith"},
		}
		inputs := groupInputs(fields, "tok")
		if inputs[0].Get("cmdedit17") != "1" {
			t.Error("command field dropped")
		}
		if inputs[0].Get("dataname") != "" {
			t.Error("data field admitted without the token")
		}
	})

	t.Run("stale token is untrusted", func(t *testing.T) {
		fields := []formField{
			{name: "sectok", value: "stale"},
			{name: "db2dodataname[0]", value: "Smith"},
		}
		inputs := groupInputs(fields, "tok")
		if inputs[0].Get("dataname") != "" {
			t.Error("data field admitted with a stale token")
		}
	})

	t.Run("uploads bind to data fields", func(t *testing.T) {
		up := &engine.FileValue{MIME: "image/png", Name: "a.png", Data: []byte{1}}
		fields := []formField{
			{name: "sectok", value: "tok"},
			{name: "db2dodataphoto[0]", upload: up},
		}
		inputs := groupInputs(fields, "tok")
		if inputs[0].Upload("photo") != up {
			t.Error("upload not routed to its column")
		}
	})
}

func TestAppendURLEncoded(t *testing.T) {
	fields := appendURLEncoded(nil, "a=1&b=x%20y&flag&=skipme&c=")
	want := []formField{
		{name: "a", value: "1"},
		{name: "b", value: "x y"},
		{name: "flag", value: ""},
		{name: "", value: "skipme"},
		{name: "c", value: ""},
	}
	if len(fields) != len(want) {
		t.Fatalf("fields = %+v", fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %+v, want %+v", i, fields[i], want[i])
		}
	}
}

func TestPageEnabled(t *testing.T) {
	srv := func(enableAll bool, patterns ...string) *Server {
		cfg := &config.Config{}
		cfg.Pages.EnableAll = enableAll
		cfg.Pages.Enabled = patterns
		return &Server{cfg: cfg}
	}

	tests := []struct {
		name string
		s    *Server
		page string
		want bool
	}{
		{"enable all", srv(true), "anything", true},
		{"no patterns", srv(false), "start", false},
		{"exact", srv(false, "start"), "start", true},
		{"glob", srv(false, "staff/*"), "staff/list", true},
		{"glob miss", srv(false, "staff/*"), "other/list", false},
		{"regex", srv(false, "/^wiki:/"), "wiki:tables", true},
		{"regex miss", srv(false, "/^wiki:/"), "notes", false},
		{"blank pattern ignored", srv(false, "  "), "start", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.pageEnabled(tt.page); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
