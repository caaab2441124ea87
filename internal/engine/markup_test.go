package engine

import (
	"testing"
	"time"
)

func TestFormatDateTokens(t *testing.T) {
	now := time.Date(2024, 3, 7, 8, 5, 9, 0, time.Local)

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{"iso date", "Y-m-d", "2024-03-07"},
		{"short year", "y", "24"},
		{"unpadded", "n/j", "3/7"},
		{"clock", "H:i:s", "08:05:09"},
		{"literals pass through", "d.m.Y / H:i", "07.03.2024 / 08:05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDateTokens(tt.format, now); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplaceMarkup(t *testing.T) {
	e := &Engine{now: func() time.Time {
		return time.Date(2024, 3, 7, 8, 5, 9, 0, time.Local)
	}}
	ident := &Identity{Name: "alice", Groups: []string{"staff", "wiki"}}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no markup untouched", "plain text", "plain text"},
		{"user", "hello %{wiki.user}", "hello alice"},
		{"groups", "%{wiki.groups}", "staff,wiki"},
		{"page", "back to %{wiki.page}", "back to notes"},
		{"date", "%{date.Y-m-d}", "2024-03-07"},
		{"var lookup", "%{color}", "green"},
		{"unknown empty", "x%{nosuch}y", "xy"},
	}
	vars := map[string]string{"color": "green"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.replaceMarkup(tt.in, "notes", ident, vars); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEditorToken(t *testing.T) {
	// md5("17")
	if got := editorToken(17); got != "70efdf2ec9b086079795c442636b55fb" {
		t.Errorf("token = %q", got)
	}
	if editorToken(1) == editorToken(2) {
		t.Error("tokens must differ per record")
	}
}
