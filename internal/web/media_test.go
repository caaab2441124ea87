package web

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/wikitab/wikitab/internal/engine"
)

func TestRowMediaDenied(t *testing.T) {
	sel := rowSelector{
		Table:    "people",
		Column:   "photo",
		IDColumn: "id",
		RowID:    3,
		Page:     "start",
		User:     "alice",
		Addr:     "10.0.0.1",
	}

	tests := []struct {
		name  string
		query string
		addr  string
		want  int
	}{
		{
			name:  "missing token",
			query: "a=" + url.QueryEscape(sel.encode()),
			addr:  "10.0.0.1",
			want:  http.StatusForbidden,
		},
		{
			name:  "wrong origin",
			query: "a=" + url.QueryEscape(sel.encode()) + "&b=deadbeef",
			addr:  "192.0.2.9",
			want:  http.StatusForbidden,
		},
		{
			name:  "garbled selector",
			query: "a=%21%21&b=deadbeef",
			addr:  "10.0.0.1",
			want:  http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{}
			r := httptest.NewRequest(http.MethodGet, "/media?"+tt.query, nil)
			w := httptest.NewRecorder()

			s.serveRowMedia(w, r, "sid", engine.Identity{RemoteAddr: tt.addr})

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestSplitBlob(t *testing.T) {
	tests := []struct {
		name     string
		blob     string
		wantMIME string
		wantName string
		wantData string
		wantErr  bool
	}{
		{"full triple", "image/png|pic.png|rawbytes", "image/png", "pic.png", "rawbytes", false},
		{"no file name", "text/plain|payload", "text/plain", "", "payload", false},
		{"untyped", "no separators here", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mimeType, name, data, err := splitBlob([]byte(tt.blob))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if mimeType != tt.wantMIME || name != tt.wantName || string(data) != tt.wantData {
				t.Errorf("got %q %q %q", mimeType, name, data)
			}
		})
	}
}
