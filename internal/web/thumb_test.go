package web

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseThumbSpec(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		wantW int
		wantH int
	}{
		{"empty default", "", 200, 150},
		{"both", "120x90", 120, 90},
		{"width only", "120", 120, 0},
		{"width only with x", "120x", 120, 0},
		{"height only", "x90", 0, 90},
		{"garbage", "axb", 0, 0},
		{"negative clamped", "-5x-5", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := parseThumbSpec(tt.in)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestThumbnail(t *testing.T) {
	t.Run("shrinks into the box", func(t *testing.T) {
		data, mimeType, ok := thumbnail(pngBytes(t, 400, 200), "image/png", "100x100")
		if !ok {
			t.Fatal("expected a thumbnail")
		}
		if mimeType != "image/png" {
			t.Errorf("mime = %q", mimeType)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Width != 100 || cfg.Height != 50 {
			t.Errorf("size = %dx%d, want 100x50", cfg.Width, cfg.Height)
		}
	})

	t.Run("open height follows aspect", func(t *testing.T) {
		data, _, ok := thumbnail(pngBytes(t, 400, 300), "image/png", "100")
		if !ok {
			t.Fatal("expected a thumbnail")
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Width != 100 || cfg.Height != 75 {
			t.Errorf("size = %dx%d, want 100x75", cfg.Width, cfg.Height)
		}
	})

	t.Run("already fitting left alone", func(t *testing.T) {
		if _, _, ok := thumbnail(pngBytes(t, 50, 50), "image/png", "100x100"); ok {
			t.Error("small image must not be rescaled")
		}
	})

	t.Run("non image data", func(t *testing.T) {
		if _, _, ok := thumbnail([]byte("plain text"), "text/plain", "100x100"); ok {
			t.Error("non-image data must be ignored")
		}
	})

	t.Run("corrupt image data", func(t *testing.T) {
		if _, _, ok := thumbnail([]byte("not a png"), "image/png", "100x100"); ok {
			t.Error("undecodable data must be ignored")
		}
	})
}
