package web

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// thumbnail scales image data down to fit a WxH box, preserving the aspect
// ratio. The spec is "WxH" with either dimension optional; an empty spec
// falls back to 200x150. Non-image data and images already fitting the box
// are returned unchanged via ok=false.
func thumbnail(data []byte, mimeType, spec string) ([]byte, string, bool) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", false
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false
	}

	width, height := parseThumbSpec(spec)
	bounds := src.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	if sw == 0 || sh == 0 {
		return nil, "", false
	}

	// derive the open dimension from the aspect ratio
	if width == 0 && height == 0 {
		width = 200
	}
	if width == 0 {
		width = height * sw / sh
	}
	if height == 0 {
		height = width * sh / sw
	}
	if width <= 0 || height <= 0 {
		return nil, "", false
	}

	// shrink further to preserve aspect within the box
	if width*sh > height*sw {
		width = height * sw / sh
	} else {
		height = width * sh / sw
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	if width >= sw && height >= sh {
		// already fits, keep the original
		return nil, "", false
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "gif":
		err = gif.Encode(&buf, dst, nil)
		mimeType = "image/gif"
	case "jpeg":
		err = jpeg.Encode(&buf, dst, nil)
		mimeType = "image/jpeg"
	default:
		err = png.Encode(&buf, dst)
		mimeType = "image/png"
	}
	if err != nil {
		return nil, "", false
	}
	return buf.Bytes(), mimeType, true
}

// parseThumbSpec reads "WxH", "W" or "xH".
func parseThumbSpec(spec string) (int, int) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	if spec == "" {
		return 200, 150
	}
	ws, hs, _ := strings.Cut(spec, "x")
	w, _ := strconv.Atoi(strings.TrimSpace(ws))
	h, _ := strconv.Atoi(strings.TrimSpace(hs))
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return w, h
}
