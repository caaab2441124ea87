package render

import (
	"strconv"
	"strings"
	"time"

	"github.com/wikitab/wikitab/internal/engine"
)

// ValueText renders an internal value to its display text. The result is
// unescaped; callers escape before emitting HTML.
func ValueText(v engine.Value, col *engine.ColumnDef) string {
	if v.Null {
		return ""
	}

	switch col.Format {
	case engine.FormatBool:
		if v.Bool {
			return "✔"
		}
		return ""

	case engine.FormatDate:
		if v.Int == 0 {
			return ""
		}
		return time.Unix(v.Int, 0).Format("2006-01-02")

	case engine.FormatDatetime:
		if v.Int == 0 {
			return ""
		}
		return time.Unix(v.Int, 0).Format("2006-01-02 15:04:05")

	case engine.FormatTime:
		return v.Str

	case engine.FormatEnum:
		if idx := int(v.Int); idx >= 0 && idx < len(col.Options.Enum) {
			return col.Options.Enum[idx]
		}
		return ""

	case engine.FormatRelated:
		for _, choice := range col.Options.Related {
			if choice.ID == v.Int {
				return choice.Label
			}
		}
		return strconv.FormatInt(v.Int, 10)

	case engine.FormatFile, engine.FormatImage:
		if v.File != nil {
			return v.File.Name
		}
		if v.Untouched {
			return "(file)"
		}
		return ""

	case engine.FormatInteger:
		return strconv.FormatInt(v.Int, 10)

	case engine.FormatReal:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)

	case engine.FormatMonetary:
		return v.Str

	case engine.FormatACL:
		return v.Str
	}

	return v.Str
}

// cellHTML renders one table cell's inner HTML: the escaped display text,
// wrapped in the anchor the format calls for.
func (r Renderer) cellHTML(table string, rowID int64, v engine.Value, col *engine.ColumnDef) string {
	text := esc(ValueText(v, col))

	switch col.Format {
	case engine.FormatURL:
		if !v.Null && v.Str != "" {
			return `<a href="` + esc(v.Str) + `" rel="nofollow">` + text + `</a>`
		}

	case engine.FormatEmail:
		if !v.Null && v.Str != "" {
			return `<a href="mailto:` + esc(v.Str) + `">` + text + `</a>`
		}

	case engine.FormatFile, engine.FormatImage:
		var href string
		switch {
		case v.File != nil && r.Draft != nil:
			href = r.Draft(col.Name)
		case v.Untouched && r.Media != nil && rowID != 0:
			href = r.Media(table, col.Name, rowID)
		}
		if href != "" {
			if col.Format == engine.FormatImage {
				return `<a href="` + esc(href) + `"><img src="` + esc(withQuery(href, "t=120x")) +
					`" alt="` + text + `" /></a>`
			}
			return `<a href="` + esc(href) + `">` + text + `</a>`
		}
	}

	return text
}

// withQuery appends a query parameter to a URL that may already carry a
// query string.
func withQuery(href, param string) string {
	if strings.Contains(href, "?") {
		return href + "&" + param
	}
	return href + "?" + param
}

// linkTemplate expands a free-form click target: %{value} style markup was
// already resolved by the engine, here only the cell value placeholder
// remains.
func linkTemplate(href, cell string) string {
	return strings.ReplaceAll(href, "%{value}", cell)
}
