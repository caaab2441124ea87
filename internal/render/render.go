// Package render turns engine results into HTML components and the export
// encodings (print view, CSV). Components are built programmatically on
// the templ runtime so markup stays a pure function of the engine output.
package render

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// MediaLink resolves the URL serving the stored file of one cell. A nil
// MediaLink renders file cells as plain text.
type MediaLink func(table, column string, rowID int64) string

// Renderer renders table blocks. The zero value is usable and renders
// without media links or export controls.
type Renderer struct {
	Media MediaLink

	// Draft resolves the URL serving an editor's pending upload of one
	// column. Nil renders pending uploads as plain text.
	Draft func(column string) string

	// Action is the form post target, normally the hosting page URL.
	Action string

	// Token is the request integrity token included in every form.
	Token string

	// Export resolves the URL of an export surface ("print", "csv",
	// "log") for a table. Nil hides the export controls.
	Export func(kind, table string) string
}

// Varname builds the form field name addressing one block instance, so
// several blocks on a page never collide: prefix, inner name, optional row
// id, block index.
func Varname(name string, rowID int64, index int) string {
	if rowID != 0 {
		name += strconv.FormatInt(rowID, 10)
	}
	return "db2do" + name + "[" + strconv.Itoa(index) + "]"
}

func component(fn func(w io.Writer) error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return fn(w)
	})
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func esc(s string) string { return templ.EscapeString(s) }

// templCtx is the context handed to nested components; nothing here is
// context-sensitive.
func templCtx() context.Context { return context.Background() }
