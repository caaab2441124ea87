package render

import (
	"io"

	"github.com/wikitab/wikitab/internal/engine"
)

// WritePrintView writes a standalone HTML snapshot of the whole table,
// without any controls or paging.
func (r Renderer) WritePrintView(w io.Writer, res *engine.BlockResult) error {
	list := res.List

	if err := writef(w,
		`<!DOCTYPE html><html><head><meta charset="utf-8" /><title>%s</title>`+
			`<style>table{border-collapse:collapse}td,th{border:1px solid #999;padding:2px 6px}</style>`+
			`</head><body><h1>%s</h1><table><thead><tr><th></th>`,
		esc(res.Table), esc(res.Table)); err != nil {
		return err
	}

	for _, col := range list.Columns {
		label := col.Label
		if label == "" {
			label = col.Name
		}
		if err := writef(w, `<th>%s</th>`, esc(label)); err != nil {
			return err
		}
	}
	if err := writef(w, `</tr></thead><tbody>`); err != nil {
		return err
	}

	for nr, row := range list.Rows {
		if err := writef(w, `<tr><td class="counter">%d</td>`, nr+1); err != nil {
			return err
		}
		for _, col := range list.Columns {
			if err := writef(w, `<td>%s</td>`,
				esc(ValueText(row.Record.Values[col.Name], col))); err != nil {
				return err
			}
		}
		if err := writef(w, `</tr>`); err != nil {
			return err
		}
	}
	return writef(w, `</tbody></table></body></html>`)
}
