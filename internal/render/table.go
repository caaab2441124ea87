package render

import (
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/wikitab/wikitab/internal/engine"
)

// Block renders one table block: inline notices, then either the error
// recovery form, the single-record editor or the record listing, all
// wrapped in a form posting back to the hosting page.
func (r Renderer) Block(res *engine.BlockResult) templ.Component {
	return component(func(w io.Writer) error {
		if err := writef(w,
			`<div class="wikitab"><form method="post" action="%s" enctype="multipart/form-data">`+
				`<input type="hidden" name="sectok" value="%s" />`,
			esc(r.Action), esc(r.Token)); err != nil {
			return err
		}

		for _, msg := range res.Messages {
			if err := writef(w, `<div class="error">%s</div>`, esc(msg)); err != nil {
				return err
			}
		}

		switch {
		case res.Failure != nil:
			if err := r.recovery(w, res); err != nil {
				return err
			}
		case res.Form != nil:
			if err := r.EditorFormView(res).Render(templCtx(), w); err != nil {
				return err
			}
		case res.List != nil:
			if err := r.listTable(w, res); err != nil {
				return err
			}
		}

		return writef(w, `</form></div>`)
	})
}

// recovery renders the error boundary: the failure text plus controls to
// reset the session state or return to the plain view.
func (r Renderer) recovery(w io.Writer, res *engine.BlockResult) error {
	return writef(w,
		`<div class="error">%s</div>`+
			`<button type="submit" name="%s" value="1">reset session state</button>`+
			`<button type="submit" name="%s" value="1">return to view</button>`,
		esc(res.Failure.Message),
		esc(Varname("cmdreset", 0, res.Index)),
		esc(Varname("view", 0, res.Index)))
}

// nextSort cycles a column's sort state: unsorted to ascending to
// descending and back to unsorted.
func nextSort(current, column string) string {
	switch strings.TrimSpace(current) {
	case column:
		return "!" + column
	case "!" + column:
		return "-"
	default:
		return column
	}
}

func (r Renderer) listTable(w io.Writer, res *engine.BlockResult) error {
	list := res.List
	index := res.Index

	if err := writef(w, `<table class="records"><thead>`); err != nil {
		return err
	}

	if list.ShowFilter {
		if err := writef(w, `<tr class="filter"><td colspan="%d">`, len(list.Columns)+2); err != nil {
			return err
		}
		if err := r.filterRow(res.Meta, list.Filter, index).Render(templCtx(), w); err != nil {
			return err
		}
		if err := writef(w, `</td></tr>`); err != nil {
			return err
		}
	}

	if err := writef(w, `<tr><th class="counter"></th>`); err != nil {
		return err
	}
	for _, col := range list.Columns {
		label := col.Label
		if hl := col.Options.HeaderLabel; hl != "" {
			label = hl
		}
		if label == "" {
			label = col.Name
		}

		if href := strings.TrimSpace(col.Options.HeaderLink); href != "" {
			if err := writef(w, `<th class="%s"><a href="%s">%s</a></th>`,
				esc(col.Format.String()), esc(href), esc(label)); err != nil {
				return err
			}
			continue
		}

		marker := ""
		switch strings.TrimSpace(list.Sort) {
		case col.Name:
			marker = " ▲"
		case "!" + col.Name:
			marker = " ▼"
		}
		if err := writef(w, `<th class="%s"><button type="submit" name="%s" value="1">%s%s</button></th>`,
			esc(col.Format.String()),
			esc(Varname("sort"+nextSort(list.Sort, col.Name), 0, index)),
			esc(label), marker); err != nil {
			return err
		}
	}
	if err := writef(w, `<th class="commands"></th></tr></thead><tbody>`); err != nil {
		return err
	}

	for nr, row := range list.Rows {
		classes := []string{}
		if nr == 0 {
			classes = append(classes, "first")
		}
		if nr == len(list.Rows)-1 {
			classes = append(classes, "last")
		}
		if nr%2 == 1 {
			classes = append(classes, "even")
		} else {
			classes = append(classes, "odd")
		}
		classes = append(classes, "row"+strconv.Itoa(nr+1))

		if err := writef(w, `<tr class="%s"><td class="counter">%d</td>`,
			strings.Join(classes, " "), list.Skip+nr+1); err != nil {
			return err
		}

		for i, col := range list.Columns {
			cell := r.cellHTML(res.Table, row.Record.ID, row.Record.Values[col.Name], col)

			if click, ok := row.Clicks[col.Name]; ok {
				switch click {
				case "edit", "inspect":
					cell = `<button type="submit" class="cell-link" name="` +
						esc(Varname("cmd"+click, row.Record.ID, index)) +
						`" value="1">` + cell + `</button>`
				default:
					cell = `<a href="` + esc(linkTemplate(click, ValueText(row.Record.Values[col.Name], col))) +
						`">` + cell + `</a>`
				}
			}

			if err := writef(w, `<td class="%s col%d">%s</td>`,
				esc(col.Format.String()), i+1, cell); err != nil {
				return err
			}
		}

		if err := writef(w, `<td class="commands">`); err != nil {
			return err
		}
		for _, action := range row.Actions {
			confirm := ""
			if action == "delete" {
				confirm = ` onclick="return confirm('really delete this record?');"`
			}
			if err := writef(w, `<button type="submit" class="icon-cmd %s" name="%s" value="1"%s>%s</button>`,
				esc(action), esc(Varname("cmd"+action, row.Record.ID, index)), confirm, esc(action)); err != nil {
				return err
			}
		}
		if err := writef(w, `</td></tr>`); err != nil {
			return err
		}
	}
	if err := writef(w, `</tbody></table>`); err != nil {
		return err
	}

	if !list.ListAll {
		if err := r.pager(index, list.Count, list.Skip, list.Num, list.PagerRadius, list.PageSizes).Render(templCtx(), w); err != nil {
			return err
		}
	}

	if len(list.Actions) > 0 {
		if err := writef(w, `<div class="table-commands">`); err != nil {
			return err
		}
		for _, action := range list.Actions {
			var err error
			switch action {
			case "insert":
				err = writef(w, `<button type="submit" name="%s" value="1">new record</button>`,
					esc(Varname("cmdinsert", 0, index)))
			case "drop":
				err = writef(w, `<button type="submit" name="%s" value="1" onclick="return confirm('really drop this table?');">drop table</button>`,
					esc(Varname("cmddrop", 0, index)))
			default:
				if r.Export != nil {
					err = writef(w, `<a class="export" href="%s">%s</a>`,
						esc(r.Export(action, res.Table)), esc(action))
				}
			}
			if err != nil {
				return err
			}
		}
		if err := writef(w, `</div>`); err != nil {
			return err
		}
	}
	return nil
}
