package render

import (
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/wikitab/wikitab/internal/engine"
)

// filterOps lists the selectable filter operators in display order.
var filterOps = []struct {
	Op    string
	Label string
}{
	{"like", "contains"},
	{"nlike", "does not contain"},
	{"eq", "="},
	{"ne", "≠"},
	{"lt", "<"},
	{"le", "≤"},
	{"ge", "≥"},
	{"gt", ">"},
	{"isset", "is set"},
	{"isclear", "is clear"},
}

// filterRow renders the filter controls: one row per active component plus
// a blank one for adding the next condition.
func (r Renderer) filterRow(meta *engine.TableMeta, filter []engine.FilterComponent, index int) templ.Component {
	return component(func(w io.Writer) error {
		rows := append(append([]engine.FilterComponent{}, filter...), engine.FilterComponent{})

		if err := writef(w, `<div class="filter">`); err != nil {
			return err
		}
		for i, comp := range rows {
			if err := writef(w, `<div class="condition">`); err != nil {
				return err
			}

			if i > 0 {
				if err := writef(w, `<select name="%s">`, esc(Varname("searchmode"+strconv.Itoa(i), 0, index))); err != nil {
					return err
				}
				for _, mode := range []string{"AND", "OR"} {
					sel := ""
					if comp.Mode == mode {
						sel = ` selected="selected"`
					}
					if err := writef(w, `<option value="%s"%s>%s</option>`, mode, sel, mode); err != nil {
						return err
					}
				}
				if err := writef(w, `</select>`); err != nil {
					return err
				}
			}

			if err := writef(w, `<select name="%s"><option value=""></option>`,
				esc(Varname("searchcol"+strconv.Itoa(i), 0, index))); err != nil {
				return err
			}
			for _, col := range meta.Columns {
				sel := ""
				if comp.Column == col.Name {
					sel = ` selected="selected"`
				}
				label := col.Label
				if label == "" {
					label = col.Name
				}
				if err := writef(w, `<option value="%s"%s>%s</option>`,
					esc(col.Name), sel, esc(label)); err != nil {
					return err
				}
			}
			if err := writef(w, `</select>`); err != nil {
				return err
			}

			if err := writef(w, `<select name="%s">`, esc(Varname("searchop"+strconv.Itoa(i), 0, index))); err != nil {
				return err
			}
			for _, op := range filterOps {
				sel := ""
				if comp.Op == op.Op {
					sel = ` selected="selected"`
				}
				if err := writef(w, `<option value="%s"%s>%s</option>`, op.Op, sel, esc(op.Label)); err != nil {
					return err
				}
			}
			if err := writef(w, `</select>`); err != nil {
				return err
			}

			if err := writef(w, `<input type="text" name="%s" value="%s" /></div>`,
				esc(Varname("searcharg"+strconv.Itoa(i), 0, index)), esc(comp.Arg)); err != nil {
				return err
			}
		}

		return writef(w,
			`<button type="submit" name="%s" value="1">apply</button>`+
				`<button type="submit" name="%s" value="1">clear</button></div>`,
			esc(Varname("searchapply", 0, index)),
			esc(Varname("searchdrop", 0, index)))
	})
}
