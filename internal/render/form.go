package render

import (
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/wikitab/wikitab/internal/engine"
)

// EditorFormView renders the single-record editor. The form posts back to
// the hosting page; hidden fields re-address the block instance and the
// record the editor was opened on.
func (r Renderer) EditorFormView(res *engine.BlockResult) templ.Component {
	form := res.Form
	return component(func(w io.Writer) error {
		if err := writef(w, `<div class="record-editor">`); err != nil {
			return err
		}

		cmd := "edit"
		if form.ReadOnly {
			cmd = "inspect"
		}
		if form.RowID == 0 {
			cmd = "insert"
		}
		hidden := [][2]string{
			{Varname("cmd"+cmd, form.RowID, res.Index), "1"},
			{Varname("____single", 0, res.Index), form.Token},
			{Varname("____idx", 0, res.Index), strconv.Itoa(form.Index)},
		}
		for _, h := range hidden {
			if err := writef(w, `<input type="hidden" name="%s" value="%s" />`,
				esc(h[0]), esc(h[1])); err != nil {
				return err
			}
		}

		if err := writef(w, `<table class="fields">`); err != nil {
			return err
		}
		for _, field := range form.Fields {
			if err := r.editorField(w, res, field, form.ReadOnly); err != nil {
				return err
			}
		}
		if err := writef(w, `</table>`); err != nil {
			return err
		}

		if err := writef(w, `<div class="controls">`); err != nil {
			return err
		}
		if !form.ReadOnly {
			if err := writef(w, `<button type="submit" name="%s" value="1">save</button>`,
				esc(Varname("____save", 0, res.Index))); err != nil {
				return err
			}
		}
		if err := writef(w, `<button type="submit" name="%s" value="1">cancel</button>`,
			esc(Varname("____cancel", 0, res.Index))); err != nil {
			return err
		}
		for _, nav := range form.Nav {
			class := ""
			if nav.Active {
				class = ` class="active"`
			}
			if err := writef(w, `<button type="submit"%s name="%s" value="%s">%s</button>`,
				class, esc(Varname("____nav", 0, res.Index)),
				esc(nav.Command), esc(nav.Label)); err != nil {
				return err
			}
		}
		return writef(w, `</div></div>`)
	})
}

func (r Renderer) editorField(w io.Writer, res *engine.BlockResult, field engine.EditorField, readOnly bool) error {
	col := field.Column
	label := col.Label
	if label == "" {
		label = col.Name
	}

	required := ""
	if col.Options.Required {
		required = ` <span class="required">*</span>`
	}
	if err := writef(w, `<tr class="%s"><th>%s%s</th><td>`,
		esc(col.Format.String()), esc(label), required); err != nil {
		return err
	}

	if readOnly || col.Options.ReadOnly || col.Options.Aliasing != "" {
		if err := writef(w, `<span class="value">%s</span>`,
			r.cellHTML(res.Table, res.Form.RowID, field.Value, col)); err != nil {
			return err
		}
	} else if err := r.editorInput(w, res, field); err != nil {
		return err
	}

	if field.Error != "" {
		if err := writef(w, `<div class="field-error">%s</div>`, esc(field.Error)); err != nil {
			return err
		}
	}
	return writef(w, `</td></tr>`)
}

func (r Renderer) editorInput(w io.Writer, res *engine.BlockResult, field engine.EditorField) error {
	col := field.Column
	name := Varname("data"+col.Name, 0, res.Index)
	tab := ""
	if col.Options.TabIndex > 0 {
		tab = ` tabindex="` + strconv.Itoa(col.Options.TabIndex) + `"`
	}

	switch col.Format {
	case engine.FormatBool:
		checked := ""
		if field.Value.Bool {
			checked = ` checked="checked"`
		}
		return writef(w, `<input type="checkbox" name="%s" value="1"%s%s />`,
			esc(name), checked, tab)

	case engine.FormatEnum, engine.FormatRelated:
		if err := writef(w, `<select name="%s"%s><option value=""></option>`, esc(name), tab); err != nil {
			return err
		}
		if col.Format == engine.FormatEnum {
			for i, option := range col.Options.Enum {
				sel := ""
				if !field.Value.Null && field.Value.Int == int64(i) {
					sel = ` selected="selected"`
				}
				if err := writef(w, `<option value="%s"%s>%s</option>`,
					esc(option), sel, esc(option)); err != nil {
					return err
				}
			}
		} else {
			for _, choice := range col.Options.Related {
				sel := ""
				if !field.Value.Null && field.Value.Int == choice.ID {
					sel = ` selected="selected"`
				}
				if err := writef(w, `<option value="%d"%s>%s</option>`,
					choice.ID, sel, esc(choice.Label)); err != nil {
					return err
				}
			}
		}
		return writef(w, `</select>`)

	case engine.FormatFile, engine.FormatImage:
		if field.Value.Untouched || field.Value.File != nil {
			if err := writef(w, `<span class="current-file">%s</span>`+
				`<label><input type="checkbox" name="%s" value="1" /> remove</label>`,
				r.cellHTML(res.Table, res.Form.RowID, field.Value, col), esc(name)); err != nil {
				return err
			}
		}
		return writef(w, `<input type="file" name="%s"%s />`, esc(name), tab)

	case engine.FormatText:
		if col.Options.Length == 0 || col.Options.Length > 255 {
			return writef(w, `<textarea name="%s"%s>%s</textarea>`,
				esc(name), tab, esc(ValueText(field.Value, col)))
		}
		return writef(w, `<input type="text" name="%s" value="%s" maxlength="%d"%s />`,
			esc(name), esc(ValueText(field.Value, col)), col.Options.Length, tab)

	case engine.FormatACL:
		return writef(w, `<textarea name="%s" class="acl"%s>%s</textarea>`,
			esc(name), tab, esc(ValueText(field.Value, col)))
	}

	maxlen := ""
	if col.Options.Length > 0 {
		maxlen = ` maxlength="` + strconv.Itoa(col.Options.Length) + `"`
	}
	return writef(w, `<input type="text" name="%s" value="%s"%s%s />`,
		esc(name), esc(ValueText(field.Value, col)), maxlen, tab)
}
