package web

import (
	"fmt"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/wikitab/wikitab/internal/engine"
	"github.com/wikitab/wikitab/internal/logging"
)

// The admin console exposes operator maintenance: user tables with their
// row counts, the engine tables, dropping a table, pruning the change log
// and clearing orphaned locks.

// requireAdmin resolves the acting identity and rejects non-admins. POST
// requests additionally need the session's security token.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (engine.Identity, bool) {
	sid := s.sessionID(w, r)
	ident := s.identity(r, sid)

	if !ident.Admin {
		s.respondError(w, r, fmt.Errorf("admin access required"), http.StatusForbidden)
		return ident, false
	}
	if r.Method == http.MethodPost && r.PostFormValue("sectok") != s.securityToken(sid) {
		s.respondError(w, r, fmt.Errorf("stale or missing security token"), http.StatusForbidden)
		return ident, false
	}
	return ident, true
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	userTables, err := s.engine.UserTables(r.Context())
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	engineTables, err := s.engine.EngineTables(r.Context())
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	token := s.securityToken(ident.SessionID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.writePageHead(w, "admin", ident)

	fmt.Fprint(w, "<h2>User tables</h2><table><tr><th>table</th><th>rows</th><th></th></tr>")
	for _, t := range userTables {
		fmt.Fprintf(w,
			`<tr><td>%s</td><td>%d</td><td><form method="post" action="/admin/drop">`+
				`<input type="hidden" name="sectok" value="%s" />`+
				`<input type="hidden" name="table" value="%s" />`+
				`<button type="submit" onclick="return confirm('drop table %s?')">drop</button>`+
				`</form></td></tr>`,
			templ.EscapeString(t.Name), t.Rows, templ.EscapeString(token),
			templ.EscapeString(t.Name), templ.EscapeString(t.Name))
	}
	fmt.Fprint(w, "</table>")

	fmt.Fprint(w, "<h2>Engine tables</h2><table><tr><th>table</th><th>rows</th></tr>")
	for _, t := range engineTables {
		fmt.Fprintf(w, `<tr><td><a href="/admin/table/%s">%s</a></td><td>%d</td></tr>`,
			templ.EscapeString(t.Name), templ.EscapeString(t.Name), t.Rows)
	}
	fmt.Fprint(w, "</table>")

	fmt.Fprintf(w,
		`<h2>Maintenance</h2>`+
			`<form method="post" action="/admin/prune">`+
			`<input type="hidden" name="sectok" value="%s" />`+
			`<button type="submit">prune change log</button></form>`+
			`<form method="post" action="/admin/locks">`+
			`<input type="hidden" name="sectok" value="%s" />`+
			`<input type="text" name="table" placeholder="all tables" />`+
			`<button type="submit">clear locks</button></form>`,
		templ.EscapeString(token), templ.EscapeString(token))

	s.writePageFoot(w)
}

func (s *Server) handleAdminTable(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	dump, err := s.engine.DumpTable(r.Context(), name)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.writePageHead(w, "admin: "+name, ident)

	fmt.Fprint(w, "<table><tr>")
	for _, col := range dump.Columns {
		fmt.Fprintf(w, "<th>%s</th>", templ.EscapeString(col))
	}
	fmt.Fprint(w, "</tr>")
	for _, row := range dump.Rows {
		fmt.Fprint(w, "<tr>")
		for _, cell := range row {
			fmt.Fprintf(w, "<td>%s</td>", templ.EscapeString(cell))
		}
		fmt.Fprint(w, "</tr>")
	}
	fmt.Fprint(w, `</table><p><a href="/admin">back</a></p>`)

	s.writePageFoot(w)
}

func (s *Server) handleAdminDrop(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	table := r.PostFormValue("table")
	if err := s.engine.AdminDrop(r.Context(), &ident, table); err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("table dropped", "table", table, "user", ident.Name)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Server) handleAdminPrune(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	n, err := s.engine.PruneLog(r.Context())
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("change log pruned", "removed", n, "user", ident.Name)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Server) handleAdminClearLocks(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	table := r.PostFormValue("table")
	n, err := s.engine.ClearLocks(r.Context(), table)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("locks cleared", "table", table, "removed", n, "user", ident.Name)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}
