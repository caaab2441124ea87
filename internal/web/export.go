package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wikitab/wikitab/internal/engine"
	"github.com/wikitab/wikitab/internal/render"
)

// serveExport handles the bulk modes of the media endpoint: a print
// snapshot, a CSV dump of all non-binary columns, and the change log as
// CSV. Authorization happened when the link was minted; the capability
// token was already verified by the caller.
func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, ident engine.Identity, p *page, sel rowSelector, mode string) {
	var blk *pageBlock
	for _, candidate := range p.blocks {
		if candidate.index == sel.Index {
			blk = candidate
		}
	}
	if blk == nil {
		s.respondError(w, r, fmt.Errorf("no such table block"), http.StatusNotFound)
		return
	}
	if table, err := engine.NormalizeTableName(blk.table); err != nil || table != sel.Table {
		s.respondError(w, r, fmt.Errorf("media selector does not match page"), http.StatusBadRequest)
		return
	}

	req := &engine.Request{
		Page:       p.name,
		Revision:   p.revision,
		Index:      blk.index,
		Table:      blk.table,
		Definition: blk.definition,
		Options:    blk.options,
		Identity:   ident,
		Input:      engine.NewInput(false),
	}

	stamp := time.Now().Format("2006-01-02_15-04")

	switch mode {
	case "print":
		res, err := s.engine.List(r.Context(), req, true, true)
		if err != nil {
			s.respondEngineError(w, r, err)
			return
		}
		s.exportHeaders(w, r, "text/html; charset=utf-8",
			fmt.Sprintf("%s_print_%s.html", sel.Table, stamp))
		render.Renderer{}.WritePrintView(w, res)

	case "csv":
		res, err := s.engine.List(r.Context(), req, true, false)
		if err != nil {
			s.respondEngineError(w, r, err)
			return
		}
		s.exportHeaders(w, r, "text/csv; charset=utf-8",
			fmt.Sprintf("%s_export_%s.csv", sel.Table, stamp))
		render.WriteCSV(w, res)

	case "log":
		entries, err := s.engine.ChangeLog(r.Context(), sel.Table)
		if err != nil {
			s.respondEngineError(w, r, err)
			return
		}
		s.exportHeaders(w, r, "text/csv; charset=utf-8",
			fmt.Sprintf("%s_log_%s.csv", sel.Table, stamp))
		render.WriteLogCSV(w, entries)

	default:
		s.respondError(w, r, fmt.Errorf("unknown export mode %q", mode), http.StatusBadRequest)
	}
}

func (s *Server) exportHeaders(w http.ResponseWriter, r *http.Request, contentType, filename string) {
	if r.URL.Query().Get("d") == "1" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.Header().Set("Content-Type", contentType)
}
