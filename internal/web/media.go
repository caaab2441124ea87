package web

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/wikitab/wikitab/internal/engine"
)

// handleMedia serves files attached to records, pending editor uploads and
// the bulk export surfaces. Persisted files are addressed by an encoded
// selector plus a capability token minted when the link was rendered;
// pending uploads are addressed within the caller's own session.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	ident := s.identity(r, sid)

	if sel := r.URL.Query().Get("s"); sel != "" {
		s.serveDraftMedia(w, r, sid, sel)
		return
	}
	s.serveRowMedia(w, r, sid, ident)
}

func (s *Server) serveDraftMedia(w http.ResponseWriter, r *http.Request, sid, raw string) {
	sel, err := decodeDraftSelector(raw)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("invalid media selector: %w", err), http.StatusBadRequest)
		return
	}

	p, err := s.pages.load(sel.Page)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	state := s.engine.Sessions().View(sid, p.name, p.revision, sel.Index)
	draft, ok := state.Drafts[sel.Column]
	if !ok {
		s.respondError(w, r, fmt.Errorf("no such media"), http.StatusNotFound)
		return
	}
	value, ok := draft.(engine.Value)
	if !ok || value.File == nil || len(value.File.Data) == 0 {
		s.respondError(w, r, fmt.Errorf("no such media"), http.StatusNotFound)
		return
	}
	if value.File.MIME == "" {
		s.respondError(w, r, fmt.Errorf("invalid media"), http.StatusForbidden)
		return
	}

	s.serveBlob(w, r, value.File.MIME, value.File.Name, value.File.Data)
}

func (s *Server) serveRowMedia(w http.ResponseWriter, r *http.Request, sid string, ident engine.Identity) {
	q := r.URL.Query()

	sel, err := decodeRowSelector(q.Get("a"))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("invalid request parameter: %w", err), http.StatusBadRequest)
		return
	}
	token := q.Get("b")
	if token == "" {
		s.respondError(w, r, fmt.Errorf("access denied, missing token"), http.StatusForbidden)
		return
	}

	// the link is bound to the address it was rendered for
	if sel.Addr != ident.RemoteAddr {
		s.respondError(w, r, fmt.Errorf("access denied, wrong origin"), http.StatusForbidden)
		return
	}

	p, err := s.pages.load(sel.Page)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	state := s.engine.Sessions().View(sid, p.name, p.revision, sel.Index)
	salt := state.MediaSalts[sel.digest()]
	if strings.TrimSpace(salt) == "" {
		s.respondError(w, r, fmt.Errorf("access denied"), http.StatusForbidden)
		return
	}
	want := ssha(sel.serialize(), salt)
	if subtle.ConstantTimeCompare([]byte(want), []byte(token)) != 1 {
		s.respondError(w, r, fmt.Errorf("access denied, invalid token"), http.StatusForbidden)
		return
	}

	if mode := q.Get("m"); mode != "" {
		s.serveExport(w, r, ident, p, sel, mode)
		return
	}

	blob, err := s.engine.MediaBlob(r.Context(), sel.Table, sel.Column, sel.IDColumn, sel.RowID)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	mimeType, name, data, err := splitBlob(blob)
	if err != nil {
		s.respondError(w, r, err, http.StatusForbidden)
		return
	}
	s.serveBlob(w, r, mimeType, name, data)
}

// splitBlob unpacks the stored wire format mime|name|bytes. A missing
// name only disables the download disposition; a missing MIME rejects the
// record.
func splitBlob(blob []byte) (mimeType, name string, data []byte, err error) {
	sep := bytes.IndexByte(blob, '|')
	if sep <= 0 || sep > 256 {
		return "", "", nil, fmt.Errorf("untyped data record")
	}
	mimeType, data = string(blob[:sep]), blob[sep+1:]

	sep = bytes.IndexByte(data, '|')
	if sep > 0 && sep <= 256 {
		name, data = string(data[:sep]), data[sep+1:]
	}
	return mimeType, name, data, nil
}

// serveBlob writes one file, optionally thumbnailed and optionally as a
// download.
func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request, mimeType, name string, data []byte) {
	q := r.URL.Query()

	if q.Has("t") {
		if thumbed, thumbMIME, ok := thumbnail(data, mimeType, q.Get("t")); ok {
			data, mimeType = thumbed, thumbMIME
		}
	}

	if q.Get("d") == "1" && name != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	}
	w.Header().Set("Content-Type", mimeType)
	w.Write(data)
}
