package web

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/wikitab/wikitab/internal/engine"
	"github.com/wikitab/wikitab/internal/logging"
)

// Engine failures inside a table block surface through the block's inline
// error boundary and never reach this file. The handlers here serve the
// out-of-band surfaces (media, exports, admin), where a failure maps to a
// whole-response status code.

// httpStatus maps an error to the response status.
func httpStatus(err error) int {
	var (
		defErr *engine.DefinitionError
		valErr *engine.ValidationError
		denied *engine.AuthorizationDenied
		tamper *engine.RequestIntegrityError
	)
	switch {
	case errors.As(err, &defErr), errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &denied), errors.As(err, &tamper):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrNoSuchRecord), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrReservedTable), errors.Is(err, engine.ErrNoPrimaryKey):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError logs the failure and writes a plain error page. Storage
// details never reach the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	logging.FromContext(r.Context()).Error("request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)

	msg := err.Error()
	if status == http.StatusInternalServerError || engine.IsStorage(err) {
		msg = "internal error"
	}
	http.Error(w, msg, status)
}

// respondEngineError maps an engine error to its status before responding.
func (s *Server) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err, httpStatus(err))
}
