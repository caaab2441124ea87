package web

import (
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/wikitab/wikitab/internal/engine"
	"github.com/wikitab/wikitab/internal/web/middleware"
)

const sessionCookie = "wikitab_sid"

// sessionID returns the browser session ID, minting a new cookie on first
// contact. The ID keys all per-user view state and identifies guests as
// lock owners.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

// securityToken derives the per-session request integrity token. Forms
// embed it; submissions without it are treated as untrusted and stripped
// down to command fields.
func (s *Server) securityToken(sessionID string) string {
	return ssha([]byte(sessionID), s.cfg.Security.SessionSecret)[:16]
}

// identity assembles the engine identity of a request from the resolved
// proxy headers, the session and the client address.
func (s *Server) identity(r *http.Request, sessionID string) engine.Identity {
	remote := middleware.IdentityFromContext(r.Context())

	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	return engine.Identity{
		Name:          remote.Name,
		Groups:        remote.Groups,
		Admin:         remote.Admin,
		Authenticated: remote.Name != "",
		SessionID:     sessionID,
		RemoteAddr:    addr,
	}
}
