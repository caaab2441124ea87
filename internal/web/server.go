// Package web provides the HTTP surface of the table host: the page
// renderer embedding table blocks, the media retrieval endpoint and the
// admin console.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wikitab/wikitab/internal/config"
	"github.com/wikitab/wikitab/internal/engine"
	"github.com/wikitab/wikitab/internal/web/middleware"
)

// Server is the HTTP server hosting the wiki pages and the engine's
// out-of-band endpoints.
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	pages  *pageStore
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(eng *engine.Engine, cfg *config.Config) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		pages:  &pageStore{dir: cfg.Pages.Dir},
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.RealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(60 * time.Second))
	s.router.Use(middleware.Identity(s.cfg.Security.AdminUsers))

	s.router.Use(s.securityHeaders)

	// Rate limiting: 300 requests per minute per IP
	limiter := newRateLimiter(300, time.Minute)
	s.router.Use(limiter.middleware)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/style.css", s.handleStylesheet)

	// Pages
	s.router.Get("/", s.handlePage)
	s.router.Get("/wiki/*", s.handlePage)
	s.router.Post("/wiki/*", s.handlePage)

	// Media and exports
	s.router.Get("/media", s.handleMedia)

	// Admin console
	s.router.Route("/admin", func(r chi.Router) {
		r.Get("/", s.handleAdmin)
		r.Get("/table/{name}", s.handleAdminTable)
		r.Post("/drop", s.handleAdminDrop)
		r.Post("/prune", s.handleAdminPrune)
		r.Post("/locks", s.handleAdminClearLocks)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy",
				"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		}

		next.ServeHTTP(w, r)
	})
}

const stylesheet = `body{font-family:sans-serif;margin:1em 2em}
.topbar{border-bottom:1px solid #ccc;padding-bottom:.3em}
.topbar .user{float:right;color:#666}
.wikitab table{border-collapse:collapse}
.wikitab td,.wikitab th{border:1px solid #999;padding:2px 6px}
.wikitab tr.even{background:#f4f4f4}
.error{color:#a00;border:1px solid #a00;padding:.3em .6em;margin:.5em 0}
`

func (s *Server) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write([]byte(stylesheet))
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

// cleanup periodically drops visitors that have been idle for a full
// window.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-2 * rl.window)
		for ip, v := range rl.visitors {
			if v.lastReset.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.mu.Lock()
		v, ok := rl.visitors[r.RemoteAddr]
		if !ok || time.Since(v.lastReset) >= rl.window {
			v = &visitor{tokens: rl.rate, lastReset: time.Now()}
			rl.visitors[r.RemoteAddr] = v
		}
		v.tokens--
		exhausted := v.tokens < 0
		rl.mu.Unlock()

		if exhausted {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
