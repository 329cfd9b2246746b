// Package web serves the club front-end: the reimbursement board, the request
// forms and the treasurer's attendance screen.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zombor/clubhouse/internal/attendance"
	"github.com/zombor/clubhouse/internal/club"
	"github.com/zombor/clubhouse/internal/scanning"
	"github.com/zombor/clubhouse/internal/session"
)

// Backend is the club REST API as used by the front-end
type Backend interface {
	attendance.API
	Profile(ctx context.Context, token string) (*club.User, error)
	Login(ctx context.Context, data club.LoginData) (string, error)
	Requests(ctx context.Context, token string) (*club.AllRequests, error)
	CreateRequest(ctx context.Context, token string, form club.RequestForm) error
	UpdateRequest(ctx context.Context, token, id string, form club.RequestForm) error
	AddComment(ctx context.Context, token, id, message string) error
}

// Deps are the collaborators a Server needs. Scanner may be nil, which
// disables receipt autofill.
type Deps struct {
	Backend  Backend
	Sessions session.Store
	Scanner  scanning.Scanner
	Location *time.Location
}

// BasicAuth holds optional credentials guarding the whole site
type BasicAuth struct {
	Username string
	Password string
}

// Server handles HTTP requests for the front-end
type Server struct {
	deps      Deps
	basicAuth BasicAuth
	mux       *http.ServeMux
	templates templates
	pages     *pageRegistry

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(deps Deps, basicAuth BasicAuth) *Server {
	return NewServerWithMux(deps, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(deps Deps, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	s := &Server{
		deps:      deps,
		basicAuth: basicAuth,
		mux:       mux,
		templates: parseTemplates(),
		pages:     newPageRegistry(pageIdleTimeout),
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers every route on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)

	s.mux.HandleFunc("GET /login", s.handleLoginForm)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /logout", s.handleLogout)

	// Reimbursement board
	s.mux.HandleFunc("GET /{$}", s.requireSession(s.handleBoard))
	s.mux.HandleFunc("GET /requests/new", s.requireSession(s.handleNewRequest))
	s.mux.HandleFunc("POST /requests/scan", s.requireSession(s.handleScanReceipt))
	s.mux.HandleFunc("POST /requests", s.requireSession(s.handleCreateRequest))
	s.mux.HandleFunc("GET /requests/{id}/images/{n}", s.requireSession(s.handleRequestImage))
	s.mux.HandleFunc("POST /requests/{id}/comments", s.requireSession(s.handleAddComment))
	s.mux.HandleFunc("GET /requests/{id}", s.requireSession(s.handleEditRequest))
	s.mux.HandleFunc("POST /requests/{id}", s.requireSession(s.handleUpdateRequest))

	// Attendance, treasurers only
	s.mux.HandleFunc("GET /attendance", s.requireTreasurer(s.handleAttendance))
	s.mux.HandleFunc("GET /attendance/export.xlsx", s.requireTreasurer(s.handleExportRoster))
	s.mux.HandleFunc("POST /attendance/date", s.requireTreasurer(s.handleSetDate))
	s.mux.HandleFunc("POST /attendance/save", s.requireTreasurer(s.handleSendPenalties))
	s.mux.HandleFunc("POST /attendance/users", s.requireTreasurer(s.handleAddUsers))
	s.mux.HandleFunc("POST /attendance/users/{id}/delete", s.requireTreasurer(s.handleRemoveUser))
	s.mux.HandleFunc("POST /attendance/users/{id}/mark", s.requireTreasurer(s.handleMark))
	s.mux.HandleFunc("POST /attendance/error/dismiss", s.requireTreasurer(s.handleDismissError))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requireAuth(s.mux.ServeHTTP)(w, r)
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	slog.Info("Starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handleStaticCSS serves the stylesheet
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write(appCSS)
}

// pageIdleTimeout is how long an untouched attendance page is kept
const pageIdleTimeout = 2 * time.Hour

// pageRegistry holds one attendance page per signed-in session. Pages nobody
// has used for idle are dropped on the next lookup.
type pageRegistry struct {
	mu    sync.Mutex
	idle  time.Duration
	now   func() time.Time
	pages map[string]*pageEntry
}

type pageEntry struct {
	page     *attendance.Page
	lastUsed time.Time
}

func newPageRegistry(idle time.Duration) *pageRegistry {
	return &pageRegistry{
		idle:  idle,
		now:   time.Now,
		pages: make(map[string]*pageEntry),
	}
}

// get returns the page for id, creating it with create if needed
func (p *pageRegistry) get(id string, create func() *attendance.Page) (*attendance.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.evictLocked(now)
	if entry, ok := p.pages[id]; ok {
		entry.lastUsed = now
		return entry.page, false
	}
	page := create()
	p.pages[id] = &pageEntry{page: page, lastUsed: now}
	return page, true
}

func (p *pageRegistry) drop(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pages, id)
}

func (p *pageRegistry) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}

func (p *pageRegistry) evictLocked(now time.Time) {
	for id, entry := range p.pages {
		if now.Sub(entry.lastUsed) > p.idle {
			slog.Debug("Evicting idle attendance page", "session", id)
			delete(p.pages, id)
		}
	}
}
