package web

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/clubhouse/internal/session"
)

const sessionCookie = "clubhouse_session"

// sessionHandler is a handler that runs with a signed-in session
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Clubhouse"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// currentSession looks up the session named by the request cookie
func (s *Server) currentSession(r *http.Request) (*session.Session, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, session.ErrNotFound
	}
	return s.deps.Sessions.Get(cookie.Value)
}

// requireSession redirects to the login page when nobody is signed in
func (s *Server) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.currentSession(r)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				slog.Error("Error loading session", "error", err)
			}
			clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r, sess)
	}
}

// requireTreasurer additionally rejects members without the treasurer role
func (s *Server) requireTreasurer(next sessionHandler) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if !sess.Treasurer {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r, sess)
	})
}

// forget discards everything held for a session whose token went bad
func (s *Server) forget(id string) {
	if err := s.deps.Sessions.Delete(id); err != nil {
		slog.Error("Error deleting session", "session", id, "error", err)
	}
	s.pages.drop(id)
}

// deauthenticate ends the session and sends the browser back to the login page
func (s *Server) deauthenticate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	slog.Info("Token rejected, signing out", "session", sess.ID, "user", sess.UserID)
	s.forget(sess.ID)
	clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
