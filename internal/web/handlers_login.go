package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/clubhouse/internal/backend"
	"github.com/zombor/clubhouse/internal/club"
	"github.com/zombor/clubhouse/internal/identity"
)

type loginPage struct {
	chrome
	Email   string
	Message string
}

// handleLoginForm shows the sign-in form
func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.currentSession(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "login", loginPage{chrome: chrome{Title: "Sign in"}})
}

// handleLogin exchanges credentials for a token and opens a session
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	page := loginPage{
		chrome: chrome{Title: "Sign in"},
		Email:  strings.TrimSpace(r.PostFormValue("email")),
	}
	password := r.PostFormValue("password")
	if page.Email == "" || password == "" {
		page.Message = "Enter your email and password."
		s.render(w, http.StatusBadRequest, "login", page)
		return
	}

	token, err := s.deps.Backend.Login(r.Context(), club.LoginData{Email: page.Email, Password: password})
	if err != nil {
		s.loginFailed(w, page, err)
		return
	}

	user, err := s.deps.Backend.Profile(r.Context(), token)
	if err != nil {
		s.loginFailed(w, page, err)
		return
	}

	userID := user.ID
	if userID == "" {
		userID = identity.FromToken(token).Subject
	}
	sess, err := s.deps.Sessions.Create(token, userID, user.Treasurer)
	if err != nil {
		slog.Error("Error creating session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	slog.Info("Signed in", "user", userID, "treasurer", user.Treasurer)
	setSessionCookie(w, r, sess.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) loginFailed(w http.ResponseWriter, page loginPage, err error) {
	if errors.Is(err, backend.ErrUnauthorized) {
		page.Message = "Incorrect email or password."
		s.render(w, http.StatusUnauthorized, "login", page)
		return
	}
	slog.Error("Error signing in", "email", page.Email, "error", err)
	page.Message = "Could not reach the club server. Try again in a moment."
	s.render(w, http.StatusBadGateway, "login", page)
}

// handleLogout ends the current session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.currentSession(r); err == nil {
		s.forget(sess.ID)
	}
	clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
