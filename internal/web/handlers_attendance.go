package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/clubhouse/internal/attendance"
	"github.com/zombor/clubhouse/internal/club"
	"github.com/zombor/clubhouse/internal/session"
)

type attendancePage struct {
	chrome
	View      attendance.View
	DateValue string
	// Stale is set when marks were lost because the page was rebuilt
	Stale bool
}

// pageFor returns the session's attendance page, loading the roster the
// first time it is opened. created reports a page built by this call, which
// holds none of the operator's marks. It writes the response itself when ok
// is false.
func (s *Server) pageFor(w http.ResponseWriter, r *http.Request, sess *session.Session) (page *attendance.Page, created, ok bool) {
	id := sess.ID
	page, created = s.pages.get(id, func() *attendance.Page {
		return attendance.NewPage(s.deps.Backend, sess.Token, club.Today(s.deps.Location), func() {
			s.forget(id)
		})
	})
	if created || r.URL.Query().Get("reload") == "1" {
		if page.Load(r.Context()) == attendance.OutcomeDeauthenticated {
			s.deauthenticate(w, r, sess)
			return nil, created, false
		}
	}
	return page, created, true
}

// restarted sends the operator back to a freshly loaded screen when an
// action relied on marks that the rebuilt page no longer has
func (s *Server) restarted(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	slog.Warn("Attendance page was rebuilt, dropping action", "path", r.URL.Path, "user", sess.UserID)
	http.Redirect(w, r, "/attendance?stale=1", http.StatusSeeOther)
}

// afterAction sends the browser back to the attendance screen, or to the
// login page when the token was rejected
func (s *Server) afterAction(w http.ResponseWriter, r *http.Request, sess *session.Session, outcome attendance.Outcome) {
	if outcome == attendance.OutcomeDeauthenticated {
		s.deauthenticate(w, r, sess)
		return
	}
	http.Redirect(w, r, "/attendance", http.StatusSeeOther)
}

// handleAttendance renders the roster for the selected date
func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, _, ok := s.pageFor(w, r, sess)
	if !ok {
		return
	}
	view := page.Snapshot()

	data := attendancePage{
		chrome: s.chromeFor(sess, "Attendance"),
		View:   view,
	}
	data.Error = view.Error
	data.ErrorReturn = "/attendance/error/dismiss"
	data.Stale = r.URL.Query().Get("stale") == "1"
	if view.Date != nil {
		data.DateValue = view.Date.String()
	}
	s.render(w, http.StatusOK, "attendance", data)
}

// handleExportRoster downloads the roster as a spreadsheet
func (s *Server) handleExportRoster(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, _, ok := s.pageFor(w, r, sess)
	if !ok {
		return
	}
	view := page.Snapshot()

	buf, err := attendance.ExportXLSX(view.Users, view.Date)
	if err != nil {
		slog.Error("Error exporting roster", "error", err)
		http.Error(w, "Failed to export roster", http.StatusInternalServerError)
		return
	}

	name := "roster.xlsx"
	if view.Date != nil {
		name = fmt.Sprintf("roster-%s.xlsx", view.Date)
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(buf.Bytes())
}

// handleSetDate selects the meeting date; an empty value clears it
func (s *Server) handleSetDate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, _, ok := s.pageFor(w, r, sess)
	if !ok {
		return
	}

	raw := strings.TrimSpace(r.FormValue("date"))
	if raw == "" {
		page.SetDate(nil)
		http.Redirect(w, r, "/attendance", http.StatusSeeOther)
		return
	}
	d, err := club.ParseDate(raw)
	if err != nil {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}
	page.SetDate(&d)
	http.Redirect(w, r, "/attendance", http.StatusSeeOther)
}

// handleSendPenalties submits the marks for the date the form was showing
func (s *Server) handleSendPenalties(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	shown, err := club.ParseDate(strings.TrimSpace(r.FormValue("date")))
	if err != nil {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}
	page, created, ok := s.pageFor(w, r, sess)
	if !ok {
		return
	}
	if created {
		s.restarted(w, r, sess)
		return
	}

	outcome := page.SendPenalties(r.Context(), shown)
	if outcome == attendance.OutcomeStale {
		s.restarted(w, r, sess)
		return
	}
	s.afterAction(w, r, sess, outcome)
}

// handleAddUsers creates profiles for a comma separated list of emails
func (s *Server) handleAddUsers(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, _, ok := s.pageFor(w, r, sess)
	if !ok {
		return
	}
	page.SetAddUsers(r.FormValue("emails"))
	s.afterAction(w, r, sess, page.AddUsers(r.Context()))
}

// handleRemoveUser deletes a user from the club
func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, _, ok := s.pageFor(w, r, sess)
	if !ok {
		return
	}
	s.afterAction(w, r, sess, page.RemoveUser(r.Context(), r.PathValue("id")))
}

// handleMark toggles a tardy or absence on the selected date
func (s *Server) handleMark(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, created, ok := s.pageFor(w, r, sess)
	if !ok {
		return
	}
	if created {
		s.restarted(w, r, sess)
		return
	}
	mark, err := attendance.ParseMark(r.FormValue("mark"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := page.Mark(r.PathValue("id"), mark, r.FormValue("on") == "1"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/attendance", http.StatusSeeOther)
}

// handleDismissError closes the error modal
func (s *Server) handleDismissError(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, _, ok := s.pageFor(w, r, sess)
	if !ok {
		return
	}
	page.DismissError()
	http.Redirect(w, r, "/attendance", http.StatusSeeOther)
}
