package web

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/zombor/clubhouse/internal/backend"
	"github.com/zombor/clubhouse/internal/board"
	"github.com/zombor/clubhouse/internal/club"
	"github.com/zombor/clubhouse/internal/identity"
	"github.com/zombor/clubhouse/internal/preview"
	"github.com/zombor/clubhouse/internal/session"
)

// maxUploadSize bounds request forms with attachments; phone photos are large
const maxUploadSize = int64(50 << 20)

type boardPage struct {
	chrome
	Board board.Board
}

type requestPage struct {
	chrome
	Request     *club.Request
	Form        club.RequestForm
	Editable    bool
	StatusPick  bool
	ScanEnabled bool
	Message     string
}

// handleBoard renders the reimbursement board
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page := boardPage{chrome: s.chromeFor(sess, "Reimbursements")}
	page.Error = r.URL.Query().Get("error") == "1"

	requests, err := s.deps.Backend.Requests(r.Context(), sess.Token)
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		s.deauthenticate(w, r, sess)
		return
	case err != nil:
		slog.Error("Error loading requests", "user", sess.UserID, "error", err)
		page.Error = true
		requests = nil
	}

	viewer := identity.FromToken(sess.Token)
	page.Board = board.Build(requests, sess.Treasurer, viewer)
	s.render(w, http.StatusOK, "board", page)
}

// handleNewRequest shows an empty reimbursement form
func (s *Server) handleNewRequest(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.render(w, http.StatusOK, "request", s.newRequestPage(sess))
}

func (s *Server) newRequestPage(sess *session.Session) requestPage {
	return requestPage{
		chrome:      s.chromeFor(sess, "Request Reimbursement"),
		Form:        club.RequestForm{Status: club.StatusPendingReview},
		Editable:    true,
		ScanEnabled: s.deps.Scanner != nil,
	}
}

// handleScanReceipt prefills the reimbursement form from a receipt photo
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if s.deps.Scanner == nil {
		http.NotFound(w, r)
		return
	}
	page := s.newRequestPage(sess)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		page.Message = "Choose a receipt photo to scan."
		s.render(w, http.StatusBadRequest, "request", page)
		return
	}
	f, header, err := r.FormFile("receipt")
	if err != nil {
		page.Message = "Choose a receipt photo to scan."
		s.render(w, http.StatusBadRequest, "request", page)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading receipt upload", "filename", header.Filename, "error", err)
		page.Message = "Could not read that file. Please try again."
		s.render(w, http.StatusBadRequest, "request", page)
		return
	}

	contentType := preview.ContentType(data, header.Filename)
	scanned, err := s.deps.Scanner.ScanReceipt(r.Context(), data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", header.Filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		page.Message = "Could not read the receipt. Fill in the form by hand."
		s.render(w, http.StatusOK, "request", page)
		return
	}

	page.Form.ItemDescription = scanned.Description
	page.Form.Amount = strconv.FormatFloat(scanned.Amount, 'f', 2, 64)
	page.Form.IsFood = scanned.IsFood
	page.Message = "Check the suggested values and attach the receipt before submitting."
	s.render(w, http.StatusOK, "request", page)
}

// handleCreateRequest submits a new reimbursement request
func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page := s.newRequestPage(sess)
	if msg := readRequestForm(r, &page.Form); msg != "" {
		page.Message = msg
		s.render(w, http.StatusBadRequest, "request", page)
		return
	}
	page.Form.Status = club.StatusPendingReview
	page.Form.Comments = []club.Comment{}

	if s.backendFailed(w, r, sess, s.deps.Backend.CreateRequest(r.Context(), sess.Token, page.Form)) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleEditRequest shows an existing request. Only the owner can change
// its fields; a treasurer can also move it between statuses.
func (s *Server) handleEditRequest(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	req, ok := s.findRequest(w, r, sess)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, "request", s.editPage(sess, req))
}

func (s *Server) editPage(sess *session.Session, req *club.Request) requestPage {
	mine := !sess.Treasurer || identity.FromToken(sess.Token).Owns(req.UserID)
	return requestPage{
		chrome:     s.chromeFor(sess, req.ItemDescription),
		Request:    req,
		Form:       club.FormFrom(*req),
		Editable:   mine,
		StatusPick: sess.Treasurer,
	}
}

// handleUpdateRequest saves edits to a request
func (s *Server) handleUpdateRequest(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	req, ok := s.findRequest(w, r, sess)
	if !ok {
		return
	}
	page := s.editPage(sess, req)
	if !page.Editable && !page.StatusPick {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if page.Editable {
		if msg := readRequestForm(r, &page.Form); msg != "" {
			page.Message = msg
			s.render(w, http.StatusBadRequest, "request", page)
			return
		}
	}
	if page.StatusPick {
		if key := r.FormValue("status"); key != "" {
			status, err := club.ParseStatus(key)
			if err != nil {
				page.Message = "Pick one of the listed statuses."
				s.render(w, http.StatusBadRequest, "request", page)
				return
			}
			page.Form.Status = status
		}
	}

	if s.backendFailed(w, r, sess, s.deps.Backend.UpdateRequest(r.Context(), sess.Token, req.ID, page.Form)) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleAddComment appends a comment to a request
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	id := r.PathValue("id")
	message := strings.TrimSpace(r.FormValue("message"))
	if message == "" {
		http.Redirect(w, r, "/requests/"+id, http.StatusSeeOther)
		return
	}
	if s.backendFailed(w, r, sess, s.deps.Backend.AddComment(r.Context(), sess.Token, id, message)) {
		return
	}
	http.Redirect(w, r, "/requests/"+id, http.StatusSeeOther)
}

// handleRequestImage serves a PNG preview of one attachment
func (s *Server) handleRequestImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		http.Error(w, "Image index required", http.StatusBadRequest)
		return
	}
	req, ok := s.findRequest(w, r, sess)
	if !ok {
		return
	}
	if n >= len(req.Images) {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	data, err := preview.Render(req.Images[n], preview.DefaultWidth)
	if err != nil {
		slog.Error("Error rendering attachment", "request", req.ID, "image", n, "error", err)
		http.Error(w, "Image could not be displayed", http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Write(data)
}

// findRequest loads the board and picks out the request named in the path.
// It writes the response itself when it returns false.
func (s *Server) findRequest(w http.ResponseWriter, r *http.Request, sess *session.Session) (*club.Request, bool) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Request ID required", http.StatusBadRequest)
		return nil, false
	}

	all, err := s.deps.Backend.Requests(r.Context(), sess.Token)
	if s.backendFailed(w, r, sess, err) {
		return nil, false
	}
	req, _, found := all.Find(id)
	if !found {
		http.Error(w, "Request not found", http.StatusNotFound)
		return nil, false
	}
	return req, true
}

// backendFailed handles a backend error and reports whether it wrote a
// response. Rejected tokens end the session; anything else lands on the
// board with the error modal open.
func (s *Server) backendFailed(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, backend.ErrUnauthorized) {
		s.deauthenticate(w, r, sess)
		return true
	}
	slog.Error("Backend call failed", "method", r.Method, "path", r.URL.Path, "user", sess.UserID, "error", err)
	http.Redirect(w, r, "/?error=1", http.StatusSeeOther)
	return true
}

func (s *Server) chromeFor(sess *session.Session, title string) chrome {
	return chrome{
		Title:     title,
		SignedIn:  true,
		Treasurer: sess.Treasurer,
	}
}

// readRequestForm copies the posted fields into form and returns a message
// for the user when something is wrong
func readRequestForm(r *http.Request, form *club.RequestForm) string {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "The form could not be read. Please try again."
	}

	form.ItemDescription = strings.TrimSpace(r.FormValue("itemDescription"))
	form.TeamBudget = strings.TrimSpace(r.FormValue("teamBudget"))
	form.IsFood = r.FormValue("isFood") == "on"
	form.Amount = strings.TrimPrefix(strings.TrimSpace(r.FormValue("amount")), "$")

	if form.ItemDescription == "" {
		return "Describe what was bought."
	}
	amount, err := strconv.ParseFloat(form.Amount, 64)
	if err != nil || amount < 0 {
		return "Enter the amount in dollars, e.g. 12.50."
	}

	if form.Images == nil {
		form.Images = []club.Image{}
	}
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["images"] {
			img, err := readImage(header)
			if err != nil {
				slog.Error("Error reading attachment", "filename", header.Filename, "error", err)
				return "Could not read " + header.Filename + ". Please try again."
			}
			form.Images = append(form.Images, img)
		}
	}
	return ""
}

func readImage(header *multipart.FileHeader) (club.Image, error) {
	f, err := header.Open()
	if err != nil {
		return club.Image{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return club.Image{}, err
	}
	return club.Image{
		Data:     base64.StdEncoding.EncodeToString(data),
		Name:     header.Filename,
		IsBase64: true,
	}, nil
}
