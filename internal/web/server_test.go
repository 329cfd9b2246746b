package web

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/clubhouse/internal/attendance"
	"github.com/zombor/clubhouse/internal/backend"
	"github.com/zombor/clubhouse/internal/club"
	"github.com/zombor/clubhouse/internal/scanning"
	"github.com/zombor/clubhouse/internal/session"
)

func postForm(path string, values url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

var _ = Describe("pageRegistry", func() {
	var (
		registry *pageRegistry
		now      time.Time
	)

	newPage := func() *attendance.Page {
		return attendance.NewPage(newMockBackend(), "tok", club.Date{Year: 2024, Month: time.May, Day: 1}, nil)
	}

	BeforeEach(func() {
		now = time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
		registry = newPageRegistry(time.Hour)
		registry.now = func() time.Time { return now }
	})

	It("should return the same page while it is in use", func() {
		first, created := registry.get("a", newPage)
		Expect(created).To(BeTrue())
		now = now.Add(50 * time.Minute)
		again, created := registry.get("a", newPage)
		Expect(created).To(BeFalse())
		Expect(again).To(BeIdenticalTo(first))
	})

	It("should evict pages left idle", func() {
		registry.get("abandoned", newPage)
		now = now.Add(30 * time.Minute)
		registry.get("active", newPage)
		now = now.Add(45 * time.Minute)

		registry.get("active", newPage)
		Expect(registry.count()).To(Equal(1))

		_, created := registry.get("abandoned", newPage)
		Expect(created).To(BeTrue())
	})

	It("should forget dropped pages", func() {
		registry.get("a", newPage)
		registry.drop("a")
		Expect(registry.count()).To(BeZero())
	})
})

var _ = Describe("Server", func() {
	var (
		api      *mockBackend
		sessions *mockSessions
		deps     Deps
		server   *Server
	)

	BeforeEach(func() {
		api = newMockBackend()
		sessions = newMockSessions()
		deps = Deps{Backend: api, Sessions: sessions, Location: time.UTC}
		server = NewServerWithMux(deps, BasicAuth{}, http.NewServeMux())
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			server = NewServerWithMux(deps, BasicAuth{Username: "club", Password: "secret"}, http.NewServeMux())
		})

		It("should reject requests without credentials", func() {
			w := do(server, httptest.NewRequest(http.MethodGet, "/login", nil))
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(w.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should accept the configured credentials", func() {
			r := httptest.NewRequest(http.MethodGet, "/login", nil)
			r.SetBasicAuth("club", "secret")
			Expect(do(server, r).Code).To(Equal(http.StatusOK))
		})
	})

	Describe("static assets", func() {
		It("should serve the stylesheet", func() {
			w := do(server, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/css"))
			Expect(w.Body.String()).To(ContainSubstring("rgb(255, 138, 0)"))
		})
	})

	Describe("login", func() {
		It("should redirect anonymous visitors to the login page", func() {
			w := do(server, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(w.Header().Get("Location")).To(Equal("/login"))
		})

		It("should render the login form", func() {
			w := do(server, httptest.NewRequest(http.MethodGet, "/login", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`action="/login"`))
		})

		When("the credentials are accepted", func() {
			BeforeEach(func() {
				api.loginToken = tokenFor("u1")
				api.profile = &club.User{ID: "u1", Treasurer: true}
			})

			It("should open a session and redirect to the board", func() {
				w := do(server, postForm("/login", url.Values{"email": {"a@b.co"}, "password": {"pw"}}))
				Expect(w.Code).To(Equal(http.StatusSeeOther))
				Expect(w.Header().Get("Location")).To(Equal("/"))

				cookies := w.Result().Cookies()
				Expect(cookies).To(HaveLen(1))
				Expect(cookies[0].Name).To(Equal(sessionCookie))
				Expect(cookies[0].HttpOnly).To(BeTrue())

				sess, err := sessions.Get(cookies[0].Value)
				Expect(err).NotTo(HaveOccurred())
				Expect(sess.Token).To(Equal(api.loginToken))
				Expect(sess.UserID).To(Equal("u1"))
				Expect(sess.Treasurer).To(BeTrue())
			})

			It("should fall back to the token subject when the profile has no id", func() {
				api.profile = &club.User{}
				w := do(server, postForm("/login", url.Values{"email": {"a@b.co"}, "password": {"pw"}}))
				sess, err := sessions.Get(w.Result().Cookies()[0].Value)
				Expect(err).NotTo(HaveOccurred())
				Expect(sess.UserID).To(Equal("u1"))
			})
		})

		It("should report rejected credentials", func() {
			api.loginErr = backend.ErrUnauthorized
			w := do(server, postForm("/login", url.Values{"email": {"a@b.co"}, "password": {"bad"}}))
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(w.Body.String()).To(ContainSubstring("Incorrect email or password."))
			Expect(sessions.count()).To(BeZero())
		})

		It("should report an unreachable backend", func() {
			api.loginErr = errors.New("connection refused")
			w := do(server, postForm("/login", url.Values{"email": {"a@b.co"}, "password": {"pw"}}))
			Expect(w.Code).To(Equal(http.StatusBadGateway))
		})

		It("should require both fields", func() {
			w := do(server, postForm("/login", url.Values{"email": {"a@b.co"}}))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should sign out", func() {
			sess, _ := sessions.Create(tokenFor("u1"), "u1", false)
			w := do(server, withSession(postForm("/logout", url.Values{}), sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(w.Header().Get("Location")).To(Equal("/login"))
			Expect(sessions.count()).To(BeZero())
		})
	})

	Describe("board", func() {
		var sess *session.Session

		BeforeEach(func() {
			sess, _ = sessions.Create(tokenFor("u1"), "u1", true)
			api.requests = &club.AllRequests{
				PendingReview: []club.Request{
					{ID: "r1", ItemDescription: "Pizza", Amount: 10.10, UserID: "u1"},
					{ID: "r2", ItemDescription: "Cones", Amount: 1.05, UserID: "u2"},
				},
			}
		})

		It("should render each column with its total", func() {
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/", nil), sess))
			Expect(w.Code).To(Equal(http.StatusOK))
			body := w.Body.String()
			Expect(body).To(ContainSubstring("Pending Review: $11.15"))
			Expect(body).To(ContainSubstring("Under Review"))
			Expect(body).To(ContainSubstring("Declined"))
			Expect(body).To(ContainSubstring("Request Reimbursement"))
			Expect(body).To(ContainSubstring(`href="/requests/r1"`))
		})

		It("should mark the treasurer's own requests", func() {
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/", nil), sess))
			Expect(strings.Count(w.Body.String(), "request-card mine")).To(Equal(1))
		})

		It("should show the error modal when the board cannot load", func() {
			api.requestsErr = errors.New("boom")
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/", nil), sess))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("Something went wrong"))
			Expect(w.Body.String()).NotTo(ContainSubstring("Request Reimbursement</a>"))
		})

		It("should end the session when the token is rejected", func() {
			api.requestsErr = backend.ErrUnauthorized
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/", nil), sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(w.Header().Get("Location")).To(Equal("/login"))
			Expect(sessions.count()).To(BeZero())
		})
	})

	Describe("requests", func() {
		var sess *session.Session

		BeforeEach(func() {
			sess, _ = sessions.Create(tokenFor("u1"), "u1", false)
			api.requests = &club.AllRequests{
				PendingReview: []club.Request{{ID: "r1", ItemDescription: "Pizza", Amount: 10.25, UserID: "u1"}},
			}
		})

		It("should create a pending request", func() {
			w := do(server, withSession(postForm("/requests", url.Values{
				"itemDescription": {"Pizza"},
				"amount":          {"$12.50"},
				"teamBudget":      {"Robotics"},
				"isFood":          {"on"},
			}), sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(api.created).To(HaveLen(1))
			Expect(api.created[0].Amount).To(Equal("12.50"))
			Expect(api.created[0].IsFood).To(BeTrue())
			Expect(api.created[0].Status).To(Equal(club.StatusPendingReview))
			Expect(api.created[0].Images).NotTo(BeNil())
		})

		It("should attach uploaded receipts", func() {
			body := &bytes.Buffer{}
			mw := multipart.NewWriter(body)
			mw.WriteField("itemDescription", "Pizza")
			mw.WriteField("amount", "3")
			part, _ := mw.CreateFormFile("images", "receipt.png")
			part.Write([]byte("png bytes"))
			mw.Close()

			r := httptest.NewRequest(http.MethodPost, "/requests", body)
			r.Header.Set("Content-Type", mw.FormDataContentType())
			w := do(server, withSession(r, sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(api.created[0].Images).To(HaveLen(1))
			Expect(api.created[0].Images[0].Name).To(Equal("receipt.png"))
			Expect(api.created[0].Images[0].Bytes()).To(Equal([]byte("png bytes")))
		})

		It("should reject an unreadable amount", func() {
			w := do(server, withSession(postForm("/requests", url.Values{
				"itemDescription": {"Pizza"},
				"amount":          {"lots"},
			}), sess))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("Enter the amount in dollars"))
			Expect(api.created).To(BeEmpty())
		})

		It("should send backend failures to the board with the error modal", func() {
			api.writeErr = &backend.StatusError{Code: http.StatusInternalServerError}
			w := do(server, withSession(postForm("/requests", url.Values{
				"itemDescription": {"Pizza"},
				"amount":          {"1"},
			}), sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(w.Header().Get("Location")).To(Equal("/?error=1"))
		})

		It("should show an existing request", func() {
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/requests/r1", nil), sess))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`value="10.25"`))
			Expect(w.Body.String()).NotTo(ContainSubstring(`name="status"`))
		})

		It("should return not found for unknown requests", func() {
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/requests/missing", nil), sess))
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("should save edits by the owner", func() {
			w := do(server, withSession(postForm("/requests/r1", url.Values{
				"itemDescription": {"Pizza and soda"},
				"amount":          {"14"},
				"status":          {"approved"},
			}), sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			form := api.updated["r1"]
			Expect(form.ItemDescription).To(Equal("Pizza and soda"))
			Expect(form.Status).To(Equal(club.StatusPendingReview))
		})

		It("should let a treasurer change the status of someone else's request", func() {
			treasurer, _ := sessions.Create(tokenFor("t1"), "t1", true)
			w := do(server, withSession(postForm("/requests/r1", url.Values{
				"itemDescription": {"Changed"},
				"status":          {"approved"},
			}), treasurer))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			form := api.updated["r1"]
			Expect(form.Status).To(Equal(club.StatusApproved))
			Expect(form.ItemDescription).To(Equal("Pizza"))
			Expect(form.Amount).To(Equal("10.25"))
		})

		It("should resend the member's exact amount on a status-only update", func() {
			api.requests.PendingReview[0].Amount = 2.999
			treasurer, _ := sessions.Create(tokenFor("t1"), "t1", true)
			w := do(server, withSession(postForm("/requests/r1", url.Values{"status": {"underReview"}}), treasurer))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(api.updated["r1"].Amount).To(Equal("2.999"))
			Expect(api.updated["r1"].Status).To(Equal(club.StatusUnderReview))
		})

		It("should add comments", func() {
			w := do(server, withSession(postForm("/requests/r1/comments", url.Values{"message": {"Looks good"}}), sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(w.Header().Get("Location")).To(Equal("/requests/r1"))
			Expect(api.comments["r1"]).To(Equal([]string{"Looks good"}))
		})

		It("should not offer scanning without a scanner", func() {
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/requests/new", nil), sess))
			Expect(w.Body.String()).NotTo(ContainSubstring("/requests/scan"))
		})

		When("a scanner is configured", func() {
			BeforeEach(func() {
				deps.Scanner = &mockScanner{data: &scanning.ReceiptData{Description: "Groceries", Amount: 23.4, IsFood: true}}
				server = NewServerWithMux(deps, BasicAuth{}, http.NewServeMux())
			})

			It("should prefill the form from the receipt", func() {
				body := &bytes.Buffer{}
				mw := multipart.NewWriter(body)
				part, _ := mw.CreateFormFile("receipt", "receipt.jpg")
				part.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
				mw.Close()

				r := httptest.NewRequest(http.MethodPost, "/requests/scan", body)
				r.Header.Set("Content-Type", mw.FormDataContentType())
				w := do(server, withSession(r, sess))
				Expect(w.Code).To(Equal(http.StatusOK))
				Expect(w.Body.String()).To(ContainSubstring(`value="Groceries"`))
				Expect(w.Body.String()).To(ContainSubstring(`value="23.40"`))
			})
		})
	})

	Describe("attendance", func() {
		var sess *session.Session

		BeforeEach(func() {
			sess, _ = sessions.Create(tokenFor("t1"), "t1", true)
			api.roster = []club.User{
				{ID: "u1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@club.org"},
				{ID: "u2", Email: "grace@club.org"},
			}
		})

		It("should be forbidden to members", func() {
			member, _ := sessions.Create(tokenFor("u1"), "u1", false)
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), member))
			Expect(w.Code).To(Equal(http.StatusForbidden))
		})

		It("should render the roster for today", func() {
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Code).To(Equal(http.StatusOK))
			body := w.Body.String()
			Expect(body).To(ContainSubstring("Ada Lovelace"))
			Expect(body).To(ContainSubstring("grace@club.org"))
			Expect(body).To(ContainSubstring(club.Today(time.UTC).String()))
		})

		It("should submit marks for the selected date", func() {
			do(server, withSession(postForm("/attendance/date", url.Values{"date": {"2024-03-05"}}), sess))
			do(server, withSession(postForm("/attendance/users/u1/mark", url.Values{"mark": {"absent"}, "on": {"1"}}), sess))
			do(server, withSession(postForm("/attendance/users/u2/mark", url.Values{"mark": {"tardy"}, "on": {"1"}}), sess))

			w := do(server, withSession(postForm("/attendance/save", url.Values{"date": {"2024-03-05"}}), sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(w.Header().Get("Location")).To(Equal("/attendance"))
			Expect(api.penalties).To(HaveLen(1))
			Expect(api.penalties[0].Date.String()).To(Equal("2024-03-05"))
			Expect(api.penalties[0].Absent).To(Equal([]string{"u1"}))
			Expect(api.penalties[0].Late).To(Equal([]string{"u2"}))
		})

		It("should put the shown date in the save form", func() {
			do(server, withSession(postForm("/attendance/date", url.Values{"date": {"2024-03-05"}}), sess))
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Body.String()).To(ContainSubstring(`<input type="hidden" name="date" value="2024-03-05">`))
		})

		When("the server lost the page after a restart", func() {
			It("should not submit an unmarked roster for today", func() {
				do(server, withSession(postForm("/attendance/date", url.Values{"date": {"2024-03-05"}}), sess))
				do(server, withSession(postForm("/attendance/users/u1/mark", url.Values{"mark": {"absent"}, "on": {"1"}}), sess))

				restarted := NewServerWithMux(deps, BasicAuth{}, http.NewServeMux())
				w := do(restarted, withSession(postForm("/attendance/save", url.Values{"date": {"2024-03-05"}}), sess))
				Expect(w.Code).To(Equal(http.StatusSeeOther))
				Expect(w.Header().Get("Location")).To(Equal("/attendance?stale=1"))
				Expect(api.penalties).To(BeEmpty())

				w = do(restarted, withSession(httptest.NewRequest(http.MethodGet, "/attendance?stale=1", nil), sess))
				Expect(w.Body.String()).To(ContainSubstring("unsaved marks were lost"))
			})

			It("should not apply a mark to today's roster", func() {
				restarted := NewServerWithMux(deps, BasicAuth{}, http.NewServeMux())
				w := do(restarted, withSession(postForm("/attendance/users/u1/mark", url.Values{"mark": {"absent"}, "on": {"1"}}), sess))
				Expect(w.Header().Get("Location")).To(Equal("/attendance?stale=1"))

				w = do(restarted, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
				Expect(w.Body.String()).NotTo(ContainSubstring("toggle on"))
			})
		})

		It("should refuse to save a date other than the selected one", func() {
			do(server, withSession(postForm("/attendance/date", url.Values{"date": {"2024-03-05"}}), sess))
			w := do(server, withSession(postForm("/attendance/save", url.Values{"date": {"2024-03-12"}}), sess))
			Expect(w.Header().Get("Location")).To(Equal("/attendance?stale=1"))
			Expect(api.penalties).To(BeEmpty())
		})

		It("should reject a save without a date", func() {
			do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			w := do(server, withSession(postForm("/attendance/save", url.Values{}), sess))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(api.penalties).To(BeEmpty())
		})

		It("should hide the roster when the date is cleared", func() {
			do(server, withSession(postForm("/attendance/date", url.Values{"date": {""}}), sess))
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Body.String()).To(ContainSubstring("Pick a meeting date"))
			Expect(w.Body.String()).NotTo(ContainSubstring("/attendance/save"))
		})

		It("should reject a malformed date", func() {
			w := do(server, withSession(postForm("/attendance/date", url.Values{"date": {"next tuesday"}}), sess))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should flag invalid bulk add input without calling the backend", func() {
			do(server, withSession(postForm("/attendance/users", url.Values{"emails": {"a@club.org; b"}}), sess))
			Expect(api.emails).To(BeEmpty())

			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Body.String()).To(ContainSubstring(`aria-invalid="true"`))
			Expect(w.Body.String()).To(ContainSubstring("a@club.org; b"))
		})

		It("should add users from a comma separated list", func() {
			api.newUsers = []club.User{{ID: "u3", Email: "new@club.org"}}
			do(server, withSession(postForm("/attendance/users", url.Values{"emails": {"new@club.org"}}), sess))
			Expect(api.emails).To(Equal([][]string{{"new@club.org"}}))

			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Body.String()).To(ContainSubstring("new@club.org"))
		})

		It("should remove users", func() {
			do(server, withSession(postForm("/attendance/users/u2/delete", url.Values{}), sess))
			Expect(api.deleted).To(Equal([]string{"u2"}))

			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Body.String()).NotTo(ContainSubstring("grace@club.org"))
		})

		It("should show and dismiss the error modal", func() {
			api.penaltyErr = errors.New("boom")
			do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			do(server, withSession(postForm("/attendance/save", url.Values{"date": {club.Today(time.UTC).String()}}), sess))

			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Body.String()).To(ContainSubstring("Something went wrong"))

			do(server, withSession(postForm("/attendance/error/dismiss", url.Values{}), sess))
			w = do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Body.String()).NotTo(ContainSubstring("Something went wrong"))
		})

		It("should sign out when the roster load is rejected", func() {
			api.rosterErr = backend.ErrUnauthorized
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance", nil), sess))
			Expect(w.Code).To(Equal(http.StatusSeeOther))
			Expect(w.Header().Get("Location")).To(Equal("/login"))
			Expect(sessions.count()).To(BeZero())
		})

		It("should export the roster as a spreadsheet", func() {
			w := do(server, withSession(httptest.NewRequest(http.MethodGet, "/attendance/export.xlsx", nil), sess))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Disposition")).To(ContainSubstring("roster-"))
			Expect(w.Body.Bytes()[:2]).To(Equal([]byte("PK")))
		})
	})
})
