package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/zombor/clubhouse/internal/club"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/app.css
var appCSS []byte

// templates maps a page name to its parsed template set
type templates map[string]*template.Template

var templateFuncs = template.FuncMap{
	"money": func(amount float64) string {
		return fmt.Sprintf("%.2f", amount)
	},
	"statuses": club.Statuses,
}

func parseTemplates() templates {
	t := templates{}
	for _, page := range []string{"login", "board", "request", "attendance"} {
		t[page] = template.Must(template.New(page).Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+page+".html",
		))
	}
	return t
}

// chrome is the data every page layout needs
type chrome struct {
	Title     string
	SignedIn  bool
	Treasurer bool
	Error     bool
	// ErrorReturn is posted to when the error modal closes; empty links home
	ErrorReturn string
}

// render executes a page into a buffer first so template errors become a 500
func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		slog.Error("Unknown template", "page", page)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("Error rendering template", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
