package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shalteor/bplog/internal/middleware"
	"github.com/shalteor/bplog/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const displayTimeLayout = "02.01.2006 15:04"

var pages = []string{"index.html", "plot.html", "login.html", "register.html"}

type views struct {
	pages map[string]*template.Template
}

// point is one chart sample; html/template encodes it as JSON inside <script>.
type point struct {
	Time      string `json:"time"`
	Systolic  int    `json:"sys"`
	Diastolic int    `json:"dia"`
	Pulse     int    `json:"pul"`
}

type pageData struct {
	User     *models.User
	Flash    []string
	Readings []models.Reading
	Users    []models.User
	Series   []point
}

func loadViews(loc *time.Location) (*views, error) {
	funcs := template.FuncMap{
		"fmtTime": func(t time.Time) string {
			return t.In(loc).Format(displayTimeLayout)
		},
	}

	v := &views{pages: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		v.pages[page] = tmpl
	}
	return v, nil
}

// render consumes pending flash messages and writes the page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	tmpl, ok := s.views.pages[page]
	if !ok {
		s.logger.Error("unknown template", zap.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data.Flash = append(middleware.PopFlash(w, r), data.Flash...)

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("failed to render template", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
