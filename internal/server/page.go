// ABOUTME: HTML page listing stored pushes for quick inspection in a browser
// ABOUTME: Renders alert text from Markdown with goldmark; raw HTML in alerts is dropped

package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageLimit caps how many pushes the index page shows.
const pageLimit = 200

type pushItem struct {
	ID         string
	Alert      template.HTML
	HasAlert   bool
	Payload    string
	ReceivedAt time.Time
}

type indexData struct {
	Title       string
	StorageDays int
	Cutoff      time.Time
	Pushes      []pushItem
}

type pageRenderer struct {
	tmpl     *template.Template
	markdown goldmark.Markdown
}

func newPageRenderer() (*pageRenderer, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"timestamp": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05 MST") },
	}).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &pageRenderer{
		tmpl:     tmpl,
		markdown: goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough)),
	}, nil
}

// renderAlert converts alert Markdown to HTML. goldmark omits raw HTML unless
// configured otherwise, so the result is safe to embed.
func (p *pageRenderer) renderAlert(alert string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := p.markdown.Convert([]byte(alert), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// handleIndex handles GET /.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	policy := s.retention.Policy(r.Context())
	recs := s.retention.List(r.Context(), pageLimit)

	data := indexData{
		Title:       "Received pushes",
		StorageDays: policy.WindowDays,
		Cutoff:      policy.Cutoff(s.now()),
		Pushes:      make([]pushItem, 0, len(recs)),
	}
	for _, rec := range recs {
		item := pushItem{
			ID:         rec.ID,
			Payload:    string(rec.Payload),
			ReceivedAt: rec.ReceivedAt,
			HasAlert:   rec.Alert != nil,
		}
		if rec.Alert != nil {
			html, err := s.page.renderAlert(*rec.Alert)
			if err != nil {
				s.logger.Error("failed to convert markdown", "push_id", rec.ID, "error", err)
				html = template.HTML(template.HTMLEscapeString(*rec.Alert))
			}
			item.Alert = html
		}
		data.Pushes = append(data.Pushes, item)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.tmpl.Execute(w, data); err != nil {
		s.logger.Error("failed to render index", "error", err)
	}
}
