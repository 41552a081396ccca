// Package server is the operator web UI: the stale-content table, selection,
// submission and the newsletter workflow.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BattermanZ/StaleFlix/internal/content"
	"github.com/BattermanZ/StaleFlix/internal/database"
	"github.com/BattermanZ/StaleFlix/internal/pipeline"
	"github.com/BattermanZ/StaleFlix/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Backend is the part of the backend client the UI submits to.
type Backend interface {
	SubmitSelection(ctx context.Context, ids []string) (string, error)
	PushToDeliveryQueue(ctx context.Context, records []content.Record) (string, error)
}

// Deps are the collaborators of a Server. DB may be nil.
type Deps struct {
	Session        *session.Session
	Backend        Backend
	Pipeline       *pipeline.Pipeline
	DB             *database.DB
	FilenamePrefix string
}

// Server is the HTTP server for the operator UI.
type Server struct {
	deps    Deps
	pages   map[string]*template.Template
	metrics *metrics
	router  chi.Router
}

// New creates a new Server.
func New(deps Deps) (*Server, error) {
	if deps.Session == nil || deps.Backend == nil || deps.Pipeline == nil {
		return nil, errors.New("server needs a session, a backend and a pipeline")
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so that every page can define
	// "title" and "content".
	pageNames := []string{"index.html", "newsletter.html", "issues.html", "issue.html", "error.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{deps: deps, pages: pages, metrics: newMetrics()}
	deps.Session.Subscribe(func(e session.Event) {
		s.metrics.sessionEvents.WithLabelValues(e.String()).Inc()
	})
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(
		recoverPanics,
		requestID,
		chimw.CleanPath,
		logRequests,
		s.metrics.instrument,
	)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Get("/", s.handleIndex)
	r.Post("/refresh", s.handleRefresh)
	r.Post("/selection/all", s.handleSelectAll)
	r.Post("/selection/{id}/toggle", s.handleToggle)
	r.Get("/sort/{key}", s.handleSort)
	r.Post("/submit", s.handleSubmit)
	r.Post("/push", s.handlePush)

	r.Get("/newsletter", s.handleNewsletter)
	r.Post("/newsletter/preview", s.handlePreview)
	r.Post("/newsletter/download", s.handleDownload)
	r.Post("/newsletter/send", s.handleSend)

	r.Get("/issues", s.handleIssues)
	r.Get("/issues/{publicID}", s.handleIssue)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, errNotFound)
	})
	s.router = r
}

func (s *Server) render(w http.ResponseWriter, name string, status int, data map[string]any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down server...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
