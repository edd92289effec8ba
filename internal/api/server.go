// Package api exposes the TOP engine and stored results over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wegtop/internal/config"
	"wegtop/internal/pipeline"
	"wegtop/internal/storage"
)

type Server struct {
	router chi.Router
	proc   *pipeline.ProcessingService
	db     *storage.DB
	log    *slog.Logger
	cfg    config.Config
}

// NewServer wires the routes. db may be nil; the document endpoints then
// answer 503.
func NewServer(proc *pipeline.ProcessingService, db *storage.DB, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{proc: proc, db: db, log: log, cfg: cfg}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey))

		r.Post("/api/parse", s.handleParseUpload)
		r.Post("/api/parse/pages", s.handleParsePages)
		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{id}", s.handleGetDocument)
		r.Get("/api/documents/{id}/tops", s.handleDocumentTops)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
