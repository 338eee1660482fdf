package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lexium-ai/lexium/internal/api/handlers"
	appMiddleware "github.com/lexium-ai/lexium/internal/api/middlewares"
	"github.com/lexium-ai/lexium/internal/config"
	"github.com/lexium-ai/lexium/internal/core"
	"github.com/lexium-ai/lexium/internal/core/index"
	"github.com/lexium-ai/lexium/internal/ingestion"
	"github.com/lexium-ai/lexium/internal/logger"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, obj core.ObjectClient, orch *ingestion.Orchestrator, disp *ingestion.Dispatcher, pub *index.Publisher, log *logger.Logger) *Server {
	knowledgeHandler := handlers.NewKnowledgeHandler(db, obj, orch, disp, pub, cfg, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)
			protected.Post("/knowledge/upload", knowledgeHandler.UploadFiles)
			protected.Post("/knowledge/extract", knowledgeHandler.ExtractPreview)
			protected.Get("/knowledge/files", knowledgeHandler.ListFiles)
			protected.Delete("/knowledge/files/{id}", knowledgeHandler.DeleteFile)
			protected.Get("/knowledge/sessions/{id}", knowledgeHandler.GetSession)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Fatal("server error", "err", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
