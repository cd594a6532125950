package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jobfitai/jobfit-api/internal/api/handlers"
	appMiddleware "github.com/jobfitai/jobfit-api/internal/api/middlewares"
	"github.com/jobfitai/jobfit-api/internal/config"
	"github.com/jobfitai/jobfit-api/internal/core"
	"github.com/jobfitai/jobfit-api/internal/core/pipeline"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes. Auth and document routes need the
// database; they are mounted only when it is configured.
func NewServer(cfg *config.Config, logger *zap.Logger, orch *pipeline.Orchestrator, db core.DbClient, obj core.ObjectClient, extractor core.DocumentExtractor, status handlers.RunStatusReader) *Server {
	analysisHandler := handlers.NewAnalysisHandler(orch, status, cfg, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		api.Get("/models", analysisHandler.Models)

		// Analysis runs on the shared free tier without an account; the
		// sync and SSE routes stay outside the timeout middleware because
		// a run legitimately takes minutes.
		api.Post("/analyze", analysisHandler.Analyze)
		api.Post("/analyze/stream", analysisHandler.AnalyzeStream)

		api.Group(func(short chi.Router) {
			short.Use(middleware.Timeout(30 * time.Second))
			short.Get("/runs/{run_id}", analysisHandler.GetRun)
			short.Post("/runs/{run_id}/cancel", analysisHandler.CancelRun)
		})

		if db != nil {
			authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
			docHandler := handlers.NewDocumentHandler(db, obj, extractor, cfg, logger)

			api.Post("/signup", authHandler.Signup)
			api.Post("/login", authHandler.Login)

			api.Group(func(protected chi.Router) {
				protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
				protected.Use(middleware.Timeout(5 * time.Minute))
				protected.Post("/documents/parse", docHandler.ParseDocument)
				protected.Get("/documents", docHandler.ListDocuments)
			})
		}
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
