package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/agent-desktop/internal/config"
	"github.com/yegors/agent-desktop/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(orchestrator CallOrchestrator, store TranscriptStore, assistGateway AssistGateway, wsHandler http.HandlerFunc, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(orchestrator, store, assistGateway, wsHandler, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Call lifecycle routes
		router.Post("/call/start", r.handler.StartCall)
		router.Post("/call/stop", r.handler.StopCall)
		router.Post("/playback-complete", r.handler.PlaybackComplete)

		// Transcript routes
		router.Get("/transcript", r.handler.GetTranscript)
		router.Post("/transcript", r.handler.SaveTranscript)

		// Generative assist routes
		router.Post("/suggestions", r.handler.PostSuggestions)
		router.Post("/summary", r.handler.PostSummary)

		// WebSocket route
		router.Get("/ws", r.handler.HandleWebSocket)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	// Call audio: the concatenated full-call stream plus the individual
	// segment files the play commands reference.
	router.Route("/audio", func(router chi.Router) {
		router.Get("/full-call", r.handler.StreamFullCall)
		router.Handle("/*", http.StripPrefix("/audio/", http.FileServer(http.Dir(r.config.Server.AudioDir))))
	})

	// Serve static files from the configured directory
	staticHandler := NewStaticFileHandler(r.config.Server.StaticFilesDir, r.logger)
	router.Handle("/*", staticHandler)

	return router
}
