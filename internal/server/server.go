// Package server provides the HTTP server and routing for Refinery.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/refinery/internal/clientdata"
	"github.com/aristath/refinery/internal/clients/tycoon"
	"github.com/aristath/refinery/internal/config"
	"github.com/aristath/refinery/internal/database"
	"github.com/aristath/refinery/internal/modules/market"
	"github.com/aristath/refinery/internal/modules/reference"
	"github.com/aristath/refinery/internal/modules/scanner"
	"github.com/aristath/refinery/internal/modules/sourcing"
)

// Config holds everything the server needs.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	CacheDB   *database.DB
	QuoteRepo *clientdata.Repository
	Index     *reference.Index
	Graph     *reference.Graph
	Market    *market.Service
	Scanner   *scanner.Service
	Sourcing  *sourcing.Service
	Tycoon    *tycoon.Client
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	cacheDB        *database.DB
	quoteRepo      *clientdata.Repository
	index          *reference.Index
	graph          *reference.Graph
	market         *market.Service
	scanner        *scanner.Service
	sourcing       *sourcing.Service
	tycoon         *tycoon.Client
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		cacheDB:   cfg.CacheDB,
		quoteRepo: cfg.QuoteRepo,
		index:     cfg.Index,
		graph:     cfg.Graph,
		market:    cfg.Market,
		scanner:   cfg.Scanner,
		sourcing:  cfg.Sourcing,
		tycoon:    cfg.Tycoon,
	}
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.CacheDB, cfg.Tycoon)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // scans walk the full catalog
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/items", s.handleItemLookup)
		r.Get("/items/{typeID}", s.handleItem)
		r.Get("/items/{typeID}/yields", s.handleItemYields)
		r.Get("/quotes/{typeID}", s.handleQuote)

		r.Post("/scan", s.handleScan)
		r.Get("/scan/stream", s.handleScanStream)
		r.Post("/optimize", s.handleOptimize)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", s.handleCacheStats)
			r.Post("/save", s.handleCacheSave)
			r.Post("/clear", s.handleCacheClear)
		})

		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
