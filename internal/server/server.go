// package server contains the router, middleware & handlers for the moodtape HTTP API
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/metrics"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 10 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware = mux.MiddlewareFunc

// Handler registers a group of routes on the router.
type Handler interface {
	RegisterRoutes(router *mux.Router)
}

// Server is the HTTP API: a gorilla/mux router with logging, recovery and metrics middleware.
type Server struct {
	router  *mux.Router
	logger  *log.Logger
	metrics *metrics.Metrics
	http    *http.Server
}

// New builds a server listening on addr. Handlers are registered in order; /health and /metrics are always present.
func New(addr string, logger *log.Logger, m *metrics.Metrics, handlers ...Handler) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	router := mux.NewRouter()
	router.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		MetricsMiddleware(m),
	)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	for _, h := range handlers {
		h.RegisterRoutes(router)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return &Server{
		router:  router,
		logger:  logger,
		metrics: m,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Routes lists "METHOD /path" for every registered route.
func (s *Server) Routes() []string {
	var routes []string
	s.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			// subrouter prefixes carry no methods
			return nil
		}
		for _, m := range methods {
			routes = append(routes, fmt.Sprintf("%s %s", m, path))
		}
		return nil
	})
	return routes
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
