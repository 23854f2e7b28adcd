// Package http is the optional local status server started with --serve. It
// exposes the session snapshot, a manual refresh trigger, health and metrics.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Veirt/weathr/internal/observability"
	"github.com/Veirt/weathr/internal/traffic"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// RefreshLimiter throttles POST /refresh; nil disables throttling.
	RefreshLimiter *rate.Limiter
	Outcomes       *traffic.Tracker
	RequestTimeout time.Duration
}

// NewRouter wires the status routes:
//
//	GET  /weather  current snapshot
//	POST /refresh  manual refresh (rate limited)
//	GET  /health
//	GET  /metrics
func NewRouter(handler *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(TimeoutMiddleware(cfg.RequestTimeout))

	router.HandleFunc("/weather", handler.GetWeather).Methods(http.MethodGet)
	router.HandleFunc("/health", handler.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	limited := RateLimitMiddleware(cfg.RefreshLimiter, cfg.Outcomes)
	router.Handle("/refresh", limited(http.HandlerFunc(handler.PostRefresh))).Methods(http.MethodPost)
	return router
}

// Server owns the listener for the status routes.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
	addr   string
}

func NewServer(addr string, router http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the address synchronously, so a bad --serve value fails before
// the session starts, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.logger.Info("Status server starting", zap.String("addr", s.addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown stops accepting connections, then waits for in-flight requests
// until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if inFlight := InFlightCount(); inFlight > 0 {
		s.logger.Info("Waiting for in-flight requests", zap.Int64("count", inFlight))
		if waitErr := WaitForInFlight(ctx, 10*time.Millisecond); waitErr != nil {
			s.logger.Warn("In-flight requests not completed", zap.Error(waitErr), zap.Int64("remaining", InFlightCount()))
		}
	}
	return err
}
