// Package api is a small read-only HTTP surface over the notification
// store: health, Prometheus metrics, and query endpoints for stored
// notifications. Disabled unless configured.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"polynotify/internal/store"
)

// Store is the read slice of the persistence layer the API serves.
type Store interface {
	GetAll(ctx context.Context, limit, skip int) ([]store.Notification, error)
	GetByDateRange(ctx context.Context, start, end time.Time) ([]store.Notification, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Addr string // host:port, e.g. "127.0.0.1:8080"
}

type Server struct {
	cfg  Config
	st   Store
	log  zerolog.Logger
	http *http.Server
	ln   net.Listener
}

func New(cfg Config, st Store, log zerolog.Logger) *Server {
	s := &Server{cfg: cfg, st: st, log: log}

	r := mux.NewRouter()
	r.Use(s.recovery, s.logging)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/notifications", s.handleList).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/range", s.handleRange).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	s.http = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener synchronously so bind errors surface at
// startup, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("api server stopped")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("api listening")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
