package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// Server exposes /metrics and /healthz while a long-running sync is active.
type Server struct {
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
}

// Router serves the scrape endpoint and a liveness check.
func (p *Prometheus) Router() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", p.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return router
}

// Serve starts listening on addr. The server runs until Close.
func (p *Prometheus) Serve(addr string, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics server: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		listener: listener,
		server:   &http.Server{Handler: p.Router(), ReadHeaderTimeout: 10 * time.Second},
		logger:   logger,
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "err", err)
		}
	}()
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
