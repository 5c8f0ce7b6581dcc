// Package server wires the kernel's public surface onto HTTP: the one-shot
// evaluation endpoints, the websocket streaming transport, Prometheus
// metrics, and health probes.
//
// Request parsing stays deliberately thin — audio arrives as the raw
// request body with its Content-Type, options as query parameters. Anything
// richer (multipart uploads, API gateways) belongs to outer collaborators.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pronunciapa/pronunciapa/internal/kernel"
	"github.com/pronunciapa/pronunciapa/internal/stream"
)

// shutdownGrace bounds graceful shutdown.
const shutdownGrace = 10 * time.Second

// Server hosts the HTTP surface. Create with [New], run with [Server.Run].
type Server struct {
	kernel *kernel.Kernel
	http   *http.Server
}

// New builds the server for the given kernel and listen address.
func New(k *kernel.Kernel, listenAddr string) *Server {
	mux := http.NewServeMux()

	api := &api{kernel: k}
	mux.HandleFunc("POST /v1/transcribe", api.transcribe)
	mux.HandleFunc("POST /v1/compare", api.compare)
	mux.HandleFunc("POST /v1/quick-compare", api.quickCompare)
	mux.HandleFunc("POST /v1/feedback", api.feedback)

	mux.Handle("GET /v1/stream", stream.NewHandler(k))
	mux.Handle("GET /metrics", promhttp.Handler())

	registerHealth(mux, k)

	return &Server{
		kernel: k,
		http: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully: listeners
// close first, live streaming sessions get the grace period to drain.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
