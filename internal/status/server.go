package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drksbr/browserrelay/internal/logger"
)

// Provider returns a JSON-serialisable value for one section of /status.json.
type Provider func() any

type Options struct {
	Addr     string
	Gatherer prometheus.Gatherer
	Sections map[string]Provider
	// Routes mounts extra handlers next to /metrics, keyed by mux pattern.
	Routes map[string]http.Handler
	Logger *slog.Logger
	// SampleInterval controls process resource sampling; zero means one minute.
	SampleInterval time.Duration
}

// Server exposes /metrics and /status.json on a local address.
type Server struct {
	opts      Options
	logger    *slog.Logger
	resources *ResourceTracker
	mux       *http.ServeMux
}

func New(opts Options) *Server {
	s := &Server{
		opts:      opts,
		logger:    logger.OrDiscard(opts.Logger).With("component", "status"),
		resources: NewResourceTracker(opts.SampleInterval),
		mux:       http.NewServeMux(),
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/status.json", s.handleStatusJSON)
	for pattern, h := range opts.Routes {
		s.mux.Handle(pattern, h)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("status listen: %w", err)
	}
	s.resources.Start(ctx)

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) collect() map[string]any {
	payload := map[string]any{
		"generatedAt": time.Now().UTC(),
		"resources":   s.resources.Snapshot(),
	}
	for name, provider := range s.opts.Sections {
		if provider != nil {
			payload[name] = provider()
		}
	}
	return payload
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.collect()); err != nil {
		s.logger.Warn("status json failed", "error", err)
	}
}
