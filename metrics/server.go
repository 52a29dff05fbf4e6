package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// DefaultAddress is used when no metrics address is configured
	DefaultAddress = ":9090"

	uptimeInterval = 10 * time.Second
)

// Server provides an HTTP server for Prometheus metrics
type Server struct {
	httpServer *http.Server
	collector  *Collector
	log        *zap.Logger
	listener   net.Listener
	stop       chan struct{}
}

// NewServer creates a metrics HTTP server exposing the collector registry
func NewServer(address string, collector *Collector, log *zap.Logger) *Server {
	if address == "" {
		address = DefaultAddress
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		collector: collector,
		log:       log,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.collector.UpdateServerUptime()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Handler returns the HTTP handler, for embedding in another server
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the metrics address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Info("Metrics server listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	s.stop = make(chan struct{})
	go s.collectUptime(s.stop)
	return nil
}

// collectUptime refreshes the uptime gauge until stop is closed
func (s *Server) collectUptime(stop <-chan struct{}) {
	ticker := time.NewTicker(uptimeInterval)
	defer ticker.Stop()

	s.collector.UpdateServerUptime()
	for {
		select {
		case <-ticker.C:
			s.collector.UpdateServerUptime()
		case <-stop:
			return
		}
	}
}

// Stop gracefully stops the metrics HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
