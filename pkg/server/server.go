// Package server exposes the system tool over the uniform HTTP
// contract: POST / with {action, args, request_id} answered by a
// result envelope. Application failures are envelopes with status 200;
// only non-JSON garbage earns a 4xx.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolwire/pkg/sandbox"
)

// Options configure the server.
type Options struct {
	Host string
	Port int

	// MetricsHandler serves GET /metrics when set
	MetricsHandler http.Handler

	// ShutdownGrace bounds the wait for in-flight requests on Stop
	ShutdownGrace time.Duration
}

// Server is the system capability server.
type Server struct {
	options     Options
	sandbox     *sandbox.Sandbox
	broadcaster *Broadcaster
	server      *http.Server
	listener    net.Listener

	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// New creates a server over a sandbox.
func New(options Options, sb *sandbox.Sandbox) (*Server, error) {
	if sb == nil {
		return nil, fmt.Errorf("sandbox is required")
	}
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	if options.Port == 0 {
		options.Port = 4810
	}
	if options.ShutdownGrace == 0 {
		options.ShutdownGrace = 30 * time.Second
	}

	return &Server{
		options:     options,
		sandbox:     sb,
		broadcaster: NewBroadcaster(),
		startTime:   time.Now(),
	}, nil
}

// Addr returns the listen address once the server has started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// routes builds the server mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleTool)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
	if s.options.MetricsHandler != nil {
		mux.Handle("/metrics", s.options.MetricsHandler)
	}
	return mux
}

// Start listens and serves until Stop is called. Blocking.
func (s *Server) Start() error {
	mux := s.routes()

	addr := fmt.Sprintf("%s:%d", s.options.Host, s.options.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.server = &http.Server{Handler: mux}

	log.Info().
		Str("addr", listener.Addr().String()).
		Msg("Starting system tool server")

	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("system tool server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the server: waits for in-flight exec requests
// up to the configured grace, then shuts down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	log.Info().Msg("Shutting down system tool server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.options.ShutdownGrace):
		log.Warn().Msg("Shutdown grace elapsed, forcing close")
	}

	s.broadcaster.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	log.Info().Msg("System tool server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}
