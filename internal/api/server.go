package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"github.com/zde37/chordsim/internal/chord"
	"github.com/zde37/chordsim/pkg"
)

// Server exposes the latest published cluster snapshot over HTTP and streams
// ring events over a WebSocket. The simulation runs on its own goroutine and
// hands snapshots over with Publish.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	wsHub      *WebSocketHub
	logger     *pkg.Logger

	mu       sync.RWMutex
	snapshot *chord.ClusterSnapshot
}

// NewServer creates a new HTTP API server.
func NewServer(logger *pkg.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Server{
		logger: logger.Component("http_api"),
		wsHub:  NewWebSocketHub(logger),
	}

	// Snapshot routes go through the gateway mux
	mux := runtime.NewServeMux(runtime.WithRoutingErrorHandler(routingError))
	if err := mux.HandlePath(http.MethodGet, "/api/ring", s.ringHandler); err != nil {
		return nil, fmt.Errorf("failed to register ring route: %w", err)
	}
	if err := mux.HandlePath(http.MethodGet, "/api/nodes/{id}", s.nodeHandler); err != nil {
		return nil, fmt.Errorf("failed to register node route: %w", err)
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", mux)
	httpMux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)
	httpMux.HandleFunc("/health", s.healthHandler)
	s.handler = corsMiddleware(httpMux)

	return s, nil
}

// Hub returns the event hub; pass it to the cluster as its observer.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Publish replaces the snapshot served by /api/ring.
func (s *Server) Publish(snap chord.ClusterSnapshot) {
	s.mu.Lock()
	s.snapshot = &snap
	s.mu.Unlock()
}

func (s *Server) current() (chord.ClusterSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return chord.ClusterSnapshot{}, false
	}
	return *s.snapshot, true
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the port, then serves on a background goroutine. A bind
// failure is returned to the caller.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Int("port", port).Msg("Starting HTTP API server")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping HTTP API server")

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	s.wsHub.Stop()

	s.logger.Info().Msg("HTTP API server stopped")
	return nil
}

// healthHandler handles health check requests.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.wsHub.ClientCount(),
	})
}

func (s *Server) ringHandler(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	snap, ok := s.current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) nodeHandler(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := strconv.ParseUint(params["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "node id must be a non-negative integer")
		return
	}
	snap, ok := s.current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}
	for _, n := range snap.Nodes {
		if uint64(n.ID) == id {
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("node %d: %s", id, pkg.ErrNodeNotFound))
}

// routingError reports unmatched gateway routes as plain JSON errors.
func routingError(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, _ *http.Request, status int) {
	writeError(w, status, http.StatusText(status))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}
