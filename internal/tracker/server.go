package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shurlinet/p2psync/internal/metrics"
)

// maxRequestBodySize bounds announce request bodies.
const maxRequestBodySize = 1 << 16 // 64 KiB

// Server is the tracker's HTTP API: peer announce/list, wrapped with
// Prometheus instrumentation and structured logging.
type Server struct {
	registry   *Registry
	metrics    *metrics.Metrics
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a tracker Server around registry. metrics may be nil.
func NewServer(registry *Registry, m *metrics.Metrics) *Server {
	return &Server{registry: registry, metrics: m}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /announce", s.handleAnnounce)
	mux.HandleFunc("GET /peers", s.handlePeers)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Start binds addr and serves until Stop is called. It returns once
// the listener is bound; serving happens in a background goroutine.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tracker listen: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Handler:      metrics.Instrument(s.metrics, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("tracker server error", "error", err)
		}
	}()

	slog.Info("tracker listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address. Valid after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// respondJSON writes data as the bare JSON response body — no
// envelope. The tracker's success bodies are pinned to exact literal
// schemas by spec.md, so nothing here wraps them.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"name":    "p2psync tracker",
		"version": "1",
		"endpoints": map[string]string{
			"announce": "POST /announce",
			"peers":    "GET /peers",
		},
	})
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req AnnounceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid announce body: "+err.Error())
		return
	}
	if req.Addr == "" {
		respondError(w, http.StatusBadRequest, "addr must not be empty")
		return
	}

	s.registry.Announce(req.Addr)
	if s.metrics != nil {
		s.metrics.PeersKnown.Set(float64(s.registry.Len()))
	}
	respondJSON(w, http.StatusOK, StatusOKResponse{Status: "ok"})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, PeersResponse{Peers: s.registry.Peers()})
}
