package servepeer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/shurlinet/p2psync/internal/metrics"
	"github.com/shurlinet/p2psync/internal/vfs"
)

// downloadBufferSize matches the original implementation's streaming
// chunk size for served file content.
const downloadBufferSize = 4 * 1024 * 1024

// Server is the serving peer's HTTP API.
type Server struct {
	state      *State
	metrics    *metrics.Metrics
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a serving-peer Server around state. metrics may be nil.
func NewServer(state *State, m *metrics.Metrics) *Server {
	return &Server{state: state, metrics: m}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /query", s.handleQuery)
	mux.HandleFunc("GET /download", s.handleDownload)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Start binds addr and serves until Stop is called.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("servepeer listen: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Handler:      metrics.Instrument(s.metrics, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // downloads may legitimately run long
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("servepeer server error", "error", err)
		}
	}()

	slog.Info("serving peer listening", "addr", listener.Addr().String())
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

// respondError writes a {"error": msg} JSON body, per the error
// envelope convention every non-stream failure response uses.
func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	digest := r.URL.Query().Get("md5")
	if digest == "" {
		respondError(w, http.StatusBadRequest, "missing md5 query parameter")
		return
	}

	view, ok := s.state.Lookup(digest)
	if !ok {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	digest := r.URL.Query().Get("md5")
	if digest == "" {
		respondError(w, http.StatusBadRequest, "missing md5 query parameter")
		return
	}

	path, err := s.state.FilePath(digest)
	if err != nil {
		switch {
		case errors.Is(err, vfs.ErrNotFound):
			respondError(w, http.StatusNotFound, fmt.Sprintf("file not found: %s", digest))
		case errors.Is(err, vfs.ErrIsDirectory):
			respondError(w, http.StatusBadRequest, fmt.Sprintf("digest %s is a directory", digest))
		default:
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("internal server error: %v", err))
		}
		return
	}

	f, err := os.Open(path)
	if err != nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("file not found: %v", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	buf := make([]byte, downloadBufferSize)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		slog.Warn("download stream interrupted", "digest", digest, "error", err)
	}
}
