// Package server exposes the generated playlists over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agleyzer/hlschannels/internal/config"
)

const playlistExt = ".m3u8"

// Server serves the master and best playlist directories
type Server struct {
	paths      config.Paths
	port       int
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new HTTP server
func New(paths config.Paths, port int, logger *slog.Logger) *Server {
	return &Server{
		paths:  paths,
		port:   port,
		logger: logger,
	}
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /master/{file}", s.handlePlaylist(func() string { return s.paths.Master }))
	mux.HandleFunc("GET /best/{file}", s.handlePlaylist(func() string { return s.paths.Best }))
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handlePlaylist serves <slug>.m3u8 from the directory returned by dir
func (s *Server) handlePlaylist(dir func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("file")
		slug := strings.TrimSuffix(name, playlistExt)
		if slug == name || slug == "" || slug != filepath.Base(slug) || strings.HasPrefix(slug, ".") {
			http.NotFound(w, r)
			return
		}

		content, err := os.ReadFile(filepath.Join(dir(), name))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.logger.Error("failed to read playlist", "file", name, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			http.NotFound(w, r)
			return
		}

		// Set HLS-specific headers
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}
}

// handleHealth reports how many playlists each directory holds
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	master, err := countPlaylists(s.paths.Master)
	if err != nil {
		s.logger.Error("failed to list master playlists", "error", err)
	}
	best, bestErr := countPlaylists(s.paths.Best)
	if bestErr != nil {
		s.logger.Error("failed to list best playlists", "error", bestErr)
	}

	status := "ok"
	code := http.StatusOK
	if err != nil || bestErr != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	health := map[string]interface{}{
		"status": status,
		"playlists": map[string]int{
			"master": master,
			"best":   best,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}

// countPlaylists counts the regular .m3u8 files directly inside dir
func countPlaylists(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), playlistExt) {
			n++
		}
	}
	return n, nil
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
