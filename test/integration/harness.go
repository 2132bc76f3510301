// Package integration provides integration testing utilities for hlschannels.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grafov/m3u8"

	"github.com/agleyzer/hlschannels/internal/batch"
	"github.com/agleyzer/hlschannels/internal/config"
	"github.com/agleyzer/hlschannels/internal/resolver"
	"github.com/agleyzer/hlschannels/internal/server"
)

// TestHarness manages an origin serving channel pages and manifests, the
// output directories, and the playlist server reading them.
type TestHarness struct {
	t            *testing.T
	originServer *http.Server
	originPort   int
	originDir    string
	playServer   *http.Server
	playPort     int
	paths        config.Paths
	logger       *slog.Logger
	Console      bytes.Buffer
}

// NewTestHarness creates a new test harness with empty output directories.
func NewTestHarness(t *testing.T, output config.Output) *TestHarness {
	t.Helper()

	paths := output.ResolvePaths(t.TempDir())
	if err := paths.Ensure(); err != nil {
		t.Fatalf("failed to create output directories: %v", err)
	}

	return &TestHarness{
		t:          t,
		originPort: findAvailablePort(t),
		playPort:   findAvailablePort(t),
		paths:      paths,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		})),
	}
}

// Paths returns the output directories.
func (h *TestHarness) Paths() config.Paths {
	return h.paths
}

// OriginURL returns the absolute URL of name on the origin.
func (h *TestHarness) OriginURL(name string) string {
	return fmt.Sprintf("http://127.0.0.1:%d/%s", h.originPort, name)
}

// StartOrigin starts an HTTP server serving files from a temporary directory.
func (h *TestHarness) StartOrigin(files map[string]string) {
	h.t.Helper()

	h.originDir = h.t.TempDir()
	for name, content := range files {
		h.SetFile(name, content)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(h.originDir)))

	h.originServer = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", h.originPort),
		Handler: mux,
	}

	go func() {
		if err := h.originServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.t.Logf("origin server error: %v", err)
		}
	}()

	h.waitForServer(h.OriginURL(""), 5*time.Second)
	h.t.Logf("origin started on port %d", h.originPort)
}

// SetFile adds or replaces a file on the origin.
func (h *TestHarness) SetFile(name, content string) {
	h.t.Helper()

	path := filepath.Join(h.originDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.t.Fatalf("failed to create origin dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatalf("failed to write origin file %s: %v", name, err)
	}
}

// RemoveFile deletes a file from the origin so requests for it 404.
func (h *TestHarness) RemoveFile(name string) {
	h.t.Helper()

	if err := os.Remove(filepath.Join(h.originDir, filepath.FromSlash(name))); err != nil {
		h.t.Fatalf("failed to remove origin file %s: %v", name, err)
	}
}

// RunBatch processes channels with the HTTP resolver, plus extra routes.
func (h *TestHarness) RunBatch(channels []config.Channel, routes map[string]resolver.Resolver) batch.Summary {
	h.t.Helper()

	httpResolver := resolver.NewHTTP(5*time.Second, "", h.logger)
	router := &resolver.Router{
		Default: httpResolver,
		Routes:  map[string]resolver.Resolver{config.MethodResolver: httpResolver},
	}
	for method, r := range routes {
		router.Routes[method] = r
	}

	h.Console.Reset()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return batch.New(router, h.paths, h.logger, &h.Console).Run(ctx, channels)
}

// ReadMaster returns the master playlist written for slug, or "" if absent.
func (h *TestHarness) ReadMaster(slug string) string {
	return h.readOutput(h.paths.MasterFile(slug))
}

// ReadBest returns the best playlist written for slug, or "" if absent.
func (h *TestHarness) ReadBest(slug string) string {
	return h.readOutput(h.paths.BestFile(slug))
}

func (h *TestHarness) readOutput(path string) string {
	h.t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		h.t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// StartPlaylistServer serves the output directories like `hlschannels serve`.
func (h *TestHarness) StartPlaylistServer() {
	h.t.Helper()

	srv := server.New(h.paths, h.playPort, h.logger)
	h.playServer = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", h.playPort),
		Handler: srv.Handler(),
	}

	go func() {
		if err := h.playServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.t.Logf("playlist server error: %v", err)
		}
	}()

	h.waitForServer(h.playURL("/health"), 5*time.Second)
}

// Fetch GETs path from the playlist server and returns status and body.
func (h *TestHarness) Fetch(path string) (int, string) {
	h.t.Helper()

	resp, err := http.Get(h.playURL(path))
	if err != nil {
		h.t.Fatalf("failed to fetch %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("failed to read %s body: %v", path, err)
	}
	return resp.StatusCode, string(body)
}

func (h *TestHarness) playURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", h.playPort, path)
}

// Cleanup stops all running servers.
func (h *TestHarness) Cleanup() {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, srv := range []*http.Server{h.playServer, h.originServer} {
		if srv != nil {
			srv.Shutdown(ctx)
		}
	}
}

// waitForServer waits for a server to become available.
func (h *TestHarness) waitForServer(url string, timeout time.Duration) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	h.t.Fatalf("server at %s did not become available within %v", url, timeout)
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// ParsedVariant is one entry of a generated master playlist.
type ParsedVariant struct {
	URI        string
	Bandwidth  uint32
	Resolution string
	Codecs     string
}

// ParseMaster decodes a generated playlist as an HLS master playlist.
// It fails the test if the document is not a well-formed master playlist.
func ParseMaster(t *testing.T, content string) []ParsedVariant {
	t.Helper()

	p, listType, err := m3u8.DecodeFrom(bytes.NewBufferString(content), false)
	if err != nil {
		t.Fatalf("generated playlist does not decode: %v\n%s", err, content)
	}
	if listType != m3u8.MASTER {
		t.Fatalf("expected a master playlist, got list type %v\n%s", listType, content)
	}

	var out []ParsedVariant
	for _, v := range p.(*m3u8.MasterPlaylist).Variants {
		out = append(out, ParsedVariant{
			URI:        v.URI,
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
			Codecs:     v.Codecs,
		})
	}
	return out
}
