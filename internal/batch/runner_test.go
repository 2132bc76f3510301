package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agleyzer/hlschannels/internal/config"
	"github.com/agleyzer/hlschannels/internal/playlist"
	"github.com/agleyzer/hlschannels/internal/resolver"
	"github.com/agleyzer/hlschannels/internal/variant"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testPaths(t *testing.T, masterFolder string) config.Paths {
	t.Helper()
	p := config.Output{Folder: "streams", BestFolder: "best", MasterFolder: masterFolder}.ResolvePaths(t.TempDir())
	require.NoError(t, p.Ensure())
	return p
}

func testCatalog() *variant.MultivariantSet {
	return &variant.MultivariantSet{
		Version: variant.IntPtr(3),
		Variants: []variant.Variant{
			{
				Info: variant.Info{
					Bandwidth:  variant.IntPtr(2000000),
					Codecs:     []string{"avc1.4d401f", "mp4a.40.2"},
					Resolution: &variant.Resolution{Width: 1280, Height: 720},
				},
				URI:      "https://cdn.example/720.m3u8",
				Category: variant.CategoryVideo,
			},
			{
				Info:     variant.Info{Bandwidth: variant.IntPtr(64000), Codecs: []string{"mp4a.40.2"}},
				URI:      "https://cdn.example/audio.m3u8",
				Category: variant.CategoryAudioOnly,
			},
			{
				Info: variant.Info{
					Bandwidth:  variant.IntPtr(5000000),
					Codecs:     []string{"avc1.640028", "mp4a.40.2"},
					Resolution: &variant.Resolution{Width: 1920, Height: 1080},
				},
				URI:      "https://cdn.example/1080.m3u8",
				Category: variant.CategoryVideo,
			},
		},
	}
}

// mapResolver answers from a fixed table keyed by channel URL.
func mapResolver(table map[string]func() (*resolver.Result, error)) *resolver.MockResolver {
	return &resolver.MockResolver{
		ResolveFunc: func(_ context.Context, channelURL string) (*resolver.Result, error) {
			if fn, ok := table[channelURL]; ok {
				return fn()
			}
			return nil, resolver.ErrNoStreams
		},
	}
}

func bestOnly(stream *resolver.Stream) func() (*resolver.Result, error) {
	return func() (*resolver.Result, error) {
		return &resolver.Result{Streams: map[string]*resolver.Stream{resolver.BestStream: stream}}, nil
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func requireMissing(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist), "expected %s to be absent, stat error: %v", path, err)
}

func TestRun_MultivariantChannel(t *testing.T) {
	paths := testPaths(t, "master")
	catalog := testCatalog()
	res := mapResolver(map[string]func() (*resolver.Result, error){
		"https://tv/trt1": bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn.example/1080.m3u8", Multivariant: catalog}),
	})

	var out bytes.Buffer
	r := New(&resolver.Router{Default: res}, paths, createTestLogger(), &out)
	summary := r.Run(context.Background(), []config.Channel{{Name: "TRT 1", Slug: "trt1", URL: "https://tv/trt1"}})

	require.Equal(t, Summary{Success: 1, Total: 1}, summary)

	want := playlist.Synthesize(catalog)
	require.Equal(t, want.Master, readFile(t, filepath.Join(paths.Master, "trt1.m3u8")))
	require.Equal(t, want.Best, readFile(t, filepath.Join(paths.Best, "trt1.m3u8")))
	require.NotContains(t, readFile(t, paths.MasterFile("trt1")), "audio.m3u8")

	require.Contains(t, out.String(), "[1/1] Processing: TRT 1")
	require.Contains(t, out.String(), "Successful: 1")
}

func TestRun_FallbackToSimplePlaylist(t *testing.T) {
	paths := testPaths(t, "")
	res := mapResolver(map[string]func() (*resolver.Result, error){
		"https://tv/x": bestOnly(&resolver.Stream{Name: "best", URL: "https://x/stream.m3u8"}),
	})

	r := New(&resolver.Router{Default: res}, paths, createTestLogger(), nil)
	summary := r.Run(context.Background(), []config.Channel{{Slug: "x", URL: "https://tv/x"}})

	require.Equal(t, 1, summary.Success)
	// masterFolder empty: master playlists land in the root output folder
	require.Equal(t, paths.Root, paths.Master)
	require.Equal(t, "#EXTM3U\nhttps://x/stream.m3u8\n", readFile(t, filepath.Join(paths.Root, "x.m3u8")))
	require.Equal(t, "#EXTM3U\nhttps://x/stream.m3u8\n", readFile(t, paths.BestFile("x")))
}

func TestRun_AudioOnlyCatalogFallsBackToBestURL(t *testing.T) {
	paths := testPaths(t, "master")
	audio := &variant.MultivariantSet{Variants: []variant.Variant{
		{URI: "https://cdn/audio.m3u8", Category: variant.CategoryAudioOnly},
	}}
	res := mapResolver(map[string]func() (*resolver.Result, error){
		"https://radio": bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn/audio.m3u8", Multivariant: audio}),
	})

	summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), nil).
		Run(context.Background(), []config.Channel{{Slug: "radio", URL: "https://radio"}})

	require.Equal(t, 1, summary.Success)
	require.Equal(t, "#EXTM3U\nhttps://cdn/audio.m3u8\n", readFile(t, paths.BestFile("radio")))
}

func TestRun_FailuresRemoveStaleFiles(t *testing.T) {
	paths := testPaths(t, "master")

	failures := map[string]func() (*resolver.Result, error){
		"resolver error": func() (*resolver.Result, error) { return nil, errors.New("connection refused") },
		"no streams":     func() (*resolver.Result, error) { return &resolver.Result{}, nil },
		"no best": func() (*resolver.Result, error) {
			return &resolver.Result{Streams: map[string]*resolver.Stream{"720p": {Name: "720p", URL: "https://a"}}}, nil
		},
		"no content": bestOnly(&resolver.Stream{Name: "best"}),
		"panic":      func() (*resolver.Result, error) { panic("resolver blew up") },
	}

	for name, fn := range failures {
		t.Run(name, func(t *testing.T) {
			slug := "stale"
			require.NoError(t, os.WriteFile(paths.MasterFile(slug), []byte("#EXTM3U\nold\n"), 0o644))
			require.NoError(t, os.WriteFile(paths.BestFile(slug), []byte("#EXTM3U\nold\n"), 0o644))

			res := mapResolver(map[string]func() (*resolver.Result, error){"https://tv/stale": fn})
			var out bytes.Buffer
			summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), &out).
				Run(context.Background(), []config.Channel{{Slug: slug, URL: "https://tv/stale"}})

			require.Equal(t, Summary{Failed: 1, Total: 1}, summary)
			requireMissing(t, paths.MasterFile(slug))
			requireMissing(t, paths.BestFile(slug))
			require.Contains(t, out.String(), "Failed: 1")
		})
	}
}

func TestRun_FailureWithoutPreviousFiles(t *testing.T) {
	paths := testPaths(t, "master")
	res := mapResolver(nil)

	summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), nil).
		Run(context.Background(), []config.Channel{{Slug: "gone", URL: "https://tv/gone"}})

	require.Equal(t, 1, summary.Failed)
	requireMissing(t, paths.MasterFile("gone"))
}

func TestRun_OneFailureDoesNotAbortBatch(t *testing.T) {
	paths := testPaths(t, "master")
	res := mapResolver(map[string]func() (*resolver.Result, error){
		"https://tv/a": bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn/a.m3u8"}),
		"https://tv/b": func() (*resolver.Result, error) { panic("boom") },
		"https://tv/c": bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn/c.m3u8", Multivariant: testCatalog()}),
	})

	summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), nil).Run(context.Background(), []config.Channel{
		{Slug: "a", URL: "https://tv/a"},
		{Slug: "b", URL: "https://tv/b"},
		{Slug: "c", URL: "https://tv/c"},
	})

	require.Equal(t, Summary{Success: 2, Failed: 1, Total: 3}, summary)
	require.FileExists(t, paths.MasterFile("a"))
	require.FileExists(t, paths.BestFile("c"))
	requireMissing(t, paths.MasterFile("b"))
}

func TestRun_Idempotent(t *testing.T) {
	paths := testPaths(t, "master")
	res := mapResolver(map[string]func() (*resolver.Result, error){
		"https://tv/a": bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn/1080.m3u8", Multivariant: testCatalog()}),
	})
	channels := []config.Channel{{Slug: "a", URL: "https://tv/a"}}
	r := New(&resolver.Router{Default: res}, paths, createTestLogger(), nil)

	r.Run(context.Background(), channels)
	firstMaster, firstBest := readFile(t, paths.MasterFile("a")), readFile(t, paths.BestFile("a"))

	r.Run(context.Background(), channels)
	require.Equal(t, firstMaster, readFile(t, paths.MasterFile("a")))
	require.Equal(t, firstBest, readFile(t, paths.BestFile("a")))
}

func TestRun_RoutesByMethod(t *testing.T) {
	paths := testPaths(t, "master")
	var browserCalls, defaultCalls int
	def := &resolver.MockResolver{ResolveFunc: func(context.Context, string) (*resolver.Result, error) {
		defaultCalls++
		return bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn/d.m3u8"})()
	}}
	browser := &resolver.MockResolver{ResolveFunc: func(context.Context, string) (*resolver.Result, error) {
		browserCalls++
		return bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn/b.m3u8"})()
	}}
	router := &resolver.Router{
		Default: def,
		Routes:  map[string]resolver.Resolver{config.MethodResolver: def, config.MethodBrowser: browser},
	}

	summary := New(router, paths, createTestLogger(), nil).Run(context.Background(), []config.Channel{
		{Slug: "d", URL: "https://tv/d", Method: config.MethodResolver},
		{Slug: "b", URL: "https://tv/b", Method: config.MethodBrowser},
		{Slug: "u", URL: "https://tv/u", Method: "telnet"},
	})

	require.Equal(t, Summary{Success: 2, Failed: 1, Total: 3}, summary)
	require.Equal(t, 1, defaultCalls)
	require.Equal(t, 1, browserCalls)
	require.Contains(t, readFile(t, paths.BestFile("b")), "https://cdn/b.m3u8")
}

func TestRun_Cancelled(t *testing.T) {
	paths := testPaths(t, "master")
	ctx, cancel := context.WithCancel(context.Background())

	res := &resolver.MockResolver{ResolveFunc: func(context.Context, string) (*resolver.Result, error) {
		cancel()
		return bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn/a.m3u8"})()
	}}

	summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), nil).Run(ctx, []config.Channel{
		{Slug: "a", URL: "https://tv/a"},
		{Slug: "b", URL: "https://tv/b"},
		{Slug: "c", URL: "https://tv/c"},
	})

	require.Equal(t, Summary{Success: 1, Skipped: 2, Total: 3}, summary)
}

func TestRun_WriteFailure(t *testing.T) {
	paths := testPaths(t, "master")
	// A directory where the best file should go makes the write fail.
	require.NoError(t, os.MkdirAll(paths.BestFile("w"), 0o755))

	res := mapResolver(map[string]func() (*resolver.Result, error){
		"https://tv/w": bestOnly(&resolver.Stream{Name: "best", URL: "https://cdn/w.m3u8"}),
	})
	summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), nil).
		Run(context.Background(), []config.Channel{{Slug: "w", URL: "https://tv/w"}})

	require.Equal(t, 1, summary.Failed)
	requireMissing(t, paths.MasterFile("w"))
}

func TestRun_CancelledMidChannelKeepsFiles(t *testing.T) {
	paths := testPaths(t, "master")
	for _, slug := range []string{"a", "b"} {
		require.NoError(t, os.WriteFile(paths.MasterFile(slug), []byte("#EXTM3U\ngood\n"), 0o644))
		require.NoError(t, os.WriteFile(paths.BestFile(slug), []byte("#EXTM3U\ngood\n"), 0o644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	res := &resolver.MockResolver{ResolveFunc: func(ctx context.Context, _ string) (*resolver.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, fmt.Errorf("failed to fetch: %w", ctx.Err())
	}}
	go func() {
		<-started
		cancel()
	}()

	var out bytes.Buffer
	summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), &out).Run(ctx, []config.Channel{
		{Slug: "a", URL: "https://tv/a"},
		{Slug: "b", URL: "https://tv/b"},
	})

	require.Equal(t, Summary{Skipped: 2, Total: 2}, summary)
	for _, slug := range []string{"a", "b"} {
		require.Equal(t, "#EXTM3U\ngood\n", readFile(t, paths.MasterFile(slug)))
		require.Equal(t, "#EXTM3U\ngood\n", readFile(t, paths.BestFile(slug)))
	}
	require.Contains(t, out.String(), "Cancelled while processing a")
}

func TestRun_CancelledDuringHTTPFetchKeepsFiles(t *testing.T) {
	paths := testPaths(t, "master")
	require.NoError(t, os.WriteFile(paths.MasterFile("a"), []byte("#EXTM3U\ngood\n"), 0o644))
	require.NoError(t, os.WriteFile(paths.BestFile("a"), []byte("#EXTM3U\ngood\n"), 0o644))

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer origin.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	httpResolver := resolver.NewHTTP(10*time.Second, "", createTestLogger())
	summary := New(&resolver.Router{Default: httpResolver}, paths, createTestLogger(), nil).Run(ctx, []config.Channel{
		{Slug: "a", URL: origin.URL + "/live"},
		{Slug: "b", URL: origin.URL + "/other"},
	})

	require.Equal(t, Summary{Skipped: 2, Total: 2}, summary)
	require.FileExists(t, paths.MasterFile("a"))
	require.FileExists(t, paths.BestFile("a"))
}

func TestRun_NoBestListsAvailableStreams(t *testing.T) {
	paths := testPaths(t, "master")
	res := mapResolver(map[string]func() (*resolver.Result, error){
		"https://tv/x": func() (*resolver.Result, error) {
			return &resolver.Result{Streams: map[string]*resolver.Stream{
				"720p":  {Name: "720p", URL: "https://cdn/720.m3u8"},
				"worst": {Name: "worst", URL: "https://cdn/360.m3u8"},
			}}, nil
		},
	})

	var out bytes.Buffer
	summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), &out).
		Run(context.Background(), []config.Channel{{Slug: "x", URL: "https://tv/x"}})

	require.Equal(t, 1, summary.Failed)
	require.Contains(t, out.String(), "No 'best' stream found for x")
	require.Contains(t, out.String(), "Available streams: [720p worst]")
}

func TestRun_BestWithoutURLReportsNoContent(t *testing.T) {
	paths := testPaths(t, "master")
	res := mapResolver(map[string]func() (*resolver.Result, error){
		"https://tv/x": bestOnly(&resolver.Stream{Name: "best"}),
	})

	var out bytes.Buffer
	summary := New(&resolver.Router{Default: res}, paths, createTestLogger(), &out).
		Run(context.Background(), []config.Channel{{Slug: "x", URL: "https://tv/x"}})

	require.Equal(t, 1, summary.Failed)
	require.Contains(t, out.String(), "No content generated for x")
}
