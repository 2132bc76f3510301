// Package batch generates the playlists for every configured channel.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/agleyzer/hlschannels/internal/config"
	"github.com/agleyzer/hlschannels/internal/playlist"
	"github.com/agleyzer/hlschannels/internal/resolver"
)

// ErrNoContent is returned when a channel resolved but yielded nothing to write.
var ErrNoContent = errors.New("no playlist content generated")

// Summary counts the outcome of a run.
type Summary struct {
	Success int
	Failed  int

	// Skipped channels were not completed because the run was cancelled
	Skipped int

	Total int
}

// Runner processes channels one at a time, in order.
// A failing channel never stops the run; its previous playlists are removed so
// no stale file keeps pointing at a dead stream.
type Runner struct {
	resolvers *resolver.Router
	paths     config.Paths
	logger    *slog.Logger
	console   *Console
}

// New creates a Runner. Progress for humans goes to out.
func New(resolvers *resolver.Router, paths config.Paths, logger *slog.Logger, out io.Writer) *Runner {
	return &Runner{
		resolvers: resolvers,
		paths:     paths,
		logger:    logger,
		console:   NewConsole(out),
	}
}

// Run processes every channel and returns the counters.
// The output directories must already exist.
func (r *Runner) Run(ctx context.Context, channels []config.Channel) Summary {
	logger := r.logger.With("run", uuid.NewString())
	summary := Summary{Total: len(channels)}

	r.console.Header("Processing %d channels", len(channels))
	logger.Info("batch started", "channels", len(channels), "master", r.paths.Master, "best", r.paths.Best)

	for i, ch := range channels {
		if err := ctx.Err(); err != nil {
			summary.Skipped = len(channels) - i
			logger.Warn("batch cancelled", "error", err, "skipped", summary.Skipped)
			break
		}

		r.console.Channel(i+1, len(channels), ch.DisplayName(), ch.URL)

		chLogger := logger.With("channel", ch.Slug)
		if err := r.processChannel(ctx, ch, chLogger); err != nil {
			// Stopped by the operator: keep the last good playlists.
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				summary.Skipped = len(channels) - i
				r.console.Warning("Cancelled while processing %s", ch.Slug)
				chLogger.Warn("batch cancelled", "error", err, "skipped", summary.Skipped)
				break
			}

			r.reportFailure(ch, err, chLogger)
			r.removeStale(ch.Slug, chLogger)
			summary.Failed++
			continue
		}

		r.console.Success("Success - Files created")
		summary.Success++
	}

	r.console.Summary(summary)
	logger.Info("batch finished",
		"success", summary.Success,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"total", summary.Total,
	)

	return summary
}

// processChannel resolves, synthesizes and writes one channel.
// Panics are turned into errors so the next channel still runs.
func (r *Runner) processChannel(ctx context.Context, ch config.Channel, logger *slog.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic while processing channel", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("unexpected panic: %v", p)
		}
	}()

	res, err := r.generate(ctx, ch, logger)
	if err != nil {
		return err
	}

	if err := writeFile(r.paths.MasterFile(ch.Slug), res.Master); err != nil {
		return err
	}
	if err := writeFile(r.paths.BestFile(ch.Slug), res.Best); err != nil {
		return err
	}

	logger.Debug("wrote playlists", "master", r.paths.MasterFile(ch.Slug), "best", r.paths.BestFile(ch.Slug))
	return nil
}

// generate asks the channel's resolver for streams and builds both playlists,
// preferring the variant catalog and falling back to the best stream's URL.
func (r *Runner) generate(ctx context.Context, ch config.Channel, logger *slog.Logger) (playlist.Result, error) {
	res, err := r.resolvers.Route(ch.Method)
	if err != nil {
		return playlist.Result{}, err
	}

	streams, err := res.Resolve(ctx, ch.URL)
	if err != nil {
		return playlist.Result{}, err
	}

	best, err := streams.Best()
	if err != nil {
		return playlist.Result{}, err
	}

	out := playlist.Synthesize(best.Multivariant)
	if out.OK() {
		logger.Debug("built playlists from variant catalog", "variants", len(best.Multivariant.Variants))
		return out, nil
	}

	out = playlist.SynthesizeSimple(best.URL)
	if out.OK() {
		logger.Debug("built single-entry playlists", "url", best.URL)
		return out, nil
	}

	return playlist.Result{}, ErrNoContent
}

func (r *Runner) reportFailure(ch config.Channel, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, resolver.ErrNoStreams):
		r.console.Warning("No streams found for %s", ch.Slug)
		logger.Warn("no streams found", "error", err)
	case errors.Is(err, resolver.ErrNoBestStream):
		r.console.Warning("No 'best' stream found for %s", ch.Slug)
		var missing *resolver.MissingBestError
		if errors.As(err, &missing) {
			r.console.Detail("Available streams: %v", missing.Available)
		}
		logger.Warn("no best stream", "error", err)
	case errors.Is(err, resolver.ErrNoPlayableURL), errors.Is(err, ErrNoContent):
		r.console.Warning("No content generated for %s", ch.Slug)
		logger.Warn("no content generated", "error", err)
	default:
		r.console.Error("ERROR processing %s: %v", ch.Slug, err)
		logger.Error("channel failed", "url", ch.URL, "error", err)
	}
}

// removeStale deletes the channel's playlists from earlier runs, if any.
func (r *Runner) removeStale(slug string, logger *slog.Logger) {
	for _, path := range []string{r.paths.MasterFile(slug), r.paths.BestFile(slug)} {
		err := os.Remove(path)
		switch {
		case err == nil:
			logger.Info("removed stale playlist", "path", path)
		case errors.Is(err, os.ErrNotExist):
		default:
			logger.Error("failed to remove stale playlist", "path", path, "error", err)
		}
	}
}

// writeFile replaces path with content.
func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
