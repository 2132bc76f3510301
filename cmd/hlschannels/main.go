// The hlschannels command discovers live TV stream manifests and writes a master
// and a best HLS playlist for every configured channel.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agleyzer/hlschannels/internal/batch"
	"github.com/agleyzer/hlschannels/internal/config"
	"github.com/agleyzer/hlschannels/internal/resolver"
	"github.com/agleyzer/hlschannels/internal/server"
	"github.com/agleyzer/hlschannels/internal/sniffer"
)

const (
	version           = "1.0.0"
	defaultConfigPath = "config.json"
)

type options struct {
	configPath     string
	verbose        bool
	browserTimeout time.Duration
	chromePath     string
	port           int

	// workDir anchors the output folders; empty means the process working directory
	workDir string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "received signal %s, stopping\n", sig)
		cancel()
	}()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	runE := func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), opts.withArgs(args), stdout, stderr)
	}

	rootCmd := &cobra.Command{
		Use:          "hlschannels [config]",
		Short:        "Generate master and best HLS playlists for live TV channels",
		Version:      version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runE,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to the JSON or YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&opts.browserTimeout, "browser-timeout", 0, "How long the browser waits for a manifest request (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.chromePath, "chrome-path", "", "Chrome or Chromium executable (overrides config)")

	runCmd := &cobra.Command{
		Use:   "run [config]",
		Short: "Process every channel once and write its playlists",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runE,
	}

	serveCmd := &cobra.Command{
		Use:   "serve [config]",
		Short: "Serve the generated playlists over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts.withArgs(args), stderr)
		},
	}
	serveCmd.Flags().IntVar(&opts.port, "port", 8080, "HTTP server port")

	rootCmd.AddCommand(runCmd, serveCmd)
	return rootCmd
}

// withArgs lets a positional config path take precedence over --config.
func (o *options) withArgs(args []string) *options {
	if len(args) > 0 {
		o.configPath = args[0]
	}
	return o
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// prepare loads the config, applies flag overrides and creates the output directories.
func prepare(opts *options, logger *slog.Logger) (*config.Config, config.Paths, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, config.Paths{}, err
	}

	if opts.browserTimeout < 0 {
		return nil, config.Paths{}, fmt.Errorf("--browser-timeout must be positive, got %s", opts.browserTimeout)
	}
	if opts.browserTimeout > 0 {
		cfg.Browser.Timeout = opts.browserTimeout
	}
	if opts.chromePath != "" {
		cfg.Browser.ChromePath = opts.chromePath
	}

	cwd := opts.workDir
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return nil, config.Paths{}, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	paths := cfg.Output.ResolvePaths(cwd)
	if err := paths.Ensure(); err != nil {
		return nil, config.Paths{}, err
	}

	logger.Debug("configuration loaded",
		"config", opts.configPath,
		"channels", len(cfg.Channels),
		"master", paths.Master,
		"best", paths.Best,
	)
	return cfg, paths, nil
}

func runBatch(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, opts.verbose)
	logger.Info("hlschannels starting", "version", version)

	cfg, paths, err := prepare(opts, logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	runner := batch.New(newRouter(cfg, logger, stderr, opts.verbose), paths, logger, stdout)
	summary := runner.Run(ctx, cfg.Channels)

	logger.Info("hlschannels finished", "success", summary.Success, "failed", summary.Failed)
	return nil
}

// newRouter wires the HTTP resolver as default and the headless browser for
// channels that ask for it.
func newRouter(cfg *config.Config, logger *slog.Logger, logOutput io.Writer, verbose bool) *resolver.Router {
	httpResolver := resolver.NewHTTP(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, logger.With("resolver", config.MethodResolver))

	chrome := sniffer.New(sniffer.Options{
		ChromePath: cfg.Browser.ChromePath,
		Headless:   cfg.Browser.Headless == nil || *cfg.Browser.Headless,
		NoSandbox:  cfg.Browser.NoSandbox,
		UserAgent:  cfg.HTTP.UserAgent,
		LogOutput:  logOutput,
		Verbose:    verbose,
	})

	return &resolver.Router{
		Default: httpResolver,
		Routes: map[string]resolver.Resolver{
			config.MethodResolver: httpResolver,
			config.MethodBrowser:  resolver.NewBrowser(chrome, cfg.Browser.Timeout),
		},
	}
}

func serve(ctx context.Context, opts *options, stderr io.Writer) error {
	logger := newLogger(stderr, opts.verbose)

	if opts.port < 1 || opts.port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", opts.port)
	}

	_, paths, err := prepare(opts, logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	logger.Info("serving playlists",
		"master_url", fmt.Sprintf("http://localhost:%d/master/<slug>.m3u8", opts.port),
		"best_url", fmt.Sprintf("http://localhost:%d/best/<slug>.m3u8", opts.port),
		"health", fmt.Sprintf("http://localhost:%d/health", opts.port),
	)

	// Blocks until shutdown
	return server.New(paths, opts.port, logger).Start(ctx)
}
