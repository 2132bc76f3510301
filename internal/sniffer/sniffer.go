// Package sniffer finds HLS manifest URLs by watching a headless browser's network traffic.
package sniffer

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/hashicorp/go-hclog"
)

// DefaultTimeout is how long a page gets to request its manifest.
const DefaultTimeout = 20 * time.Second

const manifestExt = ".m3u8"

// Options configures the headless browser.
type Options struct {
	// ChromePath overrides the browser executable; empty searches the usual locations
	ChromePath string

	// Headless runs the browser without a window
	Headless bool

	// UserAgent overrides the browser user agent when set
	UserAgent string

	// NoSandbox disables the Chrome sandbox, which refuses to start as root
	NoSandbox bool

	// LogOutput receives browser logs; nil discards them
	LogOutput io.Writer

	// Verbose logs chromedp debug output as well
	Verbose bool
}

// Chrome loads pages in headless Chrome and reports the first manifest request.
type Chrome struct {
	opts   Options
	logger hclog.Logger
}

// New creates a Chrome sniffer.
func New(opts Options) *Chrome {
	logger := newNoOpHCLogger()
	if opts.LogOutput != nil {
		level := hclog.Warn
		if opts.Verbose {
			level = hclog.Debug
		}
		logger = newHCLogger(opts.LogOutput, level)
	}
	return &Chrome{opts: opts, logger: logger}
}

// SniffManifestURL opens pageURL and waits up to timeout for a request whose
// path contains ".m3u8". It returns "" with a nil error when none is seen.
// Navigation failures are logged, not returned: players often start streaming
// before or despite a failed load event.
func (c *Chrome) SniffManifestURL(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(printf(c.logger.Info)),
		chromedp.WithErrorf(printf(c.logger.Error)),
		chromedp.WithDebugf(printf(c.logger.Trace)),
	)
	defer cancelBrowser()

	waitCtx, cancelWait := context.WithTimeout(browserCtx, timeout)
	defer cancelWait()

	found := make(chan string, 1)
	var once sync.Once

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || req.Request == nil || !IsManifestURL(req.Request.URL) {
			return
		}
		once.Do(func() {
			c.logger.Debug("found manifest request", "url", req.Request.URL)
			found <- req.Request.URL
		})
	})

	go func() {
		if err := chromedp.Run(waitCtx, network.Enable(), chromedp.Navigate(pageURL)); err != nil {
			c.logger.Warn("navigation error", "page", pageURL, "error", err)
		}
	}()

	select {
	case manifestURL := <-found:
		return manifestURL, nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return "", err
		}
		c.logger.Debug("no manifest request before timeout", "page", pageURL, "timeout", timeout)
		return "", nil
	}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !c.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if c.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ChromePath))
	}
	if c.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
	}
	return opts
}

// IsManifestURL reports whether rawURL points at an HLS manifest, judged by its path.
func IsManifestURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), manifestExt)
}
