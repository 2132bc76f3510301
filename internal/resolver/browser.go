package resolver

import (
	"context"
	"fmt"
	"time"
)

// ManifestSniffer loads a page and reports the first manifest URL it requests.
// It returns an empty string, not an error, when none shows up within timeout.
type ManifestSniffer interface {
	SniffManifestURL(ctx context.Context, pageURL string, timeout time.Duration) (string, error)
}

// Browser resolves channels whose player only reveals its manifest URL at runtime.
// The sniffed URL becomes the "best" stream; no variant catalog is available.
type Browser struct {
	sniffer ManifestSniffer
	timeout time.Duration
}

// NewBrowser wraps a sniffer. timeout bounds each page load.
func NewBrowser(sniffer ManifestSniffer, timeout time.Duration) *Browser {
	return &Browser{sniffer: sniffer, timeout: timeout}
}

// Resolve implements Resolver.
func (b *Browser) Resolve(ctx context.Context, pageURL string) (*Result, error) {
	if pageURL == "" {
		return nil, fmt.Errorf("empty channel URL: %w", ErrNoStreams)
	}

	manifestURL, err := b.sniffer.SniffManifestURL(ctx, pageURL, b.timeout)
	if err != nil {
		return nil, fmt.Errorf("browser sniff failed: %w", err)
	}
	if manifestURL == "" {
		return nil, fmt.Errorf("no manifest request seen within %s: %w: %w", b.timeout, ErrNoStreams, ErrNoPlayableURL)
	}

	return &Result{Streams: map[string]*Stream{
		BestStream: {Name: BestStream, URL: manifestURL},
	}}, nil
}
