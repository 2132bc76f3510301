// Package resolver turns a channel URL into named, playable HLS streams.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/agleyzer/hlschannels/internal/variant"
)

// BestStream is the stream name every resolver must provide for a channel to be usable.
const BestStream = "best"

var (
	// ErrNoStreams is returned when nothing playable was found at the channel URL.
	ErrNoStreams = errors.New("no streams found")

	// ErrNoBestStream is returned when streams were found but none is named "best".
	ErrNoBestStream = errors.New("no best stream")

	// ErrNoPlayableURL is returned when a stream has neither a URL nor a variant catalog.
	ErrNoPlayableURL = errors.New("no playable URL")

	// ErrUnknownMethod is returned by Router for a method it has no resolver for.
	ErrUnknownMethod = errors.New("unknown resolve method")
)

// MissingBestError reports a result whose streams include no "best" stream.
// It matches ErrNoBestStream with errors.Is.
type MissingBestError struct {
	Available []string
}

func (e *MissingBestError) Error() string {
	return fmt.Sprintf("%v (available: %v)", ErrNoBestStream, e.Available)
}

func (e *MissingBestError) Unwrap() error {
	return ErrNoBestStream
}

// Resolver resolves a channel page or manifest URL.
type Resolver interface {
	Resolve(ctx context.Context, channelURL string) (*Result, error)
}

// Stream is one named, playable stream of a channel.
type Stream struct {
	// Name is the quality label (e.g. "720p", "best", "audio_only")
	Name string

	// URL is the playback URL of this stream's media playlist
	URL string

	// Multivariant is the channel's full variant catalog, nil when the source
	// offered a single media playlist
	Multivariant *variant.MultivariantSet
}

// Result holds every stream found for a channel, keyed by name.
type Result struct {
	Streams map[string]*Stream
}

// Best returns the stream named "best". A best stream without a URL is still
// usable when it carries a variant catalog.
func (r *Result) Best() (*Stream, error) {
	if r == nil || len(r.Streams) == 0 {
		return nil, ErrNoStreams
	}
	best, ok := r.Streams[BestStream]
	if !ok || best == nil {
		return nil, &MissingBestError{Available: r.Names()}
	}
	if best.URL == "" && (best.Multivariant == nil || len(best.Multivariant.Variants) == 0) {
		return nil, ErrNoPlayableURL
	}
	return best, nil
}

// Names lists the stream names in sorted order.
func (r *Result) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Streams))
	for name := range r.Streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Router picks a resolver by channel method. An empty method uses Default.
type Router struct {
	Default Resolver
	Routes  map[string]Resolver
}

// Route returns the resolver registered for method.
func (r *Router) Route(method string) (Resolver, error) {
	if method == "" {
		if r.Default == nil {
			return nil, fmt.Errorf("%w: no default resolver", ErrUnknownMethod)
		}
		return r.Default, nil
	}
	res, ok := r.Routes[method]
	if !ok || res == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return res, nil
}
