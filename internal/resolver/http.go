package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"github.com/agleyzer/hlschannels/internal/variant"
)

const (
	// DefaultTimeout bounds a single HTTP fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

	maxBodySize = 8 << 20
)

var (
	manifestURLPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+?\.m3u8[^\s"'<>\\]*`)
	jsonUnescaper      = strings.NewReplacer(`\/`, `/`, `\u0026`, `&`, `&amp;`, `&`)
	audioCodecPrefixes = []string{"mp4a", "ac-3", "ec-3", "opus", "flac", "mp3"}
)

// HTTP resolves a channel URL with plain HTTP requests.
//
// A URL that serves an HLS manifest is decoded directly. Anything else is
// treated as an HTML page and scanned for the first absolute .m3u8 URL, which
// is then fetched and decoded.
type HTTP struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewHTTP creates an HTTP resolver. Zero values select the defaults.
func NewHTTP(timeout time.Duration, userAgent string, logger *slog.Logger) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTP{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Resolve implements Resolver.
func (h *HTTP) Resolve(ctx context.Context, channelURL string) (*Result, error) {
	if channelURL == "" {
		return nil, fmt.Errorf("empty channel URL: %w", ErrNoStreams)
	}

	body, finalURL, err := h.fetch(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	if isManifest(body) {
		return h.resolveManifest(body, finalURL)
	}

	manifestURL := findManifestURL(body)
	if manifestURL == "" {
		return nil, fmt.Errorf("no manifest URL in page %s: %w", channelURL, ErrNoStreams)
	}
	h.logger.Debug("found manifest URL in page", "page", channelURL, "manifest", manifestURL)

	body, finalURL, err = h.fetch(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	if !isManifest(body) {
		return nil, fmt.Errorf("%s is not an HLS manifest: %w", manifestURL, ErrNoStreams)
	}

	return h.resolveManifest(body, finalURL)
}

// fetch downloads a URL and returns its body and the URL after redirects.
func (h *HTTP) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	return body, resp.Request.URL.String(), nil
}

// resolveManifest decodes an HLS manifest and names its streams.
func (h *HTTP) resolveManifest(body []byte, manifestURL string) (*Result, error) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(trimManifest(body)), false)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	if listType == m3u8.MASTER {
		masterPlaylist, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected playlist type")
		}
		set, err := multivariantFromMaster(masterPlaylist, manifestURL, hasVersionTag(body))
		if err != nil {
			return nil, err
		}
		h.logger.Debug("parsed master playlist", "url", manifestURL, "variants", len(set.Variants))
		return namedStreams(set)
	}

	// A media playlist is its own single stream.
	live := &Stream{Name: "live", URL: manifestURL}
	return &Result{Streams: map[string]*Stream{
		"live":     live,
		BestStream: {Name: BestStream, URL: manifestURL},
		"worst":    {Name: "worst", URL: manifestURL},
	}}, nil
}

// multivariantFromMaster converts a decoded master playlist into a variant catalog.
func multivariantFromMaster(masterPlaylist *m3u8.MasterPlaylist, masterURL string, explicitVersion bool) (*variant.MultivariantSet, error) {
	set := &variant.MultivariantSet{}

	for _, v := range masterPlaylist.Variants {
		// I-frame playlists are trick-play tracks, not playable renditions.
		if v == nil || v.Iframe {
			continue
		}

		variantURL, err := resolveURL(masterURL, v.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve variant URL: %w", err)
		}

		info := variant.Info{
			Codecs:     variant.SplitCodecs(v.Codecs),
			Resolution: variant.ParseResolution(v.Resolution),
		}
		if v.ProgramId != 0 {
			info.ProgramID = variant.IntPtr(int(v.ProgramId))
		}
		if v.Bandwidth != 0 {
			info.Bandwidth = variant.IntPtr(int(v.Bandwidth))
		}

		set.Variants = append(set.Variants, variant.Variant{
			Info:     info,
			URI:      variantURL,
			Category: categorize(v.Video, info),
		})
	}

	if len(set.Variants) == 0 {
		return nil, fmt.Errorf("master playlist contains no variants: %w", ErrNoStreams)
	}

	if explicitVersion {
		set.Version = variant.IntPtr(int(masterPlaylist.Version()))
	}

	return set, nil
}

// categorize marks a variant audio-only when its VIDEO group says so, or when it
// has no resolution and only audio codecs.
func categorize(videoGroup string, info variant.Info) variant.Category {
	if videoGroup == string(variant.CategoryAudioOnly) {
		return variant.CategoryAudioOnly
	}
	if info.Resolution != nil || len(info.Codecs) == 0 {
		return variant.CategoryVideo
	}
	for _, codec := range info.Codecs {
		if !isAudioCodec(codec) {
			return variant.CategoryVideo
		}
	}
	return variant.CategoryAudioOnly
}

func isAudioCodec(codec string) bool {
	codec = strings.ToLower(codec)
	for _, prefix := range audioCodecPrefixes {
		if strings.HasPrefix(codec, prefix) {
			return true
		}
	}
	return false
}

// namedStreams labels every variant by quality and adds the best/worst aliases.
// Every stream shares the same catalog.
func namedStreams(set *variant.MultivariantSet) (*Result, error) {
	streams := make(map[string]*Stream, len(set.Variants)+2)

	var best, worst *variant.Variant
	for i := range set.Variants {
		v := &set.Variants[i]

		name := qualityName(*v)
		for n := 1; ; n++ {
			if _, taken := streams[name]; !taken {
				break
			}
			if n == 1 {
				name = qualityName(*v) + "_alt"
			} else {
				name = qualityName(*v) + "_alt" + strconv.Itoa(n)
			}
		}
		streams[name] = &Stream{Name: name, URL: v.URI, Multivariant: set}

		if v.IsAudioOnly() {
			continue
		}
		if best == nil || outranks(*v, *best) {
			best = v
		}
		if worst == nil || outranks(*worst, *v) {
			worst = v
		}
	}

	// Only audio: it is the best there is.
	if best == nil {
		best = &set.Variants[0]
		worst = best
	}

	streams[BestStream] = &Stream{Name: BestStream, URL: best.URI, Multivariant: set}
	streams["worst"] = &Stream{Name: "worst", URL: worst.URI, Multivariant: set}

	return &Result{Streams: streams}, nil
}

// qualityName returns a label such as "720p", "2500k" or "audio_only".
func qualityName(v variant.Variant) string {
	switch {
	case v.IsAudioOnly():
		return string(variant.CategoryAudioOnly)
	case v.Info.Height() > 0:
		return strconv.Itoa(v.Info.Height()) + "p"
	case v.Info.Bandwidth != nil:
		return strconv.Itoa(*v.Info.Bandwidth/1000) + "k"
	default:
		return "unknown"
	}
}

// outranks reports whether a is a higher quality than b: taller first, then more bandwidth.
func outranks(a, b variant.Variant) bool {
	if a.Info.Height() != b.Info.Height() {
		return a.Info.Height() > b.Info.Height()
	}
	return bandwidth(a) > bandwidth(b)
}

func bandwidth(v variant.Variant) int {
	if v.Info.Bandwidth == nil {
		return 0
	}
	return *v.Info.Bandwidth
}

func isManifest(body []byte) bool {
	return bytes.HasPrefix(trimManifest(body), []byte("#EXTM3U"))
}

// trimManifest strips a UTF-8 BOM and surrounding whitespace.
func trimManifest(body []byte) []byte {
	return bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
}

func hasVersionTag(body []byte) bool {
	return bytes.Contains(body, []byte("#EXT-X-VERSION:"))
}

// findManifestURL returns the first absolute .m3u8 URL in an HTML or JSON body.
func findManifestURL(body []byte) string {
	return manifestURLPattern.FindString(jsonUnescaper.Replace(string(body)))
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(strings.TrimSpace(relativeURL))
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	return base.ResolveReference(rel).String(), nil
}
