// Package variant defines data structures for HLS variant streams in master playlists.
package variant

import (
	"strconv"
	"strings"
)

// Category tells video renditions apart from audio-only ones.
type Category string

const (
	// CategoryVideo is a rendition that carries video.
	CategoryVideo Category = "video"

	// CategoryAudioOnly is a rendition without video; it is never written to a playlist.
	CategoryAudioOnly Category = "audio_only"
)

// Resolution is a video frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// String renders the resolution the way #EXT-X-STREAM-INF expects it (e.g. "1920x1080").
func (r Resolution) String() string {
	return strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
}

// Info holds the #EXT-X-STREAM-INF attributes of one variant.
// Nil pointers and an empty Codecs slice mean the attribute was not present.
type Info struct {
	// ProgramID is the legacy PROGRAM-ID attribute
	ProgramID *int

	// Bandwidth is the peak segment bitrate in bits per second
	Bandwidth *int

	// Codecs is the ordered codec list (e.g. ["avc1.4d401f", "mp4a.40.2"])
	Codecs []string

	// Resolution is the video resolution, nil when not advertised
	Resolution *Resolution
}

// Height returns the advertised frame height, or 0 when no resolution is known.
func (i Info) Height() int {
	if i.Resolution == nil {
		return 0
	}
	return i.Resolution.Height
}

// Variant represents a single variant stream in an HLS master playlist.
type Variant struct {
	Info Info

	// URI is the absolute URL of the variant's media playlist
	URI string

	Category Category
}

// IsAudioOnly reports whether the variant carries no video.
func (v Variant) IsAudioOnly() bool {
	return v.Category == CategoryAudioOnly
}

// MultivariantSet is the full variant catalog of one channel.
type MultivariantSet struct {
	// Variants are kept in catalog order
	Variants []Variant

	// Version is the #EXT-X-VERSION of the source manifest, nil when it had none
	Version *int
}

// ParseResolution parses "WIDTHxHEIGHT". It returns nil for anything it cannot read.
func ParseResolution(s string) *Resolution {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return nil
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return nil
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return nil
	}
	return &Resolution{Width: width, Height: height}
}

// SplitCodecs splits a CODECS attribute value into its entries, dropping blanks.
func SplitCodecs(s string) []string {
	var codecs []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codecs = append(codecs, c)
		}
	}
	return codecs
}

// IntPtr is a convenience for building optional attributes.
func IntPtr(v int) *int {
	return &v
}
