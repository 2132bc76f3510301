// Package playlist renders the master and best HLS playlists written for each channel.
package playlist

import (
	"strconv"
	"strings"

	"github.com/agleyzer/hlschannels/internal/variant"
)

const (
	header        = "#EXTM3U\n"
	streamInfTag  = "#EXT-X-STREAM-INF:"
	versionTagFmt = "#EXT-X-VERSION:"
)

// Render writes one #EXT-X-STREAM-INF declaration followed by its URL line.
//
// Attributes are emitted in a fixed order (PROGRAM-ID, BANDWIDTH, CODECS,
// RESOLUTION) and skipped when absent. Every attribute except RESOLUTION is
// followed by a comma, so a declaration without a resolution ends in a trailing
// comma; players accept it and existing playlists depend on the exact bytes.
func Render(info variant.Info, url string) string {
	var b strings.Builder

	b.WriteString(streamInfTag)

	if info.ProgramID != nil && *info.ProgramID != 0 {
		b.WriteString("PROGRAM-ID=")
		b.WriteString(strconv.Itoa(*info.ProgramID))
		b.WriteString(",")
	}

	if info.Bandwidth != nil && *info.Bandwidth != 0 {
		b.WriteString("BANDWIDTH=")
		b.WriteString(strconv.Itoa(*info.Bandwidth))
		b.WriteString(",")
	}

	if len(info.Codecs) > 0 {
		b.WriteString(`CODECS="`)
		b.WriteString(strings.Join(info.Codecs, ","))
		b.WriteString(`",`)
	}

	if info.Resolution != nil && info.Resolution.Width != 0 {
		b.WriteString("RESOLUTION=")
		b.WriteString(info.Resolution.String())
	}

	b.WriteString("\n")
	b.WriteString(url)
	b.WriteString("\n")

	return b.String()
}
