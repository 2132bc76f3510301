package playlist

import (
	"strconv"

	"github.com/agleyzer/hlschannels/internal/variant"
)

// Result holds the two documents written for a channel.
// Either both are set or both are empty.
type Result struct {
	Master string
	Best   string
}

// OK reports whether the result carries playlist content.
func (r Result) OK() bool {
	return r.Master != "" && r.Best != ""
}

// Synthesize builds the master and best playlists from a variant catalog.
//
// Audio-only variants and variants without a URI are skipped. The master
// playlist lists the tallest variant first and the rest in catalog order; the
// best playlist holds only the tallest one. Heights are compared with a strict
// greater-than, so when several variants share the maximum height the first of
// them wins, regardless of bandwidth. Existing consumers rely on that choice.
//
// An empty Result is returned when set is nil or has no usable variant.
func Synthesize(set *variant.MultivariantSet) Result {
	if set == nil || len(set.Variants) == 0 {
		return Result{}
	}

	bestHeight := 0
	master := ""
	best := ""

	for _, v := range set.Variants {
		if v.IsAudioOnly() || v.URI == "" {
			continue
		}

		entry := Render(v.Info, v.URI)

		if h := v.Info.Height(); h > bestHeight {
			master = entry + master
			best = entry
			bestHeight = h
		} else {
			master += entry
		}
	}

	if master == "" {
		return Result{}
	}

	// Without any resolution nothing was promoted; the first entry stands in as best.
	if best == "" {
		best = firstEntry(set)
	}

	prefix := header
	if set.Version != nil && *set.Version != 0 {
		prefix += versionTagFmt + strconv.Itoa(*set.Version) + "\n"
	}

	return Result{
		Master: prefix + master,
		Best:   prefix + best,
	}
}

// SynthesizeSimple builds a one-entry playlist for a stream that has no variant
// catalog. Master and best are the same document.
func SynthesizeSimple(url string) Result {
	if url == "" {
		return Result{}
	}

	text := header + url + "\n"
	return Result{Master: text, Best: text}
}

func firstEntry(set *variant.MultivariantSet) string {
	for _, v := range set.Variants {
		if v.IsAudioOnly() || v.URI == "" {
			continue
		}
		return Render(v.Info, v.URI)
	}
	return ""
}
