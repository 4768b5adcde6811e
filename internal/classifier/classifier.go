// Package classifier maps a media URL to a stream kind and playback
// category. Classification is a pure function over the URL string: it is
// deterministic, case-insensitive, performs no I/O, and never fails. When
// nothing matches it returns the optimistic UNKNOWN/NATIVE default so the
// orchestrator attempts direct playback rather than failing closed.
package classifier

import (
	"net/url"
	"path"
	"strings"

	"github.com/playsink/playsink/internal/media"
)

// Format query parameter values that force a classification, checked before
// extension matching. Mirrors the ?format= override convention used by
// streaming proxies.
const formatParam = "format"

// Classify returns the stream descriptor for a URL. Matching precedence,
// first match wins: explicit HLS marker, DASH manifest, MPEG-TS, MP4/M4V,
// WebM, MKV, AVI, then the UNKNOWN/NATIVE fallback.
func Classify(rawURL string) media.StreamDescriptor {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	ext := ExtensionOf(rawURL)
	format := formatOverride(rawURL)

	switch {
	case strings.Contains(lower, ".m3u8") || format == "hls" || format == "m3u8":
		return descriptor(media.KindHLS)
	case strings.Contains(lower, ".mpd") || format == "dash" || format == "mpd":
		return descriptor(media.KindDASH)
	case ext == ".ts" || format == "ts" || format == "mpegts":
		return descriptor(media.KindMPEGTS)
	case ext == ".mp4" || ext == ".m4v":
		return descriptor(media.KindMP4)
	case ext == ".webm":
		return descriptor(media.KindWebM)
	case ext == ".mkv":
		return descriptor(media.KindMKV)
	case ext == ".avi":
		return descriptor(media.KindAVI)
	default:
		return descriptor(media.KindUnknown)
	}
}

// descriptor pairs a kind with its category. The mapping is closed:
// REMUX iff MKV/AVI, LIVE iff HLS/DASH/MPEG-TS, NATIVE otherwise.
func descriptor(kind media.StreamKind) media.StreamDescriptor {
	return media.StreamDescriptor{Kind: kind, Category: CategoryOf(kind)}
}

// CategoryOf returns the playback category for a stream kind.
func CategoryOf(kind media.StreamKind) media.Category {
	switch kind {
	case media.KindMKV, media.KindAVI:
		return media.CategoryRemux
	case media.KindHLS, media.KindDASH, media.KindMPEGTS:
		return media.CategoryLive
	default:
		return media.CategoryNative
	}
}

// NeedsRemuxing reports whether the container must be rewritten before a
// native sink can play it.
func NeedsRemuxing(kind media.StreamKind) bool {
	return CategoryOf(kind) == media.CategoryRemux
}

// IsAdaptiveCompatible reports whether the adaptive engine can load the
// kind directly.
func IsAdaptiveCompatible(kind media.StreamKind) bool {
	switch kind {
	case media.KindHLS, media.KindDASH, media.KindMP4, media.KindWebM:
		return true
	default:
		return false
	}
}

// ExtensionOf returns the lowercase path extension of a URL, including the
// leading dot, with any query string and fragment stripped first. It is
// best-effort: a malformed URL yields an empty string, never an error.
func ExtensionOf(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}

	p := s
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		p = u.Path
	} else {
		// Not parseable as a URL; strip query/fragment markers by hand.
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
	}

	return strings.ToLower(path.Ext(p))
}

// formatOverride returns the lowercase value of the explicit format query
// parameter, or empty string when absent or unparseable.
func formatOverride(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get(formatParam))
}
