// Package media defines the shared value types for stream classification
// and playback: stream kinds, playback categories, backend kinds, and
// descriptive media snapshots.
package media

// StreamKind is the concrete container or protocol of a stream URL.
type StreamKind string

const (
	// KindHLS is an HTTP Live Streaming playlist (.m3u8).
	KindHLS StreamKind = "hls"
	// KindDASH is an MPEG-DASH manifest (.mpd).
	KindDASH StreamKind = "dash"
	// KindMP4 is a progressive MP4/M4V file.
	KindMP4 StreamKind = "mp4"
	// KindWebM is a progressive WebM file.
	KindWebM StreamKind = "webm"
	// KindMPEGTS is a raw MPEG transport stream.
	KindMPEGTS StreamKind = "mpegts"
	// KindMKV is a Matroska container, unplayable by native sinks.
	KindMKV StreamKind = "mkv"
	// KindAVI is an AVI container, unplayable by native sinks.
	KindAVI StreamKind = "avi"
	// KindUnknown is anything the classifier could not recognize.
	KindUnknown StreamKind = "unknown"
)

// String returns the kind name.
func (k StreamKind) String() string {
	return string(k)
}

// Category is the coarse playback strategy hint derived from a StreamKind.
type Category string

const (
	// CategoryNative streams attach directly to the native sink.
	CategoryNative Category = "native"
	// CategoryLive streams go through the adaptive engine.
	CategoryLive Category = "live"
	// CategoryRemux streams must be rewritten into fragmented MP4 first.
	CategoryRemux Category = "remux"
)

// String returns the category name.
func (c Category) String() string {
	return string(c)
}

// StreamDescriptor is the immutable classification result for one URL.
// It is derived purely from the URL string; no network access is involved.
type StreamDescriptor struct {
	Kind     StreamKind `json:"kind"`
	Category Category   `json:"category"`
}

// BackendKind identifies which playback backend a session is using.
type BackendKind string

const (
	// BackendNone means no backend has been selected yet.
	BackendNone BackendKind = "none"
	// BackendNative is direct native sink playback.
	BackendNative BackendKind = "native"
	// BackendAdaptive is adaptive-engine playback.
	BackendAdaptive BackendKind = "adaptive"
	// BackendRemuxing is the remux pipeline feeding a native handoff.
	BackendRemuxing BackendKind = "remuxing"
)

// String returns the backend name.
func (b BackendKind) String() string {
	return string(b)
}

// MediaInfo is a descriptive snapshot of the selected stream, produced once
// per successful session initialization. Fields the prober or engine could
// not determine stay zero-valued; they are never fabricated.
type MediaInfo struct {
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
	// Bandwidth is the overall bitrate in bits per second.
	Bandwidth int64 `json:"bandwidth,omitempty"`
	// Duration is the media duration in seconds, zero for live streams.
	Duration float64 `json:"duration,omitempty"`
}

// IsZero reports whether no field of the snapshot was populated.
func (m MediaInfo) IsZero() bool {
	return m == MediaInfo{}
}
