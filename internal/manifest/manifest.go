// Package manifest inspects HLS playlists to recover rendition metadata.
// The adaptive path uses it to fill MediaInfo when the engine reports no
// active tracks, and the probe command uses it for HLS URLs.
package manifest

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/playsink/playsink/internal/media"
)

// RenditionTrack describes one variant of a multivariant playlist.
type RenditionTrack struct {
	Codecs     []string `json:"codecs,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	Bandwidth  int64    `json:"bandwidth,omitempty"`
	URI        string   `json:"uri"`
}

// MediaInfo converts the track into the shared MediaInfo shape.
func (t RenditionTrack) MediaInfo() media.MediaInfo {
	videoCodec := ""
	audioCodec := ""
	for _, c := range t.Codecs {
		switch {
		case strings.HasPrefix(c, "avc1") || strings.HasPrefix(c, "hvc1") || strings.HasPrefix(c, "hev1") || strings.HasPrefix(c, "av01") || strings.HasPrefix(c, "vp09"):
			if videoCodec == "" {
				videoCodec = c
			}
		case strings.HasPrefix(c, "mp4a") || strings.HasPrefix(c, "ac-3") || strings.HasPrefix(c, "ec-3") || strings.HasPrefix(c, "opus"):
			if audioCodec == "" {
				audioCodec = c
			}
		}
	}
	return media.MediaInfo{
		Width:      t.Width,
		Height:     t.Height,
		VideoCodec: videoCodec,
		AudioCodec: audioCodec,
		Bandwidth:  t.Bandwidth,
	}
}

// InspectHLS parses playlist bytes and returns the rendition tracks sorted
// by bandwidth, highest first. Variant URIs are absolutized against
// baseURL. A media playlist (no variants) yields an empty slice, not an
// error.
func InspectHLS(data []byte, baseURL string) ([]RenditionTrack, error) {
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing playlist: %w", err)
	}

	mv, ok := pl.(*playlist.Multivariant)
	if !ok {
		return []RenditionTrack{}, nil
	}

	tracks := make([]RenditionTrack, 0, len(mv.Variants))
	for _, v := range mv.Variants {
		track := RenditionTrack{
			Codecs:    v.Codecs,
			Bandwidth: int64(v.Bandwidth),
			URI:       absolutizeURL(baseURL, v.URI),
		}
		if v.Resolution != "" {
			track.Resolution = v.Resolution
			track.Width, track.Height = parseResolution(v.Resolution)
		}
		tracks = append(tracks, track)
	}

	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].Bandwidth > tracks[j].Bandwidth
	})
	return tracks, nil
}

// BestTrack returns the highest-bandwidth track, or nil for an empty set.
func BestTrack(tracks []RenditionTrack) *RenditionTrack {
	if len(tracks) == 0 {
		return nil
	}
	best := tracks[0]
	for _, t := range tracks[1:] {
		if t.Bandwidth > best.Bandwidth {
			best = t
		}
	}
	return &best
}

// parseResolution splits a WxH resolution attribute.
func parseResolution(res string) (int, int) {
	w, h, ok := strings.Cut(strings.ToLower(res), "x")
	if !ok {
		return 0, 0
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0
	}
	return width, height
}

// absolutizeURL converts a relative variant URI to absolute based on the
// playlist URL.
func absolutizeURL(playlistURL, variantURL string) string {
	if strings.HasPrefix(variantURL, "http://") || strings.HasPrefix(variantURL, "https://") {
		return variantURL
	}
	if playlistURL == "" {
		return variantURL
	}

	base, err := url.Parse(playlistURL)
	if err != nil {
		if idx := strings.LastIndex(playlistURL, "/"); idx >= 0 {
			return playlistURL[:idx+1] + variantURL
		}
		return variantURL
	}
	ref, err := url.Parse(variantURL)
	if err != nil {
		return variantURL
	}
	return base.ResolveReference(ref).String()
}
