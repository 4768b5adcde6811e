package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multivariantPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,CODECS="avc1.640028,mp4a.40.2"
hd/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,CODECS="avc1.4d401f,mp4a.40.2"
mid/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXT-X-ENDLIST
`

func TestInspectHLSMultivariant(t *testing.T) {
	tracks, err := InspectHLS([]byte(multivariantPlaylist), "http://cdn.example.com/live/master.m3u8")
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	// Sorted by bandwidth, highest first.
	assert.Equal(t, int64(5_000_000), tracks[0].Bandwidth)
	assert.Equal(t, 1920, tracks[0].Width)
	assert.Equal(t, 1080, tracks[0].Height)
	assert.Equal(t, "http://cdn.example.com/live/hd/index.m3u8", tracks[0].URI)
	assert.Equal(t, []string{"avc1.640028", "mp4a.40.2"}, tracks[0].Codecs)

	assert.Equal(t, int64(2_500_000), tracks[1].Bandwidth)
	assert.Equal(t, int64(1_280_000), tracks[2].Bandwidth)
}

func TestInspectHLSMediaPlaylist(t *testing.T) {
	tracks, err := InspectHLS([]byte(mediaPlaylist), "http://cdn.example.com/live/index.m3u8")
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestInspectHLSInvalid(t *testing.T) {
	_, err := InspectHLS([]byte("not a playlist"), "")
	assert.Error(t, err)
}

func TestBestTrack(t *testing.T) {
	assert.Nil(t, BestTrack(nil))

	tracks := []RenditionTrack{
		{Bandwidth: 100},
		{Bandwidth: 300},
		{Bandwidth: 200},
	}
	best := BestTrack(tracks)
	require.NotNil(t, best)
	assert.Equal(t, int64(300), best.Bandwidth)
}

func TestRenditionTrackMediaInfo(t *testing.T) {
	track := RenditionTrack{
		Codecs:    []string{"avc1.640028", "mp4a.40.2"},
		Width:     1920,
		Height:    1080,
		Bandwidth: 5_000_000,
	}
	info := track.MediaInfo()
	assert.Equal(t, "avc1.640028", info.VideoCodec)
	assert.Equal(t, "mp4a.40.2", info.AudioCodec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, int64(5_000_000), info.Bandwidth)
}

func TestParseResolution(t *testing.T) {
	w, h := parseResolution("1280x720")
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	w, h = parseResolution("garbage")
	assert.Zero(t, w)
	assert.Zero(t, h)
}
