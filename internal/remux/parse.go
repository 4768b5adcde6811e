package remux

import (
	"regexp"
	"strconv"

	"github.com/playsink/playsink/internal/media"
)

// Diagnostic-text patterns. Matching free-form executor output is
// inherently fragile across executor versions; the parser therefore
// tolerates unrecognized lines and leaves unmatched fields zero-valued
// rather than guessing.
var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	videoRe    = regexp.MustCompile(`Stream #\d+:\d+.*?Video:\s*([A-Za-z0-9_]+).*?(\d{2,5})x(\d{2,5})`)
	audioRe    = regexp.MustCompile(`Stream #\d+:\d+.*?Audio:\s*([A-Za-z0-9_]+)`)
	bitrateRe  = regexp.MustCompile(`bitrate:\s*(\d+)\s*kb/s`)
)

// ParseDiagnostics recovers duration, first video stream codec and
// dimensions, first audio stream codec, and overall bitrate from the
// executor's diagnostic output lines.
func ParseDiagnostics(lines []string) media.MediaInfo {
	var info media.MediaInfo

	for _, line := range lines {
		if info.Duration == 0 {
			if m := durationRe.FindStringSubmatch(line); m != nil {
				hours, _ := strconv.Atoi(m[1])
				mins, _ := strconv.Atoi(m[2])
				secs, _ := strconv.Atoi(m[3])
				centis, _ := strconv.Atoi(m[4])
				info.Duration = float64(hours)*3600 + float64(mins)*60 + float64(secs) + float64(centis)/100
			}
		}
		if info.VideoCodec == "" {
			if m := videoRe.FindStringSubmatch(line); m != nil {
				info.VideoCodec = m[1]
				width, _ := strconv.Atoi(m[2])
				height, _ := strconv.Atoi(m[3])
				info.Width = width
				info.Height = height
			}
		}
		if info.AudioCodec == "" {
			if m := audioRe.FindStringSubmatch(line); m != nil {
				info.AudioCodec = m[1]
			}
		}
		if info.Bandwidth == 0 {
			if m := bitrateRe.FindStringSubmatch(line); m != nil {
				kbps, _ := strconv.ParseInt(m[1], 10, 64)
				info.Bandwidth = kbps * 1000
			}
		}
	}

	return info
}
