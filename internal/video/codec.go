package video

import "strings"

// Codec is one encoder configuration the capture pipeline can try.
// An empty Encoder leaves the choice to ffmpeg's default for Format.
type Codec struct {
	Name    string
	Encoder string
	Format  string
	MIME    string
	Ext     string
}

func (c Codec) Explicit() bool {
	return c.Encoder != ""
}

var (
	VP9 = Codec{Name: "vp9", Encoder: "libvpx-vp9", Format: "webm", MIME: "video/webm;codecs=vp9", Ext: "webm"}
	VP8 = Codec{Name: "vp8", Encoder: "libvpx", Format: "webm", MIME: "video/webm;codecs=vp8", Ext: "webm"}
	// H264 gets its encoder filled in from what the host supports.
	H264 = Codec{Name: "h264", Encoder: "libx264", Format: "mp4", MIME: "video/mp4;codecs=avc1", Ext: "mp4"}

	// WebMDefaults keeps the container but lets ffmpeg pick the encoder.
	WebMDefaults = Codec{Name: "webm", Format: "webm", MIME: "video/webm", Ext: "webm"}
	// Unconfigured is the last resort: matroska with whatever ffmpeg defaults to.
	Unconfigured = Codec{Name: "default", Format: "matroska", MIME: "video/x-matroska", Ext: "mkv"}
)

// DefaultPreference is tried when the project does not list codecs.
var DefaultPreference = []string{"vp9", "vp8", "h264"}

// Candidates expands a preference list into the ordered list of
// configurations to try, ending with the two fallbacks.
func Candidates(preferred []string, h264Encoder string) []Codec {
	if len(preferred) == 0 {
		preferred = DefaultPreference
	}
	seen := map[string]bool{}
	var out []Codec
	for _, name := range preferred {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "vp9":
			out = append(out, VP9)
		case "vp8":
			out = append(out, VP8)
		case "h264", "avc":
			c := H264
			if h264Encoder != "" {
				c.Encoder = h264Encoder
			}
			out = append(out, c)
		}
	}
	return append(out, WebMDefaults, Unconfigured)
}
