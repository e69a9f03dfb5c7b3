// Package media opens user clips: probing them with ffprobe and decoding
// them frame by frame through ffmpeg.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"
)

// Info is what ffprobe tells us about a clip's first video stream.
type Info struct {
	Width    int
	Height   int
	Codec    string
	Duration time.Duration
	Rotation int
}

// DisplaySize is the frame size after ffmpeg applies rotation metadata.
func (i Info) DisplaySize() (int, int) {
	if r := ((i.Rotation % 360) + 360) % 360; r == 90 || r == 270 {
		return i.Height, i.Width
	}
	return i.Width, i.Height
}

type probeOutput struct {
	Streams []struct {
		CodecName string            `json:"codec_name"`
		Width     int               `json:"width"`
		Height    int               `json:"height"`
		Tags      map[string]string `json:"tags"`
		SideData  []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func Probe(ctx context.Context, ffprobe, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height:stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (Info, error) {
	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return Info{}, fmt.Errorf("ffprobe output: %w", err)
	}
	if len(po.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream")
	}
	s := po.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return Info{}, fmt.Errorf("video stream has no dimensions")
	}

	info := Info{Width: s.Width, Height: s.Height, Codec: s.CodecName}
	if d, err := strconv.ParseFloat(po.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(d * float64(time.Second))
	}
	if r, ok := s.Tags["rotate"]; ok {
		info.Rotation, _ = strconv.Atoi(r)
	}
	for _, sd := range s.SideData {
		if sd.Rotation != 0 {
			info.Rotation = int(math.Round(sd.Rotation))
		}
	}
	return info, nil
}
