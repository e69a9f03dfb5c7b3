package media

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// decoderScript stands in for ffmpeg: it records its arguments and writes
// CLIP_FRAMES frames of 16 bytes (2x2 RGBA), plus half a frame when
// CLIP_PARTIAL is set.
const decoderScript = `#!/bin/sh
[ -n "$CLIP_ARGS" ] && echo "$@" > "$CLIP_ARGS"
i=0
while [ "$i" -lt "${CLIP_FRAMES:-0}" ]; do
	printf '%016d' "$i"
	i=$((i+1))
done
[ -n "$CLIP_PARTIAL" ] && printf '%08d' 0
exit 0
`

func fakeDecoder(t *testing.T, frames string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script ffmpeg stand-in")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(path, []byte(decoderScript), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLIP_FRAMES", frames)
	t.Setenv("CLIP_PARTIAL", "")
	t.Setenv("CLIP_ARGS", filepath.Join(dir, "args"))
	return path
}

func testClip(ffmpeg string) *Clip {
	return &Clip{path: "clip.mp4", info: Info{Width: 2, Height: 2}, ffmpeg: ffmpeg, fps: 30}
}

func drain(t *testing.T, c *Clip) int {
	t.Helper()
	n := 0
	for {
		_, err := c.NextFrame()
		if errors.Is(err, io.EOF) {
			return n
		}
		if err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
		n++
	}
}

func TestClipPlaysToEOFAndRestarts(t *testing.T) {
	c := testClip(fakeDecoder(t, "3"))

	for round := range 2 {
		if err := c.Play(context.Background()); err != nil {
			t.Fatalf("Play (round %d): %v", round, err)
		}
		if n := drain(t, c); n != 3 {
			t.Errorf("round %d: %d frames, want 3", round, n)
		}
	}
	c.Pause()
}

func TestClipFirstFrameIsReadyAfterPlay(t *testing.T) {
	c := testClip(fakeDecoder(t, "2"))
	if err := c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Pause()

	img, err := c.NextFrame()
	if err != nil {
		t.Fatal(err)
	}
	// printf '%016d' 0 is sixteen ASCII zeros
	if rgba := img.(*image.RGBA); rgba.Pix[0] != '0' || rgba.Bounds().Dx() != 2 {
		t.Errorf("unexpected first frame %v", rgba.Pix)
	}
}

func TestClipTruncatedFrameEndsClip(t *testing.T) {
	c := testClip(fakeDecoder(t, "2"))
	t.Setenv("CLIP_PARTIAL", "1")
	if err := c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Pause()
	if n := drain(t, c); n != 2 {
		t.Errorf("%d frames, want 2 before the partial one", n)
	}
}

func TestClipPause(t *testing.T) {
	c := testClip(fakeDecoder(t, "5"))
	if err := c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.NextFrame()
	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if !c.Paused() {
		t.Error("Paused() = false after Pause")
	}
	if _, err := c.NextFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("NextFrame after Pause = %v, want io.EOF", err)
	}

	if err := c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Pause()
	if c.Paused() {
		t.Error("Play must resume a paused clip")
	}
	if n := drain(t, c); n != 5 {
		t.Errorf("%d frames after restart, want 5", n)
	}
}

func TestClipWithoutFramesFailsToPlay(t *testing.T) {
	c := testClip(fakeDecoder(t, "0"))
	if err := c.Play(context.Background()); err == nil {
		t.Fatal("expected Play to fail when nothing is decoded")
	}
}

func TestClipPrescaleFilters(t *testing.T) {
	ffmpeg := fakeDecoder(t, "1")
	c := testClip(ffmpeg)
	c.info = Info{Width: 16, Height: 9}
	c.Prescale(image.Pt(8, 4), image.Rect(3, 1, 5, 3))

	if err := c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Pause()
	img, err := c.NextFrame()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Errorf("frame bounds %v, want the 2x2 crop", img.Bounds())
	}

	args, err := os.ReadFile(os.Getenv("CLIP_ARGS"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"-an", "fps=30,scale=8:4,crop=2:2:3:1", "-pix_fmt rgba"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("decoder args %q missing %q", args, want)
		}
	}
}
