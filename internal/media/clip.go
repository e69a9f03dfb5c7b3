package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"time"
)

// Clip is a user video decoded by ffmpeg into RGBA frames at a fixed rate.
// Audio is never decoded; clips play muted.
type Clip struct {
	path   string
	info   Info
	ffmpeg string
	fps    int

	// scaled size and visible part, set by Prescale
	scaled image.Point
	crop   image.Rectangle

	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	buf     *image.RGBA
	pending bool
	paused  bool
}

// Open probes path and returns a clip ready to Play.
func Open(ctx context.Context, ffmpeg, ffprobe, path string, fps int) (*Clip, error) {
	info, err := Probe(ctx, ffprobe, path)
	if err != nil {
		return nil, err
	}
	return &Clip{path: path, info: info, ffmpeg: ffmpeg, fps: fps}, nil
}

func (c *Clip) Size() (int, int) {
	return c.info.DisplaySize()
}

func (c *Clip) Source() string {
	return c.path
}

func (c *Clip) Duration() time.Duration {
	return c.info.Duration
}

// Prescale makes the decoder scale the clip to size and keep only crop, so
// frames come out ready to copy onto the canvas. It applies from the next Play.
func (c *Clip) Prescale(size image.Point, crop image.Rectangle) {
	c.scaled, c.crop = size, crop
}

// frameSize is the size of the decoded frames.
func (c *Clip) frameSize() image.Point {
	if !c.crop.Empty() {
		return c.crop.Size()
	}
	w, h := c.Size()
	return image.Pt(w, h)
}

func (c *Clip) filters() string {
	vf := "fps=" + strconv.Itoa(c.fps)
	if c.crop.Empty() {
		return vf
	}
	return fmt.Sprintf("%s,scale=%d:%d,crop=%d:%d:%d:%d", vf,
		c.scaled.X, c.scaled.Y, c.crop.Dx(), c.crop.Dy(), c.crop.Min.X, c.crop.Min.Y)
}

// Play restarts decoding from the first frame and blocks until that frame
// has been decoded, so a clip that cannot start fails here.
func (c *Clip) Play(ctx context.Context) error {
	c.stop()

	c.buf = image.NewRGBA(image.Rectangle{Max: c.frameSize()})
	c.stderr = &bytes.Buffer{}

	cmd := exec.CommandContext(ctx, c.ffmpeg,
		"-v", "error",
		"-ss", "0",
		"-i", c.path,
		"-an", "-sn",
		"-vf", c.filters(),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	cmd.Stderr = c.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}
	c.cmd, c.stdout, c.paused = cmd, stdout, false

	if _, err := io.ReadFull(c.stdout, c.buf.Pix); err != nil {
		c.stop()
		return fmt.Errorf("no frames decoded: %w: %s", err, bytes.TrimSpace(c.stderr.Bytes()))
	}
	c.pending = true
	return nil
}

// NextFrame returns the next decoded frame, or io.EOF once the clip ended.
// The image is reused by the following call.
func (c *Clip) NextFrame() (image.Image, error) {
	if c.paused || c.stdout == nil {
		return nil, io.EOF
	}
	if c.pending {
		c.pending = false
		return c.buf, nil
	}
	if _, err := io.ReadFull(c.stdout, c.buf.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return c.buf, nil
}

func (c *Clip) Pause() error {
	c.stop()
	c.paused = true
	return nil
}

func (c *Clip) Paused() bool {
	return c.paused
}

func (c *Clip) stop() {
	if c.cmd == nil {
		return
	}
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	c.cmd.Wait()
	c.cmd, c.stdout, c.pending = nil, nil, false
}
