package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

type StreamOptions struct {
	Width, Height int
	FPS           int
	// Bitrate in bits per second.
	Bitrate int
}

// FFmpegEncoder starts streaming encoders: raw RGBA frames in on stdin,
// a muxed stream out on stdout.
type FFmpegEncoder struct {
	Path string
	// Available lists encoders ffmpeg was built with. Nil skips the check.
	Available map[string]bool
}

// Open starts an encoder for codec. It fails without starting anything when
// the codec names an encoder this ffmpeg does not have or when Check rejects
// the configuration.
func (e *FFmpegEncoder) Open(ctx context.Context, codec Codec, opts StreamOptions) (*Stream, error) {
	if codec.Explicit() && e.Available != nil && !e.Available[codec.Encoder] {
		return nil, fmt.Errorf("encoder %s is not available", codec.Encoder)
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid stream %dx%d@%d", opts.Width, opts.Height, opts.FPS)
	}
	if err := e.Check(ctx, codec, opts); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.path(), buildArgs(codec, opts)...)
	s := &Stream{cmd: cmd, stderr: &syncBuffer{}, frameSize: opts.Width * opts.Height * 4}
	cmd.Stderr = s.stderr

	var err error
	if s.stdin, err = cmd.StdinPipe(); err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if s.stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return s, nil
}

// Check encodes one synthetic frame with the same output settings. ffmpeg
// only opens the encoder once the first frame arrives, so an encoder that is
// listed but unusable (no GPU, bad option) is rejected here.
func (e *FFmpegEncoder) Check(ctx context.Context, codec Codec, opts StreamOptions) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path(), checkArgs(codec, opts)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s rejected: %w: %s", codec.Name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

const checkTimeout = 15 * time.Second

func (e *FFmpegEncoder) path() string {
	if e.Path == "" {
		return "ffmpeg"
	}
	return e.Path
}

func buildArgs(codec Codec, opts StreamOptions) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", fmt.Sprintf("%d", opts.FPS),
		"-i", "pipe:0",
	}
	return append(args, outputArgs(codec, opts)...)
}

func checkArgs(codec Codec, opts StreamOptions) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d", opts.Width, opts.Height, opts.FPS),
		"-frames:v", "1",
	}
	return append(args, outputArgs(codec, opts)...)
}

func outputArgs(codec Codec, opts StreamOptions) []string {
	var args []string
	if codec.Explicit() {
		args = append(args, "-c:v", codec.Encoder)
		if opts.Bitrate > 0 {
			kbps := opts.Bitrate / 1000
			args = append(args, "-b:v", fmt.Sprintf("%dk", kbps))

			// Скорость важнее степени сжатия: кодируем в реальном времени
			switch {
			case strings.HasPrefix(codec.Encoder, "libvpx"):
				args = append(args, "-deadline", "realtime", "-cpu-used", "8")
			case codec.Encoder == "h264_videotoolbox":
				args = append(args, "-realtime", "1")
			case codec.Encoder == "h264_nvenc":
				args = append(args, "-preset", "p4")
			case codec.Encoder == "libx264":
				args = append(args, "-preset", "veryfast",
					"-maxrate", fmt.Sprintf("%dk", kbps),
					"-bufsize", fmt.Sprintf("%dk", kbps*2))
			}
		}
		args = append(args, "-pix_fmt", "yuv420p")
	}

	args = append(args, "-f", codec.Format)
	if codec.Format == "mp4" {
		// fragmented mp4 can be written to a pipe
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	}
	return append(args, "pipe:1")
}

// Stream is one running encoder process.
type Stream struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
	stderr    *syncBuffer
	frameSize int
}

// WriteFrame sends one canvas-sized frame.
func (s *Stream) WriteFrame(img *image.RGBA) error {
	rgba := img
	bounds := img.Bounds()
	if rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	}
	if len(rgba.Pix) != s.frameSize {
		return fmt.Errorf("frame is %d bytes, stream expects %d", len(rgba.Pix), s.frameSize)
	}
	if _, err := s.stdin.Write(rgba.Pix); err != nil {
		return fmt.Errorf("write raw error: %w: %s", err, s.Diagnostics())
	}
	return nil
}

// Output is the encoded stream. It must be drained until EOF before Wait.
func (s *Stream) Output() io.Reader {
	return s.stdout
}

// CloseInput signals end of frames; ffmpeg then flushes and exits.
func (s *Stream) CloseInput() error {
	return s.stdin.Close()
}

func (s *Stream) Wait() error {
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w: %s", err, s.Diagnostics())
	}
	return nil
}

func (s *Stream) Kill() {
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
}

// Diagnostics is what ffmpeg wrote to stderr so far.
func (s *Stream) Diagnostics() string {
	return strings.TrimSpace(s.stderr.String())
}

// syncBuffer is written by the exec copier while the pipeline reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
