// Package capture records the shared canvas into an encoded video stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ivlev/clipton/internal/failure"
	"github.com/ivlev/clipton/internal/system"
	"github.com/ivlev/clipton/internal/video"
)

// Source is what the sampler copies frames from.
type Source interface {
	Bounds() image.Rectangle
	CopyTo(dst *image.RGBA)
}

// Encoder is one running stream encoder.
type Encoder interface {
	WriteFrame(img *image.RGBA) error
	Output() io.Reader
	CloseInput() error
	Wait() error
	Kill()
}

// diagnoser is implemented by encoders that keep their error output.
type diagnoser interface {
	Diagnostics() string
}

// OpenFunc constructs an encoder for one codec candidate.
type OpenFunc func(ctx context.Context, codec video.Codec, opts video.StreamOptions) (Encoder, error)

// FFmpeg adapts a video.FFmpegEncoder to OpenFunc.
func FFmpeg(e *video.FFmpegEncoder) OpenFunc {
	return func(ctx context.Context, codec video.Codec, opts video.StreamOptions) (Encoder, error) {
		s, err := e.Open(ctx, codec, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

const DefaultTimeslice = time.Second

type Options struct {
	FPS     int
	Bitrate int
	// Timeslice is how much encoder output is collected per chunk.
	Timeslice  time.Duration
	Candidates []video.Codec
	// Unavailable explains why there is no encoder on this host.
	Unavailable error
	Logger      *slog.Logger
}

// Pipeline hands out at most one recording at a time.
type Pipeline struct {
	open   OpenFunc
	opts   Options
	pool   *system.FramePool
	logger *slog.Logger

	mu     sync.Mutex
	active *Lease
}

// New returns a pipeline. A nil open means the host cannot encode at all.
func New(open OpenFunc, opts Options) *Pipeline {
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = video.Candidates(nil, "")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		open:   open,
		opts:   opts,
		pool:   system.NewFramePool(),
		logger: logger.With("component", "capture"),
	}
}

// Reserve claims the recording slot. While a lease is held every further
// Reserve fails with AlreadyGenerating and changes nothing.
func (p *Pipeline) Reserve() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return nil, failure.New(failure.AlreadyGenerating, errors.New("a recording is already active"))
	}
	l := &Lease{p: p}
	p.active = l
	return l, nil
}

func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

func (p *Pipeline) release(l *Lease) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == l {
		p.active = nil
	}
}

// Lease is the right to run one recording.
type Lease struct {
	p    *Pipeline
	once sync.Once
}

// Release frees the slot. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() { l.p.release(l) })
}

// Start negotiates a codec and begins sampling src. Candidates are tried in
// order; the first one whose encoder can be constructed and accepts the
// first frame wins.
func (l *Lease) Start(ctx context.Context, src Source) (*Recording, error) {
	p := l.p
	if p.open == nil {
		reason := p.opts.Unavailable
		if reason == nil {
			reason = errors.New("no stream encoder on this host")
		}
		return nil, failure.New(failure.UnsupportedEnvironment, reason)
	}

	b := src.Bounds()
	opts := video.StreamOptions{Width: b.Dx(), Height: b.Dy(), FPS: p.opts.FPS, Bitrate: p.opts.Bitrate}

	var errs []error
	for _, codec := range p.opts.Candidates {
		enc, err := p.open(ctx, codec, opts)
		if err != nil {
			p.logger.Warn("encoder construction failed", "codec", codec.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", codec.Name, err))
			continue
		}
		rec, err := l.begin(codec, enc, src)
		if err != nil {
			p.logger.Warn("encoder rejected the first frame", "codec", codec.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", codec.Name, err))
			continue
		}
		p.logger.Info("recording started", "codec", codec.Name, "mime", codec.MIME,
			"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height), "fps", opts.FPS)
		return rec, nil
	}
	return nil, failure.New(failure.EncoderConstructionFailure, errors.Join(errs...))
}
