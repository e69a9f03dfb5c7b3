package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/clipton/internal/failure"
	"github.com/ivlev/clipton/internal/video"
)

// Artifact is the finished recording.
type Artifact struct {
	Data     []byte
	MIME     string
	Ext      string
	Codec    string
	Filename string

	Chunks int
	Frames int64
}

// Recording samples a Source at a fixed rate into an encoder and collects
// the encoded output in time-sliced chunks.
type Recording struct {
	lease *Lease
	codec video.Codec
	enc   Encoder
	src   Source

	stop        chan struct{}
	stopOnce    sync.Once
	samplerDone chan struct{}
	group       errgroup.Group
	stopping    atomic.Bool
	finished    atomic.Bool

	frames atomic.Int64

	mu     sync.Mutex
	chunks [][]byte
	err    error
}

func (l *Lease) begin(codec video.Codec, enc Encoder, src Source) (*Recording, error) {
	r := &Recording{
		lease:       l,
		codec:       codec,
		enc:         enc,
		src:         src,
		stop:        make(chan struct{}),
		samplerDone: make(chan struct{}),
	}
	r.group.Go(func() error { return r.collect(l.p.opts.Timeslice) })

	if err := r.prime(); err != nil {
		r.kill()
		return nil, err
	}

	fps := l.p.opts.FPS
	if fps <= 0 {
		fps = 30
	}
	r.group.Go(func() error { return r.sample(time.Second / time.Duration(fps)) })
	return r, nil
}

// prime writes the first frame synchronously. An encoder that exits right
// after starting fails here instead of in the middle of the run.
func (r *Recording) prime() error {
	pool := r.lease.p.pool
	frame := pool.Get(r.src.Bounds())
	r.src.CopyTo(frame)
	err := r.enc.WriteFrame(frame)
	pool.Put(frame)
	if err != nil {
		return fmt.Errorf("first frame: %w", r.withDiagnostics(err))
	}
	r.frames.Add(1)
	return nil
}

func (r *Recording) withDiagnostics(err error) error {
	d, ok := r.enc.(diagnoser)
	if !ok {
		return err
	}
	if msg := d.Diagnostics(); msg != "" && !strings.Contains(err.Error(), msg) {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

func (r *Recording) Codec() video.Codec {
	return r.codec
}

func (r *Recording) Frames() int64 {
	return r.frames.Load()
}

// Err reports the first runtime fault of the encoder, if any.
func (r *Recording) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recording) fail(err error) error {
	fe := failure.New(failure.EncoderRuntimeFailure, err)
	r.mu.Lock()
	if r.err == nil {
		r.err = fe
	}
	r.mu.Unlock()
	return fe
}

func (r *Recording) sample(interval time.Duration) error {
	defer close(r.samplerDone)

	pool := r.lease.p.pool
	bounds := r.src.Bounds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return nil
		case <-ticker.C:
		}

		frame := pool.Get(bounds)
		r.src.CopyTo(frame)
		err := r.enc.WriteFrame(frame)
		pool.Put(frame)
		if err != nil {
			if r.stopping.Load() {
				return nil
			}
			return r.fail(r.withDiagnostics(err))
		}
		r.frames.Add(1)
	}
}

func (r *Recording) collect(slice time.Duration) error {
	out := r.enc.Output()
	buf := make([]byte, 64*1024)
	var chunk bytes.Buffer
	sliceStart := time.Now()

	flush := func() {
		if chunk.Len() == 0 {
			return
		}
		data := bytes.Clone(chunk.Bytes())
		chunk.Reset()
		r.mu.Lock()
		r.chunks = append(r.chunks, data)
		r.mu.Unlock()
	}

	for {
		n, err := out.Read(buf)
		if n > 0 {
			chunk.Write(buf[:n])
			if time.Since(sliceStart) >= slice {
				flush()
				sliceStart = time.Now()
			}
		}
		if err == nil {
			continue
		}
		flush()
		if r.stopping.Load() {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return r.fail(r.withDiagnostics(errors.New("encoder closed its output before the recording was stopped")))
		}
		return r.fail(r.withDiagnostics(err))
	}
}

// Stop ends sampling, lets the encoder flush and returns the assembled
// stream. A recording that already faulted is aborted instead.
func (r *Recording) Stop(ctx context.Context) (*Artifact, error) {
	if !r.finished.CompareAndSwap(false, true) {
		return nil, errors.New("recording already finished")
	}
	defer r.lease.Release()

	if err := r.Err(); err != nil {
		r.kill()
		return nil, err
	}

	r.stopping.Store(true)
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.samplerDone
	if err := r.enc.CloseInput(); err != nil {
		r.kill()
		return nil, r.fail(fmt.Errorf("close encoder input: %w", err))
	}

	done := make(chan error, 1)
	go func() { done <- r.group.Wait() }()
	select {
	case <-ctx.Done():
		r.kill()
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			r.enc.Kill()
			return nil, err
		}
	}
	if err := r.enc.Wait(); err != nil {
		return nil, r.fail(err)
	}

	r.mu.Lock()
	chunks := r.chunks
	r.chunks = nil
	r.mu.Unlock()

	art := &Artifact{
		Data:   bytes.Join(chunks, nil),
		MIME:   r.codec.MIME,
		Ext:    r.codec.Ext,
		Codec:  r.codec.Name,
		Chunks: len(chunks),
		Frames: r.frames.Load(),
	}
	r.lease.p.logger.Info("recording finalized", "codec", art.Codec, "chunks", art.Chunks,
		"bytes", len(art.Data), "frames", art.Frames)
	return art, nil
}

// Abort kills the encoder and discards everything collected so far.
func (r *Recording) Abort() {
	if !r.finished.CompareAndSwap(false, true) {
		return
	}
	defer r.lease.Release()
	r.kill()
	r.lease.p.logger.Warn("recording aborted", "codec", r.codec.Name)
}

func (r *Recording) kill() {
	r.stopping.Store(true)
	r.stopOnce.Do(func() { close(r.stop) })
	r.enc.Kill()
	r.group.Wait()

	r.mu.Lock()
	r.chunks = nil
	r.mu.Unlock()
}
