package sequencer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/ivlev/clipton/internal/capture"
	"github.com/ivlev/clipton/internal/compositor"
	"github.com/ivlev/clipton/internal/countdown"
	"github.com/ivlev/clipton/internal/failure"
	"github.com/ivlev/clipton/internal/session"
)

type journal struct {
	events []string
}

func (j *journal) add(format string, args ...any) {
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

type fakePlayer struct {
	pos      countdown.Position
	frames   int
	playErr  error
	frameErr error
	log      *journal

	served int
	paused bool
}

func (p *fakePlayer) Size() (int, int) { return 16, 9 }
func (p *fakePlayer) Source() string { return fmt.Sprintf("clip%d.mp4", p.pos) }

func (p *fakePlayer) Play(context.Context) error {
	p.log.add("play %d", p.pos)
	if p.playErr != nil {
		return p.playErr
	}
	p.served, p.paused = 0, false
	return nil
}

func (p *fakePlayer) NextFrame() (image.Image, error) {
	if p.paused || p.served >= p.frames {
		return nil, io.EOF
	}
	if p.frameErr != nil {
		return nil, p.frameErr
	}
	p.served++
	return image.NewRGBA(image.Rect(0, 0, 16, 9)), nil
}

func (p *fakePlayer) Pause() error { p.paused = true; return nil }
func (p *fakePlayer) Paused() bool { return p.paused }

type fakeRenderer struct {
	log    *journal
	frames int
	promos int
	placed []image.Point
	layer  compositor.Layer
}

func (r *fakeRenderer) Render(_ *image.RGBA, frame image.Image, _ countdown.DisplayProfile, _ compositor.Overlay) {
	if frame != nil {
		r.frames++
	}
	if p, ok := frame.(compositor.Placed); ok {
		r.placed = append(r.placed, p.Offset)
	}
}

func (r *fakeRenderer) Layer(int, int, countdown.DisplayProfile) compositor.Layer {
	return r.layer
}

func (r *fakeRenderer) RenderInterstitial(*image.RGBA, compositor.Promo) {
	r.promos++
	r.log.add("promo")
}

// instantClock moves its time by step on every tick without waiting.
type instantClock struct {
	now    time.Time
	step   time.Duration
	ticks  int
	sleeps []time.Duration
}

func (c *instantClock) Tick(ctx context.Context) error {
	c.ticks++
	c.now = c.now.Add(c.step)
	return ctx.Err()
}

func (c *instantClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func (c *instantClock) Now() time.Time { return c.now }

type fakeRecorder struct {
	failAt  int
	checks  int
	stopped bool
	aborted bool
}

func (r *fakeRecorder) Err() error {
	r.checks++
	if r.failAt > 0 && r.checks >= r.failAt {
		return failure.New(failure.EncoderRuntimeFailure, errors.New("encoder died"))
	}
	return nil
}

func (r *fakeRecorder) Stop(context.Context) (*capture.Artifact, error) {
	r.stopped = true
	return &capture.Artifact{Data: []byte("webm"), Ext: "webm", Codec: "vp9"}, nil
}

func (r *fakeRecorder) Abort() { r.aborted = true }

type harness struct {
	log      *journal
	players  [countdown.Slots]*fakePlayer
	renderer *fakeRenderer
	clock    *instantClock
	rec      *fakeRecorder
	starts   int
	progress []int
	input    Input
}

func newHarness(frames int) *harness {
	h := &harness{log: &journal{}, clock: &instantClock{step: 100 * time.Millisecond}, rec: &fakeRecorder{}}
	h.renderer = &fakeRenderer{log: h.log}
	for i := range countdown.Slots {
		pos := countdown.Position(i + 1)
		h.players[i] = &fakePlayer{pos: pos, frames: frames, log: h.log}
		h.input.Slots[i] = countdown.Slot{Position: pos, Media: h.players[i], Name: fmt.Sprintf("Play %d", pos)}
	}
	return h
}

func (h *harness) run(cfg Config) (*session.RenderSession, *capture.Artifact, error) {
	if cfg.FPS == 0 {
		cfg.FPS = 10
	}
	seq := New(cfg, h.renderer, compositor.NewSurface(4, 4), h.clock, nil)
	sess := session.New()
	start := func(context.Context) (session.Recorder, error) {
		h.starts++
		return h.rec, nil
	}
	art, err := seq.Run(context.Background(), sess, h.input, start, func(p int, _ string) {
		h.progress = append(h.progress, p)
	})
	return sess, art, err
}

func TestRevealOrderFollowsPresentationOrder(t *testing.T) {
	orders := []countdown.Order{
		countdown.AscendingWrap,
		countdown.Descending,
		{1, 2, 3, 4, 5},
		{3, 1, 5, 2, 4},
	}
	for _, order := range orders {
		t.Run(order.String(), func(t *testing.T) {
			h := newHarness(3)
			sess, art, err := h.run(Config{Order: order})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if art == nil || !h.rec.stopped || h.rec.aborted {
				t.Fatal("expected a finalized recording")
			}
			if got := sess.Reveal.Order(); !slices.Equal(got, []countdown.Position(order)) {
				t.Errorf("reveal order %v, want %v", got, order)
			}
			if sess.State != session.Done {
				t.Errorf("state = %s, want DONE", sess.State)
			}
			if sess.TotalFrames() != 15 || h.renderer.frames != 15 {
				t.Errorf("frames: session %d, renderer %d, want 15", sess.TotalFrames(), h.renderer.frames)
			}
		})
	}
}

func TestMissingClipBeforeEncoder(t *testing.T) {
	h := newHarness(3)
	h.input.Slots[4].Media = nil
	h.input.Slots[2].Media = nil

	sess, art, err := h.run(Config{})
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Kind != failure.MissingClip || fe.Position != 3 {
		t.Fatalf("expected MissingClip(3), got %v", err)
	}
	if h.starts != 0 {
		t.Errorf("encoder started %d times, want 0", h.starts)
	}
	if art != nil || sess.State != session.Failed {
		t.Errorf("unexpected result: art=%v state=%s", art, sess.State)
	}
	if len(h.log.events) != 0 {
		t.Errorf("no clip may be played, got %v", h.log.events)
	}
}

func TestPlaybackFailureAborts(t *testing.T) {
	h := newHarness(3)
	h.players[3].playErr = errors.New("decoder error")

	sess, art, err := h.run(Config{Order: countdown.AscendingWrap})
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Kind != failure.PlaybackFailure || fe.Position != 4 || fe.Clip != "Play 4" {
		t.Fatalf("expected PlaybackFailure for #4, got %v", err)
	}
	if art != nil || !h.rec.aborted || h.rec.stopped {
		t.Error("recording must be aborted without an artifact")
	}
	if sess.Reveal.Contains(4) || sess.Reveal.Contains(5) {
		t.Errorf("reveal set %v must stop before the failed clip", sess.Reveal.Order())
	}
}

func TestMidClipDecodeErrorAborts(t *testing.T) {
	h := newHarness(3)
	h.players[1].frameErr = errors.New("corrupt packet")

	_, _, err := h.run(Config{})
	if failure.KindOf(err) != failure.PlaybackFailure || !h.rec.aborted {
		t.Fatalf("expected aborted PlaybackFailure, got %v", err)
	}
}

func TestFrameCap(t *testing.T) {
	h := newHarness(1000)
	sess, _, err := h.run(Config{FPS: 10, MaxClipDuration: 1500 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range countdown.Positions() {
		if sess.Frames[p] != 15 {
			t.Errorf("clip %d drew %d frames, want 15", p, sess.Frames[p])
		}
	}
}

func TestInterstitialPlacement(t *testing.T) {
	h := newHarness(2)
	_, _, err := h.run(Config{
		Order:        countdown.AscendingWrap,
		FPS:          10,
		Interstitial: Interstitial{After: 3, Hold: 500 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"play 2", "play 3", "play 4", "promo", "promo", "promo", "promo", "promo", "play 5", "play 1"}
	if !slices.Equal(h.log.events, want) {
		t.Errorf("events %v, want %v", h.log.events, want)
	}
	wantProgress := []int{10, 20, 35, 50, 60, 65, 80, 95}
	if !slices.Equal(h.progress, wantProgress) {
		t.Errorf("progress %v, want %v", h.progress, wantProgress)
	}
}

func TestInterstitialAfterLastClipIsIgnored(t *testing.T) {
	h := newHarness(1)
	if _, _, err := h.run(Config{Interstitial: Interstitial{After: 5, Hold: time.Second}}); err != nil {
		t.Fatal(err)
	}
	if h.renderer.promos != 0 {
		t.Errorf("promo rendered %d times, want 0", h.renderer.promos)
	}
}

func TestProgressAndSettles(t *testing.T) {
	h := newHarness(1)
	_, _, err := h.run(Config{PreCaptureSettle: 500 * time.Millisecond, FinalizeSettle: 800 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(h.progress, []int{10, 20, 35, 50, 65, 80, 95}) {
		t.Errorf("progress %v", h.progress)
	}
	if !slices.Equal(h.clock.sleeps, []time.Duration{500 * time.Millisecond, 800 * time.Millisecond}) {
		t.Errorf("sleeps %v", h.clock.sleeps)
	}
}

func TestEncoderRuntimeFailure(t *testing.T) {
	h := newHarness(10)
	h.rec.failAt = 4

	sess, art, err := h.run(Config{})
	if failure.KindOf(err) != failure.EncoderRuntimeFailure {
		t.Fatalf("expected EncoderRuntimeFailure, got %v", err)
	}
	if art != nil || !h.rec.aborted {
		t.Error("recording must be aborted")
	}
	if sess.TotalFrames() != 3 {
		t.Errorf("drew %d frames before the failure, want 3", sess.TotalFrames())
	}
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seq := New(Config{FPS: 10}, h.renderer, compositor.NewSurface(4, 4), h.clock, nil)
	sess := session.New()
	_, err := seq.Run(ctx, sess, h.input, func(context.Context) (session.Recorder, error) {
		return h.rec, nil
	}, nil)
	if !errors.Is(err, context.Canceled) || !h.rec.aborted || sess.State != session.Failed {
		t.Errorf("expected cancelled run to abort, got %v", err)
	}
}

func TestInterstitialMilestone(t *testing.T) {
	tests := []struct {
		after, want int
	}{
		{1, 27},
		{2, 42},
		{3, 60},
		{4, 70},
	}
	for _, tt := range tests {
		if got := interstitialMilestone(tt.after - 1); got != tt.want {
			t.Errorf("interstitial after %d clips: %d, want %d", tt.after, got, tt.want)
		}
	}
}

func TestSlowRenderDropsFrames(t *testing.T) {
	h := newHarness(30)
	// every draw overruns to three frame periods
	h.clock.step = 300 * time.Millisecond

	sess, _, err := h.run(Config{FPS: 10})
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range countdown.Positions() {
		if sess.Frames[p] != 10 {
			t.Errorf("clip %d drew %d frames, want 10", p, sess.Frames[p])
		}
		if h.players[i].served != 30 {
			t.Errorf("clip %d decoded %d frames, want all 30", p, h.players[i].served)
		}
	}
}

func TestSlowRenderRespectsFrameCap(t *testing.T) {
	h := newHarness(1000)
	h.clock.step = 300 * time.Millisecond

	sess, _, err := h.run(Config{FPS: 10, MaxClipDuration: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range countdown.Positions() {
		if h.players[i].served != 10 {
			t.Errorf("clip %d decoded %d frames, want the cap of 10", p, h.players[i].served)
		}
		if sess.Frames[p] != 4 {
			t.Errorf("clip %d drew %d frames, want 4", p, sess.Frames[p])
		}
	}
}

type prescaledPlayer struct {
	*fakePlayer
	size image.Point
	crop image.Rectangle
}

func (p *prescaledPlayer) Prescale(size image.Point, crop image.Rectangle) {
	p.size, p.crop = size, crop
}

func TestPrescaledFramesArePlaced(t *testing.T) {
	h := newHarness(2)
	h.renderer.layer = compositor.Layer{Size: image.Pt(32, 18), Crop: image.Rect(8, 0, 24, 18), At: image.Pt(0, 3)}
	pp := &prescaledPlayer{fakePlayer: h.players[0]}
	h.input.Slots[0].Media = pp

	if _, _, err := h.run(Config{}); err != nil {
		t.Fatal(err)
	}
	if pp.size != image.Pt(32, 18) || pp.crop != image.Rect(8, 0, 24, 18) {
		t.Errorf("decoder placement %v %v", pp.size, pp.crop)
	}
	if len(h.renderer.placed) != 2 {
		t.Fatalf("placed frames %v, want the 2 frames of clip #1", h.renderer.placed)
	}
	for _, at := range h.renderer.placed {
		if at != image.Pt(0, 3) {
			t.Errorf("placed at %v", at)
		}
	}
}
