// Package sequencer plays the five clips in presentation order and drives
// the per-frame compositing while the recording runs.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ivlev/clipton/internal/capture"
	"github.com/ivlev/clipton/internal/compositor"
	"github.com/ivlev/clipton/internal/countdown"
	"github.com/ivlev/clipton/internal/failure"
	"github.com/ivlev/clipton/internal/session"
)

// Player is a bound clip that can be played from the start.
type Player interface {
	// Play restarts at the first frame and returns once it is decoded.
	Play(ctx context.Context) error
	// NextFrame returns io.EOF when the clip has ended.
	NextFrame() (image.Image, error)
	Pause() error
	Paused() bool
}

// Prescaler is a Player whose decoder can deliver frames already placed.
type Prescaler interface {
	Prescale(size image.Point, crop image.Rectangle)
}

// Renderer draws into the shared canvas.
type Renderer interface {
	Render(dst *image.RGBA, frame image.Image, profile countdown.DisplayProfile, ov compositor.Overlay)
	RenderInterstitial(dst *image.RGBA, p compositor.Promo)
	Layer(srcW, srcH int, profile countdown.DisplayProfile) compositor.Layer
}

// StartFunc starts the recording of the shared canvas.
type StartFunc func(ctx context.Context) (session.Recorder, error)

// ProgressFunc receives a percentage and a label.
type ProgressFunc func(percent int, label string)

type Interstitial struct {
	// After is the number of clips played before the promo frame; 0 disables it.
	After int
	Hold  time.Duration
	Asset image.Image
}

type Config struct {
	Order            countdown.Order
	FPS              int
	MaxClipDuration  time.Duration
	PreCaptureSettle time.Duration
	FinalizeSettle   time.Duration
	Interstitial     Interstitial
}

// frameCap is the most frames drawn for one clip, 0 for no limit.
func (c Config) frameCap() int {
	if c.MaxClipDuration <= 0 || c.FPS <= 0 {
		return 0
	}
	return int(math.Ceil(c.MaxClipDuration.Seconds() * float64(c.FPS)))
}

func (c Config) interval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.FPS)
}

// promoFade is how long the background takes to dim behind the promo.
const promoFade = 500 * time.Millisecond

type Sequencer struct {
	cfg      Config
	renderer Renderer
	surface  *compositor.Surface
	clock    Clock
	logger   *slog.Logger
}

func New(cfg Config, renderer Renderer, surface *compositor.Surface, clock Clock, logger *slog.Logger) *Sequencer {
	if len(cfg.Order) == 0 {
		cfg.Order = countdown.AscendingWrap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		cfg:      cfg,
		renderer: renderer,
		surface:  surface,
		clock:    clock,
		logger:   logger.With("component", "sequencer"),
	}
}

// Input is a snapshot of the studio taken when generation starts.
type Input struct {
	Slots    [countdown.Slots]countdown.Slot
	Settings countdown.Settings
}

func (in Input) slot(p countdown.Position) countdown.Slot {
	return in.Slots[p-1]
}

func (in Input) names() map[countdown.Position]string {
	names := make(map[countdown.Position]string, countdown.Slots)
	for i, s := range in.Slots {
		if name := strings.TrimSpace(s.Name); name != "" {
			names[countdown.Position(i+1)] = name
		}
	}
	return names
}

// Run executes one generation. On success it returns the finalized artifact;
// on any failure the recording is aborted and nothing is returned.
func (s *Sequencer) Run(ctx context.Context, sess *session.RenderSession, in Input, start StartFunc, progress ProgressFunc) (art *capture.Artifact, err error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	sess.Enter(session.Starting)
	defer func() {
		if err == nil {
			return
		}
		if sess.Recording != nil {
			sess.Recording.Abort()
		}
		sess.Enter(session.Failed)
		s.logger.Error("generation failed", "session", sess.ID, "state", sess.State, "err", err)
	}()

	players, err := s.players(in)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Order.Validate(); err != nil {
		return nil, err
	}

	s.surface.Paint(func(dst *image.RGBA) {
		s.renderer.Render(dst, nil, countdown.Fit, s.overlay(in, sess))
	})

	rec, err := start(ctx)
	if err != nil {
		if failure.KindOf(err) == failure.Unknown {
			err = failure.New(failure.EncoderConstructionFailure, err)
		}
		return nil, err
	}
	sess.Recording = rec
	progress(10, "Recording started")

	if err := s.clock.Sleep(ctx, s.cfg.PreCaptureSettle); err != nil {
		return nil, err
	}

	total := len(s.cfg.Order)
	for i, pos := range s.cfg.Order {
		sess.ClipIndex = i
		progress(clipMilestone(i), fmt.Sprintf("Recording clip %d/%d (#%d)", i+1, total, pos))
		if err := s.playClip(ctx, sess, in, pos, players[pos-1]); err != nil {
			return nil, err
		}
		if s.cfg.Interstitial.After == i+1 && i+1 < total {
			progress(interstitialMilestone(i), "Interstitial")
			if err := s.holdInterstitial(ctx, sess, in); err != nil {
				return nil, err
			}
		}
	}

	sess.Enter(session.Finalizing)
	progress(95, "Finalizing")
	if err := s.clock.Sleep(ctx, s.cfg.FinalizeSettle); err != nil {
		return nil, err
	}
	art, err = rec.Stop(ctx)
	sess.Recording = nil
	if err != nil {
		if failure.KindOf(err) == failure.Unknown {
			err = failure.New(failure.EncoderRuntimeFailure, err)
		}
		return nil, err
	}
	sess.Enter(session.Done)
	s.logger.Info("generation finished", "session", sess.ID, "frames", sess.TotalFrames(),
		"elapsed", time.Since(sess.Started).Round(time.Millisecond))
	return art, nil
}

func clipMilestone(i int) int {
	return 20 + 15*i
}

// interstitialMilestone sits in the 60..70 band when that fits between the
// clips around the promo, otherwise halfway between them.
func interstitialMilestone(i int) int {
	lo, hi := clipMilestone(i), clipMilestone(i+1)
	p := min(max((lo+hi)/2, 60), 70)
	if p <= lo || p >= hi {
		return (lo + hi) / 2
	}
	return p
}

// players checks every slot before anything is started. The first unbound
// position in ascending order is reported.
func (s *Sequencer) players(in Input) ([countdown.Slots]Player, error) {
	var players [countdown.Slots]Player
	for _, p := range countdown.Positions() {
		slot := in.slot(p)
		if !slot.Bound() {
			return players, failure.ForClip(failure.MissingClip, int(p), "", errors.New("no clip bound"))
		}
		player, ok := slot.Media.(Player)
		if !ok {
			return players, failure.ForClip(failure.PlaybackFailure, int(p), clipLabel(slot),
				fmt.Errorf("%T cannot be played", slot.Media))
		}
		players[p-1] = player
	}
	return players, nil
}

func clipLabel(slot countdown.Slot) string {
	if name := strings.TrimSpace(slot.Name); name != "" {
		return name
	}
	if slot.Media != nil {
		return slot.Media.Source()
	}
	return ""
}

func (s *Sequencer) overlay(in Input, sess *session.RenderSession) compositor.Overlay {
	return compositor.Overlay{Settings: in.Settings, Names: in.names(), Revealed: sess.Reveal}
}

func (s *Sequencer) playClip(ctx context.Context, sess *session.RenderSession, in Input, pos countdown.Position, player Player) error {
	slot := in.slot(pos)
	sess.Enter(session.PlayingClip)

	var layer *compositor.Layer
	if ps, ok := player.(Prescaler); ok {
		w, h := slot.Media.Size()
		if l := s.renderer.Layer(w, h, slot.Profile); !l.Crop.Empty() {
			ps.Prescale(l.Size, l.Crop)
			layer = &l
		}
	}

	if err := player.Play(ctx); err != nil {
		return failure.ForClip(failure.PlaybackFailure, int(pos), clipLabel(slot), err)
	}
	defer player.Pause()

	sess.Reveal.Add(pos)
	sess.Enter(session.RenderingClip)

	ov := s.overlay(in, sess)
	limit := s.cfg.frameCap()
	started := s.clock.Now()
	drawn, decoded := 0, 0
	for limit == 0 || decoded < limit {
		if err := sess.Recording.Err(); err != nil {
			return err
		}
		if player.Paused() {
			break
		}
		frame, err := s.dueFrame(player, started, &decoded, limit)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return failure.ForClip(failure.PlaybackFailure, int(pos), clipLabel(slot), err)
		}
		if layer != nil {
			frame = compositor.Placed{Image: frame, Offset: layer.At}
		}

		s.surface.Paint(func(dst *image.RGBA) {
			s.renderer.Render(dst, frame, slot.Profile, ov)
		})
		drawn++
		sess.Frames[pos] = drawn

		if err := s.clock.Tick(ctx); err != nil {
			return err
		}
	}
	if limit > 0 && decoded >= limit {
		s.logger.Warn("clip cut at frame cap", "position", int(pos), "frames", decoded)
	}
	if dropped := decoded - drawn; dropped > 0 {
		s.logger.Warn("frames dropped to keep up with the recording", "position", int(pos), "dropped", dropped)
	}
	s.logger.Info("clip recorded", "position", int(pos), "frames", drawn)
	return nil
}

// dueFrame returns the frame that belongs on screen now. Frames the draw loop
// was too slow to show are decoded and dropped, so the clip keeps real time
// with the recording.
func (s *Sequencer) dueFrame(player Player, started time.Time, decoded *int, limit int) (image.Image, error) {
	due := int(s.clock.Now().Sub(started)/s.cfg.interval()) + 1
	if limit > 0 {
		due = min(due, limit)
	}
	for {
		frame, err := player.NextFrame()
		if err != nil {
			return nil, err
		}
		*decoded++
		if *decoded >= due {
			return frame, nil
		}
	}
}

func (s *Sequencer) holdInterstitial(ctx context.Context, sess *session.RenderSession, in Input) error {
	sess.Enter(session.Interstitial)
	promo := compositor.Promo{
		Background: s.surface.Clone(),
		Asset:      s.cfg.Interstitial.Asset,
		Prompt:     in.Settings.SubscribePrompt,
		ChannelURL: in.Settings.ChannelURL,
	}
	started := s.clock.Now()
	for {
		if err := sess.Recording.Err(); err != nil {
			return err
		}
		elapsed := s.clock.Now().Sub(started)
		if elapsed >= s.cfg.Interstitial.Hold && elapsed > 0 {
			return nil
		}
		// затемнение фона занимает первые полсекунды
		promo.Fade = max(0, 1-float64(elapsed)/float64(promoFade))
		s.surface.Paint(func(dst *image.RGBA) {
			s.renderer.RenderInterstitial(dst, promo)
		})
		if err := s.clock.Tick(ctx); err != nil {
			return err
		}
	}
}
