package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ivlev/clipton/internal/capture"
	"github.com/ivlev/clipton/internal/compositor"
	"github.com/ivlev/clipton/internal/config"
	"github.com/ivlev/clipton/internal/countdown"
	"github.com/ivlev/clipton/internal/failure"
	"github.com/ivlev/clipton/internal/fonts"
	"github.com/ivlev/clipton/internal/media"
	"github.com/ivlev/clipton/internal/sequencer"
	"github.com/ivlev/clipton/internal/session"
	"github.com/ivlev/clipton/internal/system"
	"github.com/ivlev/clipton/internal/video"
)

// Callbacks receive the outcome of Generate. Exactly one of OnSuccess and
// OnFailure is called per run.
type Callbacks struct {
	OnProgress func(percent int, label string)
	OnSuccess  func(art *capture.Artifact)
	OnFailure  func(kind failure.Kind, message string)
}

func (c Callbacks) progress(p int, label string) {
	if c.OnProgress != nil {
		c.OnProgress(p, label)
	}
}

// Deps replaces the host-backed collaborators, mainly for tests.
type Deps struct {
	Pipeline *capture.Pipeline
	Clock    sequencer.Clock
	Logger   *slog.Logger
	Now      func() time.Time
}

// Studio owns the five slots and the settings and runs generations.
type Studio struct {
	cfg      *config.Config
	tools    system.Tools
	toolsErr error

	fonts      *fonts.Set
	compositor *compositor.Compositor
	surface    *compositor.Surface
	pipeline   *capture.Pipeline
	order      countdown.Order
	promo      image.Image
	clock      sequencer.Clock
	now        func() time.Time
	logger     *slog.Logger

	mu       sync.Mutex
	slots    [countdown.Slots]countdown.Slot
	settings countdown.Settings
}

func NewStudio(cfg *config.Config, deps Deps) (*Studio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}
	w, h, _ := cfg.CanvasSize()
	order, _ := cfg.PresentationOrder()
	settings, _ := cfg.Settings()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	fontSet, err := fonts.Load(cfg.FontPath)
	if err != nil {
		return nil, err
	}
	comp, err := compositor.New(compositor.Options{
		Width: w, Height: h, Zoom: cfg.Zoom, Fonts: fontSet, Logger: logger,
	})
	if err != nil {
		fontSet.Close()
		return nil, err
	}

	s := &Studio{
		cfg:        cfg,
		fonts:      fontSet,
		compositor: comp,
		surface:    compositor.NewSurface(w, h),
		order:      order,
		clock:      deps.Clock,
		now:        now,
		logger:     logger.With("component", "studio"),
		settings:   settings,
	}
	for i := range s.slots {
		s.slots[i].Position = countdown.Position(i + 1)
	}
	s.tools, s.toolsErr = system.LookupTools(cfg.FFmpeg, cfg.FFprobe)

	s.pipeline = deps.Pipeline
	if s.pipeline == nil {
		s.pipeline = s.ffmpegPipeline()
	}

	if cfg.Interstitial.Asset != "" {
		if s.promo, err = media.LoadImage(cfg.Interstitial.Asset); err != nil {
			s.logger.Warn("promo asset unusable, using the fallback card", "asset", cfg.Interstitial.Asset, "err", err)
		}
	}
	return s, nil
}

func (s *Studio) ffmpegPipeline() *capture.Pipeline {
	opts := capture.Options{
		FPS:       s.cfg.FPS,
		Bitrate:   s.cfg.Bitrate,
		Timeslice: s.cfg.Timeslice,
		Logger:    s.logger,
	}
	if s.toolsErr != nil {
		opts.Unavailable = s.toolsErr
		return capture.New(nil, opts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	available, err := system.ListEncoders(ctx, s.tools.FFmpeg)
	if err != nil {
		s.logger.Warn("encoder list unavailable, trying candidates blindly", "err", err)
	}
	opts.Candidates = video.Candidates(s.cfg.Codecs, system.BestH264Encoder(available))
	return capture.New(capture.FFmpeg(&video.FFmpegEncoder{Path: s.tools.FFmpeg, Available: available}), opts)
}

func (s *Studio) Close() error {
	return s.fonts.Close()
}

func slotIndex(p countdown.Position) (int, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("position %d out of range 1..%d", p, countdown.Slots)
	}
	return int(p) - 1, nil
}

// Bind attaches media to a position, replacing what was there.
func (s *Studio) Bind(p countdown.Position, m countdown.Media) error {
	i, err := slotIndex(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[i].Media = m
	return nil
}

func (s *Studio) Unbind(p countdown.Position) error {
	return s.Bind(p, nil)
}

func (s *Studio) Rename(p countdown.Position, name string) error {
	i, err := slotIndex(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[i].Name = strings.TrimSpace(name)
	return nil
}

func (s *Studio) SetProfile(p countdown.Position, profile countdown.DisplayProfile) error {
	i, err := slotIndex(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[i].Profile = profile
	return nil
}

func (s *Studio) UpdateSettings(settings countdown.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

func (s *Studio) Settings() countdown.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Studio) Slots() [countdown.Slots]countdown.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots
}

// Busy reports whether a generation is running.
func (s *Studio) Busy() bool {
	return s.pipeline.Busy()
}

// LoadClips binds the clips named in the project. A position without a path
// takes the newest video in <clips_dir>/<position>. Clips that cannot be
// opened stay unbound and surface as MissingClip on Generate.
func (s *Studio) LoadClips(ctx context.Context) error {
	if s.toolsErr != nil {
		return failure.New(failure.UnsupportedEnvironment, s.toolsErr)
	}
	byPos := map[int]config.ClipConfig{}
	for _, c := range s.cfg.Clips {
		byPos[c.Position] = c
	}

	for _, p := range countdown.Positions() {
		cc := byPos[int(p)]
		if cc.Name != "" {
			s.Rename(p, cc.Name)
		}
		if profile, err := countdown.ParseDisplayProfile(cc.Profile); err == nil {
			s.SetProfile(p, profile)
		}

		path := cc.Path
		if path == "" {
			latest, err := system.FindLatestFile(filepath.Join(s.cfg.ClipsDir, strconv.Itoa(int(p))), system.VideoExtensions)
			if err != nil {
				s.logger.Warn("no clip for position", "position", int(p), "err", err)
				continue
			}
			path = latest
		}

		clip, err := media.Open(ctx, s.tools.FFmpeg, s.tools.FFprobe, path, s.cfg.FPS)
		if err != nil {
			s.logger.Warn("clip cannot be opened", "position", int(p), "path", path, "err", err)
			continue
		}
		w, h := clip.Size()
		s.logger.Info("clip bound", "position", int(p), "path", path, "size", fmt.Sprintf("%dx%d", w, h),
			"duration", clip.Duration().Round(time.Millisecond))
		s.Bind(p, clip)
	}
	return nil
}

// Generate records the countdown. It blocks until the run ends and reports
// through cb as well as the returned error. While a run is active further
// calls fail at once with AlreadyGenerating.
func (s *Studio) Generate(ctx context.Context, cb Callbacks) error {
	lease, err := s.pipeline.Reserve()
	if err != nil {
		s.fail(cb, err)
		return err
	}
	defer lease.Release()

	cb.progress(0, "Initializing")

	s.mu.Lock()
	in := sequencer.Input{Slots: s.slots, Settings: s.settings}
	s.mu.Unlock()

	s.checkMemory()

	clock := s.clock
	if clock == nil {
		fc := sequencer.NewFrameClock(s.cfg.FPS)
		defer fc.Stop()
		clock = fc
	}
	seq := sequencer.New(sequencer.Config{
		Order:            s.order,
		FPS:              s.cfg.FPS,
		MaxClipDuration:  s.cfg.MaxClipDuration,
		PreCaptureSettle: s.cfg.PreCaptureSettle,
		FinalizeSettle:   s.cfg.FinalizeSettle,
		Interstitial: sequencer.Interstitial{
			After: s.cfg.Interstitial.After,
			Hold:  s.cfg.Interstitial.Hold,
			Asset: s.promo,
		},
	}, s.compositor, s.surface, clock, s.logger)

	sess := session.New()
	s.logger.Info("generation started", "session", sess.ID, "order", s.order.String())

	start := func(ctx context.Context) (session.Recorder, error) {
		rec, err := lease.Start(ctx, s.surface)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	art, err := seq.Run(ctx, sess, in, start, cb.OnProgress)
	if err != nil {
		s.fail(cb, err)
		return err
	}

	var ts time.Time
	if s.cfg.Timestamp {
		ts = s.now()
	}
	art.Filename = countdown.Filename(in.Settings, art.Ext, ts)

	cb.progress(100, "Complete")
	if s.cfg.ShowStats {
		s.reportStats(sess, art)
	}
	if cb.OnSuccess != nil {
		cb.OnSuccess(art)
	}
	return nil
}

func (s *Studio) fail(cb Callbacks, err error) {
	kind := failure.KindOf(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("generation cancelled", "err", err)
	}
	if cb.OnFailure != nil {
		cb.OnFailure(kind, failure.Message(err))
	}
}

func (s *Studio) checkMemory() {
	m, err := system.ReadMemory()
	if err != nil {
		s.logger.Debug("memory snapshot unavailable", "err", err)
		return
	}
	need := system.EstimateRecording(s.cfg.Bitrate, s.cfg.MaxClipDuration.Seconds()*countdown.Slots)
	if err := system.CheckHeadroom(m, need); err != nil {
		s.logger.Warn("low memory for recording", "err", err, "memory", m.String())
	}
}
