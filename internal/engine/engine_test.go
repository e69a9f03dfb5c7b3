package engine

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/clipton/internal/capture"
	"github.com/ivlev/clipton/internal/config"
	"github.com/ivlev/clipton/internal/countdown"
	"github.com/ivlev/clipton/internal/failure"
	"github.com/ivlev/clipton/internal/session"
	"github.com/ivlev/clipton/internal/video"
)

type stubClip struct {
	frames, served int
	paused         bool
}

func (c *stubClip) Size() (int, int) { return 1920, 1080 }
func (c *stubClip) Source() string { return "stub.mp4" }
func (c *stubClip) Play(context.Context) error { c.served, c.paused = 0, false; return nil }
func (c *stubClip) Pause() error { c.paused = true; return nil }
func (c *stubClip) Paused() bool { return c.paused }
func (c *stubClip) NextFrame() (image.Image, error) {
	if c.paused || c.served >= c.frames {
		return nil, io.EOF
	}
	c.served++
	return image.NewRGBA(image.Rect(0, 0, 192, 108)), nil
}

// pipeEncoder passes a byte per frame through to its output.
type pipeEncoder struct {
	pr *io.PipeReader
	pw *io.PipeWriter
}

func (e *pipeEncoder) WriteFrame(*image.RGBA) error { _, err := e.pw.Write([]byte{1}); return err }
func (e *pipeEncoder) Output() io.Reader { return e.pr }
func (e *pipeEncoder) CloseInput() error { return e.pw.Close() }
func (e *pipeEncoder) Wait() error { return nil }
func (e *pipeEncoder) Kill() {
	e.pw.CloseWithError(errors.New("killed"))
	e.pr.CloseWithError(errors.New("killed"))
}

// instantClock advances one 30 fps frame per tick without waiting.
type instantClock struct {
	now time.Time
}

func (c *instantClock) Tick(ctx context.Context) error {
	c.now = c.now.Add(time.Second / 30)
	return ctx.Err()
}

func (c *instantClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return ctx.Err()
}

func (c *instantClock) Now() time.Time { return c.now }

type recorder struct {
	mu       sync.Mutex
	opened   int
	progress []int
	success  []*capture.Artifact
	failures []failure.Kind
	messages []string
}

func (r *recorder) open(context.Context, video.Codec, video.StreamOptions) (capture.Encoder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened++
	pr, pw := io.Pipe()
	return &pipeEncoder{pr: pr, pw: pw}, nil
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(p int, _ string) { r.progress = append(r.progress, p) },
		OnSuccess:  func(a *capture.Artifact) { r.success = append(r.success, a) },
		OnFailure: func(k failure.Kind, msg string) {
			r.failures = append(r.failures, k)
			r.messages = append(r.messages, msg)
		},
	}
}

func newTestStudio(t *testing.T, mutate func(*config.Config)) (*Studio, *recorder, *capture.Pipeline) {
	t.Helper()
	cfg := config.Default()
	cfg.Canvas = "720x1280"
	cfg.Title = "Top 5"
	cfg.HighlightWord = "Dunk"
	cfg.EndingText = "Moments Ever"
	cfg.Interstitial.After = 0
	cfg.FFmpeg = "/nonexistent/ffmpeg"
	if mutate != nil {
		mutate(cfg)
	}

	rec := &recorder{}
	pipeline := capture.New(rec.open, capture.Options{FPS: cfg.FPS, Timeslice: time.Millisecond})
	studio, err := NewStudio(cfg, Deps{
		Pipeline: pipeline,
		Clock:    &instantClock{},
		Now:      func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewStudio: %v", err)
	}
	t.Cleanup(func() { studio.Close() })
	return studio, rec, pipeline
}

func bindAll(t *testing.T, s *Studio, skip ...countdown.Position) {
	t.Helper()
	for _, p := range countdown.Positions() {
		if len(skip) > 0 && p == skip[0] {
			continue
		}
		if err := s.Bind(p, &stubClip{frames: 2}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGenerateSuccess(t *testing.T) {
	statsLog := filepath.Join(t.TempDir(), "benchmark.log")
	studio, rec, pipeline := newTestStudio(t, func(c *config.Config) {
		c.ShowStats = true
		c.StatsLog = statsLog
		c.Interstitial.After = 2
		c.Interstitial.Hold = 100 * time.Millisecond
	})
	bindAll(t, studio)
	studio.Rename(1, "  Windmill  ")

	if err := studio.Generate(context.Background(), rec.callbacks()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(rec.success) != 1 || len(rec.failures) != 0 {
		t.Fatalf("callbacks: %d successes, %d failures", len(rec.success), len(rec.failures))
	}
	art := rec.success[0]
	if art.Filename != "top-5-dunk-moments-ever.webm" {
		t.Errorf("filename = %q", art.Filename)
	}
	if rec.opened != 1 {
		t.Errorf("encoders opened = %d, want 1", rec.opened)
	}
	if rec.progress[0] != 0 || rec.progress[len(rec.progress)-1] != 100 {
		t.Errorf("progress %v must run 0..100", rec.progress)
	}
	if pipeline.Busy() {
		t.Error("pipeline must be released")
	}
	if studio.Slots()[0].Name != "Windmill" {
		t.Errorf("name not trimmed: %q", studio.Slots()[0].Name)
	}

	data, err := os.ReadFile(statsLog)
	if err != nil || !strings.Contains(string(data), "Codec: vp9") {
		t.Errorf("stats log %q (%v)", data, err)
	}
}

func TestGenerateTimestampedFilename(t *testing.T) {
	studio, rec, _ := newTestStudio(t, func(c *config.Config) { c.Timestamp = true })
	bindAll(t, studio)
	if err := studio.Generate(context.Background(), rec.callbacks()); err != nil {
		t.Fatal(err)
	}
	if got := rec.success[0].Filename; got != "top-5-dunk-moments-ever-20240501-123000.webm" {
		t.Errorf("filename = %q", got)
	}
}

func TestGenerateMissingClip(t *testing.T) {
	studio, rec, pipeline := newTestStudio(t, nil)
	bindAll(t, studio, 3)

	err := studio.Generate(context.Background(), rec.callbacks())
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Kind != failure.MissingClip || fe.Position != 3 {
		t.Fatalf("expected MissingClip(3), got %v", err)
	}
	if rec.opened != 0 {
		t.Errorf("encoder constructed %d times, want 0", rec.opened)
	}
	if len(rec.failures) != 1 || rec.failures[0] != failure.MissingClip || !strings.Contains(rec.messages[0], "#3") {
		t.Errorf("failure callbacks %v %v", rec.failures, rec.messages)
	}
	if len(rec.success) != 0 || pipeline.Busy() {
		t.Error("no artifact and a free pipeline expected")
	}
}

func TestGenerateAlreadyGenerating(t *testing.T) {
	studio, rec, pipeline := newTestStudio(t, nil)
	bindAll(t, studio)

	lease, err := pipeline.Reserve()
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()

	err = studio.Generate(context.Background(), rec.callbacks())
	if failure.KindOf(err) != failure.AlreadyGenerating {
		t.Fatalf("expected AlreadyGenerating, got %v", err)
	}
	if len(rec.progress) != 0 || rec.opened != 0 {
		t.Error("a rejected run must not start anything")
	}
	if len(rec.failures) != 1 || !studio.Busy() {
		t.Error("the active run must stay untouched")
	}
}

func TestSlotCommands(t *testing.T) {
	studio, _, _ := newTestStudio(t, nil)

	if err := studio.Bind(6, &stubClip{}); err == nil {
		t.Error("Bind(6) must fail")
	}
	if err := studio.SetProfile(2, countdown.CropZoom); err != nil {
		t.Fatal(err)
	}
	studio.Bind(2, &stubClip{})
	studio.Unbind(2)
	slot := studio.Slots()[1]
	if slot.Bound() || slot.Profile != countdown.CropZoom || slot.Position != 2 {
		t.Errorf("unexpected slot %+v", slot)
	}

	studio.UpdateSettings(countdown.Settings{Title: "Best Saves"})
	if studio.Settings().Title != "Best Saves" {
		t.Error("settings not updated")
	}
}

// probeScript answers like ffprobe for any path except ones named broken.
const probeScript = `#!/bin/sh
for last; do :; done
case "$last" in
*broken*) echo "Invalid data found when processing input" >&2; exit 1 ;;
esac
echo '{"streams": [{"codec_name": "h264", "width": 1920, "height": 1080}], "format": {"duration": "4.0"}}'
`

func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadClipsBindsLatestFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script ffprobe stand-in")
	}
	tools := t.TempDir()
	clips := t.TempDir()
	ffprobe := writeTool(t, tools, "ffprobe", probeScript)
	ffmpeg := writeTool(t, tools, "ffmpeg", "#!/bin/sh\nexit 0\n")

	touch := func(pos int, name string, age time.Duration) string {
		dir := filepath.Join(clips, strconv.Itoa(pos))
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}
		mtime := time.Now().Add(-age)
		os.Chtimes(path, mtime, mtime)
		return path
	}
	touch(1, "a.mp4", time.Hour)
	touch(2, "old.mp4", 2*time.Hour)
	newest := touch(2, "new.mov", time.Minute)
	touch(2, "notes.txt", 0)
	explicit := touch(4, "dunk.mp4", time.Hour)
	os.MkdirAll(filepath.Join(clips, "3"), 0755)

	studio, _, _ := newTestStudio(t, func(c *config.Config) {
		c.FFmpeg, c.FFprobe = ffmpeg, ffprobe
		c.ClipsDir = clips
		c.Clips = []config.ClipConfig{
			{Position: 4, Path: explicit, Name: " Alley-oop ", Profile: "crop_zoom"},
			{Position: 5, Path: filepath.Join(clips, "broken.mp4")},
		}
	})
	if err := studio.LoadClips(context.Background()); err != nil {
		t.Fatalf("LoadClips: %v", err)
	}

	slots := studio.Slots()
	if !slots[0].Bound() || !slots[1].Bound() || !slots[3].Bound() {
		t.Fatalf("positions 1, 2 and 4 must be bound: %+v", slots)
	}
	if got := slots[1].Media.Source(); got != newest {
		t.Errorf("position 2 bound %s, want the newest video %s", got, newest)
	}
	if slots[2].Bound() || slots[4].Bound() {
		t.Error("an empty directory and an unreadable clip must leave the slot unbound")
	}
	if slots[3].Name != "Alley-oop" || slots[3].Profile != countdown.CropZoom {
		t.Errorf("position 4 settings %+v", slots[3])
	}
	if w, h := slots[0].Media.Size(); w != 1920 || h != 1080 {
		t.Errorf("probed size %dx%d", w, h)
	}
}

func TestLoadClipsWithoutTools(t *testing.T) {
	studio, _, _ := newTestStudio(t, nil)
	if err := studio.LoadClips(context.Background()); failure.KindOf(err) != failure.UnsupportedEnvironment {
		t.Errorf("expected UnsupportedEnvironment, got %v", err)
	}
}

var _ session.Recorder = (*capture.Recording)(nil)
