// Package config loads the project file, .env overrides and defaults.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/clipton/internal/countdown"
)

// Canvas profiles. Nothing else is accepted.
var canvases = map[string][2]int{
	"1080x1920": {1080, 1920},
	"720x1280":  {720, 1280},
}

type ClipConfig struct {
	Position int    `yaml:"position"`
	Path     string `yaml:"path"`
	Name     string `yaml:"name"`
	Profile  string `yaml:"profile"`
}

type InterstitialConfig struct {
	// After is how many clips play before the promo frame; 0 disables it.
	After int           `yaml:"after"`
	Hold  time.Duration `yaml:"hold"`
	Asset string        `yaml:"asset"`
}

type Config struct {
	Title           string         `yaml:"title"`
	HighlightWord   string         `yaml:"highlight_word"`
	HighlightColor  string         `yaml:"highlight_color"`
	EndingText      string         `yaml:"ending_text"`
	RankColors      map[int]string `yaml:"rank_colors"`
	SubscribePrompt string         `yaml:"subscribe_prompt"`
	ChannelURL      string         `yaml:"channel_url"`

	Clips    []ClipConfig `yaml:"clips"`
	ClipsDir string       `yaml:"clips_dir"`

	Canvas  string   `yaml:"canvas"`
	FPS     int      `yaml:"fps"`
	Bitrate int      `yaml:"bitrate"`
	Zoom    float64  `yaml:"zoom"`
	Order   string   `yaml:"order"`
	Codecs  []string `yaml:"codecs"`

	Timeslice        time.Duration      `yaml:"timeslice"`
	MaxClipDuration  time.Duration      `yaml:"max_clip_duration"`
	PreCaptureSettle time.Duration      `yaml:"pre_capture_settle"`
	FinalizeSettle   time.Duration      `yaml:"finalize_settle"`
	Interstitial     InterstitialConfig `yaml:"interstitial"`

	FontPath  string `yaml:"font_path"`
	OutputDir string `yaml:"output_dir"`
	Timestamp bool   `yaml:"timestamp"`
	FFmpeg    string `yaml:"ffmpeg"`
	FFprobe   string `yaml:"ffprobe"`

	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	ShowStats    bool   `yaml:"show_stats"`
	StatsLog     string `yaml:"stats_log"`
	BuildVersion string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		HighlightColor:  "#FFD700",
		SubscribePrompt: "Subscribe for more!",
		ClipsDir:        "input/clips",
		Canvas:          "1080x1920",
		FPS:             30,
		Bitrate:         5_000_000,
		Zoom:            1.15,
		Order:           "ascending-wrap",
		Codecs:          []string{"vp9", "vp8", "h264"},

		Timeslice:        time.Second,
		MaxClipDuration:  60 * time.Second,
		PreCaptureSettle: 500 * time.Millisecond,
		FinalizeSettle:   time.Second,
		Interstitial:     InterstitialConfig{After: 3, Hold: 3 * time.Second},

		OutputDir: "output",
		LogLevel:  "info",
		LogFormat: "text",
		StatsLog:  "benchmark.log",
	}
}

// Load reads a YAML project file over the defaults. An empty path yields
// the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения проекта: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора проекта %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv copies CLIPTON_* variables over the config.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("CLIPTON_FFMPEG", &c.FFmpeg)
	set("CLIPTON_FFPROBE", &c.FFprobe)
	set("CLIPTON_OUTPUT_DIR", &c.OutputDir)
	set("CLIPTON_LOG_LEVEL", &c.LogLevel)
	set("CLIPTON_FONT", &c.FontPath)
	if v, err := strconv.ParseBool(os.Getenv("CLIPTON_STATS")); err == nil {
		c.ShowStats = v
	}
}

// CanvasSize returns the dimensions of the configured canvas profile.
func (c *Config) CanvasSize() (int, int, error) {
	size, ok := canvases[strings.ToLower(strings.TrimSpace(c.Canvas))]
	if !ok {
		return 0, 0, fmt.Errorf("unsupported canvas %q (use 1080x1920 or 720x1280)", c.Canvas)
	}
	return size[0], size[1], nil
}

// ApplyPreset maps the -preset flag values onto a canvas profile.
func (c *Config) ApplyPreset(preset string) error {
	switch strings.ToLower(preset) {
	case "":
	case "1080", "1080p", "1080x1920":
		c.Canvas = "1080x1920"
	case "720", "720p", "720x1280":
		c.Canvas = "720x1280"
	default:
		return fmt.Errorf("unknown preset %q", preset)
	}
	return nil
}

func (c *Config) PresentationOrder() (countdown.Order, error) {
	return countdown.ParseOrder(c.Order)
}

// Settings converts the text fields into the domain bundle.
func (c *Config) Settings() (countdown.Settings, error) {
	s := countdown.Settings{
		Title:           c.Title,
		HighlightWord:   c.HighlightWord,
		EndingText:      c.EndingText,
		SubscribePrompt: c.SubscribePrompt,
		ChannelURL:      c.ChannelURL,
	}
	if c.HighlightColor != "" {
		hc, err := countdown.ParseColor(c.HighlightColor)
		if err != nil {
			return s, fmt.Errorf("highlight_color: %w", err)
		}
		s.HighlightColor = hc
	}
	if len(c.RankColors) > 0 {
		s.RankColors = make(map[countdown.Position]color.RGBA, len(c.RankColors))
		for pos, hex := range c.RankColors {
			if !countdown.Position(pos).Valid() {
				return s, fmt.Errorf("rank_colors: position %d out of range", pos)
			}
			rc, err := countdown.ParseColor(hex)
			if err != nil {
				return s, fmt.Errorf("rank_colors[%d]: %w", pos, err)
			}
			s.RankColors[countdown.Position(pos)] = rc
		}
	}
	return s, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, _, err := c.CanvasSize(); err != nil {
		errs = append(errs, err)
	}
	if c.FPS < 1 || c.FPS > 60 {
		errs = append(errs, fmt.Errorf("fps must be within 1..60, got %d", c.FPS))
	}
	if c.Zoom <= 1 {
		errs = append(errs, fmt.Errorf("zoom must be greater than 1, got %g", c.Zoom))
	}
	if _, err := c.PresentationOrder(); err != nil {
		errs = append(errs, err)
	}
	if c.Interstitial.After < 0 || c.Interstitial.After >= countdown.Slots {
		errs = append(errs, fmt.Errorf("interstitial.after must be within 0..%d, got %d", countdown.Slots-1, c.Interstitial.After))
	}
	if c.Interstitial.Hold < 0 || c.Timeslice < 0 || c.MaxClipDuration < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if _, err := c.Settings(); err != nil {
		errs = append(errs, err)
	}

	seen := map[int]bool{}
	for _, clip := range c.Clips {
		if !countdown.Position(clip.Position).Valid() {
			errs = append(errs, fmt.Errorf("clip position %d out of range", clip.Position))
			continue
		}
		if seen[clip.Position] {
			errs = append(errs, fmt.Errorf("clip position %d listed twice", clip.Position))
		}
		seen[clip.Position] = true
		if clip.Profile != "" {
			if _, err := countdown.ParseDisplayProfile(clip.Profile); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
