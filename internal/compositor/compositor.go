// Package compositor draws one output frame: background, the scaled clip
// and the countdown overlays.
package compositor

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/ivlev/clipton/internal/countdown"
	"github.com/ivlev/clipton/internal/failure"
	"github.com/ivlev/clipton/internal/fonts"
	"github.com/ivlev/clipton/internal/layout"
)

// Geometry for a 1080 px wide canvas; everything scales with the width.
const (
	baseWidth = 1080.0

	titleSize       = 70.0
	titleBaseline   = 100.0
	titleLineHeight = 82.0
	titleMaxRatio   = 0.9
	strokeWidth     = 6.0

	numberSize   = 90.0
	numberX      = 50.0
	firstRowY    = 300.0
	rowSpacing   = 180.0
	nameSize     = 50.0
	nameX        = 180.0
	bottomMargin = 120.0

	promoSize = 64.0
)

type Options struct {
	Width, Height int
	Zoom          float64
	Fonts         *fonts.Set
	Logger        *slog.Logger
}

// Overlay is everything drawn on top of the clip that is not the clip itself.
type Overlay struct {
	Settings countdown.Settings
	Names    map[countdown.Position]string
	Revealed *countdown.RevealSet
}

type Compositor struct {
	width, height int
	scale         float64
	zoom          float64
	logger        *slog.Logger

	titleFace  font.Face
	numberFace font.Face
	nameFace   font.Face
	promoFace  font.Face

	qr qrCache
}

func New(opts Options) (*Compositor, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d", opts.Width, opts.Height)
	}
	if opts.Fonts == nil {
		return nil, fmt.Errorf("no fonts")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Compositor{
		width:  opts.Width,
		height: opts.Height,
		scale:  float64(opts.Width) / baseWidth,
		zoom:   opts.Zoom,
		logger: logger.With("component", "compositor"),
	}

	faces := []struct {
		dst  *font.Face
		size float64
	}{
		{&c.titleFace, titleSize},
		{&c.numberFace, numberSize},
		{&c.nameFace, nameSize},
		{&c.promoFace, promoSize},
	}
	for _, f := range faces {
		face, err := opts.Fonts.Face(math.Round(f.size * c.scale))
		if err != nil {
			return nil, err
		}
		*f.dst = face
	}
	return c, nil
}

func (c *Compositor) px(v float64) float64 {
	return v * c.scale
}

// Render draws a complete frame. A frame that cannot be drawn leaves the
// black background in place; overlays are drawn regardless.
func (c *Compositor) Render(dst *image.RGBA, frame image.Image, profile countdown.DisplayProfile, ov Overlay) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	c.guard("video", func() { c.drawClip(dst, frame, profile) })

	lines := 1
	c.guard("title", func() { lines = c.drawTitle(dst, ov.Settings) })
	c.guard("ranks", func() { c.drawRanks(dst, ov, lines) })
}

func (c *Compositor) guard(element string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("frame element skipped",
				"element", element,
				"kind", failure.FrameDrawFailure.String(),
				"error", fmt.Sprint(r))
		}
	}()
	fn()
}

func (c *Compositor) drawClip(dst *image.RGBA, frame image.Image, profile countdown.DisplayProfile) {
	if frame == nil || frame.Bounds().Empty() {
		c.logger.Warn("frame not ready, keeping background", "kind", failure.FrameDrawFailure.String())
		return
	}
	if p, ok := frame.(Placed); ok {
		sb := p.Bounds()
		draw.Draw(dst, sb.Sub(sb.Min).Add(p.Offset), p.Image, sb.Min, draw.Src)
		return
	}
	sb := frame.Bounds()
	r := Placement(sb.Dx(), sb.Dy(), c.width, c.height, profile, c.zoom)
	xdraw.ApproxBiLinear.Scale(dst, r.Image(), frame, sb, xdraw.Src, nil)
}

// Layer describes a clip placed on this canvas: scaled to Size, cut down to
// the visible Crop (in scaled coordinates) and drawn at At.
type Layer struct {
	Size image.Point
	Crop image.Rectangle
	At   image.Point
}

// Layer lets a decoder do the scaling so that drawing is a plain copy.
func (c *Compositor) Layer(srcW, srcH int, profile countdown.DisplayProfile) Layer {
	r := Placement(srcW, srcH, c.width, c.height, profile, c.zoom).Image()
	visible := r.Intersect(image.Rect(0, 0, c.width, c.height))
	return Layer{Size: r.Size(), Crop: visible.Sub(r.Min), At: visible.Min}
}

// Placed is a frame already scaled and cropped by the decoder.
type Placed struct {
	image.Image
	Offset image.Point
}

// drawTitle returns the number of lines used.
func (c *Compositor) drawTitle(dst *image.RGBA, s countdown.Settings) int {
	full := s.ComposeTitle()
	if full == "" {
		return 1
	}
	measure := fonts.Measurer(c.titleFace)
	canvasW := float64(c.width)

	lines := []string{full}
	if measure(full) > canvasW*titleMaxRatio {
		lines = layout.Lines(full, canvasW*titleMaxRatio, measure)
	}

	y := c.px(titleBaseline)
	for _, line := range lines {
		seg := layout.Segment(line, s.HighlightWord, measure, canvasW)
		x := seg.StartX
		for _, span := range seg.Spans {
			fill := white
			if span.Highlight {
				fill = s.HighlightColor
			}
			drawOutlined(dst, c.titleFace, span.Text, x, y, fill, c.px(strokeWidth))
			x += span.Width
		}
		y += c.px(titleLineHeight)
	}
	return len(lines)
}

func (c *Compositor) drawRanks(dst *image.RGBA, ov Overlay, titleLines int) {
	for i, y := range c.rowBaselines(titleLines) {
		p := countdown.Position(i + 1)
		drawOutlined(dst, c.numberFace, fmt.Sprintf("%d.", p), c.px(numberX), y, ov.Settings.RankColor(p), c.px(strokeWidth))

		if name := ov.Names[p]; name != "" && ov.Revealed.Contains(p) {
			drawOutlined(dst, c.nameFace, name, c.px(nameX), y, white, c.px(strokeWidth))
		}
	}
}

// rowBaselines lists the baselines of the ranked rows that stay above the
// bottom margin. The list moves down with every extra title line.
func (c *Compositor) rowBaselines(titleLines int) []float64 {
	limit := float64(c.height) - c.px(bottomMargin)
	y := c.px(firstRowY) + float64(titleLines-1)*c.px(titleLineHeight)

	var rows []float64
	for range countdown.Slots {
		if y > limit {
			break
		}
		rows = append(rows, y)
		y += c.px(rowSpacing)
	}
	return rows
}
