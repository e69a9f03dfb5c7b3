package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

func fx(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

// drawOutlined paints s with its baseline starting at (x, y): a black outline
// of the given stroke width first, then the fill on top.
func drawOutlined(dst draw.Image, face font.Face, s string, x, y float64, fill color.Color, stroke float64) {
	if s == "" {
		return
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(black), Face: face}

	r := stroke / 2
	if r >= 0.5 {
		steps := int(math.Ceil(r))
		for dy := -steps; dy <= steps; dy++ {
			for dx := -steps; dx <= steps; dx++ {
				if float64(dx*dx+dy*dy) > r*r {
					continue
				}
				d.Dot = fixed.Point26_6{X: fx(x + float64(dx)), Y: fx(y + float64(dy))}
				d.DrawString(s)
			}
		}
	}

	d.Src = image.NewUniform(fill)
	d.Dot = fixed.Point26_6{X: fx(x), Y: fx(y)}
	d.DrawString(s)
}

// roundedRect is an alpha mask of a rectangle with rounded corners.
type roundedRect struct {
	r      image.Rectangle
	radius int
}

func (m roundedRect) ColorModel() color.Model { return color.AlphaModel }
func (m roundedRect) Bounds() image.Rectangle { return m.r }

func (m roundedRect) At(x, y int) color.Color {
	if !(image.Point{x, y}).In(m.r) {
		return color.Alpha{}
	}
	rad := m.radius
	cx, cy := x, y
	switch {
	case x < m.r.Min.X+rad:
		cx = m.r.Min.X + rad
	case x >= m.r.Max.X-rad:
		cx = m.r.Max.X - rad - 1
	}
	switch {
	case y < m.r.Min.Y+rad:
		cy = m.r.Min.Y + rad
	case y >= m.r.Max.Y-rad:
		cy = m.r.Max.Y - rad - 1
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > rad*rad {
		return color.Alpha{}
	}
	return color.Alpha{A: 255}
}
