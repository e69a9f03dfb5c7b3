package compositor

import (
	"image"
	"math"

	"github.com/ivlev/clipton/internal/countdown"
)

// DefaultZoom is how far CROP_ZOOM scales past cover-fit.
const DefaultZoom = 1.15

// Rect is a destination rectangle in canvas pixels. X and Y may be negative
// when the clip overflows the canvas.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Image() image.Rectangle {
	x0, y0 := int(math.Round(r.X)), int(math.Round(r.Y))
	return image.Rect(x0, y0, x0+int(math.Round(r.W)), y0+int(math.Round(r.H)))
}

// Placement computes where a srcW×srcH clip lands on a dstW×dstH canvas.
// FIT matches the canvas height, the governing side of a portrait canvas.
// CROP_ZOOM covers the canvas and then zooms by zoom. Both keep the clip's
// aspect ratio and center it.
func Placement(srcW, srcH, dstW, dstH int, profile countdown.DisplayProfile, zoom float64) Rect {
	if srcW <= 0 || srcH <= 0 {
		return Rect{W: float64(dstW), H: float64(dstH)}
	}
	sw, sh := float64(srcW), float64(srcH)
	dw, dh := float64(dstW), float64(dstH)

	var scale float64
	switch profile {
	case countdown.CropZoom:
		if zoom <= 1 {
			zoom = DefaultZoom
		}
		scale = math.Max(dw/sw, dh/sh) * zoom
	default:
		scale = dh / sh
	}

	w, h := sw*scale, sh*scale
	return Rect{
		X: (dw - w) / 2,
		Y: (dh - h) / 2,
		W: w,
		H: h,
	}
}

// containRect fits src inside box without cropping.
func containRect(src image.Rectangle, box Rect) Rect {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if sw == 0 || sh == 0 {
		return box
	}
	scale := math.Min(box.W/sw, box.H/sh)
	w, h := sw*scale, sh*scale
	return Rect{
		X: box.X + (box.W-w)/2,
		Y: box.Y + (box.H-h)/2,
		W: w,
		H: h,
	}
}
