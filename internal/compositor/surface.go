package compositor

import (
	"image"
	"sync"
)

// Surface is the single canvas shared by the draw loop and the capture
// sampler. Each side holds the lock only for the duration of its pass.
type Surface struct {
	mu  sync.Mutex
	img *image.RGBA
}

func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (s *Surface) Bounds() image.Rectangle {
	return s.img.Rect
}

// Paint runs fn with exclusive access to the canvas.
func (s *Surface) Paint(fn func(dst *image.RGBA)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.img)
}

// CopyTo copies the current canvas into dst, which must have the same bounds.
func (s *Surface) CopyTo(dst *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(dst.Pix, s.img.Pix)
}

// Clone returns a private copy of the current canvas.
func (s *Surface) Clone() *image.RGBA {
	dst := image.NewRGBA(s.img.Rect)
	s.CopyTo(dst)
	return dst
}
