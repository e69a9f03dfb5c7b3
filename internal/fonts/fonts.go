// Package fonts loads the overlay typeface and hands out faces per pixel size.
package fonts

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Set caches faces of one typeface by size. Safe for concurrent use.
type Set struct {
	font  *opentype.Font
	mu    sync.Mutex
	faces map[float64]font.Face
}

// Load parses the font at path, or the embedded Go Bold when path is empty.
func Load(path string) (*Set, error) {
	data := gobold.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &Set{font: f, faces: make(map[float64]font.Face)}, nil
}

// Face returns a face of the given pixel size.
func (s *Set) Face(size float64) (font.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.faces[size]; ok {
		return f, nil
	}
	face, err := opentype.NewFace(s.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	s.faces[size] = face
	return face, nil
}

// Close releases all cached faces.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, f := range s.faces {
		f.Close()
		delete(s.faces, k)
	}
	return nil
}

// Measurer adapts a face to layout.Measure.
func Measurer(face font.Face) func(string) float64 {
	return func(s string) float64 {
		return ToFloat(font.MeasureString(face, s))
	}
}

func ToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
