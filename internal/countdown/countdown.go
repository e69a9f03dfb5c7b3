// Package countdown holds the domain model of a top-5 countdown video:
// ranked positions, their slots, the playback order and the reveal set.
package countdown

import (
	"fmt"
	"image/color"
	"strings"
)

// Slots is the number of ranked positions in a countdown.
const Slots = 5

// Position is a ranked slot, 1 (best) through 5.
type Position int

func (p Position) Valid() bool {
	return p >= 1 && p <= Slots
}

// Positions returns 1..5 in ranking order.
func Positions() []Position {
	ps := make([]Position, Slots)
	for i := range ps {
		ps[i] = Position(i + 1)
	}
	return ps
}

// DisplayProfile controls how a clip is scaled into the canvas.
type DisplayProfile int

const (
	Fit DisplayProfile = iota
	CropZoom
)

func (d DisplayProfile) String() string {
	if d == CropZoom {
		return "crop-zoom"
	}
	return "fit"
}

func ParseDisplayProfile(s string) (DisplayProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fit":
		return Fit, nil
	case "crop-zoom", "crop_zoom", "cropzoom", "zoom":
		return CropZoom, nil
	default:
		return Fit, fmt.Errorf("unknown display profile %q", s)
	}
}

// Media is a bound clip as far as the domain cares: something with known
// decoded dimensions. Playback lives in the sequencer.
type Media interface {
	Size() (width, height int)
	Source() string
}

// Slot is one ranked position and what the user bound to it.
type Slot struct {
	Position Position
	Media    Media
	Name     string
	Profile  DisplayProfile
}

func (s Slot) Bound() bool {
	return s.Media != nil
}

// Settings is the text/colour bundle the settings form produces.
type Settings struct {
	Title           string
	HighlightWord   string
	HighlightColor  color.RGBA
	EndingText      string
	RankColors      map[Position]color.RGBA
	SubscribePrompt string
	ChannelURL      string
}

// RankColor returns the colour for a position's number, white if unset.
func (s Settings) RankColor(p Position) color.RGBA {
	if c, ok := s.RankColors[p]; ok {
		return c
	}
	return color.RGBA{255, 255, 255, 255}
}

// ComposeTitle joins the title, the highlight word (when the title does not
// already contain it) and the ending text into the line drawn at the top.
func (s Settings) ComposeTitle() string {
	parts := []string{}
	if t := strings.TrimSpace(s.Title); t != "" {
		parts = append(parts, t)
	}
	if h := strings.TrimSpace(s.HighlightWord); h != "" && !strings.Contains(s.Title, h) {
		parts = append(parts, h)
	}
	if e := strings.TrimSpace(s.EndingText); e != "" {
		parts = append(parts, e)
	}
	return strings.Join(parts, " ")
}

// ParseColor accepts #RGB and #RRGGBB.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	c := color.RGBA{A: 255}
	var err error
	switch len(s) {
	case 6:
		_, err = fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B)
	case 3:
		_, err = fmt.Sscanf(s, "%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R *= 17
		c.G *= 17
		c.B *= 17
	default:
		err = fmt.Errorf("bad length")
	}
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", "#"+s, err)
	}
	return c, nil
}
