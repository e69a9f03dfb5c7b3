// Package layout places text independently of any frame: greedy word
// wrapping and splitting a line into coloured spans.
package layout

import (
	"iter"
	"strings"
)

// Measure returns the rendered width of s in pixels.
type Measure func(s string) float64

// Wrap breaks text into lines no wider than maxWidth, at whitespace only.
// A word wider than maxWidth gets a line of its own and is not split.
// Empty text yields a single empty line.
func Wrap(text string, maxWidth float64, measure Measure) iter.Seq[string] {
	return func(yield func(string) bool) {
		words := strings.Fields(text)
		if len(words) == 0 {
			yield("")
			return
		}

		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if measure(candidate) <= maxWidth {
				line = candidate
				continue
			}
			if !yield(line) {
				return
			}
			line = w
		}
		yield(line)
	}
}

// Lines collects Wrap into a slice.
func Lines(text string, maxWidth float64, measure Measure) []string {
	var lines []string
	for l := range Wrap(text, maxWidth, measure) {
		lines = append(lines, l)
	}
	return lines
}

// Span is a run of text painted in one colour.
type Span struct {
	Text      string
	Width     float64
	Highlight bool
}

// Segmented is a line split around its highlighted word.
type Segmented struct {
	Spans  []Span
	Width  float64
	StartX float64
}

// Segment splits text around the first case-sensitive occurrence of
// highlight and centers the whole line within canvasWidth. Without a match
// the line is one plain span.
func Segment(text, highlight string, measure Measure, canvasWidth float64) Segmented {
	var spans []Span
	idx := -1
	if highlight != "" {
		idx = strings.Index(text, highlight)
	}

	if idx < 0 {
		spans = []Span{{Text: text, Width: measure(text)}}
	} else {
		before, after := text[:idx], text[idx+len(highlight):]
		if before != "" {
			spans = append(spans, Span{Text: before, Width: measure(before)})
		}
		spans = append(spans, Span{Text: highlight, Width: measure(highlight), Highlight: true})
		if after != "" {
			spans = append(spans, Span{Text: after, Width: measure(after)})
		}
	}

	total := 0.0
	for _, s := range spans {
		total += s.Width
	}
	return Segmented{
		Spans:  spans,
		Width:  total,
		StartX: (canvasWidth - total) / 2,
	}
}
