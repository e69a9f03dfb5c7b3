// Package session holds the transient state of one generation run.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/clipton/internal/capture"
	"github.com/ivlev/clipton/internal/countdown"
)

type State int

const (
	Idle State = iota
	Starting
	PlayingClip
	RenderingClip
	Interstitial
	Finalizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Starting:
		return "STARTING"
	case PlayingClip:
		return "PLAYING_CLIP"
	case RenderingClip:
		return "RENDERING_CLIP"
	case Interstitial:
		return "INTERSTITIAL"
	case Finalizing:
		return "FINALIZING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Recorder is the active recording of a session.
type Recorder interface {
	Err() error
	Stop(ctx context.Context) (*capture.Artifact, error)
	Abort()
}

// RenderSession exists from the start of generation until the recording
// is finalized or the run fails.
type RenderSession struct {
	ID        string
	Started   time.Time
	State     State
	ClipIndex int
	Frames    map[countdown.Position]int
	Reveal    *countdown.RevealSet
	Recording Recorder

	transitions []State
}

func New() *RenderSession {
	return &RenderSession{
		ID:        uuid.NewString(),
		Started:   time.Now(),
		State:     Idle,
		ClipIndex: -1,
		Frames:    make(map[countdown.Position]int, countdown.Slots),
		Reveal:    countdown.NewRevealSet(),
	}
}

// Enter moves to s. Terminal states are sticky.
func (r *RenderSession) Enter(s State) {
	if r.State.Terminal() || r.State == s {
		return
	}
	r.State = s
	r.transitions = append(r.transitions, s)
}

// History lists every state entered after Idle.
func (r *RenderSession) History() []State {
	return append([]State(nil), r.transitions...)
}

func (r *RenderSession) TotalFrames() int {
	n := 0
	for _, f := range r.Frames {
		n += f
	}
	return n
}
