// Package failure defines the error kinds a generation run can end with.
package failure

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	MissingClip
	UnsupportedEnvironment
	EncoderConstructionFailure
	PlaybackFailure
	FrameDrawFailure
	EncoderRuntimeFailure
	AlreadyGenerating
)

func (k Kind) String() string {
	switch k {
	case MissingClip:
		return "MissingClip"
	case UnsupportedEnvironment:
		return "UnsupportedEnvironment"
	case EncoderConstructionFailure:
		return "EncoderConstructionFailure"
	case PlaybackFailure:
		return "PlaybackFailure"
	case FrameDrawFailure:
		return "FrameDrawFailure"
	case EncoderRuntimeFailure:
		return "EncoderRuntimeFailure"
	case AlreadyGenerating:
		return "AlreadyGenerating"
	default:
		return "Unknown"
	}
}

// Error is a classified failure. Position and Clip are optional and name the
// ranked slot and clip the failure is about.
type Error struct {
	Kind     Kind
	Position int
	Clip     string
	Err      error
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func ForClip(kind Kind, position int, clip string, err error) *Error {
	return &Error{Kind: kind, Position: position, Clip: clip, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	switch {
	case e.Position > 0 && e.Clip != "":
		msg += fmt.Sprintf(": position %d (%s)", e.Position, e.Clip)
	case e.Position > 0:
		msg += fmt.Sprintf(": position %d", e.Position)
	case e.Clip != "":
		msg += fmt.Sprintf(": %s", e.Clip)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, failure.New(k, nil))
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil && t.Position == 0 && t.Clip == ""
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Message renders a user-facing sentence for a failed run.
func Message(err error) string {
	var fe *Error
	if !errors.As(err, &fe) {
		return fmt.Sprintf("Error generating video: %v", err)
	}
	switch fe.Kind {
	case MissingClip:
		return fmt.Sprintf("Clip #%d is missing. Upload all five clips before generating.", fe.Position)
	case UnsupportedEnvironment:
		return fmt.Sprintf("Video capture is not supported here: %v", fe.Err)
	case EncoderConstructionFailure:
		return fmt.Sprintf("No usable video encoder: %v", fe.Err)
	case PlaybackFailure:
		if fe.Clip != "" {
			return fmt.Sprintf("Clip #%d (%s) could not be played: %v", fe.Position, fe.Clip, fe.Err)
		}
		return fmt.Sprintf("Clip #%d could not be played: %v", fe.Position, fe.Err)
	case EncoderRuntimeFailure:
		return fmt.Sprintf("The encoder stopped unexpectedly: %v", fe.Err)
	case AlreadyGenerating:
		return "A video is already being generated."
	default:
		return fmt.Sprintf("Error generating video: %v", fe)
	}
}
