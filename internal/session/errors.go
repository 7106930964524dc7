package session

import "errors"

var (
	ErrNoSpecs        = errors.New("no phoneme specs: parse or load first")
	ErrNotRendered    = errors.New("no rendered audio: render a bytecode file first")
	ErrAlreadyPlaying = errors.New("playback in progress: stop first")
	ErrBusy           = errors.New("another render or playback is in flight")
	ErrUnknownVoice   = errors.New("unknown voice")
	ErrInvalidSpeed   = errors.New("speed factor must be within [0.5, 2.0]")
	ErrClosed         = errors.New("session closed")
)

// SynthesisError wraps a failure of the synthesis collaborator.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return "synthesis failed: " + e.Err.Error() }

func (e *SynthesisError) Unwrap() error { return e.Err }
