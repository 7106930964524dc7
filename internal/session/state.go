// Package session owns the render/playback state of one authoring session.
//
// State transitions are pure: State.Apply consumes one Event and returns the
// next State plus an optional Command for the owner to carry out. Engine is
// that owner; it serialises events, performs file I/O and synthesis, and
// runs playback workers.
package session

import (
	"fmt"

	"github.com/loqalabs/phonex/internal/audio"
	"github.com/loqalabs/phonex/internal/phoneme"
)

// Phase is the externally visible state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseParsed
	PhaseLoaded
	PhaseRendered
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseParsed:
		return "parsed"
	case PhaseLoaded:
		return "loaded"
	case PhaseRendered:
		return "rendered"
	case PhasePlaying:
		return "playing"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is the render state of a session. The buffer is only ever set by a
// Rendered event, and every spec or voice change drops it.
type State struct {
	Specs   phoneme.Sequence
	Buffer  *audio.Buffer
	Playing bool
	Voice   string

	origin     Phase
	generation uint64
}

// Phase derives the visible state.
func (s State) Phase() Phase {
	switch {
	case s.Playing:
		return PhasePlaying
	case s.Buffer != nil:
		return PhaseRendered
	case len(s.Specs) == 0:
		return PhaseIdle
	default:
		return s.origin
	}
}

// Generation identifies the latest playback.
func (s State) Generation() uint64 { return s.generation }

// Event is an input to Apply.
type Event interface{ event() }

type (
	// Parsed replaces the specs with freshly parsed ones.
	Parsed struct{ Specs phoneme.Sequence }
	// Loaded replaces the specs with ones read from PHX or PHN.
	Loaded struct{ Specs phoneme.Sequence }
	// Rendered stores the specs decoded from the rendered file and the
	// resulting buffer.
	Rendered struct {
		Specs  phoneme.Sequence
		Buffer *audio.Buffer
	}
	// RenderFailed drops any cached buffer.
	RenderFailed struct{}
	// PlayRequested asks to start playing the cached buffer.
	PlayRequested struct{}
	// StopRequested asks to stop the current playback.
	StopRequested struct{}
	// PlaybackFinished is reported by the worker of Generation.
	PlaybackFinished struct{ Generation uint64 }
	// VoiceChanged records a new active voice.
	VoiceChanged struct{ Voice string }
)

func (Parsed) event()           {}
func (Loaded) event()           {}
func (Rendered) event()         {}
func (RenderFailed) event()     {}
func (PlayRequested) event()    {}
func (StopRequested) event()    {}
func (PlaybackFinished) event() {}
func (VoiceChanged) event()     {}

// Command is work the owner must perform after a transition.
type Command interface{ command() }

// StartPlayback hands a read-only buffer to a new playback worker.
type StartPlayback struct {
	Buffer     *audio.Buffer
	Generation uint64
}

// StopPlayback cancels the worker of Generation.
type StopPlayback struct{ Generation uint64 }

func (StartPlayback) command() {}
func (StopPlayback) command()  {}

// Apply computes the transition for ev. On error s is returned unchanged.
func (s State) Apply(ev Event) (State, Command, error) {
	switch ev := ev.(type) {
	case Parsed:
		return s.replaceSpecs(ev.Specs, PhaseParsed)
	case Loaded:
		return s.replaceSpecs(ev.Specs, PhaseLoaded)
	case Rendered:
		if s.Playing {
			return s, nil, ErrBusy
		}
		if ev.Buffer == nil {
			return s, nil, fmt.Errorf("rendered event without buffer")
		}
		next := s
		next.Specs = ev.Specs
		next.Buffer = ev.Buffer
		next.origin = PhaseLoaded
		return next, nil, nil
	case RenderFailed:
		next := s
		next.Buffer = nil
		return next, nil, nil
	case PlayRequested:
		if s.Buffer == nil {
			return s, nil, ErrNotRendered
		}
		if s.Playing {
			return s, nil, ErrAlreadyPlaying
		}
		next := s
		next.Playing = true
		next.generation++
		return next, StartPlayback{Buffer: next.Buffer, Generation: next.generation}, nil
	case StopRequested:
		if !s.Playing {
			return s, nil, nil
		}
		next := s
		next.Playing = false
		return next, StopPlayback{Generation: s.generation}, nil
	case PlaybackFinished:
		if !s.Playing || ev.Generation != s.generation {
			return s, nil, nil
		}
		next := s
		next.Playing = false
		return next, nil, nil
	case VoiceChanged:
		next, cmd := s.dropBuffer()
		next.Voice = ev.Voice
		return next, cmd, nil
	}
	return s, nil, fmt.Errorf("unknown event %T", ev)
}

func (s State) replaceSpecs(specs phoneme.Sequence, origin Phase) (State, Command, error) {
	if len(specs) == 0 {
		return s, nil, ErrNoSpecs
	}
	next, cmd := s.dropBuffer()
	next.Specs = specs
	next.origin = origin
	return next, cmd, nil
}

// dropBuffer clears the cache, stopping playback first if one is running.
func (s State) dropBuffer() (State, Command) {
	next := s
	next.Buffer = nil
	if s.Playing {
		next.Playing = false
		return next, StopPlayback{Generation: s.generation}
	}
	return next, nil
}
