package synth

import (
	"context"
	"time"

	"github.com/loqalabs/phonex/internal/audio"
	"github.com/loqalabs/phonex/internal/phoneme"
	"github.com/loqalabs/phonex/internal/voice"
)

// Request carries everything a synthesizer may read.
type Request struct {
	Specs      phoneme.Sequence
	Voice      *voice.Voice
	SampleRate int
}

// Synthesizer is the contract for producing audio from specs.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*audio.Buffer, error)
}

// Func adapts a function to Synthesizer.
type Func func(ctx context.Context, req Request) (*audio.Buffer, error)

func (f Func) Synthesize(ctx context.Context, req Request) (*audio.Buffer, error) {
	return f(ctx, req)
}

// WithTimeout bounds every call to s by d. A non-positive d returns s.
func WithTimeout(s Synthesizer, d time.Duration) Synthesizer {
	if d <= 0 {
		return s
	}
	return Func(func(ctx context.Context, req Request) (*audio.Buffer, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return s.Synthesize(ctx, req)
	})
}
