package synth

import (
	"context"
	"math"
	"time"

	"github.com/loqalabs/phonex/internal/audio"
)

type mockSynth struct {
	delay time.Duration
}

// NewMockSynth returns a synthesizer producing silence as long as the specs,
// round(total duration * sample rate) samples, after an optional delay.
func NewMockSynth(delay time.Duration) Synthesizer {
	return &mockSynth{delay: delay}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (*audio.Buffer, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	n := int(math.Round(req.Specs.TotalDuration() * float64(req.SampleRate)))
	return &audio.Buffer{Samples: make([]float64, n), SampleRate: req.SampleRate}, nil
}
