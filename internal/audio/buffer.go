// Package audio holds rendered sample buffers and the transforms and file
// writers applied to them.
package audio

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/interp"
)

// Buffer is mono audio normalized to [-1, 1].
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Len is the sample count.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// Duration is the playback length at SampleRate.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// ChangeSpeed resamples samples to len/factor samples by linear
// interpolation over a normalized time axis. A factor of 1 returns a copy.
func ChangeSpeed(samples []float64, factor float64) ([]float64, error) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("speed factor must be positive and finite, got %v", factor)
	}
	if factor == 1 || len(samples) == 0 {
		return append([]float64(nil), samples...), nil
	}
	n := int(float64(len(samples)) / factor)
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}
	if len(samples) == 1 {
		for i := range out {
			out[i] = samples[0]
		}
		return out, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(timeAxis(len(samples)), samples); err != nil {
		return nil, fmt.Errorf("fit speed transform: %w", err)
	}
	if n == 1 {
		out[0] = pl.Predict(0)
		return out, nil
	}
	last := float64(n - 1)
	for i := range out {
		out[i] = pl.Predict(float64(i) / last)
	}
	return out, nil
}

// timeAxis spaces n points evenly over [0, 1].
func timeAxis(n int) []float64 {
	xs := make([]float64, n)
	last := float64(n - 1)
	for i := range xs {
		xs[i] = float64(i) / last
	}
	return xs
}
