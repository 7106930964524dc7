package phoneme

import (
	"fmt"
	"math"
)

// Tolerance bounds float comparisons between specs. It is absolute below 1
// and relative above, since PHX stores float32 and a formant in the kHz range
// only survives a round trip to about 1e-4 Hz.
const Tolerance = 1e-6

// Spec is one synthesis event.
type Spec struct {
	Phoneme      Phoneme   `json:"phoneme" yaml:"phoneme"`
	Duration     float64   `json:"duration" yaml:"duration"`
	PitchContour []float64 `json:"pitch_contour" yaml:"pitch_contour"`
	F1           float64   `json:"f1" yaml:"f1"`
	F2           float64   `json:"f2" yaml:"f2"`
	F3           float64   `json:"f3" yaml:"f3"`
	Voiced       bool      `json:"voiced" yaml:"voiced"`
}

// Validate checks s against the inventory, duration range and contour
// bounds. Every numeric field must be finite and non-negative. An unvoiced
// spec carries the one-point contour [0], never an empty one.
func (s Spec) Validate() error {
	if !s.Phoneme.Valid() {
		return fmt.Errorf("unknown phoneme %q", s.Phoneme)
	}
	if math.IsNaN(s.Duration) || s.Duration < MinDuration-Tolerance || s.Duration > MaxDuration+Tolerance {
		return fmt.Errorf("%s: duration %v outside [%.2f, %.1f]", s.Phoneme, s.Duration, MinDuration, MaxDuration)
	}
	if len(s.PitchContour) == 0 {
		return fmt.Errorf("%s: empty pitch contour", s.Phoneme)
	}
	if len(s.PitchContour) > MaxPitchPoints {
		return fmt.Errorf("%s: %d pitch points exceed %d", s.Phoneme, len(s.PitchContour), MaxPitchPoints)
	}
	for _, p := range s.PitchContour {
		if !validHz(p) {
			return fmt.Errorf("%s: invalid pitch %v", s.Phoneme, p)
		}
	}
	for _, f := range [...]float64{s.F1, s.F2, s.F3} {
		if !validHz(f) {
			return fmt.Errorf("%s: invalid formant %v", s.Phoneme, f)
		}
	}
	return nil
}

func validHz(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// Silent reports whether the contour carries no pitch.
func (s Spec) Silent() bool {
	for _, p := range s.PitchContour {
		if p != 0 {
			return false
		}
	}
	return true
}

// Equal compares two specs exactly on identity and contour length and within
// Tolerance on every numeric field.
func (s Spec) Equal(o Spec) bool {
	if s.Phoneme != o.Phoneme || s.Voiced != o.Voiced || len(s.PitchContour) != len(o.PitchContour) {
		return false
	}
	if !approx(s.Duration, o.Duration) || !approx(s.F1, o.F1) || !approx(s.F2, o.F2) || !approx(s.F3, o.F3) {
		return false
	}
	for i := range s.PitchContour {
		if !approx(s.PitchContour[i], o.PitchContour[i]) {
			return false
		}
	}
	return true
}

func approx(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= Tolerance*scale
}

// Sequence is an ordered run of specs.
type Sequence []Spec

// TotalDuration sums every duration in seconds.
func (s Sequence) TotalDuration() float64 {
	var total float64
	for _, sp := range s {
		total += sp.Duration
	}
	return total
}

// Phonemes lists the identifiers in order.
func (s Sequence) Phonemes() []Phoneme {
	out := make([]Phoneme, len(s))
	for i, sp := range s {
		out[i] = sp.Phoneme
	}
	return out
}

// Equal compares two sequences element-wise with Spec.Equal.
func (s Sequence) Equal(o Sequence) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, so callers never share contour slices.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	for i, sp := range s {
		sp.PitchContour = append([]float64(nil), sp.PitchContour...)
		out[i] = sp
	}
	return out
}
