// Package spec turns authoring text into phoneme sequences and back.
package spec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/loqalabs/phonex/internal/g2p"
	"github.com/loqalabs/phonex/internal/phoneme"
	"github.com/loqalabs/phonex/internal/voice"
)

// ErrNoPhonemes is reported when a parse yields only boundary silence.
var ErrNoPhonemes = errors.New("no phonemes generated")

// ParseError describes malformed or insufficient spec text. Line is 1-based
// and zero when the error is not tied to a line.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// finalLengthening stretches word-final vowels in text mode.
const finalLengthening = 1.4

var decimalPattern = regexp.MustCompile(`\d+\.\d+`)

// Parser normalizes authoring input. Free text goes through the converter,
// phoneme lines are parsed positionally.
type Parser struct {
	converter g2p.Converter
	pitchBase float64
}

// NewParser builds a parser. A zero pitchBase uses the voice base pitch for
// free text.
func NewParser(converter g2p.Converter, pitchBase float64) *Parser {
	if converter == nil {
		converter = g2p.NewDictConverter(nil)
	}
	return &Parser{converter: converter, pitchBase: pitchBase}
}

// IsPhonemeText reports whether text is treated as phoneme lines.
func IsPhonemeText(text string) bool {
	return decimalPattern.MatchString(text)
}

// Parse converts text into a bracketed sequence using v for defaults.
func (p *Parser) Parse(ctx context.Context, text string, v *voice.Voice) (phoneme.Sequence, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ParseError{Msg: "no spec data"}
	}
	var (
		seq phoneme.Sequence
		err error
	)
	if IsPhonemeText(text) {
		seq, err = p.parseLines(text, v)
	} else {
		seq, err = p.parseText(ctx, text, v)
	}
	if err != nil {
		return nil, err
	}
	seq = bracket(seq)
	if len(seq) <= 2 {
		return nil, &ParseError{Err: ErrNoPhonemes}
	}
	return seq, nil
}

func (p *Parser) parseText(ctx context.Context, text string, v *voice.Voice) (phoneme.Sequence, error) {
	tokens, err := p.converter.Convert(ctx, text)
	if err != nil {
		return nil, &ParseError{Msg: "text to phonemes", Err: err}
	}
	pitch := p.pitchBase
	if pitch <= 0 {
		pitch = v.BasePitch
	}
	seq := make(phoneme.Sequence, 0, len(tokens))
	for _, tok := range tokens {
		name, final := g2p.StripFinal(tok)
		ph, ok := phoneme.Lookup(name)
		if !ok {
			return nil, &ParseError{Msg: fmt.Sprintf("converter produced unknown phoneme %q", tok)}
		}
		data := v.PhonemeData(ph)
		dur := data.Duration
		if final && ph.IsVowel() {
			dur = math.Min(dur*finalLengthening, phoneme.MaxDuration)
		}
		sp := phoneme.Spec{
			Phoneme:      ph,
			Duration:     dur,
			PitchContour: []float64{0},
			F1:           data.F1,
			F2:           data.F2,
			F3:           data.F3,
			Voiced:       ph.Voiced(),
		}
		if sp.Voiced {
			sp.PitchContour = []float64{pitch}
		}
		seq = append(seq, sp)
	}
	return seq, nil
}

func (p *Parser) parseLines(text string, v *voice.Voice) (phoneme.Sequence, error) {
	var seq phoneme.Sequence
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sp, err := parseLine(line, v)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line = i + 1
				return nil, pe
			}
			return nil, &ParseError{Line: i + 1, Err: err}
		}
		seq = append(seq, sp)
	}
	return seq, nil
}

func parseLine(line string, v *voice.Voice) (phoneme.Spec, error) {
	fields := strings.Fields(line)
	name, final := g2p.StripFinal(fields[0])
	ph, ok := phoneme.Lookup(name)
	if !ok {
		return phoneme.Spec{}, &ParseError{Msg: fmt.Sprintf("unknown phoneme %q", fields[0])}
	}
	voiced := ph.Voiced()
	var nums []float64
	for _, f := range fields[1:] {
		switch strings.ToUpper(f) {
		case "+V":
			voiced = true
			continue
		case "-V":
			voiced = false
			continue
		}
		n, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return phoneme.Spec{}, &ParseError{Msg: fmt.Sprintf("malformed number %q", f)}
		}
		nums = append(nums, n)
	}

	data := v.PhonemeData(ph)
	sp := phoneme.Spec{Phoneme: ph, F1: data.F1, F2: data.F2, F3: data.F3, Voiced: voiced}
	if len(nums) > 0 {
		sp.Duration = nums[0]
		if sp.Duration < phoneme.MinDuration || sp.Duration > phoneme.MaxDuration {
			return phoneme.Spec{}, &ParseError{Msg: fmt.Sprintf("duration %s outside [%.2f, %.1f]", fields[1], phoneme.MinDuration, phoneme.MaxDuration)}
		}
	} else {
		sp.Duration = data.Duration
		if final && ph.IsVowel() {
			sp.Duration = math.Min(sp.Duration*finalLengthening, phoneme.MaxDuration)
		}
	}
	switch {
	case len(nums) > 1:
		pitch := nums[1:]
		if len(pitch) > phoneme.MaxPitchPoints {
			return phoneme.Spec{}, &ParseError{Msg: fmt.Sprintf("%d pitch points, at most %d allowed", len(pitch), phoneme.MaxPitchPoints)}
		}
		for _, hz := range pitch {
			if hz < 0 {
				return phoneme.Spec{}, &ParseError{Msg: fmt.Sprintf("negative pitch %v", hz)}
			}
		}
		sp.PitchContour = append([]float64(nil), pitch...)
	case voiced && ph != phoneme.SIL:
		sp.PitchContour = []float64{v.BasePitch}
	default:
		sp.PitchContour = []float64{0}
	}
	return sp, nil
}

func silence() phoneme.Spec {
	return phoneme.Spec{Phoneme: phoneme.SIL, Duration: phoneme.SilenceDefaultDuration, PitchContour: []float64{0}}
}

// bracket ensures leading and trailing silence.
func bracket(seq phoneme.Sequence) phoneme.Sequence {
	if len(seq) == 0 || seq[0].Phoneme != phoneme.SIL {
		seq = append(phoneme.Sequence{silence()}, seq...)
	}
	if seq[len(seq)-1].Phoneme != phoneme.SIL {
		seq = append(seq, silence())
	}
	return seq
}
