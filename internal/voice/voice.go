// Package voice provides the voice parameter tables consumed by the parser,
// the legacy codec and the synthesizer, and the registry tracking the active
// voice.
package voice

import (
	"github.com/loqalabs/phonex/internal/phoneme"
)

// PhonemeData is the per-phoneme default of a voice table.
type PhonemeData struct {
	Duration float64 `yaml:"duration" json:"duration"`
	Voiced   bool    `yaml:"voiced" json:"voiced"`
	F1       float64 `yaml:"f1" json:"f1"`
	F2       float64 `yaml:"f2" json:"f2"`
	F3       float64 `yaml:"f3" json:"f3"`
}

// Table looks up phoneme defaults.
type Table interface {
	PhonemeData(ph phoneme.Phoneme) PhonemeData
}

// Voice is a named table with a base pitch.
type Voice struct {
	Name      string
	BasePitch float64
	table     map[phoneme.Phoneme]PhonemeData
}

const (
	DefaultName      = "Default"
	DefaultBasePitch = 115.0
	// fallbackDuration applies to phonemes a table does not list.
	fallbackDuration = 0.14
)

// PhonemeData returns the table entry for ph. Phonemes missing from the table
// fall back to the class voicing, no formants and a generic duration.
func (v *Voice) PhonemeData(ph phoneme.Phoneme) PhonemeData {
	if d, ok := v.table[ph]; ok {
		return d
	}
	if ph == phoneme.SIL {
		return PhonemeData{Duration: phoneme.SilenceDefaultDuration}
	}
	return PhonemeData{Duration: fallbackDuration, Voiced: ph.Voiced()}
}

// Pitch is the single-point contour used when no pitch detail is available.
func (v *Voice) Pitch(ph phoneme.Phoneme) []float64 {
	if ph != phoneme.SIL && v.PhonemeData(ph).Voiced {
		return []float64{v.BasePitch}
	}
	return []float64{0}
}

// New builds a voice from an explicit table.
func New(name string, basePitch float64, table map[phoneme.Phoneme]PhonemeData) *Voice {
	cp := make(map[phoneme.Phoneme]PhonemeData, len(table))
	for k, d := range table {
		cp[k] = d
	}
	return &Voice{Name: name, BasePitch: basePitch, table: cp}
}

// Default returns the built-in voice. Formants follow the classic adult male
// averages; consonant formants describe the dominant resonance only.
func Default() *Voice {
	return New(DefaultName, DefaultBasePitch, defaultTable())
}

func defaultTable() map[phoneme.Phoneme]PhonemeData {
	vowel := func(f1, f2, f3 float64) PhonemeData {
		return PhonemeData{Duration: 0.14, Voiced: true, F1: f1, F2: f2, F3: f3}
	}
	cons := func(dur float64, voiced bool, f1, f2, f3 float64) PhonemeData {
		return PhonemeData{Duration: dur, Voiced: voiced, F1: f1, F2: f2, F3: f3}
	}
	return map[phoneme.Phoneme]PhonemeData{
		phoneme.SIL: {Duration: phoneme.SilenceDefaultDuration},

		"AA": vowel(730, 1090, 2440),
		"AE": vowel(660, 1720, 2410),
		"AH": vowel(520, 1190, 2390),
		"AO": vowel(570, 840, 2410),
		"AW": vowel(700, 1220, 2600),
		"AY": vowel(710, 1100, 2540),
		"EH": vowel(530, 1840, 2480),
		"ER": vowel(490, 1350, 1690),
		"EY": vowel(480, 2000, 2600),
		"IH": vowel(390, 1990, 2550),
		"IY": vowel(270, 2290, 3010),
		"OW": vowel(450, 830, 2380),
		"OY": vowel(550, 960, 2400),
		"UH": vowel(440, 1020, 2240),
		"UW": vowel(300, 870, 2240),

		"P":  cons(0.10, false, 0, 0, 0),
		"T":  cons(0.10, false, 0, 0, 0),
		"K":  cons(0.10, false, 0, 0, 0),
		"B":  cons(0.09, true, 200, 900, 2100),
		"D":  cons(0.09, true, 200, 1700, 2600),
		"G":  cons(0.09, true, 200, 1900, 2300),
		"CH": cons(0.12, false, 0, 0, 0),

		"F":  cons(0.12, false, 0, 0, 0),
		"S":  cons(0.12, false, 0, 0, 0),
		"SH": cons(0.12, false, 0, 0, 0),
		"TH": cons(0.12, false, 0, 0, 0),
		"V":  cons(0.10, true, 220, 1100, 2080),
		"Z":  cons(0.10, true, 240, 1390, 2530),
		"ZH": cons(0.10, true, 300, 1840, 2750),
		"DH": cons(0.10, true, 270, 1290, 2540),

		"M":  cons(0.10, true, 280, 900, 2200),
		"N":  cons(0.10, true, 280, 1700, 2600),
		"NG": cons(0.10, true, 280, 2300, 2750),

		"L": cons(0.10, true, 360, 1300, 3000),
		"R": cons(0.10, true, 420, 1300, 1600),

		"W":  cons(0.09, true, 290, 610, 2150),
		"Y":  cons(0.09, true, 260, 2070, 3020),
		"HH": cons(0.09, false, 0, 0, 0),
		"JH": cons(0.11, true, 260, 1800, 2820),
	}
}
