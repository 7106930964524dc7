// Package phoneme defines the phoneme inventory and the in-memory
// representation of a phoneme spec.
package phoneme

import (
	"fmt"
	"sort"
	"strings"
)

// Phoneme identifies one sound of the fixed inventory.
type Phoneme string

// Class groups phonemes by articulation.
type Class int

const (
	ClassSilence Class = iota
	ClassVowel
	ClassStop
	ClassFricative
	ClassNasal
	ClassLiquid
	ClassGlide
)

func (c Class) String() string {
	switch c {
	case ClassSilence:
		return "silence"
	case ClassVowel:
		return "vowel"
	case ClassStop:
		return "stop"
	case ClassFricative:
		return "fricative"
	case ClassNasal:
		return "nasal"
	case ClassLiquid:
		return "liquid"
	case ClassGlide:
		return "glide"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// SIL marks silence. It brackets every parsed sequence.
const SIL Phoneme = "SIL"

const (
	// SilenceDefaultDuration is used for SIL when no duration is given.
	SilenceDefaultDuration = 0.19
	MinDuration            = 0.01
	MaxDuration            = 2.0
	MaxPitchPoints         = 8
)

type entry struct {
	ph     Phoneme
	code   byte
	class  Class
	voiced bool
}

// inventory is ordered by code. Codes are stable: they are persisted in PHX
// records and PHN streams.
var inventory = []entry{
	{SIL, 0x00, ClassSilence, false},

	{"AA", 0x01, ClassVowel, true},
	{"AE", 0x02, ClassVowel, true},
	{"AH", 0x03, ClassVowel, true},
	{"AO", 0x04, ClassVowel, true},
	{"AW", 0x05, ClassVowel, true},
	{"AY", 0x06, ClassVowel, true},
	{"EH", 0x07, ClassVowel, true},
	{"ER", 0x08, ClassVowel, true},
	{"EY", 0x09, ClassVowel, true},
	{"IH", 0x0A, ClassVowel, true},
	{"IY", 0x0B, ClassVowel, true},
	{"OW", 0x0C, ClassVowel, true},
	{"OY", 0x0D, ClassVowel, true},
	{"UH", 0x0E, ClassVowel, true},
	{"UW", 0x0F, ClassVowel, true},

	// Stops are rendered as bursts and carry no voicing.
	{"P", 0x10, ClassStop, false},
	{"T", 0x11, ClassStop, false},
	{"K", 0x12, ClassStop, false},
	{"B", 0x13, ClassStop, false},
	{"D", 0x14, ClassStop, false},
	{"G", 0x15, ClassStop, false},
	{"CH", 0x16, ClassStop, false},

	{"F", 0x20, ClassFricative, false},
	{"S", 0x21, ClassFricative, false},
	{"SH", 0x22, ClassFricative, false},
	{"TH", 0x23, ClassFricative, false},
	{"V", 0x24, ClassFricative, true},
	{"Z", 0x25, ClassFricative, true},
	{"ZH", 0x26, ClassFricative, true},
	{"DH", 0x27, ClassFricative, true},

	{"M", 0x30, ClassNasal, true},
	{"N", 0x31, ClassNasal, true},
	{"NG", 0x32, ClassNasal, true},

	{"L", 0x38, ClassLiquid, true},
	{"R", 0x39, ClassLiquid, true},

	{"W", 0x40, ClassGlide, true},
	{"Y", 0x41, ClassGlide, true},
	{"HH", 0x42, ClassGlide, false},
	{"JH", 0x43, ClassGlide, true},
}

var (
	byName = map[Phoneme]entry{}
	byCode = map[byte]entry{}
)

func init() {
	for _, e := range inventory {
		byName[e.ph] = e
		byCode[e.code] = e
	}
}

// Lookup resolves a case-insensitive identifier.
func Lookup(name string) (Phoneme, bool) {
	e, ok := byName[Phoneme(strings.ToUpper(strings.TrimSpace(name)))]
	return e.ph, ok
}

// FromCode resolves a persisted code.
func FromCode(code byte) (Phoneme, bool) {
	e, ok := byCode[code]
	return e.ph, ok
}

// Valid reports whether p belongs to the inventory.
func (p Phoneme) Valid() bool {
	_, ok := byName[p]
	return ok
}

// Code returns the persisted code of p.
func (p Phoneme) Code() (byte, bool) {
	e, ok := byName[p]
	return e.code, ok
}

// Class returns the articulation class of p.
func (p Phoneme) Class() Class {
	return byName[p].class
}

// Voiced is the class-derived voicing of p.
func (p Phoneme) Voiced() bool {
	return byName[p].voiced
}

// IsVowel reports whether p is a vowel.
func (p Phoneme) IsVowel() bool {
	e, ok := byName[p]
	return ok && e.class == ClassVowel
}

// All returns the inventory ordered by code.
func All() []Phoneme {
	out := make([]Phoneme, 0, len(inventory))
	for _, e := range inventory {
		out = append(out, e.ph)
	}
	return out
}

// ByClass returns the inventory grouped by class, each group ordered by code.
func ByClass() map[Class][]Phoneme {
	out := make(map[Class][]Phoneme)
	for _, e := range inventory {
		out[e.class] = append(out[e.class], e.ph)
	}
	for _, group := range out {
		sort.SliceStable(group, func(i, j int) bool {
			return byName[group[i]].code < byName[group[j]].code
		})
	}
	return out
}
