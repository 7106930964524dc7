// Package legacy reads and writes the PHN byte stream: an optional voice
// header followed by one byte per phoneme.
//
// PHN carries no pitch or formant detail. Decoding rebuilds them from the
// active voice table, so a PHN round trip loses everything PHX keeps.
package legacy

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/loqalabs/phonex/internal/phoneme"
	"github.com/loqalabs/phonex/internal/voice"
)

// Magic opens a PHN stream that names its voice.
var Magic = [4]byte{0xFE, 0xEB, 0xDA, 0xED}

// HeaderSize is the fixed part of the header: magic and name length.
const HeaderSize = 5

// ErrEmptyStream is returned when no byte maps to a phoneme.
var ErrEmptyStream = errors.New("no valid phonemes in stream")

// Table maps a stream byte to a phoneme; the zero value marks an unmapped
// byte.
var Table [256]phoneme.Phoneme

func init() {
	for _, ph := range phoneme.All() {
		code, _ := ph.Code()
		Table[code] = ph
	}
}

// Header is the parsed optional header.
type Header struct {
	Present bool
	Voice   string
	// Size is the number of bytes consumed before phoneme data.
	Size int
}

// ParseHeader inspects the start of data. A name that is not valid UTF-8
// consumes only the fixed header bytes and names no voice.
func ParseHeader(data []byte) Header {
	if len(data) <= HeaderSize || !bytes.Equal(data[:4], Magic[:]) {
		return Header{}
	}
	n := int(data[4])
	end := HeaderSize + n
	if end > len(data) {
		end = len(data)
	}
	name := data[HeaderSize:end]
	if !utf8.Valid(name) {
		return Header{Present: true, Size: HeaderSize}
	}
	return Header{Present: true, Voice: string(name), Size: end}
}

// Voices is the part of the voice registry the decoder needs.
type Voices interface {
	Current() *voice.Voice
	SetCurrent(name string) bool
}

// Decode rebuilds specs from a PHN stream. A header voice is activated when
// the registry knows it; otherwise the current voice stays active.
func Decode(data []byte, voices Voices) (phoneme.Sequence, Header, error) {
	hdr := ParseHeader(data)
	if hdr.Voice != "" {
		voices.SetCurrent(hdr.Voice)
	}
	v := voices.Current()

	var seq phoneme.Sequence
	for _, b := range data[hdr.Size:] {
		ph := Table[b]
		if ph == "" {
			continue
		}
		d := v.PhonemeData(ph)
		seq = append(seq, phoneme.Spec{
			Phoneme:      ph,
			Duration:     d.Duration,
			PitchContour: v.Pitch(ph),
			F1:           d.F1,
			F2:           d.F2,
			F3:           d.F3,
			Voiced:       ph.Voiced(),
		})
	}
	if len(seq) == 0 {
		return nil, hdr, ErrEmptyStream
	}
	return seq, hdr, nil
}

// Encode writes seq as a PHN stream. A non-empty voiceName adds the header.
func Encode(seq phoneme.Sequence, voiceName string) ([]byte, error) {
	if len(voiceName) > 255 {
		return nil, fmt.Errorf("voice name longer than 255 bytes")
	}
	var buf bytes.Buffer
	if voiceName != "" {
		buf.Write(Magic[:])
		buf.WriteByte(byte(len(voiceName)))
		buf.WriteString(voiceName)
	}
	for i, sp := range seq {
		code, ok := sp.Phoneme.Code()
		if !ok {
			return nil, fmt.Errorf("record %d: unknown phoneme %q", i, sp.Phoneme)
		}
		buf.WriteByte(code)
	}
	return buf.Bytes(), nil
}
