// Package bytecode implements the PHX parameterized bytecode: one fixed-width
// little-endian record per phoneme and no audio payload.
//
// Record layout (RecordSize bytes):
//
//	0   uint8      phoneme code
//	1   uint8      flags, bit 0 voiced
//	2   uint8      pitch point count (1..8)
//	3   uint8      reserved
//	4   float32    duration, seconds
//	8   8*float32  pitch contour, Hz; unused points are zero
//	40  3*float32  F1, F2, F3, Hz
//	52  12 bytes   reserved
//
// Decoded records must pass phoneme.Spec.Validate. Values are stored as
// float32, so round trips hold within phoneme.Tolerance, which is relative
// above 1.
package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/loqalabs/phonex/internal/phoneme"
)

// RecordSize is the width of one PHX record.
const RecordSize = 64

const (
	offCode     = 0
	offFlags    = 1
	offCount    = 2
	offDuration = 4
	offPitch    = 8
	offFormants = 40

	flagVoiced = 0x01
)

// ErrCorruptBytecode matches every decode failure.
var ErrCorruptBytecode = errors.New("corrupt bytecode")

// CorruptError locates a decode failure. Record is -1 for length errors.
type CorruptError struct {
	Record int
	Reason string
}

func (e *CorruptError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("corrupt bytecode: %s", e.Reason)
	}
	return fmt.Sprintf("corrupt bytecode: record %d: %s", e.Record, e.Reason)
}

func (e *CorruptError) Is(target error) bool { return target == ErrCorruptBytecode }

// Encode serializes seq. It never touches audio.
func Encode(seq phoneme.Sequence) ([]byte, error) {
	buf := make([]byte, len(seq)*RecordSize)
	for i, sp := range seq {
		if err := putRecord(buf[i*RecordSize:(i+1)*RecordSize], sp); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf, nil
}

func putRecord(rec []byte, sp phoneme.Spec) error {
	if err := sp.Validate(); err != nil {
		return err
	}
	code, _ := sp.Phoneme.Code()
	rec[offCode] = code
	if sp.Voiced {
		rec[offFlags] |= flagVoiced
	}
	rec[offCount] = byte(len(sp.PitchContour))
	putFloat(rec[offDuration:], sp.Duration)
	for i, hz := range sp.PitchContour {
		putFloat(rec[offPitch+4*i:], hz)
	}
	putFloat(rec[offFormants:], sp.F1)
	putFloat(rec[offFormants+4:], sp.F2)
	putFloat(rec[offFormants+8:], sp.F3)
	return nil
}

// Decode parses a whole PHX payload.
func Decode(data []byte) (phoneme.Sequence, error) {
	n, err := Count(data)
	if err != nil {
		return nil, err
	}
	seq := make(phoneme.Sequence, n)
	for i := 0; i < n; i++ {
		sp, err := decodeRecord(data[i*RecordSize:(i+1)*RecordSize], i)
		if err != nil {
			return nil, err
		}
		seq[i] = sp
	}
	return seq, nil
}

// Count returns the number of records in data.
func Count(data []byte) (int, error) {
	if len(data)%RecordSize != 0 {
		return 0, &CorruptError{Record: -1, Reason: fmt.Sprintf("length %d is not a multiple of %d", len(data), RecordSize)}
	}
	return len(data) / RecordSize, nil
}

// RecordAt decodes the nth record without scanning the ones before it.
func RecordAt(data []byte, n int) (phoneme.Spec, error) {
	count, err := Count(data)
	if err != nil {
		return phoneme.Spec{}, err
	}
	if n < 0 || n >= count {
		return phoneme.Spec{}, fmt.Errorf("record %d out of range [0, %d)", n, count)
	}
	return decodeRecord(data[n*RecordSize:(n+1)*RecordSize], n)
}

func decodeRecord(rec []byte, index int) (phoneme.Spec, error) {
	ph, ok := phoneme.FromCode(rec[offCode])
	if !ok {
		return phoneme.Spec{}, &CorruptError{Record: index, Reason: fmt.Sprintf("unknown phoneme code 0x%02X", rec[offCode])}
	}
	count := int(rec[offCount])
	if count == 0 || count > phoneme.MaxPitchPoints {
		return phoneme.Spec{}, &CorruptError{Record: index, Reason: fmt.Sprintf("pitch point count %d", count)}
	}
	sp := phoneme.Spec{
		Phoneme:  ph,
		Voiced:   rec[offFlags]&flagVoiced != 0,
		Duration: getFloat(rec[offDuration:]),
		F1:       getFloat(rec[offFormants:]),
		F2:       getFloat(rec[offFormants+4:]),
		F3:       getFloat(rec[offFormants+8:]),
	}
	sp.PitchContour = make([]float64, count)
	for i := range sp.PitchContour {
		sp.PitchContour[i] = getFloat(rec[offPitch+4*i:])
	}
	if err := sp.Validate(); err != nil {
		return phoneme.Spec{}, &CorruptError{Record: index, Reason: err.Error()}
	}
	return sp, nil
}

func putFloat(b []byte, v float64) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
}

func getFloat(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}
