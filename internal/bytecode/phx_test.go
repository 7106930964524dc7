package bytecode

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/phonex/internal/phoneme"
)

func sampleSequence() phoneme.Sequence {
	return phoneme.Sequence{
		{Phoneme: phoneme.SIL, Duration: 0.19, PitchContour: []float64{0}},
		{Phoneme: "HH", Duration: 0.19, PitchContour: []float64{155}},
		{Phoneme: "EH", Duration: 0.1, PitchContour: []float64{155, 160.5, 170.25}, F1: 530, F2: 1840, F3: 2480, Voiced: true},
		{Phoneme: "L", Duration: 0.1, PitchContour: []float64{155, 150, 145, 140, 135, 130, 125, 120}, F1: 360, F2: 1300, F3: 3000, Voiced: true},
		{Phoneme: "OW", Duration: 1.999, PitchContour: []float64{155}, F1: 450, F2: 830, F3: 2380.123, Voiced: true},
		{Phoneme: phoneme.SIL, Duration: 0.28, PitchContour: []float64{0}},
	}
}

func TestRoundTrip(t *testing.T) {
	seq := sampleSequence()
	data, err := Encode(seq)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != len(seq)*RecordSize {
		t.Fatalf("expected %d bytes, got %d", len(seq)*RecordSize, len(data))
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !seq.Equal(got) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", seq, got)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	data, _ := Encode(sampleSequence())
	_, err := Decode(data[:len(data)-1])
	if !errors.Is(err, ErrCorruptBytecode) {
		t.Fatalf("expected corrupt bytecode, got %v", err)
	}
}

func TestDecodeRejectsUnknownCode(t *testing.T) {
	data, _ := Encode(sampleSequence())
	data[2*RecordSize] = 0xFF
	_, err := Decode(data)
	var ce *CorruptError
	if !errors.As(err, &ce) || ce.Record != 2 {
		t.Fatalf("expected corrupt record 2, got %v", err)
	}
}

func TestDecodeRejectsPitchCount(t *testing.T) {
	data, _ := Encode(sampleSequence())
	data[offCount] = 9
	if _, err := Decode(data); !errors.Is(err, ErrCorruptBytecode) {
		t.Fatalf("expected corrupt bytecode, got %v", err)
	}
}

func TestEncodeRejectsInvalidSpecs(t *testing.T) {
	if _, err := Encode(phoneme.Sequence{{Phoneme: "XX", Duration: 0.1}}); err == nil {
		t.Fatal("expected unknown phoneme error")
	}
	long := phoneme.Sequence{{Phoneme: "AA", Duration: 0.1, PitchContour: make([]float64, 9)}}
	if _, err := Encode(long); err == nil {
		t.Fatal("expected contour length error")
	}
	empty := phoneme.Sequence{{Phoneme: "T", Duration: 0.1, PitchContour: []float64{}}}
	if _, err := Encode(empty); err == nil {
		t.Fatal("expected empty contour error")
	}
	if _, err := Encode(phoneme.Sequence{{Phoneme: "AA", Duration: math.NaN(), PitchContour: []float64{100}}}); err == nil {
		t.Fatal("expected NaN duration error")
	}
}

func TestDecodeRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(rec []byte)
	}{
		{"nan duration", func(rec []byte) { putFloat(rec[offDuration:], math.NaN()) }},
		{"zero duration", func(rec []byte) { putFloat(rec[offDuration:], 0) }},
		{"negative duration", func(rec []byte) { putFloat(rec[offDuration:], -0.1) }},
		{"huge duration", func(rec []byte) { putFloat(rec[offDuration:], 1e30) }},
		{"empty contour", func(rec []byte) { rec[offCount] = 0 }},
		{"nan pitch", func(rec []byte) { putFloat(rec[offPitch:], math.NaN()) }},
		{"infinite formant", func(rec []byte) { putFloat(rec[offFormants+4:], math.Inf(1)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, _ := Encode(sampleSequence())
			tc.mutate(data[2*RecordSize : 3*RecordSize])
			_, err := Decode(data)
			var ce *CorruptError
			if !errors.As(err, &ce) || ce.Record != 2 {
				t.Fatalf("expected corrupt record 2, got %v", err)
			}
			if _, err := RecordAt(data, 2); !errors.Is(err, ErrCorruptBytecode) {
				t.Fatalf("expected corrupt record at 2, got %v", err)
			}
		})
	}
}

func TestBoundaryDurationsSurviveFloat32(t *testing.T) {
	seq := phoneme.Sequence{
		{Phoneme: "T", Duration: phoneme.MinDuration, PitchContour: []float64{0}},
		{Phoneme: "AA", Duration: phoneme.MaxDuration, PitchContour: []float64{120}, Voiced: true},
	}
	data, err := Encode(seq)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil || !seq.Equal(got) {
		t.Fatalf("round trip: %v %+v", err, got)
	}
}

func TestRecordAt(t *testing.T) {
	seq := sampleSequence()
	data, _ := Encode(seq)
	sp, err := RecordAt(data, 3)
	if err != nil {
		t.Fatalf("record at: %v", err)
	}
	if !sp.Equal(seq[3]) {
		t.Fatalf("unexpected record %+v", sp)
	}
	if _, err := RecordAt(data, len(seq)); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestReservedBytesAreZero(t *testing.T) {
	data, _ := Encode(sampleSequence())
	for i := 0; i < len(data); i += RecordSize {
		if data[i+3] != 0 || !bytes.Equal(data[i+52:i+RecordSize], make([]byte, 12)) {
			t.Fatalf("record %d has non-zero reserved bytes", i/RecordSize)
		}
	}
}

func TestFileHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.phx")
	seq := sampleSequence()
	if err := WriteFile(path, seq); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil || !seq.Equal(got) {
		t.Fatalf("read: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.Close() })
	info, _ := f.Stat()
	rf, err := NewFile(f, info.Size())
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	if rf.Len() != len(seq) {
		t.Fatalf("expected %d records, got %d", len(seq), rf.Len())
	}
	sp, err := rf.Record(4)
	if err != nil || !sp.Equal(seq[4]) {
		t.Fatalf("record 4: %+v %v", sp, err)
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.phx")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
