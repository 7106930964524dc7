package legacy

import (
	"errors"
	"testing"

	"github.com/loqalabs/phonex/internal/phoneme"
	"github.com/loqalabs/phonex/internal/voice"
)

func code(t *testing.T, ph phoneme.Phoneme) byte {
	t.Helper()
	c, ok := ph.Code()
	if !ok {
		t.Fatalf("no code for %s", ph)
	}
	return c
}

func TestHeaderConsumesNameBytes(t *testing.T) {
	data := append([]byte{}, Magic[:]...)
	data = append(data, 7)
	data = append(data, "Default"...)
	data = append(data, code(t, "HH"), code(t, "OW"))

	hdr := ParseHeader(data)
	if !hdr.Present || hdr.Voice != "Default" || hdr.Size != 5+7 {
		t.Fatalf("unexpected header %+v", hdr)
	}
	seq, _, err := Decode(data, voice.NewRegistry())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(seq) != 2 || seq[0].Phoneme != "HH" || seq[1].Phoneme != "OW" {
		t.Fatalf("unexpected sequence %v", seq.Phonemes())
	}
}

func TestNoMagicDecodesFromOffsetZero(t *testing.T) {
	data := []byte{code(t, phoneme.SIL), code(t, "AA"), code(t, "T")}
	seq, hdr, err := Decode(data, voice.NewRegistry())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hdr.Present || hdr.Size != 0 {
		t.Fatalf("unexpected header %+v", hdr)
	}
	if len(seq) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(seq))
	}
}

func TestDecodeReconstructsFromVoice(t *testing.T) {
	data := []byte{code(t, phoneme.SIL), code(t, "AA"), code(t, "B")}
	seq, _, err := Decode(data, voice.NewRegistry())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	aa := seq[1]
	if aa.F1 != 730 || aa.Duration != 0.14 || !aa.Voiced {
		t.Fatalf("unexpected AA %+v", aa)
	}
	if len(aa.PitchContour) != 1 || aa.PitchContour[0] != voice.DefaultBasePitch {
		t.Fatalf("expected single-point base pitch, got %v", aa.PitchContour)
	}
	if seq[0].PitchContour[0] != 0 || seq[0].Voiced {
		t.Fatalf("expected silent SIL, got %+v", seq[0])
	}
	if seq[2].Voiced {
		t.Fatal("stops are unvoiced by class")
	}
}

func TestHeaderSelectsKnownVoice(t *testing.T) {
	reg := voice.NewRegistry()
	reg.Register(voice.New("Bright", 160, nil))
	data, err := Encode(phoneme.Sequence{{Phoneme: "AA"}}, "Bright")
	if err != nil {
		t.Fatal(err)
	}
	seq, _, err := Decode(data, reg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reg.Current().Name != "Bright" {
		t.Fatalf("expected Bright active, got %s", reg.Current().Name)
	}
	if seq[0].PitchContour[0] != 160 {
		t.Fatalf("expected Bright pitch, got %v", seq[0].PitchContour)
	}
}

func TestHeaderUnknownVoiceFallsBack(t *testing.T) {
	reg := voice.NewRegistry()
	data, _ := Encode(phoneme.Sequence{{Phoneme: "AA"}}, "Nobody")
	if _, _, err := Decode(data, reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reg.Current().Name != voice.DefaultName {
		t.Fatalf("expected default voice kept, got %s", reg.Current().Name)
	}
}

func TestUnmappedBytesSkipped(t *testing.T) {
	data := []byte{0xFF, code(t, "AA"), 0xF0}
	seq, _, err := Decode(data, voice.NewRegistry())
	if err != nil || len(seq) != 1 {
		t.Fatalf("expected one spec, got %v %v", seq, err)
	}
	if _, _, err := Decode([]byte{0xFF, 0xF0}, voice.NewRegistry()); !errors.Is(err, ErrEmptyStream) {
		t.Fatalf("expected empty stream, got %v", err)
	}
}

func TestInvalidNameSkipsFixedHeaderOnly(t *testing.T) {
	data := append([]byte{}, Magic[:]...)
	data = append(data, 2, 0xC3, code(t, "AA"))
	hdr := ParseHeader(data)
	if !hdr.Present || hdr.Voice != "" || hdr.Size != HeaderSize {
		t.Fatalf("unexpected header %+v", hdr)
	}
}
