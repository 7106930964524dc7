package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) / float64(n-1)
	}
	return out
}

func TestChangeSpeedHalvesLength(t *testing.T) {
	in := ramp(48000)
	normal, err := ChangeSpeed(in, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	fast, err := ChangeSpeed(in, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := len(normal)/2 - len(fast); diff < -1 || diff > 1 {
		t.Fatalf("expected half length, got %d vs %d", len(fast), len(normal))
	}
	// A linear ramp survives linear interpolation unchanged in shape.
	mid := fast[len(fast)/2]
	if math.Abs(mid-0.5) > 1e-3 {
		t.Fatalf("expected midpoint near 0.5, got %v", mid)
	}
	if fast[0] != 0 || fast[len(fast)-1] != 1 {
		t.Fatalf("expected endpoints preserved, got %v %v", fast[0], fast[len(fast)-1])
	}
}

func TestChangeSpeedSlowsDown(t *testing.T) {
	out, err := ChangeSpeed(ramp(1000), 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2000 {
		t.Fatalf("expected 2000 samples, got %d", len(out))
	}
}

func TestChangeSpeedEdgeCases(t *testing.T) {
	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := ChangeSpeed([]float64{1, 2, 3}, f); err == nil {
			t.Fatalf("expected error for factor %v", f)
		}
	}
	out, err := ChangeSpeed([]float64{0.25}, 0.5)
	if err != nil || len(out) != 2 || out[1] != 0.25 {
		t.Fatalf("unexpected single-sample result %v %v", out, err)
	}
	out, err = ChangeSpeed(nil, 2)
	if err != nil || len(out) != 0 {
		t.Fatalf("unexpected empty result %v %v", out, err)
	}
}

func TestWriteWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	buf := &Buffer{Samples: []float64{0, 0.5, -0.5, 1.5, -1.5}, SampleRate: 48000}
	if err := WriteWAVFile(path, buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 48000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("unexpected format %d/%d/%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	want := []int{0, 16384, -16384, 32767, -32768}
	if len(pcm.Data) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(pcm.Data))
	}
	for i, w := range want {
		if pcm.Data[i] != w {
			t.Fatalf("sample %d: got %d want %d", i, pcm.Data[i], w)
		}
	}
}

func TestWriteTempWAV(t *testing.T) {
	path, err := WriteTempWAV(t.TempDir(), &Buffer{Samples: make([]float64, 10), SampleRate: 8000})
	if err != nil {
		t.Fatalf("temp wav: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected temp file: %v", err)
	}
}

func TestBufferDuration(t *testing.T) {
	b := &Buffer{Samples: make([]float64, 24000), SampleRate: 48000}
	if b.Duration() != 500*time.Millisecond {
		t.Fatalf("unexpected duration %v", b.Duration())
	}
	var nilBuf *Buffer
	if nilBuf.Len() != 0 {
		t.Fatal("nil buffer must have zero length")
	}
}
