package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth       = 16
	channels       = 1
	pcmFormat      = 1
	int16FullScale = 32767
)

// WriteWAV encodes b as mono 16-bit PCM.
func WriteWAV(w io.WriteSeeker, b *Buffer) error {
	if b == nil {
		return fmt.Errorf("no audio buffer")
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", b.SampleRate)
	}
	ints := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		ints[i] = toPCM16(s)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: b.SampleRate},
		Data:           ints,
		SourceBitDepth: bitDepth,
	}
	enc := wav.NewEncoder(w, b.SampleRate, bitDepth, channels, pcmFormat)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAVFile writes b to path.
func WriteWAVFile(path string, b *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav %s: %w", path, err)
	}
	if err := WriteWAV(f, b); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// WriteTempWAV writes b to a new temporary file and returns its path. The
// caller owns the file and must remove it.
func WriteTempWAV(dir string, b *Buffer) (string, error) {
	f, err := os.CreateTemp(dir, "phonex_play_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	path := f.Name()
	if err := WriteWAV(f, b); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func toPCM16(s float64) int {
	v := math.Round(s * int16FullScale)
	if v > int16FullScale {
		return int16FullScale
	}
	if v < -int16FullScale-1 {
		return -int16FullScale - 1
	}
	return int(v)
}
