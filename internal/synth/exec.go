package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/phonex/internal/audio"
	"github.com/loqalabs/phonex/internal/phoneme"
)

const (
	maxResponseLine = 16 * 1024 * 1024
	waitDelay       = 2 * time.Second
)

type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Voice      string           `json:"voice"`
	BasePitch  float64          `json:"base_pitch"`
	SampleRate int              `json:"sample_rate"`
	Specs      phoneme.Sequence `json:"specs"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
	Error     string `json:"error,omitempty"`
}

// NewExecSynth runs an external synthesis engine. The request is written to
// its stdin as JSON; stdout carries JSON lines with base64 16-bit mono PCM.
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (*audio.Buffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execRequest{SampleRate: req.SampleRate, Specs: req.Specs}
	if req.Voice != nil {
		payload.Voice = req.Voice.Name
		payload.BasePitch = req.Voice.BasePitch
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	abort := func(err error) (*audio.Buffer, error) {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	var (
		pcm   []byte
		final bool
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxResponseLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return abort(fmt.Errorf("decode synth response: %w", err))
		}
		if resp.Error != "" {
			return abort(fmt.Errorf("synth engine: %s", resp.Error))
		}
		chunk, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			return abort(fmt.Errorf("decode synth pcm: %w", err))
		}
		if !final {
			pcm = append(pcm, chunk...)
		}
		final = final || resp.Final
	}
	if err := scanner.Err(); err != nil {
		return abort(fmt.Errorf("read synth response: %w", err))
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("synth command failed: %w: %s", err, stderr.String())
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]float64, len(pcm)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return &audio.Buffer{Samples: samples, SampleRate: req.SampleRate}, nil
}
