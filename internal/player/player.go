// Package player hands rendered WAV files to an output device.
package player

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Player plays a WAV file, blocking until playback ends or ctx is
// cancelled. Cancellation must stop the output.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Func adapts a function to Player.
type Func func(ctx context.Context, path string) error

func (f Func) Play(ctx context.Context, path string) error { return f(ctx, path) }

// FilePlaceholder is replaced by the WAV path in player commands. Commands
// without it get the path appended.
const FilePlaceholder = "{file}"

// DefaultCommand returns the stock player for the current platform.
func DefaultCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "afplay"
	case "windows":
		return `powershell -NoProfile -Command "(New-Object Media.SoundPlayer '{file}').PlaySync()"`
	default:
		return "aplay -q"
	}
}

type execPlayer struct {
	cmd []string
}

// NewExecPlayer runs command once per playback. Stopping kills the process.
func NewExecPlayer(command string) (Player, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand()
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Play(ctx context.Context, path string) error {
	args := make([]string, 0, len(p.cmd)+1)
	substituted := false
	for _, a := range p.cmd {
		if strings.Contains(a, FilePlaceholder) {
			a = strings.ReplaceAll(a, FilePlaceholder, path)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, path)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player %s: %w", args[0], err)
	}
	return nil
}

type mockPlayer struct {
	hold time.Duration
}

// NewMockPlayer pretends to play for hold, or until cancelled.
func NewMockPlayer(hold time.Duration) Player {
	return &mockPlayer{hold: hold}
}

func (m *mockPlayer) Play(ctx context.Context, _ string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.hold):
		return nil
	}
}
