package g2p

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

type execConverter struct {
	cmd []string
}

// NewExecConverter runs an external converter. The text is written to its
// stdin; whitespace-separated phoneme tokens are read from stdout.
func NewExecConverter(command string) (Converter, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse g2p command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("g2p command empty")
	}
	return &execConverter{cmd: args}, nil
}

func (e *execConverter) Convert(ctx context.Context, text string) ([]string, error) {
	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	command.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("g2p command failed: %w: %s", err, stderr.String())
	}
	return strings.Fields(stdout.String()), nil
}
