package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/phonex/internal/config"
	"github.com/loqalabs/phonex/internal/g2p"
	"github.com/loqalabs/phonex/internal/player"
	"github.com/loqalabs/phonex/internal/session"
	"github.com/loqalabs/phonex/internal/spec"
	"github.com/loqalabs/phonex/internal/synth"
	"github.com/loqalabs/phonex/internal/voice"
)

// Components are the collaborators a session engine is built from.
type Components struct {
	Voices *voice.Registry
	Parser *spec.Parser
	Synth  synth.Synthesizer
	Player player.Player
}

// Assemble builds the collaborators selected by cfg.
func Assemble(cfg config.Config, logger *slog.Logger) (*Components, error) {
	voices := voice.NewRegistry()
	if cfg.Voice.Directory != "" {
		names, err := voices.LoadDir(cfg.Voice.Directory)
		if err != nil {
			return nil, fmt.Errorf("load voices: %w", err)
		}
		if len(names) > 0 {
			logger.Info("voices loaded", slog.String("dir", cfg.Voice.Directory), slog.Any("voices", names))
		}
	}
	if cfg.Voice.Default != "" && !voices.SetCurrent(cfg.Voice.Default) {
		logger.Warn("default voice not found, using built-in", slog.String("voice", cfg.Voice.Default))
	}

	converter, err := newConverter(cfg.G2P)
	if err != nil {
		return nil, err
	}
	synthesizer, err := newSynthesizer(cfg.Synth)
	if err != nil {
		return nil, err
	}
	out, err := newPlayer(cfg.Player)
	if err != nil {
		return nil, err
	}
	return &Components{
		Voices: voices,
		Parser: spec.NewParser(converter, cfg.Render.PitchBase),
		Synth:  synthesizer,
		Player: out,
	}, nil
}

// EngineOptions returns session options for c under cfg.
func (c *Components) EngineOptions(cfg config.Config, logger *slog.Logger) session.Options {
	return session.Options{
		Parser:     c.Parser,
		Voices:     c.Voices,
		Synth:      c.Synth,
		Player:     c.Player,
		SampleRate: cfg.Render.SampleRate,
		Speed:      cfg.Render.Speed,
		TempDir:    cfg.Render.TempDir,
		Logger:     logger,
	}
}

func newConverter(cfg config.G2PConfig) (g2p.Converter, error) {
	switch cfg.Mode {
	case "exec":
		return g2p.NewExecConverter(cfg.Command)
	case "dict", "":
		var extra map[string][]string
		if cfg.Dictionary != "" {
			dict, err := g2p.LoadDictionary(cfg.Dictionary)
			if err != nil {
				return nil, err
			}
			extra = dict
		}
		return g2p.NewDictConverter(extra), nil
	}
	return nil, fmt.Errorf("unknown g2p mode %q", cfg.Mode)
}

func newSynthesizer(cfg config.SynthConfig) (synth.Synthesizer, error) {
	var (
		s   synth.Synthesizer
		err error
	)
	switch cfg.Mode {
	case "exec":
		s, err = synth.NewExecSynth(cfg.Command)
	case "mock", "":
		s = synth.NewMockSynth(0)
	default:
		err = fmt.Errorf("unknown synth mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return synth.WithTimeout(s, time.Duration(cfg.TimeoutMS)*time.Millisecond), nil
}

func newPlayer(cfg config.PlayerConfig) (player.Player, error) {
	switch cfg.Mode {
	case "exec", "":
		return player.NewExecPlayer(cfg.Command)
	case "mock":
		return player.NewMockPlayer(0), nil
	}
	return nil, fmt.Errorf("unknown player mode %q", cfg.Mode)
}
