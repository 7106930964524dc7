package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/loqalabs/phonex/internal/config"
	"github.com/loqalabs/phonex/internal/runtime"
	"github.com/loqalabs/phonex/internal/session"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	voiceName  string
)

var rootCmd = &cobra.Command{
	Use:   "phonex",
	Short: "Phoneme spec authoring and debugging tool",
	Long: `phonex turns phoneme spec text into PHX bytecode, converts legacy PHN
streams, renders bytecode through a synthesizer and plays or exports the audio.

Spec text has one phoneme per line: PHONEME DURATION PITCH...
  SIL 0.190 0.0
  HH  0.190 155
  EH  0.100 155

Examples:
  phonex parse -f hello.txt -o hello.phx
  phonex parse "hello world" -o hello.phx
  phonex render hello.phx --speed 1.5 --wav hello.wav
  phonex legacy decode old.phn -o old.phx`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (phonex.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
	rootCmd.PersistentFlags().StringVar(&voiceName, "voice", "", "voice to use instead of the configured default")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(legacyCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(voicesCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(remoteCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if voiceName != "" {
		cfg.Voice.Default = voiceName
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return runtime.NewLogger(os.Stderr, cfg.Telemetry.LogLevel)
}

// newEngine builds a local session engine from the configuration.
func newEngine() (*session.Engine, *runtime.Components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)
	comps, err := runtime.Assemble(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if voiceName != "" && comps.Voices.Current().Name != voiceName {
		return nil, nil, fmt.Errorf("%w: %q", session.ErrUnknownVoice, voiceName)
	}
	engine, err := session.New(comps.EngineOptions(cfg, logger))
	if err != nil {
		return nil, nil, err
	}
	return engine, comps, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
