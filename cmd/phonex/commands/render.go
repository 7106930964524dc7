package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render <file.phx>",
	Short: "Synthesize a PHX file, export or play it",
	Long: `Synthesize a PHX file with the active voice and speed factor.

The rendered audio can be written as 16-bit mono WAV and played. Playback
uses the rendered buffer and never synthesizes again. Ctrl-C stops playback.

Examples:
  phonex render hello.phx --wav hello.wav
  phonex render hello.phx --speed 1.5 --play
  phonex render hello.phx --voice Robot --play`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wavPath, _ := cmd.Flags().GetString("wav")
		speed, _ := cmd.Flags().GetFloat64("speed")
		play, _ := cmd.Flags().GetBool("play")

		engine, _, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		if speed != 0 {
			if err := engine.SetSpeed(speed); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		snap, err := engine.Render(ctx, args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			if err := printJSON(cmd.OutOrStdout(), snap); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Specs:    %d (%.3fs)\n", snap.Specs, snap.SpecDuration)
			fmt.Fprintf(cmd.OutOrStdout(), "Voice:    %s\n", snap.Voice)
			fmt.Fprintf(cmd.OutOrStdout(), "Speed:    %.2fx\n", snap.Speed)
			fmt.Fprintf(cmd.OutOrStdout(), "Audio:    %d samples at %d Hz (%.3fs)\n", snap.Samples, snap.SampleRate, snap.AudioSeconds)
		}

		if wavPath != "" {
			if err := engine.ExportWAV(wavPath); err != nil {
				return err
			}
			printInfo("wrote %s", wavPath)
		}
		if !play {
			return nil
		}

		pb, err := engine.Play(ctx)
		if err != nil {
			return err
		}
		stopped := false
		select {
		case <-pb.Done():
		case <-ctx.Done():
			stopped = true
			if err := engine.Stop(); err != nil {
				return err
			}
			printInfo("playback stopped")
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pb.Wait(waitCtx); err != nil && !stopped {
			return fmt.Errorf("playback: %w", err)
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().String("wav", "", "export the rendered audio as WAV")
	renderCmd.Flags().Float64("speed", 0, "speed factor, 0.5 to 2.0 (default from config)")
	renderCmd.Flags().Bool("play", false, "play the rendered audio")
}

