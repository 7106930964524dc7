package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/phonex/internal/bus"
	"github.com/loqalabs/phonex/internal/protocol"
	"github.com/loqalabs/phonex/internal/spec"
)

var remoteSubjects = map[string]string{
	"parse":       protocol.SubjectParse,
	"load":        protocol.SubjectLoad,
	"load-legacy": protocol.SubjectLoadLegacy,
	"save":        protocol.SubjectSave,
	"save-legacy": protocol.SubjectSaveLegacy,
	"render":      protocol.SubjectRender,
	"play":        protocol.SubjectPlay,
	"stop":        protocol.SubjectStop,
	"voice":       protocol.SubjectVoice,
	"speed":       protocol.SubjectSpeed,
	"export":      protocol.SubjectExport,
	"state":       protocol.SubjectState,
}

var remoteCmd = &cobra.Command{
	Use:   "remote <command> [argument]",
	Short: "Send a command to a running phonexd",
	Long: `Send a command to a running phonexd over NATS and print its reply.

Commands:
  parse <text>          parse spec text or free text (or -f file)
  load <file.phx>       load bytecode
  load-legacy <file>    load a PHN stream
  save <file.phx>       save bytecode
  save-legacy <file>    save a PHN stream
  render <file.phx>     render bytecode
  play                  play the rendered audio
  stop                  stop playback
  voice <name>          change voice
  speed <factor>        set the speed factor
  export <file.wav>     export the rendered audio
  state                 show the session state

Paths are made absolute before they are sent.

Examples:
  phonex remote parse "hello world"
  phonex remote render ./hello.phx
  phonex remote play`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		name := args[0]
		subject, ok := remoteSubjects[name]
		if !ok {
			return fmt.Errorf("unknown remote command %q", name)
		}
		arg := ""
		if len(args) > 1 {
			arg = args[1]
		}
		payload, err := remotePayload(name, arg, file)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := bus.Connect(cmd.Context(), cfg.Bus, "phonex-cli", newLogger(cfg))
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		var reply protocol.Reply
		if err := client.Request(ctx, protocol.Subject(cfg.Bus.SubjectPrefix, subject), payload, &reply); err != nil {
			return err
		}
		if outputJSON {
			if err := printJSON(cmd.OutOrStdout(), reply); err != nil {
				return err
			}
		} else {
			printReply(cmd, reply)
		}
		if !reply.OK {
			return fmt.Errorf("%s: %s (%s)", name, reply.Error, reply.Code)
		}
		return nil
	},
}

func remotePayload(name, arg, file string) (any, error) {
	switch name {
	case "parse":
		if file != "" {
			text, err := spec.Load(file)
			if err != nil {
				return nil, err
			}
			arg = text
		}
		if arg == "" {
			return nil, fmt.Errorf("parse needs text or -f")
		}
		return protocol.ParseRequest{Text: arg}, nil
	case "load", "load-legacy", "save", "save-legacy", "render", "export":
		if arg == "" {
			return nil, fmt.Errorf("%s needs a path", name)
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		return protocol.PathRequest{Path: abs}, nil
	case "voice":
		if arg == "" {
			arg = voiceName
		}
		if arg == "" {
			return nil, fmt.Errorf("voice needs a name")
		}
		return protocol.VoiceRequest{Voice: arg}, nil
	case "speed":
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid speed %q", arg)
		}
		return protocol.SpeedRequest{Speed: f}, nil
	default:
		return struct{}{}, nil
	}
}

func printReply(cmd *cobra.Command, reply protocol.Reply) {
	w := cmd.OutOrStdout()
	if reply.Readable != "" {
		fmt.Fprint(w, reply.Readable)
	}
	st := reply.Status
	if st == nil {
		return
	}
	fmt.Fprintf(w, "Session:  %s\n", st.SessionID)
	fmt.Fprintf(w, "Phase:    %s\n", st.Phase)
	fmt.Fprintf(w, "Specs:    %d (%.3fs)\n", st.Specs, st.SpecDuration)
	fmt.Fprintf(w, "Voice:    %s\n", st.Voice)
	fmt.Fprintf(w, "Speed:    %.2fx\n", st.Speed)
	if st.Samples > 0 {
		fmt.Fprintf(w, "Audio:    %d samples at %d Hz (%.3fs)\n", st.Samples, st.SampleRate, st.AudioSeconds)
	}
	if st.Playing {
		fmt.Fprintln(w, "Playing:  yes")
	}
}

func init() {
	remoteCmd.Flags().StringP("file", "f", "", "read parse input from file")
	remoteCmd.Flags().Duration("timeout", 30*time.Second, "reply timeout")
}
