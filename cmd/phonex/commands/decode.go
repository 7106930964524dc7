package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loqalabs/phonex/internal/bytecode"
	"github.com/loqalabs/phonex/internal/phoneme"
	"github.com/loqalabs/phonex/internal/spec"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <file.phx>",
	Short: "Print a PHX file as spec text",
	Long: `Print a PHX file as spec text.

Examples:
  phonex decode hello.phx
  phonex decode hello.phx --json
  phonex decode hello.phx -o hello.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		seq, err := bytecode.ReadFile(args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), seq)
		}
		text := spec.ToReadable(seq)
		if out != "" {
			return spec.Save(out, text)
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.phx>",
	Short: "Show single PHX records",
	Long: `Show single PHX records without decoding the whole file.

Without --index a summary of the file is printed.

Examples:
  phonex inspect hello.phx
  phonex inspect hello.phx --index 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, _ := cmd.Flags().GetInt("index")

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		phx, err := bytecode.NewFile(f, info.Size())
		if err != nil {
			return err
		}

		if index >= 0 {
			sp, err := phx.Record(index)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), sp)
			}
			printSpec(cmd, index, sp)
			return nil
		}

		type summary struct {
			Records  int     `json:"records"`
			Bytes    int64   `json:"bytes"`
			Duration float64 `json:"duration"`
		}
		s := summary{Records: phx.Len(), Bytes: info.Size()}
		for i := 0; i < phx.Len(); i++ {
			sp, err := phx.Record(i)
			if err != nil {
				return err
			}
			s.Duration += sp.Duration
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "File:     %s\n", args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "Records:  %d\n", s.Records)
		fmt.Fprintf(cmd.OutOrStdout(), "Bytes:    %d\n", s.Bytes)
		fmt.Fprintf(cmd.OutOrStdout(), "Duration: %.3fs\n", s.Duration)
		return nil
	},
}

func printSpec(cmd *cobra.Command, index int, sp phoneme.Spec) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Record:   %d\n", index)
	fmt.Fprintf(w, "Phoneme:  %s (%s)\n", sp.Phoneme, sp.Phoneme.Class())
	fmt.Fprintf(w, "Duration: %.3fs\n", sp.Duration)
	fmt.Fprintf(w, "Pitch:    %v\n", sp.PitchContour)
	fmt.Fprintf(w, "Formants: %.0f %.0f %.0f\n", sp.F1, sp.F2, sp.F3)
	fmt.Fprintf(w, "Voiced:   %t\n", sp.Voiced)
}

func init() {
	decodeCmd.Flags().StringP("output", "o", "", "write spec text to file")
	inspectCmd.Flags().IntP("index", "i", -1, "record to show")
}
