package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Convert between legacy PHN streams and PHX bytecode",
	Long: `Convert between legacy PHN streams and PHX bytecode.

A PHN header naming a known voice activates it for the conversion.

Examples:
  phonex legacy decode old.phn -o old.phx
  phonex legacy encode hello.phx -o hello.phn --voice Robot`,
}

var legacyDecodeCmd = &cobra.Command{
	Use:   "decode <file.phn>",
	Short: "Convert a PHN stream to PHX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		engine, _, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		seq, err := engine.LoadLegacy(args[0])
		if err != nil {
			return err
		}
		if out != "" {
			if err := engine.SaveBytecode(out); err != nil {
				return err
			}
			printInfo("wrote %d records to %s (voice %s)", len(seq), out, engine.Snapshot().Voice)
			return nil
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), seq)
		}
		text, err := engine.Readable()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

var legacyEncodeCmd = &cobra.Command{
	Use:   "encode <file.phx>",
	Short: "Convert PHX to a PHN stream with a voice header",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		engine, _, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		seq, err := engine.LoadBytecode(args[0])
		if err != nil {
			return err
		}
		if err := engine.SaveLegacy(out); err != nil {
			return err
		}
		printInfo("wrote %d phonemes to %s (voice %s)", len(seq), out, engine.Snapshot().Voice)
		return nil
	},
}

func init() {
	legacyDecodeCmd.Flags().StringP("output", "o", "", "write PHX bytecode")
	legacyEncodeCmd.Flags().StringP("output", "o", "", "PHN file to write")
	_ = legacyEncodeCmd.MarkFlagRequired("output")

	legacyCmd.AddCommand(legacyDecodeCmd)
	legacyCmd.AddCommand(legacyEncodeCmd)
}
