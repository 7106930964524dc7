package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/phonex/internal/spec"
)

var parseCmd = &cobra.Command{
	Use:   "parse [text]",
	Short: "Parse spec text or free text into phoneme specs",
	Long: `Parse spec text or free text into phoneme specs.

Input containing a decimal number is read as spec lines, anything else goes
through the text-to-phoneme converter. The result is bracketed with silence
and printed as spec text.

Examples:
  phonex parse -f hello.txt -o hello.phx
  phonex parse "hello world" --readable hello.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("file")
		out, _ := cmd.Flags().GetString("output")
		readable, _ := cmd.Flags().GetString("readable")
		legacyOut, _ := cmd.Flags().GetString("phn")

		text := strings.Join(args, " ")
		if input != "" {
			data, err := spec.Load(input)
			if err != nil {
				return err
			}
			text = data
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("no input: pass text or use -f")
		}

		engine, _, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		seq, err := engine.Parse(context.Background(), text)
		if err != nil {
			return err
		}
		if out != "" {
			if err := engine.SaveBytecode(out); err != nil {
				return err
			}
			printInfo("wrote %d records to %s", len(seq), out)
		}
		if legacyOut != "" {
			if err := engine.SaveLegacy(legacyOut); err != nil {
				return err
			}
			printInfo("wrote PHN stream to %s", legacyOut)
		}
		if readable != "" {
			if err := spec.Save(readable, spec.ToReadable(seq)); err != nil {
				return err
			}
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), seq)
		}
		fmt.Fprint(cmd.OutOrStdout(), spec.ToReadable(seq))
		return nil
	},
}

func init() {
	parseCmd.Flags().StringP("file", "f", "", "read spec or text from file")
	parseCmd.Flags().StringP("output", "o", "", "write PHX bytecode")
	parseCmd.Flags().String("phn", "", "write a legacy PHN stream")
	parseCmd.Flags().String("readable", "", "write spec text")
}
