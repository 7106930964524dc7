package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loqalabs/phonex/internal/runtime"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List available voices",
	Long: `List the built-in voice and every voice file in the configured directory.

The active voice is marked with *.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		comps, err := runtime.Assemble(cfg, newLogger(cfg))
		if err != nil {
			return err
		}

		type voiceInfo struct {
			Name      string  `json:"name"`
			BasePitch float64 `json:"base_pitch"`
			Active    bool    `json:"active"`
		}
		current := comps.Voices.Current().Name
		var list []voiceInfo
		for _, name := range comps.Voices.Names() {
			v, ok := comps.Voices.Get(name)
			if !ok {
				continue
			}
			list = append(list, voiceInfo{Name: v.Name, BasePitch: v.BasePitch, Active: v.Name == current})
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), list)
		}

		if verbose {
			fmt.Fprintf(os.Stderr, "voice directory: %s\n", cfg.Voice.Directory)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tNAME\tBASE PITCH")
		for _, v := range list {
			mark := ""
			if v.Active {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%.1f\n", mark, v.Name, v.BasePitch)
		}
		return w.Flush()
	},
}
