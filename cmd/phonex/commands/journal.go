package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loqalabs/phonex/internal/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal [session-id]",
	Short: "Show recorded sessions",
	Long: `Show sessions recorded by phonexd.

Without an argument the newest sessions are listed. With a session id the
operations of that session are shown in order.

Examples:
  phonex journal
  phonex journal 1f0c2d9e-... --limit 50`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal.RetentionMode == "ephemeral" {
			printInfo("journal is disabled (retention_mode ephemeral)")
			return nil
		}
		jr, err := journal.Open(cmd.Context(), cfg.Journal, newLogger(cfg))
		if err != nil {
			return err
		}
		defer jr.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if len(args) == 0 {
			sessions, err := jr.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), sessions)
			}
			fmt.Fprintln(w, "ID\tNAME\tCREATED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.CreatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		}

		entries, err := jr.List(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		fmt.Fprintln(w, "TIME\tOPERATION\tFROM\tTO\tSPECS\tSAMPLES\tVOICE\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				e.CreatedAt.Local().Format("15:04:05.000"), e.Operation, e.From, e.To, e.Specs, e.Samples, e.Voice, e.Error)
		}
		return w.Flush()
	},
}

func init() {
	journalCmd.Flags().IntP("limit", "n", 0, "maximum rows to show")
}
