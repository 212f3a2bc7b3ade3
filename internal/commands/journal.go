package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/output"
	"github.com/dotcommander/missiontrack/internal/store"
)

const defaultPruneAge = 30 * 24 * time.Hour

func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the local delivery attempt journal",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newJournalListCmd())
	cmd.AddCommand(newJournalStatsCmd())
	cmd.AddCommand(newJournalPruneCmd())
	return cmd
}

func newJournalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent delivery attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			outcome, _ := cmd.Flags().GetString("outcome")
			sessionID, _ := cmd.Flags().GetString("session")
			table, _ := cmd.Flags().GetBool("table")

			if outcome != "" && outcome != delivery.Success.String() && outcome != delivery.Failure.String() {
				return cmdErr(fmt.Errorf("--outcome must be %q or %q", delivery.Success, delivery.Failure))
			}

			return withDB(cmd, func(db *DB) error {
				recs, err := store.ListAttempts(cmdContext(cmd), db, store.ListFilter{
					Limit:     limit,
					Outcome:   outcome,
					SessionID: sessionID,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if table && isTerminal(out) {
					return writeAttemptTable(out, recs)
				}

				type resp struct {
					Attempts []store.AttemptRecord `json:"attempts"`
					Count    int                   `json:"count"`
				}
				if recs == nil {
					recs = []store.AttemptRecord{}
				}
				return output.PrintSuccess(resp{Attempts: recs, Count: len(recs)})
			})
		},
	}
	cmd.Flags().Int("limit", 50, "Maximum attempts to show")
	cmd.Flags().String("outcome", "", "Filter by outcome (success|failure)")
	cmd.Flags().String("session", "", "Filter by session id")
	cmd.Flags().Bool("table", false, "Render a text table when stdout is a terminal")
	return cmd
}

func newJournalStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize delivery attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(db *DB) error {
				sum, err := store.SummarizeAttempts(cmdContext(cmd), db)
				if err != nil {
					return err
				}
				return output.PrintSuccess(sum)
			})
		},
	}
}

func newJournalPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old delivery attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, _ := cmd.Flags().GetDuration("older-than")
			if age <= 0 {
				return cmdErr(fmt.Errorf("--older-than must be positive"))
			}
			return withDB(cmd, func(db *DB) error {
				cutoff := time.Now().Add(-age)
				n, err := store.PruneAttempts(cmdContext(cmd), db, cutoff)
				if err != nil {
					return err
				}
				type resp struct {
					Deleted int64     `json:"deleted"`
					Cutoff  time.Time `json:"cutoff"`
				}
				return output.PrintSuccess(resp{Deleted: n, Cutoff: cutoff.UTC()})
			})
		},
	}
	cmd.Flags().Duration("older-than", defaultPruneAge, "Delete attempts started before now minus this age")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func writeAttemptTable(w io.Writer, recs []store.AttemptRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tTRIGGER\tEVENTS\tOUTCOME\tSTATUS\tDURATION\tERROR")
	for _, r := range recs {
		status := "-"
		if r.StatusCode != 0 {
			status = fmt.Sprint(r.StatusCode)
		}
		errCode := r.ErrorCode
		if errCode == "" {
			errCode = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%dms\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Trigger, r.BatchSize, r.Outcome, status, r.DurationMS, errCode)
	}
	return tw.Flush()
}
