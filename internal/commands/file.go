package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/tracker"
)

func NewFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Track file changes",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newFileCreatedCmd())
	cmd.AddCommand(newFileUpdatedCmd())
	cmd.AddCommand(newFileDeletedCmd())
	return cmd
}

func newFileCreatedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "created <path>",
		Short: "Track a new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, _ := cmd.Flags().GetInt("lines")
			return runTracked(cmd, func(tr *tracker.Tracker) error {
				tr.FileCreated(args[0], lines)
				return nil
			})
		},
	}
	cmd.Flags().Int("lines", 0, "Line count of the new file")
	return cmd
}

func newFileUpdatedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updated <path>",
		Short: "Track a modified file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, _ := cmd.Flags().GetString("changes")
			return runTracked(cmd, func(tr *tracker.Tracker) error {
				tr.FileUpdated(args[0], changes)
				return nil
			})
		},
	}
	cmd.Flags().String("changes", "", "Short summary of the change")
	return cmd
}

func newFileDeletedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deleted <path>",
		Short: "Track a removed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracked(cmd, func(tr *tracker.Tracker) error {
				tr.FileDeleted(args[0])
				return nil
			})
		},
	}
}
