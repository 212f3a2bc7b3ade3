package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/tracker"
)

func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Track task lifecycle events",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newTaskCompleteCmd())
	return cmd
}

func newTaskCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <description>",
		Short: "Track a completed task and flush immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawMeta, _ := cmd.Flags().GetString("metadata")
			meta, err := parseMetadata(rawMeta)
			if err != nil {
				return cmdErr(err)
			}
			return runTracked(cmd, func(tr *tracker.Tracker) error {
				tr.TaskCompleted(args[0], meta)
				return nil
			})
		},
	}
	cmd.Flags().String("metadata", "", "Metadata as a JSON object")
	return cmd
}
