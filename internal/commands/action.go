package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/models"
	"github.com/dotcommander/missiontrack/internal/tracker"
)

func NewActionCmd() *cobra.Command {
	return newDescribedEventCmd("action", "Track a generic agent action", (*tracker.Tracker).AgentAction)
}

func NewSystemCmd() *cobra.Command {
	return newDescribedEventCmd("system", "Track a system event", (*tracker.Tracker).SystemEvent)
}

func newDescribedEventCmd(use, short string, emit func(*tracker.Tracker, string, models.Metadata)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <description>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawMeta, _ := cmd.Flags().GetString("metadata")
			meta, err := parseMetadata(rawMeta)
			if err != nil {
				return cmdErr(err)
			}
			return runTracked(cmd, func(tr *tracker.Tracker) error {
				emit(tr, args[0], meta)
				return nil
			})
		},
	}
	cmd.Flags().String("metadata", "", "Metadata as a JSON object")
	return cmd
}
