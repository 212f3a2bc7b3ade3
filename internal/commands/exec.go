package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/tracker"
)

// NewExecCmd records a shell command when it matches important_commands.
// Other commands are accepted and ignored.
func NewExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exec <command...>",
		Short:   "Track an executed command if it is on the important list",
		Example: `  missiontrack exec --context "release" -- git push origin main`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			note, _ := cmd.Flags().GetString("context")
			command := strings.Join(args, " ")
			return runTracked(cmd, func(tr *tracker.Tracker) error {
				tr.CommandExecuted(command, note)
				return nil
			})
		},
	}
	cmd.Flags().String("context", "", "Why the command ran")
	return cmd
}
