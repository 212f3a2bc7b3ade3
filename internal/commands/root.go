package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/app"
	"github.com/dotcommander/missiontrack/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := newRootCmd(version)
	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "missiontrack",
		Short:         "Batch agent activity events and deliver them to mission control",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.EnsureConfigDir()
		},
	}

	root.PersistentFlags().StringP("agent", "a", "", "Agent name (default: $MISSIONTRACK_AGENT)")
	root.PersistentFlags().String("journal-path", "", "Override delivery journal path")
	root.PersistentFlags().Bool("no-journal", false, "Do not record delivery attempts")
	root.Flags().BoolP("version", "v", false, "version for missiontrack")

	root.AddCommand(NewTrackCmd())
	root.AddCommand(NewFileCmd())
	root.AddCommand(NewExecCmd())
	root.AddCommand(NewTaskCmd())
	root.AddCommand(NewActionCmd())
	root.AddCommand(NewSystemCmd())
	root.AddCommand(NewHookCmd())
	root.AddCommand(NewWatchCmd())
	root.AddCommand(NewJournalCmd())
	root.AddCommand(NewDoctorCmd())

	return root
}
