package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/output"
	"github.com/dotcommander/missiontrack/internal/watch"
)

func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Track file changes under a directory until interrupted",
		Long: `Watch a directory tree and track file_created, file_updated and
file_deleted events. Bursts on the same path are debounced
(watch_debounce_ms) and the overall rate is capped (watch_rate_per_sec).

SIGINT or SIGTERM stops the watcher and flushes whatever is queued.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var ignore []string
			if !rt.noJournal {
				if p, _, err := rt.journalPath(); err == nil {
					ignore = append(ignore, p)
				}
			}

			s := openSession(rt)
			defer s.close()

			w, err := watch.New(args[0], s.tracker, watch.Options{
				Debounce:    rt.tracker.WatchDebounce,
				RatePerSec:  rt.tracker.WatchRatePerSec,
				IgnorePaths: ignore,
			})
			if err != nil {
				return cmdErr(err)
			}

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := w.Run(ctx); err != nil {
				return cmdErr(err)
			}

			rep, err := s.finish()
			if err != nil {
				return cmdErr(err)
			}
			type resp struct {
				deliveryReport
				Root    string `json:"root"`
				Emitted int64  `json:"emitted"`
				Dropped int64  `json:"dropped"`
			}
			return output.PrintSuccess(resp{
				deliveryReport: rep,
				Root:           w.Root(),
				Emitted:        w.Emitted(),
				Dropped:        w.Dropped(),
			})
		},
	}
	return cmd
}
