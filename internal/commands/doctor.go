package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dotcommander/missiontrack/internal/app"
	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/output"
	"github.com/dotcommander/missiontrack/internal/sanitize"
	"github.com/dotcommander/missiontrack/internal/store"
)

type doctorSettings struct {
	app.TrackerSettings
	WebhookSecret    string `json:"webhook_secret,omitempty"`
	FlushIntervalMS  int64  `json:"flush_interval_ms"`
	RequestTimeoutMS int64  `json:"request_timeout_ms"`
	WatchDebounceMS  int64  `json:"watch_debounce_ms"`
}

type doctorJournal struct {
	Path          string `json:"path"`
	Source        string `json:"source"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	SchemaVersion int64  `json:"schema_version"`
	LatestVersion int64  `json:"latest_version"`
}

func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Show resolved settings and check the delivery journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return cmdErr(err)
			}
			ts := rt.tracker

			settings := doctorSettings{
				TrackerSettings:  ts,
				FlushIntervalMS:  ts.FlushInterval.Milliseconds(),
				RequestTimeoutMS: ts.RequestTimeout.Milliseconds(),
				WatchDebounceMS:  ts.WatchDebounce.Milliseconds(),
			}
			if ts.WebhookSecret != "" {
				settings.WebhookSecret = sanitize.Redacted
			}

			var endpoint string
			if ts.DeliveryEnabled() {
				endpoint = strings.TrimRight(ts.BaseURL, "/") + delivery.BatchPath
			}

			type resp struct {
				SettingsPath    string            `json:"settings_path,omitempty"`
				Settings        doctorSettings    `json:"settings"`
				DeliveryEnabled bool              `json:"delivery_enabled"`
				Endpoint        string            `json:"endpoint,omitempty"`
				Journal         doctorJournal     `json:"journal"`
				Flags           map[string]string `json:"flags,omitempty"`
				Hint            string            `json:"hint,omitempty"`
			}
			out := resp{
				SettingsPath:    rt.settingsPath,
				Settings:        settings,
				DeliveryEnabled: ts.DeliveryEnabled(),
				Endpoint:        endpoint,
				Journal:         checkJournal(rt),
				Flags:           changedFlags(cmd),
			}
			if !out.DeliveryEnabled {
				out.Hint = "Set base_url in config.yaml or MISSION_CONTROL_URL to enable delivery."
			} else if !out.Journal.OK {
				out.Hint = "Set journal_path to a writable location, use --journal-path, or pass --no-journal."
			}
			return output.PrintSuccess(out)
		},
	}
}

func checkJournal(rt runtimeConfig) doctorJournal {
	var j doctorJournal
	path, source, err := rt.journalPath()
	j.Path, j.Source = path, source
	if err != nil {
		j.Error = err.Error()
		return j
	}

	db, err := store.OpenJournal(path)
	if err != nil {
		j.Error = err.Error()
		return j
	}
	defer func() { _ = db.Close() }()

	current, latest, err := store.SchemaVersion(db)
	j.SchemaVersion, j.LatestVersion = current, latest
	if err != nil {
		j.Error = err.Error()
		return j
	}
	j.OK = current == latest
	return j
}

// changedFlags lists every flag set on the command line, local or inherited.
func changedFlags(cmd *cobra.Command) map[string]string {
	flags := map[string]string{}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			flags[f.Name] = f.Value.String()
		}
	})
	if len(flags) == 0 {
		return nil
	}
	return flags
}
