package commands

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/app"
	"github.com/dotcommander/missiontrack/internal/models"
	"github.com/dotcommander/missiontrack/internal/output"
	"github.com/dotcommander/missiontrack/internal/store"
)

// DB is an alias so command code doesn't need to import database/sql.
type DB = sql.DB

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the JSON error response is the output.
	return "error already printed"
}

func (e printedError) Unwrap() error { return e.err }

// runtimeConfig is everything a command needs from config.yaml, the
// environment and the global flags.
type runtimeConfig struct {
	settings     app.Settings
	settingsPath string
	overrides    app.Overrides
	tracker      app.TrackerSettings
	noJournal    bool
}

func overridesFromFlags(cmd *cobra.Command) app.Overrides {
	var ov app.Overrides
	if v, err := cmd.Flags().GetString("agent"); err == nil {
		ov.Agent = v
	}
	if v, err := cmd.Flags().GetString("journal-path"); err == nil {
		ov.JournalPath = v
	}
	return ov
}

func loadRuntime(cmd *cobra.Command) (runtimeConfig, error) {
	s, path, err := app.LoadSettings()
	if err != nil {
		return runtimeConfig{}, err
	}
	ov := overridesFromFlags(cmd)
	noJournal, _ := cmd.Flags().GetBool("no-journal")
	return runtimeConfig{
		settings:     s,
		settingsPath: path,
		overrides:    ov,
		tracker:      app.EffectiveTrackerSettings(s, ov),
		noJournal:    noJournal,
	}, nil
}

func (rt runtimeConfig) journalPath() (string, string, error) {
	return app.ResolveJournalPath(rt.settings, rt.overrides)
}

func openDB(rt runtimeConfig) (*DB, func(), error) {
	dbPath, _, err := rt.journalPath()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.OpenJournal(dbPath)
	if err != nil {
		return nil, nil, err
	}

	return db, func() { _ = db.Close() }, nil
}

func withDB(cmd *cobra.Command, fn func(db *DB) error) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return cmdErr(err)
	}
	db, closeDB, err := openDB(rt)
	if err != nil {
		return cmdErr(err)
	}
	defer closeDB()

	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}
	var re models.RecoverableError
	if errors.As(err, &re) {
		attrs = append(attrs, "error_code", re.ErrorCode())
	}
	slog.Error("command error", attrs...)
	_ = output.PrintError(err)
	return printedError{err: err}
}

// cmdContext returns the command's context, or Background when the command
// was not started through Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
