package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveJournalPath returns the journal database path and the source of
// that decision. Order of precedence:
// 1) CLI override (--journal-path)
// 2) Environment variable: MISSIONTRACK_JOURNAL_PATH
// 3) config.yaml: journal_path
// 4) Default: ~/.config/missiontrack/journal.db
// The parent directory is created if missing.
func ResolveJournalPath(s Settings, ov Overrides) (path string, source string, err error) {
	if ov.JournalPath != "" {
		resolved, err := EnsureDBDir(ov.JournalPath)
		return resolved, "cli(--journal-path)", err
	}

	if envPath := os.Getenv(EnvJournalPath); envPath != "" {
		resolved, err := EnsureDBDir(envPath)
		return resolved, "env(" + EnvJournalPath + ")", err
	}

	if s.JournalPath != "" {
		p, err := expandHome(s.JournalPath)
		if err != nil {
			return "", "", err
		}
		resolved, err := EnsureDBDir(p)
		return resolved, "config(journal_path)", err
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	resolved, err := EnsureDBDir(filepath.Join(dir, "journal.db"))
	return resolved, "default(~/.config/missiontrack/journal.db)", err
}

// EnsureDBDir creates the parent directory of dbPath.
func EnsureDBDir(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
