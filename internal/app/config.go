package app

import (
	"os"
	"path/filepath"
)

const appName = "missiontrack"

// ConfigDir returns ~/.config/missiontrack/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# missiontrack configuration
# Run: missiontrack --help

# Mission control endpoint. MISSION_CONTROL_URL overrides; set it to an
# empty string to disable delivery.
# base_url: http://localhost:3000

# Sent as "Authorization: Bearer <secret>". Also MISSION_CONTROL_SECRET.
# webhook_secret: ""

# batch_size: 10
# flush_interval_ms: 30000
# request_timeout_ms: 10000

# default_agent: Ray
# default_source: realtime

# important_commands: [npm, git, vercel, deploy, build, install]
# command_max_len: 100
# sensitive_keys: [password, token, secret, key, api_key]

# Local log of delivery attempts. Also MISSIONTRACK_JOURNAL_PATH or --journal-path.
# journal_path: ~/.config/missiontrack/journal.db

# watch_debounce_ms: 1000
# watch_rate_per_sec: 20
`
