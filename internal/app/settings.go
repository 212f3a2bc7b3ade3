package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dotcommander/missiontrack/internal/sanitize"
	"github.com/dotcommander/missiontrack/internal/tracker"
)

// Environment variables recognized on top of config.yaml.
const (
	EnvBaseURL     = "MISSION_CONTROL_URL"
	EnvSecret      = "MISSION_CONTROL_SECRET"
	EnvAgent       = "MISSIONTRACK_AGENT"
	EnvJournalPath = "MISSIONTRACK_JOURNAL_PATH"
)

// DefaultBaseURL is used when neither config nor environment names an endpoint.
const DefaultBaseURL = "http://localhost:3000"

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	BaseURL           string   `yaml:"base_url"`
	WebhookSecret     string   `yaml:"webhook_secret"`
	BatchSize         int      `yaml:"batch_size"`
	FlushIntervalMS   int      `yaml:"flush_interval_ms"`
	RequestTimeoutMS  int      `yaml:"request_timeout_ms"`
	DefaultAgent      string   `yaml:"default_agent"`
	DefaultSource     string   `yaml:"default_source"`
	ImportantCommands []string `yaml:"important_commands"`
	CommandMaxLen     int      `yaml:"command_max_len"`
	SensitiveKeys     []string `yaml:"sensitive_keys"`
	JournalPath       string   `yaml:"journal_path"`
	WatchDebounceMS   int      `yaml:"watch_debounce_ms"`
	WatchRatePerSec   int      `yaml:"watch_rate_per_sec"`
}

// Overrides carries CLI flag values. Empty fields are ignored.
type Overrides struct {
	Agent       string
	JournalPath string
}

// TrackerSettings are the effective runtime values after defaults, env
// overrides and clamping.
type TrackerSettings struct {
	BaseURL           string        `json:"base_url"`
	WebhookSecret     string        `json:"-"`
	BatchSize         int           `json:"batch_size"`
	FlushInterval     time.Duration `json:"-"`
	RequestTimeout    time.Duration `json:"-"`
	DefaultAgent      string        `json:"default_agent"`
	DefaultSource     string        `json:"default_source"`
	ImportantCommands []string      `json:"important_commands"`
	CommandMaxLen     int           `json:"command_max_len"`
	SensitiveKeys     []string      `json:"sensitive_keys"`
	WatchDebounce     time.Duration `json:"-"`
	WatchRatePerSec   int           `json:"watch_rate_per_sec"`
}

const (
	defaultBatchSize        = 10
	defaultFlushIntervalMS  = 30_000
	defaultRequestTimeoutMS = 10_000
	defaultWatchDebounceMS  = 1_000
	defaultWatchRatePerSec  = 20
)

// EffectiveTrackerSettings merges s with environment variables and CLI
// overrides, fills defaults and clamps out-of-range values.
//
// MISSION_CONTROL_URL set to an empty string disables delivery.
func EffectiveTrackerSettings(s Settings, ov Overrides) TrackerSettings {
	cfg := TrackerSettings{
		BaseURL:           DefaultBaseURL,
		BatchSize:         defaultBatchSize,
		FlushInterval:     defaultFlushIntervalMS * time.Millisecond,
		RequestTimeout:    defaultRequestTimeoutMS * time.Millisecond,
		DefaultAgent:      tracker.DefaultAgent,
		DefaultSource:     tracker.DefaultSource,
		ImportantCommands: append([]string(nil), tracker.DefaultImportantCommands...),
		CommandMaxLen:     tracker.DefaultCommandMaxLen,
		SensitiveKeys:     append([]string(nil), sanitize.DefaultSensitiveKeys...),
		WatchDebounce:     defaultWatchDebounceMS * time.Millisecond,
		WatchRatePerSec:   defaultWatchRatePerSec,
	}

	if v := strings.TrimSpace(s.BaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvBaseURL); ok {
		cfg.BaseURL = strings.TrimSpace(v)
	}

	cfg.WebhookSecret = s.WebhookSecret
	if v := os.Getenv(EnvSecret); v != "" {
		cfg.WebhookSecret = v
	}

	if s.BatchSize > 0 {
		cfg.BatchSize = s.BatchSize
	}
	if s.FlushIntervalMS > 0 {
		cfg.FlushInterval = time.Duration(s.FlushIntervalMS) * time.Millisecond
	}
	if s.RequestTimeoutMS > 0 {
		cfg.RequestTimeout = time.Duration(s.RequestTimeoutMS) * time.Millisecond
	}

	if v := strings.TrimSpace(s.DefaultAgent); v != "" {
		cfg.DefaultAgent = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAgent)); v != "" {
		cfg.DefaultAgent = v
	}
	if v := strings.TrimSpace(ov.Agent); v != "" {
		cfg.DefaultAgent = v
	}
	if v := strings.TrimSpace(s.DefaultSource); v != "" {
		cfg.DefaultSource = v
	}

	if cmds := nonEmpty(s.ImportantCommands); len(cmds) > 0 {
		cfg.ImportantCommands = cmds
	}
	if s.CommandMaxLen > 0 {
		cfg.CommandMaxLen = s.CommandMaxLen
	}
	if keys := nonEmpty(s.SensitiveKeys); len(keys) > 0 {
		cfg.SensitiveKeys = keys
	}
	if s.WatchDebounceMS > 0 {
		cfg.WatchDebounce = time.Duration(s.WatchDebounceMS) * time.Millisecond
	}
	if s.WatchRatePerSec > 0 {
		cfg.WatchRatePerSec = s.WatchRatePerSec
	}

	cfg.BatchSize = clampInt(cfg.BatchSize, 1, 1000)
	cfg.FlushInterval = clampDuration(cfg.FlushInterval, 100*time.Millisecond, time.Hour)
	cfg.RequestTimeout = clampDuration(cfg.RequestTimeout, 500*time.Millisecond, 2*time.Minute)
	cfg.CommandMaxLen = clampInt(cfg.CommandMaxLen, 10, 10_000)
	cfg.WatchDebounce = clampDuration(cfg.WatchDebounce, 10*time.Millisecond, time.Minute)
	cfg.WatchRatePerSec = clampInt(cfg.WatchRatePerSec, 1, 1000)
	return cfg
}

// TrackerConfig converts the settings into a tracker.Config.
func (ts TrackerSettings) TrackerConfig() tracker.Config {
	return tracker.Config{
		Agent:             ts.DefaultAgent,
		Source:            ts.DefaultSource,
		BatchSize:         ts.BatchSize,
		FlushInterval:     ts.FlushInterval,
		AttemptTimeout:    ts.RequestTimeout + 5*time.Second,
		ImportantCommands: ts.ImportantCommands,
		CommandMaxLen:     ts.CommandMaxLen,
		SensitiveKeys:     ts.SensitiveKeys,
	}
}

// DeliveryEnabled reports whether an endpoint is configured.
func (ts TrackerSettings) DeliveryEnabled() bool {
	return ts.BaseURL != ""
}

// SettingsPaths returns config.yaml candidates in lookup order.
func SettingsPaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(string(os.PathSeparator), "etc", appName, "config.yaml"),
		"config.yaml",
	}, nil
}

// LoadSettings reads the first config.yaml found and returns it together
// with the path it came from ("" when no file exists).
// Lookup order (first found wins):
// 1) ~/.config/missiontrack/config.yaml
// 2) /etc/missiontrack/config.yaml
// 3) ./config.yaml
// Environment variables are applied by EffectiveTrackerSettings.
func LoadSettings() (Settings, string, error) {
	paths, err := SettingsPaths()
	if err != nil {
		return Settings{}, "", err
	}

	for _, p := range paths {
		s, err := loadSettingsFile(p)
		if err == nil {
			return s, p, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return Settings{}, p, fmt.Errorf("load config %s: %w", p, err)
	}
	return Settings{}, "", nil
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	return min(max(v, lo), hi)
}
