package tracker

import "time"

// Config holds the facade's tunables. Zero fields fall back to DefaultConfig.
type Config struct {
	Agent             string
	Source            string
	BatchSize         int
	FlushInterval     time.Duration
	AttemptTimeout    time.Duration
	ImportantCommands []string
	CommandMaxLen     int
	SensitiveKeys     []string
}

// DefaultImportantCommands is the command allow-list used when none is configured.
//
//nolint:gochecknoglobals // read-only defaults
var DefaultImportantCommands = []string{"npm", "git", "vercel", "deploy", "build", "install"}

// Stock identity and command limits applied by DefaultConfig.
const (
	// DefaultAgent is the reporting identity when none is configured.
	DefaultAgent = "Ray"
	// DefaultSource tags events produced by the live tracker.
	DefaultSource = "realtime"
	// DefaultCommandMaxLen caps the recorded command text, in runes.
	DefaultCommandMaxLen = 100
)

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Agent:             DefaultAgent,
		Source:            DefaultSource,
		BatchSize:         10,
		FlushInterval:     30 * time.Second,
		AttemptTimeout:    15 * time.Second,
		ImportantCommands: append([]string(nil), DefaultImportantCommands...),
		CommandMaxLen:     DefaultCommandMaxLen,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Agent == "" {
		c.Agent = d.Agent
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if len(c.ImportantCommands) == 0 {
		c.ImportantCommands = d.ImportantCommands
	}
	if c.CommandMaxLen <= 0 {
		c.CommandMaxLen = d.CommandMaxLen
	}
	return c
}
