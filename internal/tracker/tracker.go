// Package tracker is the semantic entry point for producers. Each helper
// builds one canonical event, scrubs its metadata, and hands it to the batch
// scheduler. Helpers never return errors; problems are logged and the call
// site carries on.
package tracker

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dotcommander/missiontrack/internal/clock"
	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/models"
	"github.com/dotcommander/missiontrack/internal/queue"
	"github.com/dotcommander/missiontrack/internal/sanitize"
	"github.com/dotcommander/missiontrack/internal/scheduler"
)

type options struct {
	clock    clock.Clock
	logger   *slog.Logger
	recorder scheduler.Recorder
}

// Option configures a Tracker.
type Option func(*options)

// WithClock overrides the clock used for timestamps and the flush timer.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger for the tracker and its scheduler.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder reports every delivery attempt to r.
func WithRecorder(r scheduler.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// Tracker turns agent actions into queued events.
type Tracker struct {
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger
	sanitizer *sanitize.Sanitizer
	sched     *scheduler.Scheduler
}

// New builds a stopped Tracker. Call Initialize to start periodic flushing
// and Shutdown on every exit path.
func New(cfg Config, client delivery.Client, opts ...Option) *Tracker {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if client == nil {
		client = delivery.Disabled{}
	}

	cfg = cfg.withDefaults()
	sched := scheduler.New(queue.New(), client, scheduler.Options{
		Interval:       cfg.FlushInterval,
		Threshold:      cfg.BatchSize,
		AttemptTimeout: cfg.AttemptTimeout,
		Clock:          o.clock,
		Logger:         o.logger,
		Recorder:       o.recorder,
	})

	return &Tracker{
		cfg:       cfg,
		clock:     o.clock,
		logger:    o.logger,
		sanitizer: sanitize.New(cfg.SensitiveKeys),
		sched:     sched,
	}
}

// Initialize starts the scheduler. Calling it again restarts the timer.
func (t *Tracker) Initialize() {
	t.sched.Start()
}

// Shutdown flushes once more and stops the timer.
func (t *Tracker) Shutdown(ctx context.Context) error {
	return t.sched.Stop(ctx)
}

// Flush sends whatever is queued now and waits for the attempt.
func (t *Tracker) Flush(ctx context.Context) delivery.Result {
	res, _ := t.sched.Flush(ctx)
	return res
}

// Pending returns the number of queued events.
func (t *Tracker) Pending() int {
	return t.sched.Queue().Len()
}

// State exposes the scheduler state.
func (t *Tracker) State() scheduler.State {
	return t.sched.State()
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Track enqueues an event of any type.
func (t *Tracker) Track(typ models.EventType, description string, meta models.Metadata) {
	t.enqueue(typ, description, meta)
}

// FileCreated records a new file. lines <= 0 omits the line count.
func (t *Tracker) FileCreated(path string, lines int) {
	meta := models.Metadata{"filePath": models.String(path)}
	if lines > 0 {
		meta["lines"] = models.Int(lines)
	}
	t.enqueue(models.EventTypeFileCreated, "Created: "+path, meta)
}

// FileUpdated records a modified file with an optional change summary.
func (t *Tracker) FileUpdated(path, changes string) {
	meta := models.Metadata{"filePath": models.String(path)}
	if changes != "" {
		meta["changes"] = models.String(changes)
	}
	t.enqueue(models.EventTypeFileUpdated, "Updated: "+path, meta)
}

// FileDeleted records a removed file.
func (t *Tracker) FileDeleted(path string) {
	t.enqueue(models.EventTypeFileDeleted, "Deleted: "+path, models.Metadata{"filePath": models.String(path)})
}

// CommandExecuted records command only when it matches the allow-list.
// note is stored as metadata["context"].
func (t *Tracker) CommandExecuted(command, note string) {
	if !t.Important(command) {
		t.logger.Debug("command not tracked", "command", truncate(command, 40))
		return
	}

	meta := models.Metadata{"command": models.String(truncate(command, t.cfg.CommandMaxLen))}
	if note != "" {
		meta["context"] = models.String(note)
	}
	t.enqueue(models.EventTypeToolExecuted, "Executed: "+firstWord(command), meta)
}

// Important reports whether command contains an allow-listed substring.
func (t *Tracker) Important(command string) bool {
	for _, s := range t.cfg.ImportantCommands {
		if s != "" && strings.Contains(command, s) {
			return true
		}
	}
	return false
}

// TaskCompleted records a finished task and requests an immediate flush.
func (t *Tracker) TaskCompleted(description string, meta models.Metadata) {
	if t.enqueue(models.EventTypeTaskCompleted, description, meta) {
		t.sched.RequestFlush()
	}
}

// AgentAction records a generic agent action.
func (t *Tracker) AgentAction(description string, meta models.Metadata) {
	t.enqueue(models.EventTypeAgentAction, description, meta)
}

// SystemEvent records a system-level event.
func (t *Tracker) SystemEvent(description string, meta models.Metadata) {
	t.enqueue(models.EventTypeSystemEvent, description, meta)
}

func (t *Tracker) enqueue(typ models.EventType, description string, meta models.Metadata) bool {
	ev, err := models.NewEvent(typ, description, t.cfg.Agent, t.cfg.Source, t.sanitizer.Sanitize(meta), t.clock.Now())
	if err != nil {
		t.logger.Warn("event dropped", "type", string(typ), "error", err)
		return false
	}
	t.sched.Enqueue(ev)
	return true
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
