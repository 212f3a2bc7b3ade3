package tracker

import (
	"time"

	"github.com/dotcommander/missiontrack/internal/models"
)

// Tool results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPartial = "partial"
)

// ToolExecution describes one tool invocation by an agent.
type ToolExecution struct {
	Tool     string
	Action   string
	Params   models.Metadata
	Result   string
	Duration time.Duration
	Metadata models.Metadata
}

var toolNames = map[string]string{
	"read":          "Read file",
	"write":         "Write file",
	"edit":          "Edit file",
	"exec":          "Execute command",
	"web_search":    "Web search",
	"web_fetch":     "Fetch URL",
	"browser":       "Browser action",
	"memory_search": "Search memory",
	"message":       "Send message",
	"cron":          "Cron operation",
	"gateway":       "Gateway operation",
}

// ToolName returns the display name for tool, or tool itself when unknown.
func ToolName(tool string) string {
	if name, ok := toolNames[tool]; ok {
		return name
	}
	return tool
}

// ToolDescription renders "<display name>: <action>".
func ToolDescription(exec ToolExecution) string {
	return ToolName(exec.Tool) + ": " + exec.Action
}

// ToolExecuted records a tool invocation. Caller metadata overrides the
// generated keys.
func (t *Tracker) ToolExecuted(exec ToolExecution) {
	meta := models.Metadata{
		"tool":   models.String(exec.Tool),
		"action": models.String(exec.Action),
		"params": models.Map(t.sanitizer.Sanitize(exec.Params)),
	}
	if exec.Result != "" {
		meta["result"] = models.String(exec.Result)
	}
	if exec.Duration > 0 {
		meta["durationMs"] = models.Int(int(exec.Duration.Milliseconds()))
	}
	for k, v := range exec.Metadata {
		meta[k] = v
	}
	t.enqueue(models.EventTypeToolExecuted, ToolDescription(exec), meta)
}
