package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missiontrack/internal/models"
	"github.com/dotcommander/missiontrack/internal/output"
	"github.com/dotcommander/missiontrack/internal/tracker"
)

const (
	// maxHookStdinBytes caps stdin reads. Hook payloads are small JSON objects;
	// 1 MB is generous headroom that prevents unbounded allocation.
	maxHookStdinBytes = 1 << 20

	// maxHookParamLen caps each string parameter copied from tool_input.
	maxHookParamLen = 256

	// maxHookActionLen caps the action shown in tool descriptions.
	maxHookActionLen = 120
)

// hookActionKeys are tool_input keys tried in order to name the action.
var hookActionKeys = []string{"file_path", "path", "url", "query", "pattern", "command", "description", "prompt"}

// hookInput is the JSON an agent hook sends on stdin.
type hookInput struct {
	CWD           string          `json:"cwd"`
	SessionID     string          `json:"session_id"`
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	ToolResponse  json.RawMessage `json:"tool_response"`
}

// NewHookCmd maps agent hook payloads to tracker calls. Delivery failures
// are logged and reported but never fail the hook.
func NewHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook",
		Short: "Track an agent hook payload read from stdin",
		Long: `Read one hook payload (tool_name, tool_input, tool_response,
hook_event_name) from stdin and track it.

Write becomes file_created (file_updated when the response reports an
update), Edit and MultiEdit become file_updated, Bash goes through the
important-command filter, and every other tool becomes tool_executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readHookStdin(cmd.InOrStdin())
			if err != nil {
				return cmdErr(err)
			}

			rt, err := loadRuntime(cmd)
			if err != nil {
				return cmdErr(err)
			}
			s := openSession(rt)
			defer s.close()

			mapped := dispatchHook(s.tracker, in)

			rep, err := s.finish()
			type resp struct {
				deliveryReport
				HookEvent string `json:"hook_event,omitempty"`
				Tool      string `json:"tool,omitempty"`
				Mapped    bool   `json:"mapped"`
				Error     string `json:"delivery_error,omitempty"`
			}
			out := resp{deliveryReport: rep, HookEvent: in.HookEventName, Tool: in.ToolName, Mapped: mapped}
			if err != nil {
				slog.Warn("hook events not delivered", "error", err, "pending", rep.Pending)
				out.Error = err.Error()
			}
			return output.PrintSuccess(out)
		},
	}
}

func readHookStdin(r io.Reader) (hookInput, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxHookStdinBytes))
	if err != nil {
		return hookInput{}, fmt.Errorf("read hook payload: %w", err)
	}
	var in hookInput
	if len(strings.TrimSpace(string(data))) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return hookInput{}, fmt.Errorf("decode hook payload: %w", err)
	}
	return in, nil
}

// dispatchHook feeds tr and reports whether the payload mapped to a call.
func dispatchHook(tr *tracker.Tracker, in hookInput) bool {
	switch in.HookEventName {
	case "SessionStart":
		tr.SystemEvent("Session started", hookSessionMeta(in))
		return true
	case "SessionEnd":
		tr.SystemEvent("Session ended", hookSessionMeta(in))
		return true
	}
	if in.ToolName == "" {
		return false
	}

	input := decodeObject(in.ToolInput)
	path := hookRelPath(in.CWD, stringField(input, "file_path"))
	failed := in.HookEventName == "PostToolUseFailure"

	switch {
	case failed:
		// reported below as a tool error
	case in.ToolName == "Write":
		if path == "" {
			break
		}
		if stringField(decodeObject(in.ToolResponse), "type") == "update" {
			tr.FileUpdated(path, "rewritten")
		} else {
			tr.FileCreated(path, lineCount(stringField(input, "content")))
		}
		return true
	case in.ToolName == "Edit" || in.ToolName == "MultiEdit":
		if path == "" {
			break
		}
		n := 1
		if edits, ok := input["edits"].([]any); ok {
			n = len(edits)
		}
		tr.FileUpdated(path, pluralize(n, "edit"))
		return true
	case in.ToolName == "Bash":
		command := stringField(input, "command")
		if command == "" {
			return false
		}
		tr.CommandExecuted(command, stringField(input, "description"))
		return true
	}

	result := tracker.ResultSuccess
	if failed {
		result = tracker.ResultError
	}
	var meta models.Metadata
	if in.SessionID != "" {
		meta = models.Metadata{"session_id": models.String(in.SessionID)}
	}
	tr.ToolExecuted(tracker.ToolExecution{
		Tool:     toolKey(in.ToolName),
		Action:   hookAction(in.CWD, input),
		Params:   hookParams(input),
		Result:   result,
		Metadata: meta,
	})
	return true
}

func hookSessionMeta(in hookInput) models.Metadata {
	meta := models.Metadata{}
	if in.SessionID != "" {
		meta["session_id"] = models.String(in.SessionID)
	}
	if in.CWD != "" {
		meta["cwd"] = models.String(in.CWD)
	}
	return meta
}

func decodeObject(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// hookRelPath shortens path to be relative to cwd when it lives inside it.
func hookRelPath(cwd, path string) string {
	if path == "" || cwd == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return path
	}
	return rel
}

func hookAction(cwd string, input map[string]any) string {
	for _, k := range hookActionKeys {
		if v := stringField(input, k); v != "" {
			if k == "file_path" || k == "path" {
				v = hookRelPath(cwd, v)
			}
			return clip(strings.Join(strings.Fields(v), " "), maxHookActionLen)
		}
	}
	return "run"
}

// hookParams copies tool_input, clipping long strings.
func hookParams(input map[string]any) models.Metadata {
	if len(input) == 0 {
		return nil
	}
	meta := models.MetadataFromAny(input)
	for k, v := range meta {
		if s, ok := v.Str(); ok && utf8.RuneCountInString(s) > maxHookParamLen {
			meta[k] = models.String(clip(s, maxHookParamLen))
		}
	}
	return meta
}

// toolKey converts an agent tool name such as "WebFetch" to "web_fetch".
func toolKey(name string) string {
	var b strings.Builder
	var prev rune
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

func lineCount(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
