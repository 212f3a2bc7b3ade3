package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/models"
	"github.com/dotcommander/missiontrack/internal/tracker"
)

// capture collects every delivered event.
type capture struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *capture) client() delivery.Client {
	return delivery.ClientFunc(func(_ context.Context, batch []models.Event) delivery.Result {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, batch...)
		return delivery.Result{Outcome: delivery.Success}
	})
}

func dispatchAndFlush(t *testing.T, in hookInput) ([]models.Event, bool) {
	t.Helper()
	c := &capture{}
	tr := tracker.New(tracker.DefaultConfig(), c.client())
	mapped := dispatchHook(tr, in)
	tr.Flush(context.Background())
	return c.events, mapped
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDispatchHook_Write(t *testing.T) {
	cwd := filepath.Join(string(filepath.Separator), "work", "repo")

	evs, mapped := dispatchAndFlush(t, hookInput{
		CWD:           cwd,
		HookEventName: "PostToolUse",
		ToolName:      "Write",
		ToolInput:     raw(t, map[string]any{"file_path": filepath.Join(cwd, "cmd", "main.go"), "content": "package main\n\nfunc main() {}\n"}),
		ToolResponse:  raw(t, map[string]any{"type": "create"}),
	})
	require.True(t, mapped)
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventTypeFileCreated, evs[0].Type())
	assert.Equal(t, "Created: "+filepath.Join("cmd", "main.go"), evs[0].Description())
	lines, _ := evs[0].Metadata()["lines"].Num()
	assert.Equal(t, float64(3), lines)

	evs, _ = dispatchAndFlush(t, hookInput{
		ToolName:     "Write",
		ToolInput:    raw(t, map[string]any{"file_path": "/elsewhere/notes.md", "content": "x"}),
		ToolResponse: raw(t, map[string]any{"type": "update"}),
	})
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventTypeFileUpdated, evs[0].Type())
	assert.Equal(t, "Updated: /elsewhere/notes.md", evs[0].Description())
}

func TestDispatchHook_EditAndMultiEdit(t *testing.T) {
	evs, _ := dispatchAndFlush(t, hookInput{
		ToolName:  "Edit",
		ToolInput: raw(t, map[string]any{"file_path": "a.go", "old_string": "x", "new_string": "y"}),
	})
	require.Len(t, evs, 1)
	changes, _ := evs[0].Metadata()["changes"].Str()
	assert.Equal(t, "1 edit", changes)

	evs, _ = dispatchAndFlush(t, hookInput{
		ToolName:  "MultiEdit",
		ToolInput: raw(t, map[string]any{"file_path": "a.go", "edits": []any{map[string]any{}, map[string]any{}, map[string]any{}}}),
	})
	require.Len(t, evs, 1)
	changes, _ = evs[0].Metadata()["changes"].Str()
	assert.Equal(t, "3 edits", changes)
}

func TestDispatchHook_BashUsesImportantFilter(t *testing.T) {
	evs, mapped := dispatchAndFlush(t, hookInput{
		ToolName:  "Bash",
		ToolInput: raw(t, map[string]any{"command": "npm run build", "description": "Build the site"}),
	})
	require.True(t, mapped)
	require.Len(t, evs, 1)
	assert.Equal(t, "Executed: npm", evs[0].Description())
	note, _ := evs[0].Metadata()["context"].Str()
	assert.Equal(t, "Build the site", note)

	evs, mapped = dispatchAndFlush(t, hookInput{
		ToolName:  "Bash",
		ToolInput: raw(t, map[string]any{"command": "ls -la"}),
	})
	require.True(t, mapped)
	require.Empty(t, evs)
}

func TestDispatchHook_OtherToolsAndFailures(t *testing.T) {
	evs, _ := dispatchAndFlush(t, hookInput{
		SessionID: "sess-1",
		ToolName:  "WebFetch",
		ToolInput: raw(t, map[string]any{"url": "https://example.com/docs", "prompt": strings.Repeat("p", 400), "api_key": "k"}),
	})
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.Equal(t, models.EventTypeToolExecuted, ev.Type())
	assert.Equal(t, "Fetch URL: https://example.com/docs", ev.Description())

	meta := ev.Metadata()
	tool, _ := meta["tool"].Str()
	assert.Equal(t, "web_fetch", tool)
	result, _ := meta["result"].Str()
	assert.Equal(t, tracker.ResultSuccess, result)
	session, _ := meta["session_id"].Str()
	assert.Equal(t, "sess-1", session)

	params, ok := meta["params"].Nested()
	require.True(t, ok)
	prompt, _ := params["prompt"].Str()
	assert.Len(t, prompt, maxHookParamLen)
	key, _ := params["api_key"].Str()
	assert.Equal(t, "***", key)

	// A failed edit is a tool error, not a file change.
	evs, _ = dispatchAndFlush(t, hookInput{
		HookEventName: "PostToolUseFailure",
		ToolName:      "Edit",
		ToolInput:     raw(t, map[string]any{"file_path": "a.go"}),
	})
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventTypeToolExecuted, evs[0].Type())
	result, _ = evs[0].Metadata()["result"].Str()
	assert.Equal(t, tracker.ResultError, result)
}

func TestDispatchHook_SessionEventsAndUnknown(t *testing.T) {
	evs, mapped := dispatchAndFlush(t, hookInput{HookEventName: "SessionStart", SessionID: "s", CWD: "/w"})
	require.True(t, mapped)
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventTypeSystemEvent, evs[0].Type())
	assert.Equal(t, "Session started", evs[0].Description())

	evs, mapped = dispatchAndFlush(t, hookInput{HookEventName: "UserPromptSubmit"})
	require.False(t, mapped)
	require.Empty(t, evs)
}

func TestHookCmd_NeverFailsOnDeliveryError(t *testing.T) {
	be := newBackend(t, http.StatusServiceUnavailable)
	isolateCLI(t, be.srv.URL)

	payload := `{"hook_event_name":"PostToolUse","tool_name":"Read","tool_input":{"file_path":"README.md"}}`
	out, err := runCLI(t, payload, "hook")
	require.NoError(t, err, out)

	env := decodeEnvelope(t, out)
	require.True(t, env.Success)
	var data struct {
		Tracked int    `json:"tracked"`
		Pending int    `json:"pending"`
		Mapped  bool   `json:"mapped"`
		Tool    string `json:"tool"`
		Error   string `json:"delivery_error"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.Mapped)
	assert.Equal(t, "Read", data.Tool)
	assert.Equal(t, 1, data.Pending)
	assert.Contains(t, data.Error, "503")
	require.Len(t, be.all(), 1)
}

func TestHookCmd_BadPayload(t *testing.T) {
	isolateCLI(t, "")
	out, err := runCLI(t, "{not json", "hook")
	require.Error(t, err)
	require.False(t, decodeEnvelope(t, out).Success)
}

func TestReadHookStdin_EmptyAndLimited(t *testing.T) {
	in, err := readHookStdin(strings.NewReader("  \n"))
	require.NoError(t, err)
	require.Equal(t, hookInput{}, in)

	huge := `{"tool_name":"Read","pad":"` + strings.Repeat("x", maxHookStdinBytes) + `"}`
	_, err = readHookStdin(strings.NewReader(huge))
	require.Error(t, err, "truncated payload must not decode")
}

func TestToolKey(t *testing.T) {
	cases := map[string]string{
		"Read":                "read",
		"WebFetch":            "web_fetch",
		"WebSearch":           "web_search",
		"MultiEdit":           "multi_edit",
		"URLFetch":            "urlfetch",
		"mcp__github__create": "mcp__github__create",
		"Task2Run":            "task2_run",
	}
	for in, want := range cases {
		assert.Equal(t, want, toolKey(in), in)
	}
}

func TestHookRelPath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b.go"), hookRelPath("/w", "/w/a/b.go"))
	assert.Equal(t, "/other/b.go", hookRelPath("/w", "/other/b.go"))
	assert.Equal(t, "rel.go", hookRelPath("/w", "rel.go"))
	assert.Equal(t, "/w/x.go", hookRelPath("", "/w/x.go"))
}

func TestLineCountAndPluralize(t *testing.T) {
	assert.Equal(t, 0, lineCount(""))
	assert.Equal(t, 1, lineCount("x"))
	assert.Equal(t, 2, lineCount("a\nb\n"))
	assert.Equal(t, "1 edit", pluralize(1, "edit"))
	assert.Equal(t, "0 edits", pluralize(0, "edit"))
}
