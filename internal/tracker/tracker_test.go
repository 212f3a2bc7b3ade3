package tracker

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missiontrack/internal/clock"
	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/models"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingClient struct {
	calls   chan []models.Event
	outcome delivery.Outcome
}

func newRecordingClient(outcome delivery.Outcome) *recordingClient {
	return &recordingClient{calls: make(chan []models.Event, 16), outcome: outcome}
}

func (c *recordingClient) Deliver(_ context.Context, batch []models.Event) delivery.Result {
	c.calls <- append([]models.Event(nil), batch...)
	if c.outcome == delivery.Success {
		return delivery.Result{Outcome: delivery.Success, StatusCode: 200}
	}
	return delivery.Result{Outcome: delivery.Failure, Err: &models.ServerError{StatusCode: 500}}
}

func (c *recordingClient) next(t *testing.T) []models.Event {
	t.Helper()
	select {
	case b := <-c.calls:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func newTestTracker(client delivery.Client, cfg Config) (*Tracker, *clock.FakeClock) {
	fc := clock.Fake(epoch)
	return New(cfg, client, WithClock(fc)), fc
}

// snapshot returns queued events without sending them.
func snapshot(tr *Tracker) []models.Event {
	return tr.sched.Queue().Snapshot()
}

func TestFileHelpers_BuildTemplatedEvents(t *testing.T) {
	tr, _ := newTestTracker(delivery.Disabled{}, Config{})

	tr.FileCreated("a.txt", 12)
	tr.FileCreated("empty.txt", 0)
	tr.FileUpdated("b.txt", "+3 -1")
	tr.FileDeleted("c.txt")

	events := snapshot(tr)
	require.Len(t, events, 4)

	assert.Equal(t, models.EventTypeFileCreated, events[0].Type())
	assert.Equal(t, "Created: a.txt", events[0].Description())
	assert.True(t, models.Metadata{"filePath": models.String("a.txt"), "lines": models.Int(12)}.Equal(events[0].Metadata()))
	assert.True(t, models.Metadata{"filePath": models.String("empty.txt")}.Equal(events[1].Metadata()))

	assert.Equal(t, models.EventTypeFileUpdated, events[2].Type())
	assert.Equal(t, "Updated: b.txt", events[2].Description())
	assert.True(t, models.Metadata{"filePath": models.String("b.txt"), "changes": models.String("+3 -1")}.Equal(events[2].Metadata()))

	assert.Equal(t, models.EventTypeFileDeleted, events[3].Type())
	assert.Equal(t, "Deleted: c.txt", events[3].Description())

	for _, ev := range events {
		assert.Equal(t, DefaultAgent, ev.Agent())
		assert.Equal(t, DefaultSource, ev.Source())
		assert.Equal(t, epoch.UnixMilli(), ev.Timestamp())
	}
}

func TestCommandExecuted_AllowList(t *testing.T) {
	tr, _ := newTestTracker(delivery.Disabled{}, Config{})

	tr.CommandExecuted("ls -la", "")
	tr.CommandExecuted("cat README.md", "")
	require.Equal(t, 0, tr.Pending())

	long := "git commit -m \"" + strings.Repeat("x", 200) + "\""
	tr.CommandExecuted(long, "release prep")

	events := snapshot(tr)
	require.Len(t, events, 1)
	ev := events[0]
	require.Equal(t, models.EventTypeToolExecuted, ev.Type())
	require.Equal(t, "Executed: git", ev.Description())

	cmd, ok := ev.Metadata()["command"].Str()
	require.True(t, ok)
	require.Len(t, []rune(cmd), DefaultCommandMaxLen)
	require.True(t, strings.HasPrefix(long, cmd))

	note, _ := ev.Metadata()["context"].Str()
	require.Equal(t, "release prep", note)
}

func TestCommandExecuted_CustomListAndLength(t *testing.T) {
	tr, _ := newTestTracker(delivery.Disabled{}, Config{ImportantCommands: []string{"make"}, CommandMaxLen: 8})

	tr.CommandExecuted("git status", "")
	tr.CommandExecuted("make déploiement", "")

	events := snapshot(tr)
	require.Len(t, events, 1)
	cmd, _ := events[0].Metadata()["command"].Str()
	require.Equal(t, "make dép", cmd)
}

func TestTruncate_RuneSafe(t *testing.T) {
	require.Equal(t, "héllo", truncate("héllo", 10))
	require.Equal(t, "hé", truncate("héllo", 2))
	require.Equal(t, "日本", truncate("日本語", 2))
	require.Equal(t, "abc", truncate("abc", 0))
}

func TestTaskCompleted_ForcesImmediateFlush(t *testing.T) {
	client := newRecordingClient(delivery.Success)
	tr, fc := newTestTracker(client, Config{})

	tr.Initialize()
	defer func() { _ = tr.Shutdown(context.Background()) }()
	fc.WaitForTickers(1)

	tr.TaskCompleted("Ship release", models.Metadata{"version": models.String("1.2.0")})

	batch := client.next(t)
	require.Len(t, batch, 1)
	require.Equal(t, models.EventTypeTaskCompleted, batch[0].Type())
	require.Equal(t, "Ship release", batch[0].Description())
	require.Eventually(t, func() bool { return tr.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestMetadataIsSanitizedBeforeEnqueue(t *testing.T) {
	tr, _ := newTestTracker(delivery.Disabled{}, Config{})

	input := models.Metadata{"apiKey": models.String("abc"), "note": models.String("ok")}
	tr.AgentAction("Called API", input)

	events := snapshot(tr)
	require.Len(t, events, 1)
	meta := events[0].Metadata()
	got, _ := meta["apiKey"].Str()
	require.Equal(t, "***", got)
	got, _ = meta["note"].Str()
	require.Equal(t, "ok", got)

	orig, _ := input["apiKey"].Str()
	require.Equal(t, "abc", orig)
}

func TestInvalidEventIsDropped(t *testing.T) {
	tr, _ := newTestTracker(delivery.Disabled{}, Config{})

	tr.SystemEvent("   ", nil)
	tr.Track(models.EventType("bogus"), "x", nil)
	require.Equal(t, 0, tr.Pending())

	tr.SystemEvent("Gateway restarted", nil)
	require.Equal(t, 1, tr.Pending())
}

func TestNonFiniteMetadataDoesNotBlockDelivery(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, _ := newTestTracker(delivery.NewHTTPClient(delivery.Options{BaseURL: srv.URL}), Config{})

	tr.AgentAction("bad ratio", models.Metadata{"ratio": models.Number(math.NaN())})
	tr.AgentAction("bad nested", models.Metadata{"stats": models.Map(models.Metadata{"max": models.Number(math.Inf(1))})})
	tr.FileCreated("good.txt", 1)
	require.Equal(t, 1, tr.Pending())

	res := tr.Flush(context.Background())
	require.True(t, res.OK(), "flush failed: %v", res.Err)
	assert.Equal(t, 0, tr.Pending())
	assert.Equal(t, int32(1), hits.Load())
}

func TestShutdown_FinalFlush(t *testing.T) {
	client := newRecordingClient(delivery.Success)
	tr, fc := newTestTracker(client, Config{})

	tr.Initialize()
	fc.WaitForTickers(1)
	tr.FileCreated("a.txt", 1)
	tr.FileCreated("b.txt", 2)

	require.NoError(t, tr.Shutdown(context.Background()))
	require.Len(t, client.next(t), 2)
	require.Equal(t, 0, tr.Pending())
	require.Equal(t, 0, fc.ActiveTickers())
}

func TestDisabledClient_KeepsEventsQueued(t *testing.T) {
	tr, _ := newTestTracker(nil, Config{})

	tr.FileDeleted("gone.txt")
	res := tr.Flush(context.Background())

	require.False(t, res.OK())
	require.ErrorIs(t, res.Err, models.ErrConfig)
	require.Equal(t, 1, tr.Pending())
}

func TestEndToEnd_IntervalFlushFailureRequeues(t *testing.T) {
	client := newRecordingClient(delivery.Failure)
	tr, fc := newTestTracker(client, Config{})

	tr.Initialize()
	defer func() { _ = tr.Shutdown(context.Background()) }()
	fc.WaitForTickers(1)

	tr.FileUpdated("a.txt", "")
	tr.FileUpdated("b.txt", "")
	tr.FileUpdated("c.txt", "")

	fc.Advance(tr.Config().FlushInterval)

	batch := client.next(t)
	require.Len(t, batch, 3)
	want := []string{"Updated: a.txt", "Updated: b.txt", "Updated: c.txt"}
	for i, ev := range batch {
		require.Equal(t, want[i], ev.Description())
	}

	require.Eventually(t, func() bool { return tr.Pending() == 3 }, 2*time.Second, 5*time.Millisecond)
	for i, ev := range snapshot(tr) {
		require.Equal(t, want[i], ev.Description())
	}
	select {
	case <-client.calls:
		t.Fatal("expected exactly one delivery attempt")
	default:
	}
}

func TestConfig_Defaults(t *testing.T) {
	tr, _ := newTestTracker(nil, Config{Agent: "Nova"})
	cfg := tr.Config()

	require.Equal(t, "Nova", cfg.Agent)
	require.Equal(t, DefaultSource, cfg.Source)
	require.Equal(t, 10, cfg.BatchSize)
	require.Equal(t, 30*time.Second, cfg.FlushInterval)
	require.Equal(t, DefaultImportantCommands, cfg.ImportantCommands)
	require.Equal(t, DefaultCommandMaxLen, cfg.CommandMaxLen)
}
