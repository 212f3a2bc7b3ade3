package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/missiontrack/internal/app"
)

type backendRequest struct {
	Method     string
	Path       string
	Auth       string
	Activities []map[string]any
	Single     map[string]any
}

// backend is a fake mission control endpoint.
type backend struct {
	mu       sync.Mutex
	status   int
	requests []backendRequest
	srv      *httptest.Server
}

func newBackend(t *testing.T, status int) *backend {
	t.Helper()
	b := &backend{status: status}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := backendRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if r.Method == http.MethodPut {
			var payload struct {
				Activities []map[string]any `json:"activities"`
			}
			_ = json.Unmarshal(body, &payload)
			req.Activities = payload.Activities
		} else {
			_ = json.Unmarshal(body, &req.Single)
		}

		b.mu.Lock()
		b.requests = append(b.requests, req)
		status := b.status
		b.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) all() []backendRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backendRequest(nil), b.requests...)
}

// isolateCLI points HOME, the working directory and every setting at
// temporary locations. baseURL becomes MISSION_CONTROL_URL verbatim.
func isolateCLI(t *testing.T, baseURL string) (journalPath string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(app.EnvBaseURL, baseURL)
	for _, k := range []string{app.EnvSecret, app.EnvAgent} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	journalPath = filepath.Join(t.TempDir(), "journal.db")
	t.Setenv(app.EnvJournalPath, journalPath)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return journalPath
}

// runCLI executes the root command and returns what it printed to stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), stdin, args...)
}

func runCLIContext(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = original }()

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(done)
	}()

	root := newRootCmd("test")
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	runErr := root.ExecuteContext(ctx)

	require.NoError(t, w.Close())
	<-done
	return buf.String(), runErr
}

type envelope struct {
	Success         bool              `json:"success"`
	Data            json.RawMessage   `json:"data"`
	Error           string            `json:"error"`
	ErrorCode       string            `json:"error_code"`
	ErrorContext    map[string]string `json:"error_context"`
	SuggestedAction string            `json:"suggested_action"`
}

func decodeEnvelope(t *testing.T, out string) envelope {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &env), out)
	return env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
