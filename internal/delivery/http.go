package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dotcommander/missiontrack/internal/models"
)

const (
	// DefaultTimeout bounds a single attempt when Options.Timeout is unset.
	DefaultTimeout = 10 * time.Second

	// BatchPath receives {"activities": [...]} via PUT.
	BatchPath = "/api/webhook"

	// SinglePath receives one event via POST.
	SinglePath = "/api/activities"

	// maxErrorBodyBytes caps how much of a failed response is kept for logs.
	maxErrorBodyBytes = 512

	// maxDrainBytes caps how much of a response body is read before closing.
	maxDrainBytes = 64 << 10
)

// Options configures an HTTPClient.
type Options struct {
	BaseURL string
	// Secret, when set, is sent as "Authorization: Bearer <secret>".
	Secret  string
	Timeout time.Duration
	// HTTP overrides the underlying client (tests); its Timeout is replaced.
	HTTP   *http.Client
	Logger *slog.Logger
}

// HTTPClient delivers batches over HTTP.
type HTTPClient struct {
	baseURL string
	secret  string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// New returns an HTTPClient, or Disabled when opts.BaseURL is empty.
func New(opts Options) Client {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return Disabled{}
	}
	return NewHTTPClient(opts)
}

// NewHTTPClient builds an HTTPClient for opts.BaseURL.
func NewHTTPClient(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &http.Client{}
	if opts.HTTP != nil {
		cp := *opts.HTTP
		hc = &cp
	}
	hc.Timeout = timeout

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		secret:  opts.Secret,
		timeout: timeout,
		http:    hc,
		logger:  logger,
	}
}

// BaseURL returns the endpoint root the client targets.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

type batchPayload struct {
	Activities []models.Event `json:"activities"`
}

// Deliver sends batch in one PUT to the batch endpoint.
func (c *HTTPClient) Deliver(ctx context.Context, batch []models.Event) Result {
	if len(batch) == 0 {
		return Result{Outcome: Success}
	}
	return c.send(ctx, http.MethodPut, BatchPath, batchPayload{Activities: batch})
}

// SendOne sends a single event to the single-event endpoint.
func (c *HTTPClient) SendOne(ctx context.Context, ev models.Event) Result {
	return c.send(ctx, http.MethodPost, SinglePath, ev)
}

func (c *HTTPClient) send(ctx context.Context, method, path string, payload any) Result {
	start := time.Now()
	endpoint := c.baseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		// Encoding failures are reported as transport failures.
		return Result{
			Outcome:  Failure,
			Err:      &models.TransportError{Endpoint: endpoint, Err: fmt.Errorf("encode payload: %w", err)},
			Duration: time.Since(start),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{
			Outcome:  Failure,
			Err:      &models.TransportError{Endpoint: endpoint, Err: err},
			Duration: time.Since(start),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{
			Outcome:  Failure,
			Err:      &models.TransportError{Endpoint: endpoint, Timeout: isTimeout(ctx, err), Err: err},
			Duration: time.Since(start),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		return Result{Outcome: Success, StatusCode: resp.StatusCode, Duration: time.Since(start)}
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	c.logger.Debug("delivery rejected", "endpoint", endpoint, "status", resp.StatusCode)
	return Result{
		Outcome:    Failure,
		StatusCode: resp.StatusCode,
		Err: &models.ServerError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		},
		Duration: time.Since(start),
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
