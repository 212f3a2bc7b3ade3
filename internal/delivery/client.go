// Package delivery performs single transmission attempts of event batches to
// the mission control ingestion endpoint. It never retries; retry policy
// belongs to the scheduler.
package delivery

import (
	"context"
	"time"

	"github.com/dotcommander/missiontrack/internal/models"
)

// Outcome is the binary result of one attempt.
type Outcome int

// Attempt outcomes.
const (
	Failure Outcome = iota
	Success
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}

// Result describes one delivery attempt. Err is nil on Success and one of
// *models.TransportError, *models.ServerError, *models.ConfigError otherwise.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Err        error
	Duration   time.Duration
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool { return r.Outcome == Success }

// Client sends one batch. Implementations must not retry and must never
// panic or return an error outside Result.
type Client interface {
	Deliver(ctx context.Context, batch []models.Event) Result
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, batch []models.Event) Result

// Deliver calls f.
func (f ClientFunc) Deliver(ctx context.Context, batch []models.Event) Result {
	return f(ctx, batch)
}

// Disabled is the client used when no endpoint is configured. Every attempt
// fails with a ConfigError so events stay queued.
type Disabled struct{}

// Deliver always fails with a ConfigError.
func (Disabled) Deliver(_ context.Context, batch []models.Event) Result {
	if len(batch) == 0 {
		return Result{Outcome: Success}
	}
	return Result{Outcome: Failure, Err: &models.ConfigError{Setting: "base_url"}}
}
