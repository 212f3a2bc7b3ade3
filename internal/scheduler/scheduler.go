// Package scheduler decides when queued events are flushed and coordinates
// the queue with the delivery client.
//
// A running scheduler owns one consumer goroutine. Flushes are triggered by
// the periodic ticker, by the queue reaching the size threshold, by explicit
// requests, and once more on Stop. At most one delivery attempt is in flight
// at any time; triggers that arrive during an attempt collapse into a single
// pending request that is evaluated when the attempt ends.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotcommander/missiontrack/internal/clock"
	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/models"
	"github.com/dotcommander/missiontrack/internal/queue"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultInterval       = 30 * time.Second
	DefaultThreshold      = 10
	DefaultAttemptTimeout = 15 * time.Second
)

// State is the scheduler's externally visible state.
type State int

// Scheduler states. Idle and Flushing are sub-states of running.
const (
	Stopped State = iota
	Idle
	Flushing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Flushing:
		return "flushing"
	default:
		return "stopped"
	}
}

// Trigger names what caused a flush attempt.
type Trigger string

// Flush triggers.
const (
	TriggerTimer     Trigger = "timer"
	TriggerThreshold Trigger = "threshold"
	TriggerForced    Trigger = "forced"
	TriggerShutdown  Trigger = "shutdown"
	TriggerManual    Trigger = "manual"
)

// Attempt summarizes one delivery attempt for a Recorder.
type Attempt struct {
	Trigger        Trigger
	StartedAt      time.Time
	BatchSize      int
	Result         delivery.Result
	FirstTimestamp int64
	LastTimestamp  int64
}

// Recorder receives a summary of every delivery attempt. Errors are logged
// and otherwise ignored.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// Options configures a Scheduler.
type Options struct {
	Interval  time.Duration
	Threshold int
	// AttemptTimeout bounds the context handed to the client for each attempt.
	AttemptTimeout time.Duration
	Clock          clock.Clock
	Logger         *slog.Logger
	Recorder       Recorder
}

// Scheduler flushes a Queue through a delivery Client.
type Scheduler struct {
	queue          *queue.Queue
	client         delivery.Client
	clock          clock.Clock
	logger         *slog.Logger
	recorder       Recorder
	interval       time.Duration
	threshold      int
	attemptTimeout time.Duration

	// flushMu serializes delivery attempts; flushing mirrors it for State().
	flushMu  sync.Mutex
	flushing atomic.Bool

	// kick is shared by every consumer generation.
	kick chan Trigger

	mu      sync.Mutex
	running bool
	stopCh  chan stopRequest
	done    chan struct{}
}

type stopRequest struct {
	final bool
}

// New returns a stopped Scheduler.
func New(q *queue.Queue, client delivery.Client, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		queue:          q,
		client:         client,
		clock:          opts.Clock,
		logger:         opts.Logger,
		recorder:       opts.Recorder,
		interval:       opts.Interval,
		threshold:      opts.Threshold,
		attemptTimeout: opts.AttemptTimeout,
		kick:           make(chan Trigger, 1),
	}
}

// State reports whether the scheduler is stopped, idle, or flushing.
func (s *Scheduler) State() State {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	switch {
	case !running:
		return Stopped
	case s.flushing.Load():
		return Flushing
	default:
		return Idle
	}
}

// Queue returns the queue the scheduler drains.
func (s *Scheduler) Queue() *queue.Queue { return s.queue }

// Start launches the consumer goroutine and periodic ticker. Calling Start
// on a running scheduler restarts the ticker; queued events and pending
// flush requests are kept. The previous consumer exits after its current
// attempt, and Start waits for it without holding s.mu.
func (s *Scheduler) Start() {
	s.mu.Lock()
	var prevStop chan stopRequest
	var prevDone chan struct{}
	if s.running {
		prevStop, prevDone = s.stopCh, s.done
	}

	s.stopCh = make(chan stopRequest, 1)
	s.done = make(chan struct{})
	s.running = true

	ticker := s.clock.NewTicker(s.interval)
	go s.loop(ticker, s.kick, s.stopCh, s.done)
	s.mu.Unlock()

	if prevStop != nil {
		prevStop <- stopRequest{final: false}
		<-prevDone
	}
}

// Stop performs one final best-effort flush, cancels the ticker, and waits
// for the consumer to exit or for ctx to end. Every caller waits on the same
// consumer, so a second Stop returns only after the final flush is done.
// Stop on a scheduler that never started is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	if s.running {
		s.stopCh <- stopRequest{final: true}
		s.running = false
	}
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue appends ev and requests a flush once the queue reaches the size
// threshold. It returns the new queue length.
func (s *Scheduler) Enqueue(ev models.Event) int {
	n := s.queue.Enqueue(ev)
	if n >= s.threshold {
		s.request(TriggerThreshold)
	}
	return n
}

// RequestFlush asks the consumer to flush regardless of queue length. It
// never blocks; a request made while one is already pending is merged.
func (s *Scheduler) RequestFlush() {
	s.request(TriggerForced)
}

func (s *Scheduler) request(t Trigger) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}
	select {
	case s.kick <- t:
	default:
	}
}

// Flush runs one flush round synchronously. The bool is false when the
// queue was empty and no attempt was made.
func (s *Scheduler) Flush(ctx context.Context) (delivery.Result, bool) {
	return s.flush(ctx, TriggerManual)
}

func (s *Scheduler) loop(ticker *clock.Ticker, kick <-chan Trigger, stopCh <-chan stopRequest, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ticker.C:
			s.flush(context.Background(), TriggerTimer)
		case t := <-kick:
			s.flush(context.Background(), t)
		case req := <-stopCh:
			if req.final {
				s.flush(context.Background(), TriggerShutdown)
			}
			ticker.Stop()
			return
		}
	}
}

func (s *Scheduler) flush(ctx context.Context, trigger Trigger) (delivery.Result, bool) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	batch := s.queue.Drain()
	if len(batch) == 0 {
		return delivery.Result{Outcome: delivery.Success}, false
	}

	s.flushing.Store(true)
	defer s.flushing.Store(false)

	started := s.clock.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	res := s.client.Deliver(attemptCtx, batch)
	cancel()

	if res.OK() {
		s.logger.Debug("batch delivered",
			"trigger", string(trigger),
			"batch_size", len(batch),
			"duration_ms", res.Duration.Milliseconds())
	} else {
		s.queue.Prepend(batch)
		if res.Err == nil {
			res.Err = errors.New("delivery failed")
		}
		attrs := []any{
			"trigger", string(trigger),
			"batch_size", len(batch),
			"queued", s.queue.Len(),
			"error", res.Err.Error(),
		}
		if code := models.ErrorCode(res.Err); code != "" {
			attrs = append(attrs, "error_code", code)
		}
		s.logger.Warn("batch delivery failed; requeued", attrs...)
	}

	s.record(ctx, Attempt{
		Trigger:        trigger,
		StartedAt:      started,
		BatchSize:      len(batch),
		Result:         res,
		FirstTimestamp: batch[0].Timestamp(),
		LastTimestamp:  batch[len(batch)-1].Timestamp(),
	})

	return res, true
}

func (s *Scheduler) record(ctx context.Context, a Attempt) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordAttempt(ctx, a); err != nil {
		s.logger.Warn("record delivery attempt failed", "error", err)
	}
}
