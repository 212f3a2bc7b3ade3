package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dotcommander/missiontrack/internal/app"
	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/scheduler"
	"github.com/dotcommander/missiontrack/internal/store"
	"github.com/dotcommander/missiontrack/internal/tracker"
)

// shutdownGrace is added to the attempt timeout when bounding the final flush.
const shutdownGrace = 2 * time.Second

// attemptLog keeps the attempts made during one command and forwards each
// to the journal when one is open.
type attemptLog struct {
	mu       sync.Mutex
	attempts []scheduler.Attempt
	next     scheduler.Recorder
}

func (l *attemptLog) RecordAttempt(ctx context.Context, a scheduler.Attempt) error {
	l.mu.Lock()
	l.attempts = append(l.attempts, a)
	l.mu.Unlock()
	if l.next == nil {
		return nil
	}
	return l.next.RecordAttempt(ctx, a)
}

func (l *attemptLog) snapshot() []scheduler.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]scheduler.Attempt(nil), l.attempts...)
}

// deliveryReport is the data payload of every event-producing command.
type deliveryReport struct {
	Tracked   int    `json:"tracked"`
	Delivered int    `json:"delivered"`
	Pending   int    `json:"pending"`
	Attempts  int    `json:"attempts"`
	Endpoint  string `json:"endpoint,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// session owns one tracker plus its journal for the life of a command.
type session struct {
	rt       runtimeConfig
	tracker  *tracker.Tracker
	journal  *store.Journal
	log      *attemptLog
	closeDB  func()
	stopOnce sync.Once
	stopErr  error
}

func newClient(ts app.TrackerSettings) delivery.Client {
	return delivery.New(delivery.Options{
		BaseURL: ts.BaseURL,
		Secret:  ts.WebhookSecret,
		Timeout: ts.RequestTimeout,
	})
}

// openSession builds a started tracker. The journal is best effort: a
// journal that cannot be opened is logged and skipped.
func openSession(rt runtimeConfig) *session {
	s := &session{rt: rt, log: &attemptLog{}, closeDB: func() {}}

	if !rt.noJournal {
		db, closeDB, err := openDB(rt)
		if err != nil {
			slog.Warn("delivery journal unavailable", "error", err)
		} else {
			s.journal = store.NewJournal(db)
			s.log.next = s.journal
			s.closeDB = closeDB
		}
	}

	s.tracker = tracker.New(rt.tracker.TrackerConfig(), newClient(rt.tracker), tracker.WithRecorder(s.log))
	s.tracker.Initialize()
	return s
}

// shutdown stops the tracker once, bounding the final flush.
func (s *session) shutdown() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.awaitStop()
	})
	return s.stopErr
}

func (s *session) awaitStop() error {
	timeout := s.tracker.Config().AttemptTimeout + shutdownGrace
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.tracker.Shutdown(ctx)
}

// close shuts the tracker down and releases the journal. A final flush that
// outlived shutdown still records into the journal, so the journal is
// closed only after it ends. Safe to defer alongside an explicit shutdown.
func (s *session) close() {
	if err := s.shutdown(); err != nil {
		slog.Warn("tracker shutdown incomplete", "error", err)
		if err := s.awaitStop(); err != nil {
			slog.Warn("final flush still running; journal left open", "error", err)
			return
		}
	}
	s.closeDB()
}

// finish shuts down and summarizes. Events still queued afterwards are lost
// when the process exits, so they are reported as an error carrying the
// last delivery failure.
func (s *session) finish() (deliveryReport, error) {
	stopErr := s.shutdown()

	attempts := s.log.snapshot()
	rep := deliveryReport{
		Pending:  s.tracker.Pending(),
		Attempts: len(attempts),
		Endpoint: s.rt.tracker.BaseURL,
	}
	if s.journal != nil {
		rep.SessionID = s.journal.SessionID()
	}

	var lastErr error
	for _, a := range attempts {
		if a.Result.OK() {
			rep.Delivered += a.BatchSize
		} else {
			lastErr = a.Result.Err
		}
	}
	rep.Tracked = rep.Delivered + rep.Pending

	if rep.Pending == 0 {
		return rep, nil
	}
	if lastErr != nil {
		return rep, lastErr
	}
	if stopErr != nil {
		return rep, fmt.Errorf("%d events not delivered: %w", rep.Pending, stopErr)
	}
	return rep, fmt.Errorf("%d events not delivered", rep.Pending)
}
