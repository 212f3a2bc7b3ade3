package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dotcommander/missiontrack/internal/delivery"
	"github.com/dotcommander/missiontrack/internal/models"
	"github.com/dotcommander/missiontrack/internal/scheduler"
)

// AttemptRecord is one row of the delivery journal.
type AttemptRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Trigger      string    `json:"trigger"`
	StartedAt    time.Time `json:"started_at"`
	BatchSize    int       `json:"batch_size"`
	Outcome      string    `json:"outcome"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StatusCode   int       `json:"status_code,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	FirstEventTS int64     `json:"first_event_ts"`
	LastEventTS  int64     `json:"last_event_ts"`
}

// ListFilter narrows ListAttempts. Zero values match everything.
type ListFilter struct {
	Limit     int
	Outcome   string
	SessionID string
}

// AttemptSummary aggregates the journal.
type AttemptSummary struct {
	Total           int        `json:"total"`
	Successes       int        `json:"successes"`
	Failures        int        `json:"failures"`
	EventsDelivered int        `json:"events_delivered"`
	AvgDurationMS   float64    `json:"avg_duration_ms"`
	LastSuccessAt   *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt   *time.Time `json:"last_failure_at,omitempty"`
	LastErrorCode   string     `json:"last_error_code,omitempty"`
}

const maxErrorMessageLen = 500

// InsertAttempt appends rec to the journal.
func InsertAttempt(ctx context.Context, db *sql.DB, rec AttemptRecord) error {
	if rec.ID == "" || rec.SessionID == "" {
		return errors.New("attempt id and session id are required")
	}
	if rec.Outcome != delivery.Success.String() && rec.Outcome != delivery.Failure.String() {
		return fmt.Errorf("invalid outcome %q", rec.Outcome)
	}
	if len(rec.ErrorMessage) > maxErrorMessageLen {
		rec.ErrorMessage = rec.ErrorMessage[:maxErrorMessageLen]
	}

	return RetryWithBackoff(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO delivery_attempts (
				id, session_id, flush_trigger, started_at, batch_size, outcome,
				error_code, error_message, status_code, duration_ms,
				first_event_ts, last_event_ts
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.SessionID, rec.Trigger, rec.StartedAt.UnixMilli(), rec.BatchSize, rec.Outcome,
			rec.ErrorCode, rec.ErrorMessage, rec.StatusCode, rec.DurationMS,
			rec.FirstEventTS, rec.LastEventTS)
		if err != nil {
			return fmt.Errorf("insert delivery attempt: %w", err)
		}
		return nil
	})
}

// ListAttempts returns attempts newest first.
func ListAttempts(ctx context.Context, db *sql.DB, f ListFilter) ([]AttemptRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var where []string
	var args []any
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}

	query := `
		SELECT id, session_id, flush_trigger, started_at, batch_size, outcome,
		       error_code, error_message, status_code, duration_ms,
		       first_event_ts, last_event_ts
		FROM delivery_attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AttemptRecord
	for rows.Next() {
		var rec AttemptRecord
		var startedMS int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Trigger, &startedMS, &rec.BatchSize, &rec.Outcome,
			&rec.ErrorCode, &rec.ErrorMessage, &rec.StatusCode, &rec.DurationMS,
			&rec.FirstEventTS, &rec.LastEventTS); err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedMS).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SummarizeAttempts aggregates the whole journal.
func SummarizeAttempts(ctx context.Context, db *sql.DB) (AttemptSummary, error) {
	var s AttemptSummary
	var avg sql.NullFloat64
	var delivered sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(outcome = 'success'), 0),
		       COALESCE(SUM(outcome = 'failure'), 0),
		       SUM(CASE WHEN outcome = 'success' THEN batch_size ELSE 0 END),
		       AVG(duration_ms)
		FROM delivery_attempts
	`).Scan(&s.Total, &s.Successes, &s.Failures, &delivered, &avg)
	if err != nil {
		return AttemptSummary{}, fmt.Errorf("summarize delivery attempts: %w", err)
	}
	s.EventsDelivered = int(delivered.Int64)
	s.AvgDurationMS = avg.Float64

	if s.LastSuccessAt, _, err = lastAttempt(ctx, db, delivery.Success.String()); err != nil {
		return AttemptSummary{}, err
	}
	if s.LastFailureAt, s.LastErrorCode, err = lastAttempt(ctx, db, delivery.Failure.String()); err != nil {
		return AttemptSummary{}, err
	}
	return s, nil
}

func lastAttempt(ctx context.Context, db *sql.DB, outcome string) (*time.Time, string, error) {
	var ms int64
	var code string
	err := db.QueryRowContext(ctx, `
		SELECT started_at, error_code FROM delivery_attempts
		WHERE outcome = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, outcome).Scan(&ms, &code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("query last %s attempt: %w", outcome, err)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, code, nil
}

// PruneAttempts deletes attempts that started before cutoff and returns the
// number removed.
func PruneAttempts(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	var n int64
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM delivery_attempts WHERE started_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return fmt.Errorf("prune delivery attempts: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// Journal records scheduler attempts under one session id.
type Journal struct {
	db        *sql.DB
	sessionID string
}

// NewJournal returns a Journal with a fresh session id.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, sessionID: uuid.NewString()}
}

// SessionID identifies the process that wrote the rows.
func (j *Journal) SessionID() string { return j.sessionID }

// RecordAttempt implements scheduler.Recorder.
func (j *Journal) RecordAttempt(ctx context.Context, a scheduler.Attempt) error {
	rec := AttemptRecord{
		ID:           uuid.NewString(),
		SessionID:    j.sessionID,
		Trigger:      string(a.Trigger),
		StartedAt:    a.StartedAt,
		BatchSize:    a.BatchSize,
		Outcome:      a.Result.Outcome.String(),
		StatusCode:   a.Result.StatusCode,
		DurationMS:   a.Result.Duration.Milliseconds(),
		FirstEventTS: a.FirstTimestamp,
		LastEventTS:  a.LastTimestamp,
	}
	if a.Result.Err != nil {
		rec.ErrorCode = models.ErrorCode(a.Result.Err)
		rec.ErrorMessage = a.Result.Err.Error()
	}
	return InsertAttempt(ctx, j.db, rec)
}

var _ scheduler.Recorder = (*Journal)(nil)
