package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mediashelf/internal/library"
	"mediashelf/internal/storage"
)

// CycleRecord is one row of reconcile history.
type CycleRecord struct {
	ID         string
	State      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Report     library.ChangeReport
	Error      string
}

// BeginCycle records the start of a reconcile cycle.
func (s *Store) BeginCycle(ctx context.Context, id string, startedAt time.Time) error {
	ctx = storage.EnsureContext(ctx)
	_, err := s.db.ExecWithRetry(ctx,
		"INSERT INTO cycles (id, state, started_at) VALUES (?, ?, ?)",
		id, "running", storage.FormatTime(startedAt))
	if err != nil {
		return fmt.Errorf("record cycle start: %w", err)
	}
	return nil
}

// FinishCycle records the terminal state and change report of a cycle.
func (s *Store) FinishCycle(ctx context.Context, id, state string, report library.ChangeReport, errMsg string, finishedAt time.Time) error {
	ctx = storage.EnsureContext(ctx)
	warnings, err := json.Marshal(report.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	if report.Warnings == nil {
		warnings = []byte("[]")
	}
	_, err = s.db.ExecWithRetry(ctx, `
UPDATE cycles SET state = ?, finished_at = ?, matched = ?, ambiguous = ?, unmatched = ?, removed = ?, orphaned = ?, moved = ?, warnings_json = ?, error = ?
WHERE id = ?`,
		state,
		storage.FormatTime(finishedAt),
		report.Matched,
		report.Ambiguous,
		report.Unmatched,
		report.Removed,
		report.Orphaned,
		report.Moved,
		string(warnings),
		errMsg,
		id)
	if err != nil {
		return fmt.Errorf("record cycle finish: %w", err)
	}
	return nil
}

// LastCycle returns the most recently started cycle, or nil when the engine
// has never run.
func (s *Store) LastCycle(ctx context.Context) (*CycleRecord, error) {
	ctx = storage.EnsureContext(ctx)
	row := s.db.Conn().QueryRowContext(ctx, `
SELECT id, state, started_at, finished_at, matched, ambiguous, unmatched, removed, orphaned, moved, warnings_json, error
FROM cycles ORDER BY started_at DESC, id DESC LIMIT 1`)

	var (
		rec         CycleRecord
		startedRaw  string
		finishedRaw sql.NullString
		warnings    string
	)
	err := row.Scan(
		&rec.ID,
		&rec.State,
		&startedRaw,
		&finishedRaw,
		&rec.Report.Matched,
		&rec.Report.Ambiguous,
		&rec.Report.Unmatched,
		&rec.Report.Removed,
		&rec.Report.Orphaned,
		&rec.Report.Moved,
		&warnings,
		&rec.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last cycle: %w", err)
	}
	if started, err := storage.ParseTime(startedRaw); err == nil {
		rec.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := storage.ParseTime(finishedRaw.String); err == nil {
			rec.FinishedAt = &finished
		}
	}
	if err := json.Unmarshal([]byte(warnings), &rec.Report.Warnings); err != nil {
		return nil, fmt.Errorf("decode cycle warnings: %w", err)
	}
	return &rec, nil
}
