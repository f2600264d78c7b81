package watchstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediashelf/internal/logging"
	"mediashelf/internal/services"
	"mediashelf/internal/storage"
)

// State is the watch status of a single item.
type State string

const (
	Unwatched State = "unwatched"
	Partial   State = "partial"
	Watched   State = "watched"
)

// Entry is one item's watch record. Items without an entry are unwatched.
type Entry struct {
	ItemID          string
	State           State
	PositionSeconds float64
	DurationSeconds float64
	UpdatedAt       time.Time
}

// Store tracks playback state keyed by library item. Updates are
// last-write-wins by timestamp so replayed or out-of-order reports from
// players cannot regress newer state. Entries reference items by ID only:
// deleting a library item leaves its watch record behind, so a file that
// reappears and resolves to the same provider identity resumes where it
// left off. Readers that need a live item check existence themselves.
type Store struct {
	db                *storage.DB
	completedFraction float64
	logger            *slog.Logger
}

// New wraps the shared database handle.
func New(db *storage.DB, completedFraction float64, logger *slog.Logger) *Store {
	return &Store{
		db:                db,
		completedFraction: completedFraction,
		logger:            logging.NewComponentLogger(logger, "watchstate"),
	}
}

// RecordProgress applies a playback report. Position at or past the
// completion fraction of the duration marks the item watched; any positive
// position marks it partial. Reports older than the stored entry are ignored.
func (s *Store) RecordProgress(ctx context.Context, itemID string, position, duration float64, at time.Time) (Entry, error) {
	if position < 0 || duration < 0 {
		return Entry{}, services.Wrap(services.ErrValidation, "watch", "record", "position and duration must not be negative", nil)
	}
	if duration > 0 && position > duration {
		position = duration
	}

	state := Unwatched
	switch {
	case duration > 0 && position >= s.completedFraction*duration:
		state = Watched
	case position > 0:
		state = Partial
	}

	entry := Entry{
		ItemID:          itemID,
		State:           state,
		PositionSeconds: position,
		DurationSeconds: duration,
		UpdatedAt:       at,
	}
	if err := s.write(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// MarkWatched sets an item watched regardless of position.
func (s *Store) MarkWatched(ctx context.Context, itemID string, at time.Time) error {
	return s.write(ctx, Entry{ItemID: itemID, State: Watched, UpdatedAt: at})
}

// MarkUnwatched clears an item's watch record entirely.
func (s *Store) MarkUnwatched(ctx context.Context, itemID string) error {
	ctx = storage.EnsureContext(ctx)
	_, err := s.db.ExecWithRetry(ctx, "DELETE FROM watch_state WHERE item_id = ?", itemID)
	if err != nil {
		return fmt.Errorf("clear watch state for %s: %w", itemID, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, entry Entry) error {
	ctx = storage.EnsureContext(ctx)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var updatedRaw string
		err := tx.QueryRowContext(ctx,
			"SELECT updated_at FROM watch_state WHERE item_id = ?", entry.ItemID).Scan(&updatedRaw)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read watch state: %w", err)
		}
		if err == nil {
			if existing, parseErr := storage.ParseTime(updatedRaw); parseErr == nil && entry.UpdatedAt.Before(existing) {
				return nil
			}
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO watch_state (item_id, state, position_seconds, duration_seconds, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(item_id) DO UPDATE SET
    state = excluded.state,
    position_seconds = excluded.position_seconds,
    duration_seconds = excluded.duration_seconds,
    updated_at = excluded.updated_at`,
			entry.ItemID,
			string(entry.State),
			entry.PositionSeconds,
			entry.DurationSeconds,
			storage.FormatTime(entry.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("write watch state: %w", err)
		}
		return nil
	})
	return err
}

// Get returns the entry for an item, or nil when it was never played.
func (s *Store) Get(ctx context.Context, itemID string) (*Entry, error) {
	ctx = storage.EnsureContext(ctx)
	row := s.db.Conn().QueryRowContext(ctx,
		"SELECT item_id, state, position_seconds, duration_seconds, updated_at FROM watch_state WHERE item_id = ?", itemID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load watch state for %s: %w", itemID, err)
	}
	return entry, nil
}

// All lists every watch record.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx,
		"SELECT item_id, state, position_seconds, duration_seconds, updated_at FROM watch_state ORDER BY item_id")
	if err != nil {
		return nil, fmt.Errorf("load watch state: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry      Entry
		state      string
		updatedRaw string
	)
	if err := scanner.Scan(&entry.ItemID, &state, &entry.PositionSeconds, &entry.DurationSeconds, &updatedRaw); err != nil {
		return nil, err
	}
	entry.State = State(state)
	if updated, err := storage.ParseTime(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return &entry, nil
}
