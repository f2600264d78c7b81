package watchstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mediashelf/internal/services"
	"mediashelf/internal/storage"
)

// Rollup aggregates episode watch state for a season or show. The container
// state is derived, never stored: watched when every episode is watched,
// partial when anything has progress, unwatched otherwise.
type Rollup struct {
	Episodes int
	Watched  int
	Partial  int
	Fraction float64
	State    State
}

type episodeState struct {
	itemID  string
	season  int
	episode int
	state   State
}

// SeasonRollup aggregates the episodes directly under a season.
func (s *Store) SeasonRollup(ctx context.Context, seasonID string) (Rollup, error) {
	episodes, err := s.episodeStates(ctx, `
SELECT e.id, COALESCE(e.season_num, 0), COALESCE(e.episode_num, 0), COALESCE(w.state, 'unwatched')
FROM items e
LEFT JOIN watch_state w ON w.item_id = e.id
WHERE e.parent_id = ? AND e.kind = 'episode'
ORDER BY e.season_num, e.episode_num, e.id`, seasonID)
	if err != nil {
		return Rollup{}, err
	}
	return aggregate(episodes), nil
}

// ShowRollup aggregates every episode in a show across its seasons.
func (s *Store) ShowRollup(ctx context.Context, showID string) (Rollup, error) {
	episodes, err := s.showEpisodes(ctx, showID)
	if err != nil {
		return Rollup{}, err
	}
	return aggregate(episodes), nil
}

// NextEpisode returns the item ID of the first episode in show order that is
// not yet watched, or empty when the show is finished or has no episodes.
func (s *Store) NextEpisode(ctx context.Context, showID string) (string, error) {
	episodes, err := s.showEpisodes(ctx, showID)
	if err != nil {
		return "", err
	}
	for _, ep := range episodes {
		if ep.state != Watched {
			return ep.itemID, nil
		}
	}
	return "", nil
}

// PreviousEpisode returns the item ID of the last watched episode in show
// order, or empty when nothing has been watched.
func (s *Store) PreviousEpisode(ctx context.Context, showID string) (string, error) {
	episodes, err := s.showEpisodes(ctx, showID)
	if err != nil {
		return "", err
	}
	last := ""
	for _, ep := range episodes {
		if ep.state == Watched {
			last = ep.itemID
		}
	}
	return last, nil
}

func (s *Store) showEpisodes(ctx context.Context, showID string) ([]episodeState, error) {
	if err := s.ensureItem(ctx, showID); err != nil {
		return nil, err
	}
	return s.episodeStates(ctx, `
SELECT e.id, COALESCE(e.season_num, 0), COALESCE(e.episode_num, 0), COALESCE(w.state, 'unwatched')
FROM items e
JOIN items season ON season.id = e.parent_id
LEFT JOIN watch_state w ON w.item_id = e.id
WHERE season.parent_id = ? AND e.kind = 'episode'
ORDER BY e.season_num, e.episode_num, e.id`, showID)
}

func (s *Store) ensureItem(ctx context.Context, itemID string) error {
	var one int
	err := s.db.Conn().QueryRowContext(storage.EnsureContext(ctx),
		"SELECT 1 FROM items WHERE id = ?", itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "watch", "rollup", fmt.Sprintf("no item with id %s", itemID), nil)
	}
	if err != nil {
		return fmt.Errorf("lookup item %s: %w", itemID, err)
	}
	return nil
}

func (s *Store) episodeStates(ctx context.Context, query string, args ...any) ([]episodeState, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load episode states: %w", err)
	}
	defer rows.Close()

	var episodes []episodeState
	for rows.Next() {
		var (
			ep    episodeState
			state string
		)
		if err := rows.Scan(&ep.itemID, &ep.season, &ep.episode, &state); err != nil {
			return nil, fmt.Errorf("scan episode state: %w", err)
		}
		ep.state = State(state)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

func aggregate(episodes []episodeState) Rollup {
	rollup := Rollup{Episodes: len(episodes), State: Unwatched}
	for _, ep := range episodes {
		switch ep.state {
		case Watched:
			rollup.Watched++
		case Partial:
			rollup.Partial++
		}
	}
	if rollup.Episodes > 0 {
		rollup.Fraction = float64(rollup.Watched) / float64(rollup.Episodes)
	}
	switch {
	case rollup.Episodes > 0 && rollup.Watched == rollup.Episodes:
		rollup.State = Watched
	case rollup.Watched > 0 || rollup.Partial > 0:
		rollup.State = Partial
	}
	return rollup
}
