package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"mediashelf/internal/library"
	"mediashelf/internal/logging"
	"mediashelf/internal/storage"
)

// Store persists library snapshots, the unresolved backlog, collections, the
// provider cache, and cycle history.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
}

// New wraps an open database handle.
func New(db *storage.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logging.NewComponentLogger(logger, "library-store")}
}

// DB exposes the shared handle for sibling stores.
func (s *Store) DB() *storage.DB {
	return s.db
}

// Snapshot loads the full committed library state.
func (s *Store) Snapshot(ctx context.Context) (library.Snapshot, error) {
	ctx = storage.EnsureContext(ctx)
	var snap library.Snapshot

	items, err := s.queryItems(ctx, "SELECT "+itemColumns+" FROM items ORDER BY id")
	if err != nil {
		return snap, fmt.Errorf("load items: %w", err)
	}
	snap.Items = items

	rows, err := s.db.Conn().QueryContext(ctx,
		"SELECT path, fingerprint, size, modified_at, item_id, missing_cycles FROM file_links ORDER BY path")
	if err != nil {
		return snap, fmt.Errorf("load file links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			link        library.FileLink
			modifiedRaw string
		)
		if err := rows.Scan(&link.Path, &link.Fingerprint, &link.Size, &modifiedRaw, &link.ItemID, &link.MissingCycles); err != nil {
			return snap, fmt.Errorf("scan file link: %w", err)
		}
		if modified, err := storage.ParseTime(modifiedRaw); err == nil {
			link.ModifiedAt = modified
		}
		snap.Links = append(snap.Links, link)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate file links: %w", err)
	}

	unresolved, err := s.Unresolved(ctx)
	if err != nil {
		return snap, err
	}
	snap.Unresolved = unresolved
	return snap, nil
}

// CommitSnapshot replaces the library state in one transaction. Item rows are
// upserted by ID rather than dropped and recreated so collection membership
// survives a commit through its foreign keys. Watch state carries no foreign
// key at all and is never touched here.
func (s *Store) CommitSnapshot(ctx context.Context, snap library.Snapshot) error {
	ctx = storage.EnsureContext(ctx)
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		existing := map[string]struct{}{}
		rows, err := tx.QueryContext(ctx, "SELECT id FROM items")
		if err != nil {
			return fmt.Errorf("load existing ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan id: %w", err)
			}
			existing[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate ids: %w", err)
		}

		keep := make(map[string]struct{}, len(snap.Items))
		for _, item := range snap.Items {
			keep[item.ID] = struct{}{}
		}
		removed := make([]string, 0)
		for id := range existing {
			if _, ok := keep[id]; !ok {
				removed = append(removed, id)
			}
		}
		sort.Strings(removed)
		for _, id := range removed {
			if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id); err != nil {
				return fmt.Errorf("delete item %s: %w", id, err)
			}
		}

		for _, item := range orderForInsert(snap.Items) {
			if err := upsertItem(ctx, tx, item); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM file_links"); err != nil {
			return fmt.Errorf("clear file links: %w", err)
		}
		for _, link := range snap.Links {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO file_links (path, fingerprint, size, modified_at, item_id, missing_cycles) VALUES (?, ?, ?, ?, ?, ?)",
				link.Path, link.Fingerprint, link.Size, storage.FormatTime(link.ModifiedAt), link.ItemID, link.MissingCycles,
			); err != nil {
				return fmt.Errorf("insert file link %s: %w", link.Path, err)
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM unresolved_files"); err != nil {
			return fmt.Errorf("clear unresolved files: %w", err)
		}
		for _, u := range snap.Unresolved {
			if err := insertUnresolved(ctx, tx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// orderForInsert returns items parents-first so foreign keys hold during
// upserts: movies and shows, then seasons, then episodes.
func orderForInsert(items []library.Item) []library.Item {
	rank := func(kind library.Kind) int {
		switch kind {
		case library.KindSeason:
			return 1
		case library.KindEpisode:
			return 2
		default:
			return 0
		}
	}
	out := append([]library.Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Kind), rank(out[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func upsertItem(ctx context.Context, tx *sql.Tx, item library.Item) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO items (id, kind, provider_id, title, year, parent_id, season_num, episode_num, overview, poster_path, orphaned, orphan_cycles, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    provider_id = excluded.provider_id,
    title = excluded.title,
    year = excluded.year,
    parent_id = excluded.parent_id,
    season_num = excluded.season_num,
    episode_num = excluded.episode_num,
    overview = excluded.overview,
    poster_path = excluded.poster_path,
    orphaned = excluded.orphaned,
    orphan_cycles = excluded.orphan_cycles,
    updated_at = excluded.updated_at`,
		item.ID,
		string(item.Kind),
		storage.NullableString(item.ProviderID),
		item.Title,
		storage.NullableInt(item.Year),
		storage.NullableString(item.ParentID),
		storage.NullableInt(item.SeasonNum),
		storage.NullableInt(item.EpisodeNum),
		item.Overview,
		item.PosterPath,
		boolToInt(item.Orphaned),
		item.OrphanCycles,
		storage.FormatTime(item.CreatedAt),
		storage.FormatTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

func insertUnresolved(ctx context.Context, tx *sql.Tx, u library.UnresolvedFile) error {
	candidates, err := json.Marshal(u.Candidates)
	if err != nil {
		return fmt.Errorf("encode candidates for %s: %w", u.Path, err)
	}
	if u.Candidates == nil {
		candidates = []byte("[]")
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO unresolved_files (path, fingerprint, size, modified_at, reason, guess_kind, guess_title, guess_year, guess_season, guess_episode, candidates_json, skip_match, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Path,
		u.Fingerprint,
		u.Size,
		storage.FormatTime(u.ModifiedAt),
		string(u.Reason),
		string(u.Guess.Kind),
		u.Guess.Title,
		storage.NullableInt(u.Guess.Year),
		storage.NullableInt(u.Guess.Season),
		storage.NullableInt(u.Guess.Episode),
		string(candidates),
		boolToInt(u.SkipMatch),
		storage.FormatTime(u.FirstSeen),
		storage.FormatTime(u.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("insert unresolved %s: %w", u.Path, err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
