package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mediashelf/internal/library"
	"mediashelf/internal/logging"
	"mediashelf/internal/services"
	"mediashelf/internal/storage"
)

const unresolvedColumns = "path, fingerprint, size, modified_at, reason, guess_kind, guess_title, guess_year, guess_season, guess_episode, candidates_json, skip_match, first_seen, last_seen"

func scanUnresolved(scanner interface{ Scan(dest ...any) error }) (*library.UnresolvedFile, error) {
	var (
		u            library.UnresolvedFile
		modifiedRaw  string
		reason       string
		guessKind    sql.NullString
		guessTitle   sql.NullString
		guessYear    sql.NullInt64
		guessSeason  sql.NullInt64
		guessEpisode sql.NullInt64
		candidates   string
		skipMatch    int
		firstSeenRaw string
		lastSeenRaw  string
	)
	if err := scanner.Scan(
		&u.Path,
		&u.Fingerprint,
		&u.Size,
		&modifiedRaw,
		&reason,
		&guessKind,
		&guessTitle,
		&guessYear,
		&guessSeason,
		&guessEpisode,
		&candidates,
		&skipMatch,
		&firstSeenRaw,
		&lastSeenRaw,
	); err != nil {
		return nil, err
	}

	u.Reason = library.UnresolvedReason(reason)
	u.Guess.Kind = library.Kind(guessKind.String)
	u.Guess.Title = guessTitle.String
	if guessYear.Valid {
		u.Guess.Year = library.IntPtr(int(guessYear.Int64))
	}
	if guessSeason.Valid {
		u.Guess.Season = library.IntPtr(int(guessSeason.Int64))
	}
	if guessEpisode.Valid {
		u.Guess.Episode = library.IntPtr(int(guessEpisode.Int64))
	}
	u.SkipMatch = skipMatch != 0
	if err := json.Unmarshal([]byte(candidates), &u.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates for %s: %w", u.Path, err)
	}
	if modified, err := storage.ParseTime(modifiedRaw); err == nil {
		u.ModifiedAt = modified
	}
	if firstSeen, err := storage.ParseTime(firstSeenRaw); err == nil {
		u.FirstSeen = firstSeen
	}
	if lastSeen, err := storage.ParseTime(lastSeenRaw); err == nil {
		u.LastSeen = lastSeen
	}
	return &u, nil
}

// Unresolved lists the files awaiting a match decision, ordered by path.
func (s *Store) Unresolved(ctx context.Context) ([]library.UnresolvedFile, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx,
		"SELECT "+unresolvedColumns+" FROM unresolved_files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("load unresolved files: %w", err)
	}
	defer rows.Close()

	var out []library.UnresolvedFile
	for rows.Next() {
		u, err := scanUnresolved(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UnresolvedByPath fetches one unresolved entry.
func (s *Store) UnresolvedByPath(ctx context.Context, path string) (*library.UnresolvedFile, error) {
	ctx = storage.EnsureContext(ctx)
	row := s.db.Conn().QueryRowContext(ctx,
		"SELECT "+unresolvedColumns+" FROM unresolved_files WHERE path = ?", path)
	u, err := scanUnresolved(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "library", "unresolved", fmt.Sprintf("no unresolved file at %s", path), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load unresolved %s: %w", path, err)
	}
	return u, nil
}

// SetSkipMatch pins or unpins a file out of automatic matching.
func (s *Store) SetSkipMatch(ctx context.Context, path string, skip bool) error {
	ctx = storage.EnsureContext(ctx)
	res, err := s.db.ExecWithRetry(ctx,
		"UPDATE unresolved_files SET skip_match = ? WHERE path = ?", boolToInt(skip), path)
	if err != nil {
		return fmt.Errorf("set skip_match for %s: %w", path, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set skip_match for %s: %w", path, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "library", "unresolved", fmt.Sprintf("no unresolved file at %s", path), nil)
	}
	return nil
}

// ResolveFile applies a chosen identity to an unresolved file: the item (and
// any enclosing show and season) is found or created, a link is written, and
// the unresolved entry is cleared, all in one transaction.
func (s *Store) ResolveFile(ctx context.Context, path string, identity library.Identity, now time.Time, newID func() string) (string, error) {
	ctx = storage.EnsureContext(ctx)
	var itemID string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+unresolvedColumns+" FROM unresolved_files WHERE path = ?", path)
		u, err := scanUnresolved(row)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "library", "resolve", fmt.Sprintf("no unresolved file at %s", path), nil)
		}
		if err != nil {
			return fmt.Errorf("load unresolved %s: %w", path, err)
		}

		itemID, err = ensureIdentityTx(ctx, tx, identity, now, newID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO file_links (path, fingerprint, size, modified_at, item_id) VALUES (?, ?, ?, ?, ?)",
			u.Path, u.Fingerprint, u.Size, storage.FormatTime(u.ModifiedAt), itemID,
		); err != nil {
			return fmt.Errorf("link resolved file %s: %w", path, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM unresolved_files WHERE path = ?", path); err != nil {
			return fmt.Errorf("clear unresolved %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("file resolved",
		logging.String(logging.FieldPath, path),
		logging.String(logging.FieldItemID, itemID))
	return itemID, nil
}

func ensureIdentityTx(ctx context.Context, tx *sql.Tx, identity library.Identity, now time.Time, newID func() string) (string, error) {
	if identity.Kind != library.KindEpisode {
		return ensureTopLevelTx(ctx, tx, library.KindMovie, identity, now, newID)
	}

	showID, err := ensureTopLevelTx(ctx, tx, library.KindShow, identity, now, newID)
	if err != nil {
		return "", err
	}
	seasonID, err := ensureChildTx(ctx, tx, library.Item{
		Kind:      library.KindSeason,
		ParentID:  showID,
		SeasonNum: identity.Season,
		Title:     seasonDisplayTitle(identity.Season),
	}, now, newID)
	if err != nil {
		return "", err
	}
	return ensureChildTx(ctx, tx, library.Item{
		Kind:       library.KindEpisode,
		ParentID:   seasonID,
		SeasonNum:  identity.Season,
		EpisodeNum: identity.Episode,
		Title:      identity.EpisodeTitle,
	}, now, newID)
}

func ensureTopLevelTx(ctx context.Context, tx *sql.Tx, kind library.Kind, identity library.Identity, now time.Time, newID func() string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM items WHERE kind = ? AND provider_id = ? AND parent_id IS NULL",
		string(kind), identity.ProviderID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup %s %s: %w", kind, identity.ProviderID, err)
	}

	id = newID()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO items (id, kind, provider_id, title, year, overview, poster_path, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		string(kind),
		identity.ProviderID,
		identity.Title,
		storage.NullableInt(identity.Year),
		identity.Overview,
		identity.PosterPath,
		storage.FormatTime(now),
		storage.FormatTime(now),
	); err != nil {
		return "", fmt.Errorf("create %s %s: %w", kind, identity.ProviderID, err)
	}
	return id, nil
}

func ensureChildTx(ctx context.Context, tx *sql.Tx, template library.Item, now time.Time, newID func() string) (string, error) {
	query := "SELECT id FROM items WHERE parent_id = ? AND kind = ? AND season_num IS ?"
	args := []any{template.ParentID, string(template.Kind), storage.NullableInt(template.SeasonNum)}
	if template.Kind == library.KindEpisode {
		query += " AND episode_num IS ?"
		args = append(args, storage.NullableInt(template.EpisodeNum))
	}

	var id string
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup %s under %s: %w", template.Kind, template.ParentID, err)
	}

	id = newID()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO items (id, kind, title, parent_id, season_num, episode_num, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		string(template.Kind),
		template.Title,
		template.ParentID,
		storage.NullableInt(template.SeasonNum),
		storage.NullableInt(template.EpisodeNum),
		storage.FormatTime(now),
		storage.FormatTime(now),
	); err != nil {
		return "", fmt.Errorf("create %s under %s: %w", template.Kind, template.ParentID, err)
	}
	return id, nil
}

func seasonDisplayTitle(season *int) string {
	if season == nil || *season == 0 {
		return "Specials"
	}
	return fmt.Sprintf("Season %d", *season)
}
