package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mediashelf/internal/library"
	"mediashelf/internal/services"
	"mediashelf/internal/storage"
)

const itemColumns = "id, kind, provider_id, title, year, parent_id, season_num, episode_num, overview, poster_path, orphaned, orphan_cycles, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*library.Item, error) {
	var (
		id          string
		kindStr     string
		providerID  sql.NullString
		title       sql.NullString
		year        sql.NullInt64
		parentID    sql.NullString
		seasonNum   sql.NullInt64
		episodeNum  sql.NullInt64
		overview    sql.NullString
		posterPath  sql.NullString
		orphaned    sql.NullInt64
		orphanCount sql.NullInt64
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kindStr,
		&providerID,
		&title,
		&year,
		&parentID,
		&seasonNum,
		&episodeNum,
		&overview,
		&posterPath,
		&orphaned,
		&orphanCount,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &library.Item{
		ID:         id,
		Kind:       library.Kind(kindStr),
		ProviderID: providerID.String,
		Title:      title.String,
		ParentID:   parentID.String,
		Overview:   overview.String,
		PosterPath: posterPath.String,
	}
	if year.Valid {
		item.Year = library.IntPtr(int(year.Int64))
	}
	if seasonNum.Valid {
		item.SeasonNum = library.IntPtr(int(seasonNum.Int64))
	}
	if episodeNum.Valid {
		item.EpisodeNum = library.IntPtr(int(episodeNum.Int64))
	}
	if orphaned.Valid {
		item.Orphaned = orphaned.Int64 != 0
	}
	if orphanCount.Valid {
		item.OrphanCycles = int(orphanCount.Int64)
	}
	if created, err := storage.ParseTime(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := storage.ParseTime(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]library.Item, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []library.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ItemByID fetches one item.
func (s *Store) ItemByID(ctx context.Context, id string) (*library.Item, error) {
	ctx = storage.EnsureContext(ctx)
	row := s.db.Conn().QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "library", "item", fmt.Sprintf("no item with id %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load item %s: %w", id, err)
	}
	return item, nil
}

// TopLevel lists movies and shows ordered by title.
func (s *Store) TopLevel(ctx context.Context) ([]library.Item, error) {
	ctx = storage.EnsureContext(ctx)
	return s.queryItems(ctx,
		"SELECT "+itemColumns+" FROM items WHERE parent_id IS NULL ORDER BY title COLLATE NOCASE, id")
}

// Children lists the direct children of an item in ordinal order.
func (s *Store) Children(ctx context.Context, parentID string) ([]library.Item, error) {
	ctx = storage.EnsureContext(ctx)
	return s.queryItems(ctx,
		"SELECT "+itemColumns+" FROM items WHERE parent_id = ? ORDER BY season_num, episode_num, id", parentID)
}

// FindTopLevel matches movies and shows by case-insensitive title substring.
func (s *Store) FindTopLevel(ctx context.Context, query string) ([]library.Item, error) {
	ctx = storage.EnsureContext(ctx)
	pattern := "%" + strings.TrimSpace(query) + "%"
	return s.queryItems(ctx,
		"SELECT "+itemColumns+" FROM items WHERE parent_id IS NULL AND title LIKE ? ORDER BY title COLLATE NOCASE, id", pattern)
}

// LinksForItem lists the files backing an item.
func (s *Store) LinksForItem(ctx context.Context, itemID string) ([]library.FileLink, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx,
		"SELECT path, fingerprint, size, modified_at, item_id, missing_cycles FROM file_links WHERE item_id = ? ORDER BY path", itemID)
	if err != nil {
		return nil, fmt.Errorf("load links for %s: %w", itemID, err)
	}
	defer rows.Close()

	var links []library.FileLink
	for rows.Next() {
		var (
			link        library.FileLink
			modifiedRaw string
		)
		if err := rows.Scan(&link.Path, &link.Fingerprint, &link.Size, &modifiedRaw, &link.ItemID, &link.MissingCycles); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		if modified, err := storage.ParseTime(modifiedRaw); err == nil {
			link.ModifiedAt = modified
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
