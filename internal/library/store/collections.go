package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediashelf/internal/library"
	"mediashelf/internal/services"
	"mediashelf/internal/storage"
)

// CreateCollection adds an empty named collection. Names are unique.
func (s *Store) CreateCollection(ctx context.Context, name string, now time.Time, newID func() string) (*library.Collection, error) {
	ctx = storage.EnsureContext(ctx)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "library", "collection", "collection name must not be empty", nil)
	}

	id := newID()
	_, err := s.db.ExecWithRetry(ctx,
		"INSERT INTO collections (id, name, created_at) VALUES (?, ?, ?)",
		id, name, storage.FormatTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, services.Wrap(services.ErrValidation, "library", "collection", fmt.Sprintf("collection %q already exists", name), nil)
		}
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}
	return &library.Collection{ID: id, Name: name, CreatedAt: now}, nil
}

// DeleteCollection removes a collection and its membership rows. Items are
// untouched.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	ctx = storage.EnsureContext(ctx)
	res, err := s.db.ExecWithRetry(ctx, "DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "library", "collection", fmt.Sprintf("no collection named %q", name), nil)
	}
	return nil
}

// AddToCollection appends a top-level item to a collection.
func (s *Store) AddToCollection(ctx context.Context, name, itemID string) error {
	ctx = storage.EnsureContext(ctx)
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		collectionID, err := collectionIDByName(ctx, tx, name)
		if err != nil {
			return err
		}

		var parentID sql.NullString
		err = tx.QueryRowContext(ctx, "SELECT parent_id FROM items WHERE id = ?", itemID).Scan(&parentID)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "library", "collection", fmt.Sprintf("no item with id %s", itemID), nil)
		}
		if err != nil {
			return fmt.Errorf("lookup item %s: %w", itemID, err)
		}
		if parentID.Valid {
			return services.Wrap(services.ErrValidation, "library", "collection", "only movies and shows can join collections", nil)
		}

		var next int
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(position), -1) + 1 FROM collection_members WHERE collection_id = ?", collectionID,
		).Scan(&next); err != nil {
			return fmt.Errorf("next position: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO collection_members (collection_id, item_id, position) VALUES (?, ?, ?)",
			collectionID, itemID, next,
		); err != nil {
			return fmt.Errorf("add item to collection %q: %w", name, err)
		}
		return nil
	})
}

// RemoveFromCollection drops an item from a collection.
func (s *Store) RemoveFromCollection(ctx context.Context, name, itemID string) error {
	ctx = storage.EnsureContext(ctx)
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		collectionID, err := collectionIDByName(ctx, tx, name)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"DELETE FROM collection_members WHERE collection_id = ? AND item_id = ?", collectionID, itemID)
		if err != nil {
			return fmt.Errorf("remove item from collection %q: %w", name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove item from collection %q: %w", name, err)
		}
		if affected == 0 {
			return services.Wrap(services.ErrNotFound, "library", "collection", fmt.Sprintf("item %s is not in collection %q", itemID, name), nil)
		}
		return nil
	})
}

// Collections lists all collections with their member item IDs in order.
func (s *Store) Collections(ctx context.Context) ([]library.Collection, error) {
	ctx = storage.EnsureContext(ctx)
	rows, err := s.db.Conn().QueryContext(ctx,
		"SELECT id, name, created_at FROM collections ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	defer rows.Close()

	var collections []library.Collection
	for rows.Next() {
		var (
			c          library.Collection
			createdRaw string
		)
		if err := rows.Scan(&c.ID, &c.Name, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		if created, err := storage.ParseTime(createdRaw); err == nil {
			c.CreatedAt = created
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}

	for i := range collections {
		memberRows, err := s.db.Conn().QueryContext(ctx,
			"SELECT item_id FROM collection_members WHERE collection_id = ? ORDER BY position, item_id",
			collections[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load members of %q: %w", collections[i].Name, err)
		}
		for memberRows.Next() {
			var itemID string
			if err := memberRows.Scan(&itemID); err != nil {
				memberRows.Close()
				return nil, fmt.Errorf("scan member: %w", err)
			}
			collections[i].ItemIDs = append(collections[i].ItemIDs, itemID)
		}
		if err := memberRows.Err(); err != nil {
			memberRows.Close()
			return nil, fmt.Errorf("iterate members: %w", err)
		}
		memberRows.Close()
	}
	return collections, nil
}

// CollectionByName fetches one collection with members.
func (s *Store) CollectionByName(ctx context.Context, name string) (*library.Collection, error) {
	collections, err := s.Collections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range collections {
		if collections[i].Name == name {
			return &collections[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "library", "collection", fmt.Sprintf("no collection named %q", name), nil)
}

func collectionIDByName(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, "SELECT id FROM collections WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", services.Wrap(services.ErrNotFound, "library", "collection", fmt.Sprintf("no collection named %q", name), nil)
	}
	if err != nil {
		return "", fmt.Errorf("lookup collection %q: %w", name, err)
	}
	return id, nil
}
