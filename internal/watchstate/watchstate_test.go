package watchstate_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mediashelf/internal/library"
	"mediashelf/internal/library/store"
	"mediashelf/internal/logging"
	"mediashelf/internal/services"
	"mediashelf/internal/storage"
	"mediashelf/internal/watchstate"
)

func openStores(t *testing.T) (*store.Store, *watchstate.Store) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "mediashelf.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, logging.NewNop()), watchstate.New(db, 0.9, logging.NewNop())
}

func seedShow(t *testing.T, s *store.Store) {
	t.Helper()
	now := time.Unix(1700000000, 0).UTC()
	snap := library.Snapshot{
		Items: []library.Item{
			{ID: "movie-1", Kind: library.KindMovie, ProviderID: "tmdb-949", Title: "Heat", CreatedAt: now, UpdatedAt: now},
			{ID: "show-1", Kind: library.KindShow, ProviderID: "tmdb-95396", Title: "Severance", CreatedAt: now, UpdatedAt: now},
			{ID: "season-1", Kind: library.KindSeason, ParentID: "show-1", SeasonNum: library.IntPtr(1), Title: "Season 1", CreatedAt: now, UpdatedAt: now},
			{ID: "ep-1", Kind: library.KindEpisode, ParentID: "season-1", SeasonNum: library.IntPtr(1), EpisodeNum: library.IntPtr(1), CreatedAt: now, UpdatedAt: now},
			{ID: "ep-2", Kind: library.KindEpisode, ParentID: "season-1", SeasonNum: library.IntPtr(1), EpisodeNum: library.IntPtr(2), CreatedAt: now, UpdatedAt: now},
			{ID: "ep-3", Kind: library.KindEpisode, ParentID: "season-1", SeasonNum: library.IntPtr(1), EpisodeNum: library.IntPtr(3), CreatedAt: now, UpdatedAt: now},
		},
	}
	if err := s.CommitSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRecordProgressStates(t *testing.T) {
	libStore, ws := openStores(t)
	seedShow(t, libStore)
	ctx := context.Background()
	now := time.Unix(1700000100, 0).UTC()

	entry, err := ws.RecordProgress(ctx, "movie-1", 0, 6000, now)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.State != watchstate.Unwatched {
		t.Fatalf("zero position = %s, want unwatched", entry.State)
	}

	entry, err = ws.RecordProgress(ctx, "movie-1", 1200, 6000, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.State != watchstate.Partial {
		t.Fatalf("mid position = %s, want partial", entry.State)
	}

	entry, err = ws.RecordProgress(ctx, "movie-1", 5500, 6000, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.State != watchstate.Watched {
		t.Fatalf("past completion fraction = %s, want watched", entry.State)
	}
}

func TestRecordProgressLastWriteWins(t *testing.T) {
	libStore, ws := openStores(t)
	seedShow(t, libStore)
	ctx := context.Background()
	now := time.Unix(1700000100, 0).UTC()

	if _, err := ws.RecordProgress(ctx, "movie-1", 5500, 6000, now); err != nil {
		t.Fatalf("record: %v", err)
	}
	// A stale report from before the newest write must be ignored.
	if _, err := ws.RecordProgress(ctx, "movie-1", 100, 6000, now.Add(-time.Hour)); err != nil {
		t.Fatalf("stale record: %v", err)
	}

	entry, err := ws.Get(ctx, "movie-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil || entry.State != watchstate.Watched {
		t.Fatalf("stale write regressed state: %+v", entry)
	}
}

func TestRecordProgressWithoutLibraryItem(t *testing.T) {
	_, ws := openStores(t)
	ctx := context.Background()

	// Players may report against identities the library no longer holds.
	entry, err := ws.RecordProgress(ctx, "ghost", 90, 100, time.Unix(1700000100, 0).UTC())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.State != watchstate.Watched {
		t.Fatalf("state = %s, want watched", entry.State)
	}
	got, err := ws.Get(ctx, "ghost")
	if err != nil || got == nil {
		t.Fatalf("entry = %+v, err = %v", got, err)
	}
}

func TestWatchStateSurvivesItemDeletion(t *testing.T) {
	libStore, ws := openStores(t)
	seedShow(t, libStore)
	ctx := context.Background()
	now := time.Unix(1700000100, 0).UTC()

	if err := ws.MarkWatched(ctx, "movie-1", now); err != nil {
		t.Fatalf("mark: %v", err)
	}

	// Commit a snapshot without the movie; its history must remain.
	snap := library.Snapshot{}
	if err := libStore.CommitSnapshot(ctx, snap); err != nil {
		t.Fatalf("commit removal: %v", err)
	}

	entry, err := ws.Get(ctx, "movie-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil || entry.State != watchstate.Watched {
		t.Fatalf("watch state lost on item deletion: %+v", entry)
	}
	if _, err := ws.RecordProgress(ctx, "movie-1", 100, 6000, now.Add(time.Hour)); err != nil {
		t.Fatalf("record after deletion: %v", err)
	}
}

func TestMarkWatchedAndUnwatched(t *testing.T) {
	libStore, ws := openStores(t)
	seedShow(t, libStore)
	ctx := context.Background()
	now := time.Unix(1700000100, 0).UTC()

	if err := ws.MarkWatched(ctx, "ep-1", now); err != nil {
		t.Fatalf("mark watched: %v", err)
	}
	entry, err := ws.Get(ctx, "ep-1")
	if err != nil || entry == nil || entry.State != watchstate.Watched {
		t.Fatalf("entry = %+v, err = %v", entry, err)
	}

	if err := ws.MarkUnwatched(ctx, "ep-1"); err != nil {
		t.Fatalf("mark unwatched: %v", err)
	}
	entry, err = ws.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected record cleared, got %+v", entry)
	}
}

func TestRollups(t *testing.T) {
	libStore, ws := openStores(t)
	seedShow(t, libStore)
	ctx := context.Background()
	now := time.Unix(1700000100, 0).UTC()

	rollup, err := ws.ShowRollup(ctx, "show-1")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if rollup.State != watchstate.Unwatched || rollup.Episodes != 3 {
		t.Fatalf("fresh show rollup = %+v", rollup)
	}

	if err := ws.MarkWatched(ctx, "ep-1", now); err != nil {
		t.Fatalf("mark: %v", err)
	}
	rollup, err = ws.ShowRollup(ctx, "show-1")
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if rollup.State != watchstate.Partial || rollup.Watched != 1 {
		t.Fatalf("partial show rollup = %+v", rollup)
	}

	for _, id := range []string{"ep-2", "ep-3"} {
		if err := ws.MarkWatched(ctx, id, now); err != nil {
			t.Fatalf("mark %s: %v", id, err)
		}
	}
	rollup, err = ws.SeasonRollup(ctx, "season-1")
	if err != nil {
		t.Fatalf("season rollup: %v", err)
	}
	if rollup.State != watchstate.Watched || rollup.Fraction != 1 {
		t.Fatalf("complete season rollup = %+v", rollup)
	}
}

func TestNextAndPreviousEpisode(t *testing.T) {
	libStore, ws := openStores(t)
	seedShow(t, libStore)
	ctx := context.Background()
	now := time.Unix(1700000100, 0).UTC()

	next, err := ws.NextEpisode(ctx, "show-1")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next != "ep-1" {
		t.Fatalf("next = %q, want ep-1", next)
	}
	prev, err := ws.PreviousEpisode(ctx, "show-1")
	if err != nil {
		t.Fatalf("previous: %v", err)
	}
	if prev != "" {
		t.Fatalf("previous = %q, want empty", prev)
	}

	if err := ws.MarkWatched(ctx, "ep-1", now); err != nil {
		t.Fatalf("mark: %v", err)
	}
	next, _ = ws.NextEpisode(ctx, "show-1")
	if next != "ep-2" {
		t.Fatalf("next = %q, want ep-2", next)
	}
	prev, _ = ws.PreviousEpisode(ctx, "show-1")
	if prev != "ep-1" {
		t.Fatalf("previous = %q, want ep-1", prev)
	}

	for _, id := range []string{"ep-2", "ep-3"} {
		if err := ws.MarkWatched(ctx, id, now); err != nil {
			t.Fatalf("mark %s: %v", id, err)
		}
	}
	next, _ = ws.NextEpisode(ctx, "show-1")
	if next != "" {
		t.Fatalf("next = %q after finishing, want empty", next)
	}

	if _, err := ws.NextEpisode(ctx, "ghost"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown show, got %v", err)
	}
}
