package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"mediashelf/internal/library"
	"mediashelf/internal/library/store"
	"mediashelf/internal/logging"
	"mediashelf/internal/services"
	"mediashelf/internal/storage"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "mediashelf.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, logging.NewNop())
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func sampleSnapshot(now time.Time) library.Snapshot {
	year := library.IntPtr(1995)
	return library.Snapshot{
		Items: []library.Item{
			{ID: "movie-1", Kind: library.KindMovie, ProviderID: "tmdb-949", Title: "Heat", Year: year, CreatedAt: now, UpdatedAt: now},
			{ID: "show-1", Kind: library.KindShow, ProviderID: "tmdb-95396", Title: "Severance", CreatedAt: now, UpdatedAt: now},
			{ID: "season-1", Kind: library.KindSeason, ParentID: "show-1", SeasonNum: library.IntPtr(1), Title: "Season 1", CreatedAt: now, UpdatedAt: now},
			{ID: "ep-1", Kind: library.KindEpisode, ParentID: "season-1", SeasonNum: library.IntPtr(1), EpisodeNum: library.IntPtr(1), Title: "Good News About Hell", CreatedAt: now, UpdatedAt: now},
		},
		Links: []library.FileLink{
			{MediaFile: library.MediaFile{Path: "/m/heat.mkv", Fingerprint: "fp-h", Size: 10, ModifiedAt: now}, ItemID: "movie-1"},
			{MediaFile: library.MediaFile{Path: "/t/s01e01.mkv", Fingerprint: "fp-e", Size: 20, ModifiedAt: now}, ItemID: "ep-1"},
		},
		Unresolved: []library.UnresolvedFile{{
			MediaFile: library.MediaFile{Path: "/m/solaris.mkv", Fingerprint: "fp-s", Size: 30, ModifiedAt: now},
			Reason:    library.ReasonAmbiguous,
			Guess:     library.Guess{Kind: library.KindMovie, Title: "Solaris"},
			Candidates: []library.Candidate{
				{ProviderID: "tmdb-593", Kind: library.KindMovie, Title: "Solaris", Score: 0.7},
			},
			FirstSeen: now,
			LastSeen:  now,
		}},
	}
}

func TestCommitAndReloadSnapshot(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if err := s.CommitSnapshot(ctx, sampleSnapshot(now)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	loaded, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(loaded.Items))
	}
	if len(loaded.Links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(loaded.Links))
	}
	if len(loaded.Unresolved) != 1 {
		t.Fatalf("expected 1 unresolved, got %d", len(loaded.Unresolved))
	}
	if loaded.Unresolved[0].Reason != library.ReasonAmbiguous || len(loaded.Unresolved[0].Candidates) != 1 {
		t.Fatalf("unresolved entry corrupted: %+v", loaded.Unresolved[0])
	}
}

func TestCommitPreservesWatchState(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	snap := sampleSnapshot(now)

	if err := s.CommitSnapshot(ctx, snap); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := s.DB().Conn().Exec(
		"INSERT INTO watch_state (item_id, state, updated_at) VALUES ('movie-1', 'watched', ?)",
		storage.FormatTime(now),
	); err != nil {
		t.Fatalf("seed watch state: %v", err)
	}

	// Recommit the same snapshot; the watch row must survive the upsert.
	if err := s.CommitSnapshot(ctx, snap); err != nil {
		t.Fatalf("recommit: %v", err)
	}
	var count int
	if err := s.DB().Conn().QueryRow("SELECT COUNT(1) FROM watch_state").Scan(&count); err != nil {
		t.Fatalf("count watch state: %v", err)
	}
	if count != 1 {
		t.Fatalf("watch state lost on recommit: %d rows", count)
	}

	// Remove the movie; its playback history is retained.
	snap.Items = snap.Items[1:]
	snap.Links = snap.Links[1:]
	if err := s.CommitSnapshot(ctx, snap); err != nil {
		t.Fatalf("commit removal: %v", err)
	}
	if err := s.DB().Conn().QueryRow("SELECT COUNT(1) FROM watch_state").Scan(&count); err != nil {
		t.Fatalf("count watch state: %v", err)
	}
	if count != 1 {
		t.Fatalf("watch state destroyed by item deletion: %d rows remain", count)
	}
}

func TestResolveFile(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if err := s.CommitSnapshot(ctx, sampleSnapshot(now)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	itemID, err := s.ResolveFile(ctx, "/m/solaris.mkv", library.Identity{
		Kind:       library.KindMovie,
		ProviderID: "tmdb-593",
		Title:      "Solaris",
		Year:       library.IntPtr(1972),
	}, now.Add(time.Hour), sequentialIDs())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	item, err := s.ItemByID(ctx, itemID)
	if err != nil {
		t.Fatalf("load resolved item: %v", err)
	}
	if item.Kind != library.KindMovie || item.ProviderID != "tmdb-593" {
		t.Fatalf("unexpected resolved item %+v", item)
	}

	links, err := s.LinksForItem(ctx, itemID)
	if err != nil {
		t.Fatalf("load links: %v", err)
	}
	if len(links) != 1 || links[0].Path != "/m/solaris.mkv" {
		t.Fatalf("expected resolved link, got %+v", links)
	}

	unresolved, err := s.Unresolved(ctx)
	if err != nil {
		t.Fatalf("load unresolved: %v", err)
	}
	if len(unresolved) != 0 {
		t.Fatalf("unresolved entry not cleared: %+v", unresolved)
	}
}

func TestResolveFileReusesExistingItem(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if err := s.CommitSnapshot(ctx, sampleSnapshot(now)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	itemID, err := s.ResolveFile(ctx, "/m/solaris.mkv", library.Identity{
		Kind:       library.KindMovie,
		ProviderID: "tmdb-949",
		Title:      "Heat",
	}, now, sequentialIDs())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if itemID != "movie-1" {
		t.Fatalf("expected reuse of existing item, got %s", itemID)
	}
}

func TestResolveFileNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.ResolveFile(context.Background(), "/missing.mkv", library.Identity{
		Kind: library.KindMovie, ProviderID: "tmdb-1",
	}, time.Now(), sequentialIDs())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetSkipMatch(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if err := s.CommitSnapshot(ctx, sampleSnapshot(now)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.SetSkipMatch(ctx, "/m/solaris.mkv", true); err != nil {
		t.Fatalf("set skip: %v", err)
	}
	u, err := s.UnresolvedByPath(ctx, "/m/solaris.mkv")
	if err != nil {
		t.Fatalf("load unresolved: %v", err)
	}
	if !u.SkipMatch {
		t.Fatal("skip_match not persisted")
	}
	if err := s.SetSkipMatch(ctx, "/nope.mkv", true); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCollections(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	ids := sequentialIDs()

	if err := s.CommitSnapshot(ctx, sampleSnapshot(now)); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := s.CreateCollection(ctx, "Mann Films", now, ids); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateCollection(ctx, "Mann Films", now, ids); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	if err := s.AddToCollection(ctx, "Mann Films", "movie-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddToCollection(ctx, "Mann Films", "ep-1"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected episode rejection, got %v", err)
	}

	c, err := s.CollectionByName(ctx, "Mann Films")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if len(c.ItemIDs) != 1 || c.ItemIDs[0] != "movie-1" {
		t.Fatalf("unexpected members %+v", c.ItemIDs)
	}

	if err := s.RemoveFromCollection(ctx, "Mann Films", "movie-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveFromCollection(ctx, "Mann Films", "movie-1"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on second removal, got %v", err)
	}

	if err := s.DeleteCollection(ctx, "Mann Films"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.CollectionByName(ctx, "Mann Films"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCollectionSurvivesRecommit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	snap := sampleSnapshot(now)

	if err := s.CommitSnapshot(ctx, snap); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := s.CreateCollection(ctx, "Favorites", now, sequentialIDs()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.AddToCollection(ctx, "Favorites", "movie-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.CommitSnapshot(ctx, snap); err != nil {
		t.Fatalf("recommit: %v", err)
	}
	c, err := s.CollectionByName(ctx, "Favorites")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if len(c.ItemIDs) != 1 {
		t.Fatalf("membership lost on recommit: %+v", c.ItemIDs)
	}
}

func TestMatchCacheTTL(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	ttl := time.Hour

	if err := s.CachePut(ctx, "movie|heat|1995", `{"results":[]}`, now); err != nil {
		t.Fatalf("put: %v", err)
	}

	payload, ok, err := s.CacheGet(ctx, "movie|heat|1995", ttl, now.Add(30*time.Minute))
	if err != nil || !ok {
		t.Fatalf("expected fresh hit, ok=%v err=%v", ok, err)
	}
	if payload != `{"results":[]}` {
		t.Fatalf("payload mismatch: %q", payload)
	}

	if _, ok, err := s.CacheGet(ctx, "movie|heat|1995", ttl, now.Add(2*time.Hour)); err != nil || ok {
		t.Fatalf("expected stale miss, ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.CacheGetStale(ctx, "movie|heat|1995"); err != nil || !ok {
		t.Fatalf("expected stale fallback hit, ok=%v err=%v", ok, err)
	}

	pruned, err := s.CachePrune(ctx, ttl, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned row, got %d", pruned)
	}
	if _, ok, _ := s.CacheGetStale(ctx, "movie|heat|1995"); ok {
		t.Fatal("entry survived prune")
	}
}

func TestCycleHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	last, err := s.LastCycle(ctx)
	if err != nil {
		t.Fatalf("last on empty: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil cycle, got %+v", last)
	}

	if err := s.BeginCycle(ctx, "cycle-1", now); err != nil {
		t.Fatalf("begin: %v", err)
	}
	report := library.ChangeReport{Matched: 3, Moved: 1, Warnings: []string{"root /mnt/nas skipped"}}
	if err := s.FinishCycle(ctx, "cycle-1", "partial_success", report, "provider unavailable", now.Add(time.Minute)); err != nil {
		t.Fatalf("finish: %v", err)
	}

	last, err = s.LastCycle(ctx)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last == nil || last.State != "partial_success" {
		t.Fatalf("unexpected cycle %+v", last)
	}
	if last.Report.Matched != 3 || last.Report.Moved != 1 {
		t.Fatalf("report not persisted: %+v", last.Report)
	}
	if len(last.Report.Warnings) != 1 {
		t.Fatalf("warnings not persisted: %+v", last.Report.Warnings)
	}
	if last.FinishedAt == nil {
		t.Fatal("finished_at missing")
	}
}
