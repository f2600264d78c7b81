package library_test

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"mediashelf/internal/library"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func movieIdentity(providerID, title string, year int) *library.Identity {
	return &library.Identity{
		Kind:       library.KindMovie,
		ProviderID: providerID,
		Title:      title,
		Year:       library.IntPtr(year),
	}
}

func episodeIdentity(showID, showTitle string, season, episode int, episodeTitle string) *library.Identity {
	return &library.Identity{
		Kind:         library.KindEpisode,
		ProviderID:   showID,
		Title:        showTitle,
		Season:       library.IntPtr(season),
		Episode:      library.IntPtr(episode),
		EpisodeTitle: episodeTitle,
	}
}

func file(path, fingerprint string) library.MediaFile {
	return library.MediaFile{
		Path:        path,
		Fingerprint: fingerprint,
		Size:        1024,
		ModifiedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestReconcileMatchesNewMovie(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	f := file("/media/movies/Heat (1995).mkv", "fp-heat")

	next, report := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{f},
		Outcomes: map[string]library.MatchOutcome{
			f.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	if report.Matched != 1 {
		t.Fatalf("expected 1 matched, got %+v", report)
	}
	if len(next.Items) != 1 || next.Items[0].Kind != library.KindMovie {
		t.Fatalf("expected one movie item, got %+v", next.Items)
	}
	if len(next.Links) != 1 || next.Links[0].ItemID != next.Items[0].ID {
		t.Fatalf("expected link to movie, got %+v", next.Links)
	}
	if next.Items[0].ProviderID != "tmdb-949" {
		t.Fatalf("provider id not recorded: %+v", next.Items[0])
	}
}

func TestReconcileBuildsShowHierarchy(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	e1 := file("/media/tv/Severance/S01E01.mkv", "fp-e1")
	e2 := file("/media/tv/Severance/S01E02.mkv", "fp-e2")

	next, report := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{e1, e2},
		Outcomes: map[string]library.MatchOutcome{
			e1.Path: {Decision: library.DecisionMatched, Identity: episodeIdentity("tmdb-95396", "Severance", 1, 1, "Good News About Hell")},
			e2.Path: {Decision: library.DecisionMatched, Identity: episodeIdentity("tmdb-95396", "Severance", 1, 2, "Half Loop")},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	if report.Matched != 2 {
		t.Fatalf("expected 2 matched, got %+v", report)
	}
	kinds := map[library.Kind]int{}
	for _, item := range next.Items {
		kinds[item.Kind]++
	}
	if kinds[library.KindShow] != 1 || kinds[library.KindSeason] != 1 || kinds[library.KindEpisode] != 2 {
		t.Fatalf("unexpected hierarchy: %v", kinds)
	}
	for _, item := range next.Items {
		if item.Kind == library.KindSeason && item.Title != "Season 1" {
			t.Fatalf("season title = %q", item.Title)
		}
	}
}

func TestReconcileIdempotentOnUnchangedTree(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	f := file("/media/movies/Heat (1995).mkv", "fp-heat")

	first, _ := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{f},
		Outcomes: map[string]library.MatchOutcome{
			f.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	second, report := library.Reconcile(library.ReconcileInput{
		Previous:    first,
		Scanned:     []library.MediaFile{f},
		GraceCycles: 2,
		Now:         now.Add(time.Hour),
		NewID:       sequentialIDs(),
	})

	if !report.Empty() {
		t.Fatalf("expected empty report for unchanged tree, got %+v", report)
	}
	if !reflect.DeepEqual(first.Items, second.Items) {
		t.Fatalf("items changed across no-op cycle:\n%+v\n%+v", first.Items, second.Items)
	}
	if !reflect.DeepEqual(first.Links, second.Links) {
		t.Fatalf("links changed across no-op cycle")
	}
}

func TestReconcileDetectsMoveWithoutRematch(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	old := file("/media/movies/heat.mkv", "fp-heat")

	first, _ := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{old},
		Outcomes: map[string]library.MatchOutcome{
			old.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	moved := file("/media/movies/Heat (1995)/Heat (1995).mkv", "fp-heat")
	second, report := library.Reconcile(library.ReconcileInput{
		Previous:    first,
		Scanned:     []library.MediaFile{moved},
		GraceCycles: 2,
		Now:         now.Add(time.Hour),
		NewID:       sequentialIDs(),
	})

	if report.Moved != 1 || report.Matched != 0 {
		t.Fatalf("expected pure move, got %+v", report)
	}
	if len(second.Links) != 1 || second.Links[0].Path != moved.Path {
		t.Fatalf("expected relocated link, got %+v", second.Links)
	}
	if second.Links[0].ItemID != first.Links[0].ItemID {
		t.Fatal("move must preserve item identity")
	}
	if second.Items[0].Orphaned {
		t.Fatal("moved item must not be orphaned")
	}
}

func TestReconcileOrphanGraceThenRemoval(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	f := file("/media/movies/heat.mkv", "fp-heat")

	snap, _ := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{f},
		Outcomes: map[string]library.MatchOutcome{
			f.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	// First absence only carries the link; nothing orphans yet.
	var report library.ChangeReport
	snap, report = library.Reconcile(library.ReconcileInput{
		Previous:    snap,
		GraceCycles: 2,
		Now:         now.Add(time.Hour),
		NewID:       sequentialIDs(),
	})
	if report.Orphaned != 0 || report.Removed != 0 {
		t.Fatalf("expected carried link on first absence, got %+v", report)
	}
	if len(snap.Links) != 1 || snap.Links[0].MissingCycles != 1 {
		t.Fatalf("expected carried link, got %+v", snap.Links)
	}
	if snap.Items[0].Orphaned {
		t.Fatalf("item orphaned while link carried: %+v", snap.Items[0])
	}

	for cycle := 1; cycle <= 2; cycle++ {
		snap, report = library.Reconcile(library.ReconcileInput{
			Previous:    snap,
			GraceCycles: 2,
			Now:         now.Add(time.Duration(cycle+1) * time.Hour),
			NewID:       sequentialIDs(),
		})
		if report.Orphaned != 1 || report.Removed != 0 {
			t.Fatalf("cycle %d: expected grace retention, got %+v", cycle, report)
		}
		if len(snap.Items) != 1 || !snap.Items[0].Orphaned || snap.Items[0].OrphanCycles != cycle {
			t.Fatalf("cycle %d: unexpected item state %+v", cycle, snap.Items)
		}
	}

	snap, report = library.Reconcile(library.ReconcileInput{
		Previous:    snap,
		GraceCycles: 2,
		Now:         now.Add(4 * time.Hour),
		NewID:       sequentialIDs(),
	})
	if report.Removed != 1 || report.Orphaned != 0 {
		t.Fatalf("expected removal after grace, got %+v", report)
	}
	if len(snap.Items) != 0 {
		t.Fatalf("expected empty library, got %+v", snap.Items)
	}
}

func TestReconcileOrphanRecovery(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	f := file("/media/movies/heat.mkv", "fp-heat")

	snap, _ := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{f},
		Outcomes: map[string]library.MatchOutcome{
			f.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	// Two absent scans: the first only carries the link, the second orphans.
	for cycle := 1; cycle <= 2; cycle++ {
		snap, _ = library.Reconcile(library.ReconcileInput{
			Previous:    snap,
			GraceCycles: 2,
			Now:         now.Add(time.Duration(cycle) * time.Hour),
			NewID:       sequentialIDs(),
		})
	}
	if !snap.Items[0].Orphaned {
		t.Fatal("expected orphaned item after unmount")
	}
	if len(snap.Links) != 0 {
		t.Fatalf("expected dropped link after second absence, got %+v", snap.Links)
	}

	snap, report := library.Reconcile(library.ReconcileInput{
		Previous: snap,
		Scanned:  []library.MediaFile{f},
		Outcomes: map[string]library.MatchOutcome{
			f.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
		},
		GraceCycles: 2,
		Now:         now.Add(3 * time.Hour),
		NewID:       sequentialIDs(),
	})
	if report.Matched != 1 || report.Orphaned != 0 || report.Removed != 0 {
		t.Fatalf("expected recovery via rematch, got %+v", report)
	}
	if len(snap.Items) != 1 {
		t.Fatalf("recovery must not duplicate the item, got %+v", snap.Items)
	}
	if snap.Items[0].Orphaned || snap.Items[0].OrphanCycles != 0 {
		t.Fatalf("expected orphan flags cleared, got %+v", snap.Items[0])
	}
}

func TestReconcileLinkSurvivesOneAbsentScan(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	f := file("/media/movies/heat.mkv", "fp-heat")

	snap, _ := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{f},
		Outcomes: map[string]library.MatchOutcome{
			f.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	snap, report := library.Reconcile(library.ReconcileInput{
		Previous:    snap,
		GraceCycles: 2,
		Now:         now.Add(time.Hour),
		NewID:       sequentialIDs(),
	})
	if !report.Empty() {
		t.Fatalf("expected quiet cycle on first absence, got %+v", report)
	}
	if len(snap.Links) != 1 || snap.Links[0].MissingCycles != 1 {
		t.Fatalf("expected carried link, got %+v", snap.Links)
	}
	if snap.Items[0].Orphaned {
		t.Fatalf("item orphaned while link carried: %+v", snap.Items[0])
	}

	// The file returns with no matcher outcome: the carried link relinks by
	// path and fingerprint, so no provider lookup is needed.
	snap, report = library.Reconcile(library.ReconcileInput{
		Previous:    snap,
		Scanned:     []library.MediaFile{f},
		GraceCycles: 2,
		Now:         now.Add(2 * time.Hour),
		NewID:       sequentialIDs(),
	})
	if !report.Empty() {
		t.Fatalf("expected relink without rematch, got %+v", report)
	}
	if len(snap.Links) != 1 || snap.Links[0].MissingCycles != 0 {
		t.Fatalf("expected fresh link, got %+v", snap.Links)
	}
	if len(snap.Unresolved) != 0 {
		t.Fatalf("returning file must not land in the backlog: %+v", snap.Unresolved)
	}
}

func TestReconcileRemovesEmptyContainers(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	e1 := file("/media/tv/Severance/S01E01.mkv", "fp-e1")

	snap, _ := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{e1},
		Outcomes: map[string]library.MatchOutcome{
			e1.Path: {Decision: library.DecisionMatched, Identity: episodeIdentity("tmdb-95396", "Severance", 1, 1, "")},
		},
		GraceCycles: 0,
		Now:         now,
		NewID:       sequentialIDs(),
	})
	if len(snap.Items) != 3 {
		t.Fatalf("expected show/season/episode, got %+v", snap.Items)
	}

	// The first absence carries the link; removal needs a second one.
	snap, report := library.Reconcile(library.ReconcileInput{
		Previous:    snap,
		GraceCycles: 0,
		Now:         now.Add(time.Hour),
		NewID:       sequentialIDs(),
	})
	if len(snap.Items) != 3 || report.Removed != 0 {
		t.Fatalf("expected carried link on first absence, got %+v / %+v", snap.Items, report)
	}

	snap, report = library.Reconcile(library.ReconcileInput{
		Previous:    snap,
		GraceCycles: 0,
		Now:         now.Add(2 * time.Hour),
		NewID:       sequentialIDs(),
	})
	if len(snap.Items) != 0 {
		t.Fatalf("expected container pruning, got %+v", snap.Items)
	}
	if report.Removed != 3 {
		t.Fatalf("expected 3 removals, got %+v", report)
	}
}

func TestReconcileDuplicateFilesShareItem(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	a := file("/media/movies/heat-1080p.mkv", "fp-a")
	b := file("/media/movies/heat-4k.mkv", "fp-b")

	snap, report := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{a, b},
		Outcomes: map[string]library.MatchOutcome{
			a.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
			b.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-949", "Heat", 1995)},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	if report.Matched != 2 {
		t.Fatalf("expected both files matched, got %+v", report)
	}
	if len(snap.Items) != 1 {
		t.Fatalf("duplicates must share one item, got %+v", snap.Items)
	}
	if len(snap.Links) != 2 {
		t.Fatalf("expected two links, got %+v", snap.Links)
	}
}

func TestReconcileAmbiguousRecordsCandidates(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	f := file("/media/movies/solaris.mkv", "fp-sol")
	candidates := []library.Candidate{
		{ProviderID: "tmdb-593", Kind: library.KindMovie, Title: "Solaris", Year: library.IntPtr(1972), Score: 0.7},
		{ProviderID: "tmdb-2103", Kind: library.KindMovie, Title: "Solaris", Year: library.IntPtr(2002), Score: 0.68},
	}

	snap, report := library.Reconcile(library.ReconcileInput{
		Scanned: []library.MediaFile{f},
		Outcomes: map[string]library.MatchOutcome{
			f.Path: {
				Decision:   library.DecisionAmbiguous,
				Guess:      library.Guess{Kind: library.KindMovie, Title: "Solaris"},
				Candidates: candidates,
			},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	if report.Ambiguous != 1 {
		t.Fatalf("expected ambiguous count, got %+v", report)
	}
	if len(snap.Unresolved) != 1 || snap.Unresolved[0].Reason != library.ReasonAmbiguous {
		t.Fatalf("expected ambiguous unresolved entry, got %+v", snap.Unresolved)
	}
	if len(snap.Unresolved[0].Candidates) != 2 {
		t.Fatalf("candidates not preserved: %+v", snap.Unresolved[0])
	}
}

func TestReconcileSkipMatchCarriesForward(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	f := file("/media/movies/home-video.mkv", "fp-home")

	prev := library.Snapshot{
		Unresolved: []library.UnresolvedFile{{
			MediaFile: f,
			Reason:    library.ReasonUnmatched,
			SkipMatch: true,
			FirstSeen: now.Add(-24 * time.Hour),
			LastSeen:  now.Add(-time.Hour),
		}},
	}

	snap, report := library.Reconcile(library.ReconcileInput{
		Previous: prev,
		Scanned:  []library.MediaFile{f},
		Outcomes: map[string]library.MatchOutcome{
			f.Path: {Decision: library.DecisionMatched, Identity: movieIdentity("tmdb-1", "Wrong", 2000)},
		},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	if report.Matched != 0 {
		t.Fatalf("skip_match file must not be matched, got %+v", report)
	}
	if len(snap.Unresolved) != 1 || !snap.Unresolved[0].SkipMatch {
		t.Fatalf("expected pinned unresolved entry, got %+v", snap.Unresolved)
	}
	if !snap.Unresolved[0].LastSeen.Equal(now) {
		t.Fatalf("last_seen not refreshed: %+v", snap.Unresolved[0])
	}
}

func TestReconcileDeferredCarriesPreviousState(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	f := file("/media/movies/unknown.mkv", "fp-u")

	prev := library.Snapshot{
		Unresolved: []library.UnresolvedFile{{
			MediaFile: f,
			Reason:    library.ReasonAmbiguous,
			Candidates: []library.Candidate{
				{ProviderID: "tmdb-9", Kind: library.KindMovie, Title: "Unknown", Score: 0.7},
			},
			FirstSeen: now.Add(-time.Hour),
			LastSeen:  now.Add(-time.Hour),
		}},
	}

	snap, report := library.Reconcile(library.ReconcileInput{
		Previous:    prev,
		Scanned:     []library.MediaFile{f},
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})

	if report.Ambiguous != 0 || report.Unmatched != 0 {
		t.Fatalf("deferred files must not bump counters, got %+v", report)
	}
	if len(snap.Unresolved) != 1 || snap.Unresolved[0].Reason != library.ReasonAmbiguous {
		t.Fatalf("expected carried unresolved entry, got %+v", snap.Unresolved)
	}
	if len(snap.Unresolved[0].Candidates) != 1 {
		t.Fatal("candidates lost on deferred carry")
	}
}

func TestReconcileDropsVanishedUnresolved(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	prev := library.Snapshot{
		Unresolved: []library.UnresolvedFile{{
			MediaFile: file("/media/movies/gone.mkv", "fp-gone"),
			Reason:    library.ReasonUnmatched,
			FirstSeen: now.Add(-time.Hour),
			LastSeen:  now.Add(-time.Hour),
		}},
	}

	snap, _ := library.Reconcile(library.ReconcileInput{
		Previous:    prev,
		GraceCycles: 2,
		Now:         now,
		NewID:       sequentialIDs(),
	})
	if len(snap.Unresolved) != 0 {
		t.Fatalf("expected vanished unresolved entry dropped, got %+v", snap.Unresolved)
	}
}
