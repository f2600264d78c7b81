package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediashelf/internal/config"
	"mediashelf/internal/library"
	"mediashelf/internal/testsupport"
)

// writeTestConfig materializes a config file pointing at per-test temp
// directories and returns its path plus the directories it names.
func writeTestConfig(t *testing.T) (configPath, stateDir, mediaDir string) {
	t.Helper()
	base := t.TempDir()
	stateDir = filepath.Join(base, "state")
	mediaDir = filepath.Join(base, "media")
	for _, dir := range []string{stateDir, mediaDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	configPath = filepath.Join(base, "config.toml")
	body := fmt.Sprintf(`
[paths]
state_dir = %q
log_dir = %q

[scanner]
roots = [%q]

[tmdb]
api_key = "test"
`, stateDir, filepath.Join(base, "logs"), mediaDir)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath, stateDir, mediaDir
}

func seedLibrary(t *testing.T, configPath string) {
	t.Helper()
	cfg := loadConfigForTest(t, configPath)
	libStore := testsupport.MustOpenStore(t, cfg)

	now := time.Unix(1700000000, 0).UTC()
	snap := library.Snapshot{
		Items: []library.Item{
			{ID: "movie-1", Kind: library.KindMovie, ProviderID: "tmdb-603", Title: "The Matrix", Year: library.IntPtr(1999), CreatedAt: now, UpdatedAt: now},
			{ID: "show-1", Kind: library.KindShow, ProviderID: "tmdb-95396", Title: "Severance", CreatedAt: now, UpdatedAt: now},
			{ID: "season-1", Kind: library.KindSeason, ParentID: "show-1", SeasonNum: library.IntPtr(1), Title: "Season 1", CreatedAt: now, UpdatedAt: now},
			{ID: "ep-1", Kind: library.KindEpisode, ParentID: "season-1", SeasonNum: library.IntPtr(1), EpisodeNum: library.IntPtr(1), Title: "Good News About Hell", CreatedAt: now, UpdatedAt: now},
		},
		Unresolved: []library.UnresolvedFile{{
			MediaFile: library.MediaFile{Path: "/media/unknown.mkv", Fingerprint: "fp-unknown", Size: 100, ModifiedAt: now},
			Reason:    library.ReasonAmbiguous,
			Guess:     library.Guess{Kind: library.KindMovie, Title: "Solaris"},
			Candidates: []library.Candidate{
				{ProviderID: "tmdb-593", Kind: library.KindMovie, Title: "Solaris", Year: library.IntPtr(1972), Score: 0.9},
				{ProviderID: "tmdb-2043", Kind: library.KindMovie, Title: "Solaris", Year: library.IntPtr(2002), Score: 0.9},
			},
			FirstSeen: now,
			LastSeen:  now,
		}},
	}
	if err := libStore.CommitSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func loadConfigForTest(t *testing.T, configPath string) *config.Config {
	t.Helper()
	ctx := newCommandContext(&configPath, new(bool))
	cfg, err := ctx.ensureConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestLibraryListsSeededItems(t *testing.T) {
	configPath, _, _ := writeTestConfig(t)
	seedLibrary(t, configPath)

	out, err := executeCommand(t, "--config", configPath, "library")
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	if !strings.Contains(out, "The Matrix") || !strings.Contains(out, "Severance") {
		t.Fatalf("listing missing seeded titles:\n%s", out)
	}
}

func TestUnresolvedListingAndResolve(t *testing.T) {
	configPath, _, _ := writeTestConfig(t)
	seedLibrary(t, configPath)

	out, err := executeCommand(t, "--config", configPath, "unresolved")
	if err != nil {
		t.Fatalf("unresolved: %v", err)
	}
	if !strings.Contains(out, "/media/unknown.mkv") || !strings.Contains(out, "tmdb-593") {
		t.Fatalf("backlog listing incomplete:\n%s", out)
	}

	out, err = executeCommand(t, "--config", configPath, "resolve", "/media/unknown.mkv", "tmdb-593")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "Solaris") {
		t.Fatalf("resolve output:\n%s", out)
	}

	out, err = executeCommand(t, "--config", configPath, "unresolved")
	if err != nil {
		t.Fatalf("unresolved after resolve: %v", err)
	}
	if !strings.Contains(out, "No unresolved files.") {
		t.Fatalf("backlog not cleared:\n%s", out)
	}
}

func TestWatchedMarkAndNext(t *testing.T) {
	configPath, _, _ := writeTestConfig(t)
	seedLibrary(t, configPath)

	if _, err := executeCommand(t, "--config", configPath, "watched", "mark", "ep-1"); err != nil {
		t.Fatalf("watched mark: %v", err)
	}
	out, err := executeCommand(t, "--config", configPath, "watched", "next", "show-1")
	if err != nil {
		t.Fatalf("watched next: %v", err)
	}
	if !strings.Contains(out, "All episodes watched.") {
		t.Fatalf("next output:\n%s", out)
	}
}

func TestCollectionLifecycle(t *testing.T) {
	configPath, _, _ := writeTestConfig(t)
	seedLibrary(t, configPath)

	if _, err := executeCommand(t, "--config", configPath, "collection", "create", "Favorites"); err != nil {
		t.Fatalf("collection create: %v", err)
	}
	if _, err := executeCommand(t, "--config", configPath, "collection", "add", "Favorites", "movie-1"); err != nil {
		t.Fatalf("collection add: %v", err)
	}
	out, err := executeCommand(t, "--config", configPath, "collection", "list")
	if err != nil {
		t.Fatalf("collection list: %v", err)
	}
	if !strings.Contains(out, "Favorites") || !strings.Contains(out, "movie-1") {
		t.Fatalf("collection listing:\n%s", out)
	}
}
