package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediashelf/internal/config"
	"mediashelf/internal/logging"
	"mediashelf/internal/scanner"
	"mediashelf/internal/services"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newScanner(t *testing.T, roots ...string) *scanner.Scanner {
	t.Helper()
	cfg := config.Default()
	cfg.Scanner.Roots = roots
	return scanner.New(&cfg, logging.NewNop())
}

func TestScanFindsVideoFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movies", "Heat (1995).mkv"), "heat-bytes")
	writeFile(t, filepath.Join(root, "movies", "notes.txt"), "not a video")
	writeFile(t, filepath.Join(root, "movies", ".hidden.mkv"), "hidden")
	writeFile(t, filepath.Join(root, "tv", "show", "s01e01.mp4"), "episode-bytes")

	result, err := newScanner(t, root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 files, got %+v", result.Files)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	for _, f := range result.Files {
		if f.Fingerprint == "" || f.Size == 0 {
			t.Fatalf("file missing fingerprint or size: %+v", f)
		}
	}
}

func TestScanMissingRootIsWarning(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mkv"), "bytes")
	missing := filepath.Join(t.TempDir(), "gone")

	result, err := newScanner(t, root, missing).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("expected surviving root to be scanned, got %+v", result.Files)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "unavailable") {
		t.Fatalf("expected unavailable warning, got %v", result.Warnings)
	}
}

func TestScanAllRootsMissingIsFatal(t *testing.T) {
	missingA := filepath.Join(t.TempDir(), "a")
	missingB := filepath.Join(t.TempDir(), "b")

	_, err := newScanner(t, missingA, missingB).Scan(context.Background())
	if !errors.Is(err, services.ErrFilesystemUnavailable) {
		t.Fatalf("expected filesystem unavailable, got %v", err)
	}
}

func TestScanSymlinkCycleTerminates(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "shows", "loop")
	writeFile(t, filepath.Join(root, "shows", "a.mkv"), "bytes")
	if err := os.MkdirAll(filepath.Dir(nested), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(root, nested); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	result, err := newScanner(t, root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("expected single file despite cycle, got %+v", result.Files)
	}
}

func TestScanRespectsCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mkv"), "bytes")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newScanner(t, root).Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestFingerprintStableAcrossRename(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "a.mkv")
	writeFile(t, original, "identical-bytes")

	fpA, err := scanner.Fingerprint(original, int64(len("identical-bytes")))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	renamed := filepath.Join(dir, "b.mkv")
	if err := os.Rename(original, renamed); err != nil {
		t.Fatalf("rename: %v", err)
	}
	fpB, err := scanner.Fingerprint(renamed, int64(len("identical-bytes")))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if fpA != fpB {
		t.Fatalf("fingerprint changed across rename: %s vs %s", fpA, fpB)
	}

	other := filepath.Join(dir, "c.mkv")
	writeFile(t, other, "different-bytes!")
	fpC, err := scanner.Fingerprint(other, int64(len("different-bytes!")))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if fpC == fpA {
		t.Fatal("different content produced identical fingerprint")
	}
}
