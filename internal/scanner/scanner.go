package scanner

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mediashelf/internal/config"
	"mediashelf/internal/library"
	"mediashelf/internal/logging"
	"mediashelf/internal/services"
)

// fingerprintSample is how much of the file head feeds the content hash.
// Combined with the size it is stable across renames and cheap on large files.
const fingerprintSample = 1 << 20

// Scanner walks the configured roots and reports every video file present.
type Scanner struct {
	roots      []string
	extensions map[string]struct{}
	logger     *slog.Logger
}

// Result is one scan pass: the files found plus non-fatal warnings.
type Result struct {
	Files    []library.MediaFile
	Warnings []string
}

// New builds a scanner from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Scanner {
	return &Scanner{
		roots:      append([]string(nil), cfg.Scanner.Roots...),
		extensions: cfg.ExtensionSet(),
		logger:     logging.NewComponentLogger(logger, "scanner"),
	}
}

// Scan walks every root breadth first. A missing or unreadable root becomes a
// warning and the remaining roots are still walked; only when every root is
// unavailable does the scan fail, since committing an empty snapshot then
// would orphan the entire library.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	var result Result
	available := 0

	for _, root := range s.roots {
		rootCtx := services.WithRoot(ctx, root)
		files, warnings, err := s.walkRoot(rootCtx, root)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{}, err
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("root %s unavailable: %v", root, err))
			logging.WithContext(rootCtx, s.logger).Warn("library root unavailable", logging.Error(err))
			continue
		}
		available++
		result.Files = append(result.Files, files...)
	}

	if len(s.roots) > 0 && available == 0 {
		return Result{}, services.Wrap(services.ErrFilesystemUnavailable, "scan", "walk", "no library root is reachable", nil)
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	return result, nil
}

func (s *Scanner) walkRoot(ctx context.Context, root string) ([]library.MediaFile, []string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a directory", root)
	}

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, nil, err
	}

	var (
		files    []library.MediaFile
		warnings []string
		queue    = []string{root}
		visited  = map[string]struct{}{resolved: {}}
	)

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped %s: %v", dir, err))
			logging.WithContext(ctx, s.logger).Warn("directory skipped",
				logging.String(logging.FieldPath, dir), logging.Error(err))
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			full := filepath.Join(dir, name)

			if entry.IsDir() || isSymlinkDir(full, entry) {
				target, err := filepath.EvalSymlinks(full)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("skipped %s: %v", full, err))
					continue
				}
				if _, seen := visited[target]; seen {
					continue
				}
				visited[target] = struct{}{}
				queue = append(queue, full)
				continue
			}

			if !entry.Type().IsRegular() && entry.Type()&fs.ModeSymlink == 0 {
				continue
			}
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
			if _, ok := s.extensions[ext]; !ok {
				continue
			}

			file, err := s.inspect(full)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("unreadable %s: %v", full, err))
				continue
			}
			files = append(files, file)
		}
	}

	return files, warnings, nil
}

func isSymlinkDir(path string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (s *Scanner) inspect(path string) (library.MediaFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return library.MediaFile{}, err
	}
	fingerprint, err := Fingerprint(path, info.Size())
	if err != nil {
		return library.MediaFile{}, err
	}
	return library.MediaFile{
		Path:        path,
		Fingerprint: fingerprint,
		Size:        info.Size(),
		ModifiedAt:  info.ModTime().UTC(),
	}, nil
}

// Fingerprint hashes the leading megabyte of a file and folds in its size.
// Content-based identity lets a rename or move be recognized without touching
// the provider again.
func Fingerprint(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.CopyN(hasher, f, fingerprintSample); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return fmt.Sprintf("%x:%d", hasher.Sum(nil), size), nil
}
