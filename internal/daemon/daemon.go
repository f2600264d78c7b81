package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"mediashelf/internal/config"
	"mediashelf/internal/logging"
	"mediashelf/internal/reconcile"
)

// Daemon keeps the library reconciled: an immediate cycle at startup, a
// periodic rescan, and event-driven rescans debounced behind a quiet period.
// A lock file enforces a single instance per state directory.
type Daemon struct {
	cfg    *config.Config
	orch   *reconcile.Orchestrator
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock
	running  atomic.Bool
}

// Status is a point-in-time view of the daemon for the status command.
type Status struct {
	Running      bool
	Stage        reconcile.State
	LockFilePath string
}

// New constructs a daemon around an orchestrator.
func New(cfg *config.Config, orch *reconcile.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || orch == nil {
		return nil, errors.New("daemon requires config and orchestrator")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		orch:     orch,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Status reports whether the daemon loop is running and which stage the
// orchestrator is in.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Stage:        d.orch.State(),
		LockFilePath: d.lockPath,
	}
}

// Run acquires the instance lock and blocks until the context is canceled.
// Cycle requests from the ticker and the filesystem watcher are coalesced;
// the orchestrator guarantees at most one cycle in flight.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another mediashelf instance holds %s", d.lockPath)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release instance lock", logging.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requests := make(chan struct{}, 1)
	request := func() {
		select {
		case requests <- struct{}{}:
		default:
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-requests:
				res := d.orch.Run(ctx)
				if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
					d.logger.Warn("cycle finished with error",
						logging.String(logging.FieldCycleID, res.CycleID),
						logging.String("state", res.State),
						logging.Error(res.Err))
				}
			}
		}
	}()

	watcher, watchErr := d.startWatcher(ctx, &wg, request)
	if watchErr != nil {
		// Interval rescans still cover the library; events are best effort.
		d.logger.Warn("filesystem watcher unavailable", logging.Error(watchErr))
	}
	if watcher != nil {
		defer watcher.Close()
	}

	interval := time.Duration(d.cfg.Daemon.ScanInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.running.Store(true)
	defer d.running.Store(false)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("scan_interval", interval))

	request() // startup cycle

	for {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			d.logger.Info("daemon stopped")
			return nil
		case <-ticker.C:
			request()
		}
	}
}

// startWatcher watches every library root recursively and converts bursts of
// filesystem events into a single cycle request after the quiet period.
func (d *Daemon) startWatcher(ctx context.Context, wg *sync.WaitGroup, request func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for _, root := range d.cfg.Scanner.Roots {
		if err := addTree(watcher, root); err != nil {
			d.logger.Warn("cannot watch library root",
				logging.String(logging.FieldRoot, root), logging.Error(err))
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return nil, errors.New("no library root is watchable")
	}

	debounce := time.Duration(d.cfg.Daemon.DebounceSeconds) * time.Second
	if debounce <= 0 {
		debounce = 5 * time.Second
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}
		pending := false

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !relevant(event) {
					continue
				}
				if event.Op.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := addTree(watcher, event.Name); err != nil {
							d.logger.Debug("cannot watch new directory",
								logging.String(logging.FieldPath, event.Name), logging.Error(err))
						}
					}
				}
				if pending {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
				}
				timer.Reset(debounce)
				pending = true
			case <-timer.C:
				pending = false
				d.logger.Debug("quiet period elapsed, requesting cycle")
				request()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("filesystem watcher error", logging.Error(err))
			}
		}
	}()
	return watcher, nil
}

// relevant filters out event noise that cannot change scan results.
func relevant(event fsnotify.Event) bool {
	if event.Op.Has(fsnotify.Chmod) && event.Op&^fsnotify.Chmod == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	return !strings.HasPrefix(base, ".")
}

// addTree registers a directory and all its subdirectories with the watcher.
// fsnotify watches are not recursive on their own.
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
