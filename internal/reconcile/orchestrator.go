// Package reconcile drives full library cycles: scan the roots, match what
// changed, and commit the next snapshot atomically.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediashelf/internal/library"
	"mediashelf/internal/library/store"
	"mediashelf/internal/logging"
	"mediashelf/internal/match"
	"mediashelf/internal/scanner"
	"mediashelf/internal/services"
	"mediashelf/internal/titleparse"
)

// State is the orchestrator's current stage, for status reporting.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateMatching   State = "matching"
	StateCommitting State = "committing"
)

// Terminal cycle states persisted to history.
const (
	CycleSuccess        = "success"
	CyclePartialSuccess = "partial_success"
	CycleFailed         = "failed"
)

// Scanner walks the library roots.
type Scanner interface {
	Scan(ctx context.Context) (scanner.Result, error)
}

// Matcher resolves filename guesses against the metadata provider.
type Matcher interface {
	MatchAll(ctx context.Context, requests []match.Request) (map[string]library.MatchOutcome, error)
}

// Result is the outcome of one reconcile cycle, shared by every caller that
// coalesced onto it.
type Result struct {
	CycleID string
	State   string
	Report  library.ChangeReport
	Err     error
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Scanner     Scanner
	Matcher     Matcher
	Store       *store.Store
	GraceCycles int
	CacheTTL    time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string
}

// Orchestrator drives the scan, match, and commit stages of a cycle. At most
// one cycle runs at a time; concurrent triggers coalesce onto the in-flight
// cycle and receive its result.
type Orchestrator struct {
	scanner  Scanner
	matcher  Matcher
	store    *store.Store
	grace    int
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	state    State
	inflight *inflight
}

type inflight struct {
	done   chan struct{}
	result Result
}

// New builds an orchestrator. Now and NewID default to the wall clock and
// random UUIDs when unset.
func New(deps Deps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Orchestrator{
		scanner:  deps.Scanner,
		matcher:  deps.Matcher,
		store:    deps.Store,
		grace:    deps.GraceCycles,
		cacheTTL: deps.CacheTTL,
		logger:   logging.NewComponentLogger(deps.Logger, "reconcile"),
		now:      now,
		newID:    newID,
		state:    StateIdle,
	}
}

// State reports the stage the orchestrator is currently in.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run executes one full cycle. If a cycle is already in flight the call waits
// for it and returns its result instead of starting another, so filesystem
// events and manual triggers cannot stack cycles.
func (o *Orchestrator) Run(ctx context.Context) Result {
	o.mu.Lock()
	if o.inflight != nil {
		flight := o.inflight
		o.mu.Unlock()
		select {
		case <-flight.done:
			return flight.result
		case <-ctx.Done():
			return Result{Err: ctx.Err()}
		}
	}
	flight := &inflight{done: make(chan struct{})}
	o.inflight = flight
	o.mu.Unlock()

	flight.result = o.runCycle(ctx)

	o.mu.Lock()
	o.inflight = nil
	o.state = StateIdle
	o.mu.Unlock()
	close(flight.done)
	return flight.result
}

func (o *Orchestrator) runCycle(ctx context.Context) Result {
	cycleID := o.newID()
	ctx = services.WithCycleID(ctx, cycleID)
	log := logging.WithContext(ctx, o.logger)

	res := Result{CycleID: cycleID}
	startedAt := o.now()
	if err := o.store.BeginCycle(ctx, cycleID, startedAt); err != nil {
		res.State = CycleFailed
		res.Err = err
		return res
	}
	log.Info("cycle started")

	report, err := o.execute(ctx)
	res.Report = report
	res.Err = err

	switch {
	case err != nil && !services.Degraded(err):
		res.State = CycleFailed
	case err != nil, len(report.Warnings) > 0, report.Ambiguous > 0, report.Unmatched > 0:
		res.State = CyclePartialSuccess
	default:
		res.State = CycleSuccess
	}

	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}
	// History is written even when the cycle was canceled.
	finishCtx := context.WithoutCancel(ctx)
	if finishErr := o.store.FinishCycle(finishCtx, cycleID, res.State, report, errMsg, o.now()); finishErr != nil {
		log.Error("cycle history write failed", logging.Error(finishErr))
		if res.Err == nil {
			res.State = CycleFailed
			res.Err = finishErr
		}
	}
	log.Info("cycle finished",
		logging.String("state", res.State),
		logging.Int("matched", res.Report.Matched),
		logging.Int("ambiguous", res.Report.Ambiguous),
		logging.Int("unmatched", res.Report.Unmatched),
		logging.Int("removed", res.Report.Removed),
		logging.Int("moved", res.Report.Moved))
	return res
}

func (o *Orchestrator) execute(ctx context.Context) (library.ChangeReport, error) {
	o.setState(StateScanning)
	scanned, err := o.scanner.Scan(services.WithStage(ctx, "scan"))
	if err != nil {
		return library.ChangeReport{}, err
	}

	previous, err := o.store.Snapshot(ctx)
	if err != nil {
		return library.ChangeReport{}, err
	}

	o.setState(StateMatching)
	requests := buildRequests(previous, scanned.Files, o.now())
	var (
		outcomes map[string]library.MatchOutcome
		matchErr error
	)
	if len(requests) > 0 {
		outcomes, matchErr = o.matcher.MatchAll(services.WithStage(ctx, "match"), requests)
		if matchErr != nil && !services.Degraded(matchErr) {
			return library.ChangeReport{}, matchErr
		}
	}

	next, report := library.Reconcile(library.ReconcileInput{
		Previous:    previous,
		Scanned:     scanned.Files,
		Outcomes:    outcomes,
		GraceCycles: o.grace,
		Now:         o.now(),
		NewID:       o.newID,
	})
	report.Warnings = append(report.Warnings, scanned.Warnings...)
	if matchErr != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("metadata lookups deferred: %v", matchErr))
	}

	// Cancellation is observed here so a shutdown never interrupts the
	// commit transaction itself.
	if err := ctx.Err(); err != nil {
		return report, err
	}

	o.setState(StateCommitting)
	if err := o.store.CommitSnapshot(services.WithStage(ctx, "commit"), next); err != nil {
		return report, err
	}

	if o.cacheTTL > 0 {
		if _, err := o.store.CachePrune(ctx, o.cacheTTL, o.now()); err != nil {
			logging.WithContext(ctx, o.logger).Warn("cache prune failed", logging.Error(err))
		}
	}
	return report, matchErr
}

// buildRequests selects the scanned files that actually need a provider
// lookup: files already linked at the same path, fingerprint moves of linked
// files, and files pinned with skip_match are settled without one.
func buildRequests(previous library.Snapshot, scanned []library.MediaFile, now time.Time) []match.Request {
	linkByPath := make(map[string]library.FileLink, len(previous.Links))
	for _, link := range previous.Links {
		linkByPath[link.Path] = link
	}
	present := make(map[string]struct{}, len(scanned))
	for _, f := range scanned {
		present[f.Path] = struct{}{}
	}
	movedFingerprints := make(map[string]struct{})
	for _, link := range previous.Links {
		if _, stillThere := present[link.Path]; !stillThere {
			movedFingerprints[link.Fingerprint] = struct{}{}
		}
	}
	skip := make(map[string]struct{})
	for _, u := range previous.Unresolved {
		if u.SkipMatch {
			skip[u.Path] = struct{}{}
		}
	}

	var requests []match.Request
	for _, file := range scanned {
		if link, ok := linkByPath[file.Path]; ok && link.Fingerprint == file.Fingerprint {
			continue
		}
		if _, ok := movedFingerprints[file.Fingerprint]; ok {
			continue
		}
		if _, ok := skip[file.Path]; ok {
			continue
		}
		requests = append(requests, match.Request{
			File:  file,
			Guess: titleparse.Parse(file.Path, now),
		})
	}
	return requests
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}
