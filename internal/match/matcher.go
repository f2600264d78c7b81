package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"mediashelf/internal/library"
	"mediashelf/internal/logging"
	"mediashelf/internal/match/tmdb"
	"mediashelf/internal/services"
)

// ambiguityMargin is the minimum lead the best candidate needs over the
// runner-up before an above-threshold score is accepted automatically.
const ambiguityMargin = 0.05

// maxCandidates bounds how many options an ambiguous file surfaces.
const maxCandidates = 5

// Provider is the slice of the TMDB client the matcher needs.
type Provider interface {
	SearchMovies(ctx context.Context, query string, year *int) ([]tmdb.MovieResult, error)
	SearchTV(ctx context.Context, query string) ([]tmdb.TVResult, error)
	EpisodeDetail(ctx context.Context, showID, season, episode int) (*tmdb.Episode, error)
}

// Cache stores raw provider responses keyed by query. Get returns only fresh
// entries; GetStale ignores age and backs degraded cycles.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetStale(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, payload string) error
}

// Options tune thresholds, parallelism, and the retry policy.
type Options struct {
	HighThreshold  float64
	LowThreshold   float64
	Concurrency    int
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// Request pairs a scanned file with its filename guess.
type Request struct {
	File  library.MediaFile
	Guess library.Guess
}

// Matcher turns filename guesses into match outcomes via provider search.
type Matcher struct {
	provider Provider
	cache    Cache
	opts     Options
	logger   *slog.Logger
}

// New builds a matcher.
func New(provider Provider, cache Cache, opts Options, logger *slog.Logger) *Matcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	return &Matcher{
		provider: provider,
		cache:    cache,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "matcher"),
	}
}

// MatchAll resolves every request with bounded parallelism. Provider outages
// never fail the batch: affected files come back as deferred outcomes and the
// returned error carries the degradation marker for cycle classification.
func (m *Matcher) MatchAll(ctx context.Context, requests []Request) (map[string]library.MatchOutcome, error) {
	outcomes := make(map[string]library.MatchOutcome, len(requests))
	var (
		mu       sync.Mutex
		firstErr error
	)

	p := pool.New().WithMaxGoroutines(m.opts.Concurrency)
	for _, req := range requests {
		req := req
		p.Go(func() {
			reqCtx := services.WithRequestID(ctx, uuid.NewString())
			outcome, err := m.MatchFile(reqCtx, req.File, req.Guess)
			mu.Lock()
			defer mu.Unlock()
			outcomes[req.File.Path] = outcome
			if err != nil && firstErr == nil {
				firstErr = err
			}
		})
	}
	p.Wait()

	if firstErr != nil {
		return outcomes, services.Wrap(services.ErrProviderUnavailable, "match", "batch", "some lookups deferred", firstErr)
	}
	return outcomes, nil
}

// MatchFile resolves a single file. A provider failure yields a deferred
// outcome plus the underlying error; all other paths return a decision.
func (m *Matcher) MatchFile(ctx context.Context, file library.MediaFile, guess library.Guess) (library.MatchOutcome, error) {
	if strings.TrimSpace(guess.Title) == "" {
		return library.MatchOutcome{Decision: library.DecisionUnmatched, Guess: guess}, nil
	}

	switch guess.Kind {
	case library.KindEpisode:
		return m.matchEpisode(ctx, file, guess)
	default:
		return m.matchMovie(ctx, file, guess)
	}
}

func (m *Matcher) matchMovie(ctx context.Context, file library.MediaFile, guess library.Guess) (library.MatchOutcome, error) {
	key := cacheKey("movie", guess.Title, guess.Year)
	results, err := fetchCached(ctx, m, key, func(ctx context.Context) ([]tmdb.MovieResult, error) {
		return m.provider.SearchMovies(ctx, guess.Title, guess.Year)
	})
	if err != nil {
		logging.WithContext(ctx, m.logger).Warn("movie lookup deferred",
			logging.String(logging.FieldPath, file.Path), logging.Error(err))
		return library.MatchOutcome{Decision: library.DecisionDeferred, Guess: guess}, err
	}

	candidates := make([]library.Candidate, 0, len(results))
	identities := make([]library.Identity, 0, len(results))
	for _, r := range results {
		year := r.Year()
		c := library.Candidate{
			ProviderID: providerID(r.ID),
			Kind:       library.KindMovie,
			Title:      r.Title,
			Score:      Score(guess.Title, guess.Year, r.Title, year),
		}
		if year != 0 {
			c.Year = library.IntPtr(year)
		}
		candidates = append(candidates, c)
		identities = append(identities, library.Identity{
			Kind:       library.KindMovie,
			ProviderID: c.ProviderID,
			Title:      r.Title,
			Year:       c.Year,
			Overview:   r.Overview,
			PosterPath: r.PosterPath,
		})
	}
	return m.decide(guess, candidates, identities), nil
}

func (m *Matcher) matchEpisode(ctx context.Context, file library.MediaFile, guess library.Guess) (library.MatchOutcome, error) {
	if guess.Season == nil || guess.Episode == nil {
		return library.MatchOutcome{Decision: library.DecisionUnmatched, Guess: guess}, nil
	}

	key := cacheKey("tv", guess.Title, nil)
	results, err := fetchCached(ctx, m, key, func(ctx context.Context) ([]tmdb.TVResult, error) {
		return m.provider.SearchTV(ctx, guess.Title)
	})
	if err != nil {
		logging.WithContext(ctx, m.logger).Warn("show lookup deferred",
			logging.String(logging.FieldPath, file.Path), logging.Error(err))
		return library.MatchOutcome{Decision: library.DecisionDeferred, Guess: guess}, err
	}

	candidates := make([]library.Candidate, 0, len(results))
	identities := make([]library.Identity, 0, len(results))
	showIDs := make([]int, 0, len(results))
	for _, r := range results {
		year := r.Year()
		c := library.Candidate{
			ProviderID: providerID(r.ID),
			Kind:       library.KindShow,
			Title:      r.Name,
			Score:      Score(guess.Title, guess.Year, r.Name, year),
		}
		if year != 0 {
			c.Year = library.IntPtr(year)
		}
		candidates = append(candidates, c)
		identities = append(identities, library.Identity{
			Kind:       library.KindEpisode,
			ProviderID: c.ProviderID,
			Title:      r.Name,
			Year:       c.Year,
			Overview:   r.Overview,
			PosterPath: r.PosterPath,
			Season:     guess.Season,
			Episode:    guess.Episode,
		})
		showIDs = append(showIDs, r.ID)
	}

	outcome := m.decide(guess, candidates, identities)
	if outcome.Decision == library.DecisionMatched {
		for i, c := range candidates {
			if c.ProviderID == outcome.Identity.ProviderID {
				outcome.Identity.EpisodeTitle = m.episodeTitle(ctx, showIDs[i], *guess.Season, *guess.Episode)
				break
			}
		}
	}
	return outcome, nil
}

// episodeTitle is best effort: a failed detail lookup leaves the title empty
// rather than degrading the match.
func (m *Matcher) episodeTitle(ctx context.Context, showID, season, episode int) string {
	key := fmt.Sprintf("episode|%d|%d|%d", showID, season, episode)
	detail, err := fetchCached(ctx, m, key, func(ctx context.Context) (*tmdb.Episode, error) {
		return m.provider.EpisodeDetail(ctx, showID, season, episode)
	})
	if err != nil || detail == nil {
		return ""
	}
	return detail.Name
}

func (m *Matcher) decide(guess library.Guess, candidates []library.Candidate, identities []library.Identity) library.MatchOutcome {
	if len(candidates) == 0 {
		return library.MatchOutcome{Decision: library.DecisionUnmatched, Guess: guess}
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return candidates[order[i]].Score > candidates[order[j]].Score
	})

	best := candidates[order[0]]
	clearWinner := len(order) == 1 || best.Score-candidates[order[1]].Score >= ambiguityMargin

	switch {
	case best.Score >= m.opts.HighThreshold && clearWinner:
		identity := identities[order[0]]
		return library.MatchOutcome{Decision: library.DecisionMatched, Identity: &identity, Guess: guess}
	case best.Score >= m.opts.LowThreshold:
		top := make([]library.Candidate, 0, maxCandidates)
		for _, idx := range order {
			if candidates[idx].Score < m.opts.LowThreshold {
				break
			}
			top = append(top, candidates[idx])
			if len(top) == maxCandidates {
				break
			}
		}
		return library.MatchOutcome{Decision: library.DecisionAmbiguous, Guess: guess, Candidates: top}
	default:
		return library.MatchOutcome{Decision: library.DecisionUnmatched, Guess: guess}
	}
}

// fetchCached serves a query from the fresh cache, falls back to the
// provider with retries, and on outage falls back again to a stale cache
// entry before giving up.
func fetchCached[T any](ctx context.Context, m *Matcher, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	if payload, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		var decoded T
		if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
			return decoded, nil
		}
	}

	var fetched T
	err := retry.Do(
		func() error {
			var fetchErr error
			fetched, fetchErr = fetch(ctx)
			return fetchErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(m.opts.RetryAttempts)),
		retry.Delay(m.opts.RetryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(tmdb.IsRetryable),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		if payload, marshalErr := json.Marshal(fetched); marshalErr == nil {
			if putErr := m.cache.Put(ctx, key, string(payload)); putErr != nil {
				m.logger.Warn("cache write failed", logging.Error(putErr))
			}
		}
		return fetched, nil
	}

	if payload, ok, cacheErr := m.cache.GetStale(ctx, key); cacheErr == nil && ok {
		var decoded T
		if decodeErr := json.Unmarshal([]byte(payload), &decoded); decodeErr == nil {
			m.logger.Debug("served stale cache entry", logging.String("query_key", key))
			return decoded, nil
		}
	}
	return zero, err
}

func cacheKey(kind, title string, year *int) string {
	suffix := "-"
	if year != nil {
		suffix = strconv.Itoa(*year)
	}
	return kind + "|" + normalizeTitle(title) + "|" + suffix
}

func providerID(id int) string {
	return fmt.Sprintf("tmdb-%d", id)
}
