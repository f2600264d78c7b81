package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client is a minimal typed TMDB API client covering search and episode
// lookup. It performs no retries itself; callers wrap requests in their own
// retry policy using IsRetryable.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	language   string
}

// New constructs a client. baseURL has no trailing slash.
func New(baseURL, apiKey, language string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		language:   language,
	}
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: unexpected status %d", e.StatusCode)
}

// IsRetryable reports whether a request error is worth retrying: rate limits,
// server errors, and transport failures. Auth and client errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

// MovieResult is one movie search hit.
type MovieResult struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Overview    string `json:"overview"`
	PosterPath  string `json:"poster_path"`
}

// Year extracts the release year, or 0 when unknown.
func (r MovieResult) Year() int {
	return yearOf(r.ReleaseDate)
}

// TVResult is one TV search hit.
type TVResult struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	FirstAirDate string `json:"first_air_date"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
}

// Year extracts the first-air year, or 0 when unknown.
func (r TVResult) Year() int {
	return yearOf(r.FirstAirDate)
}

// Episode is one episode detail record.
type Episode struct {
	Name          string `json:"name"`
	Overview      string `json:"overview"`
	AirDate       string `json:"air_date"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// SearchMovies queries the movie index, optionally pinned to a year.
func (c *Client) SearchMovies(ctx context.Context, query string, year *int) ([]MovieResult, error) {
	params := url.Values{"query": {query}}
	if year != nil {
		params.Set("year", strconv.Itoa(*year))
	}
	var payload struct {
		Results []MovieResult `json:"results"`
	}
	if err := c.get(ctx, "/search/movie", params, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// SearchTV queries the TV index.
func (c *Client) SearchTV(ctx context.Context, query string) ([]TVResult, error) {
	var payload struct {
		Results []TVResult `json:"results"`
	}
	if err := c.get(ctx, "/search/tv", url.Values{"query": {query}}, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// EpisodeDetail fetches a single episode record.
func (c *Client) EpisodeDetail(ctx context.Context, showID, season, episode int) (*Episode, error) {
	path := fmt.Sprintf("/tv/%d/season/%d/episode/%d", showID, season, episode)
	var payload Episode
	if err := c.get(ctx, path, url.Values{}, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("tmdb: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tmdb: decode %s: %w", path, err)
	}
	return nil
}
