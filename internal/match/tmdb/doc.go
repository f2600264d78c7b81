// Package tmdb is a thin typed client for the TMDB v3 API: movie search, TV
// search, and episode details. Retry policy belongs to the caller.
package tmdb
