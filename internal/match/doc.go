// Package match scores provider search results against filename guesses and
// classifies each file as matched, ambiguous, unmatched, or deferred. Lookups
// are cached, retried with backoff, and bounded by a worker pool; a provider
// outage degrades a cycle instead of failing it.
package match
