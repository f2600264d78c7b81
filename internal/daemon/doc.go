// Package daemon runs the reconcile loop continuously: one cycle at startup,
// periodic rescans on an interval, and debounced rescans on filesystem events
// under the library roots. A flock on the state directory prevents a second
// instance from racing the first on the same database.
package daemon
