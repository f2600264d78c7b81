// Package store persists library snapshots in SQLite. Commits upsert item
// rows by ID instead of replacing them so watch state and collection
// membership survive each reconcile cycle.
package store
