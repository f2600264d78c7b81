// Package storage opens the engine's SQLite database and owns the schema.
// The library and watch-state stores share one DB handle so a commit can
// replace the snapshot and preserve watch history in a single transaction.
// Schema changes bump the version; mismatched databases are rejected with a
// rebuild hint rather than migrated.
package storage
