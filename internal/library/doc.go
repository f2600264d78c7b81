// Package library defines the media library model and the reconcile diff.
// A snapshot holds the item tree, file links, and the unresolved backlog;
// Reconcile produces the next snapshot from scanned filesystem truth and
// matcher outcomes without touching storage or the clock. Persistence lives
// in the store subpackage.
package library
