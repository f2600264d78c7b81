// Package scanner discovers video files under the configured library roots.
// The walk is breadth first, follows directory symlinks with a cycle guard,
// and never trusts file naming beyond the extension filter.
package scanner
