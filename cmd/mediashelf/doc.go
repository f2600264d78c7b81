// Command mediashelf manages a local media library: it scans configured
// roots, matches files against TMDB, and exposes the resulting library,
// backlog, watch state, and collections on the command line.
package main
