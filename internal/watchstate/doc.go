// Package watchstate tracks playback progress per library item and derives
// season and show rollups from episode state. Container state is computed on
// read, never stored, so it can never drift from its episodes.
package watchstate
