// Package titleparse turns file paths into identity guesses: a probable
// title, year, and for episodes a season and episode number. Guesses seed
// provider search and are kept with unresolved files; they are never treated
// as authoritative.
package titleparse
