// Package progress keeps aggregated step counters for workflow instances so
// that the CLI and the web API can report how far a run has come.
package progress
