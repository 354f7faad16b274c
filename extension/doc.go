// Package extension holds the run-time registry of action services that
// action steps resolve by name.
package extension
