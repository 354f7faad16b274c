// Package idgen wraps the UUID generator used for workflow, step, server and
// request identifiers. Callers treat the values as opaque strings.
package idgen
