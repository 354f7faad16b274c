// Package tracing wraps OpenTelemetry with a stdout exporter so that workflow
// runs, step executions and MCP client calls can be traced without importing
// the upstream packages everywhere.
package tracing
