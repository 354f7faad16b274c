// Package client connects to MCP servers and sends raco command envelopes
// as tool calls.
//
// A Client holds at most one session and opens a fresh transport on every
// Connect, so a disconnected client can connect again. A Factory builds
// clients for stdio subprocesses, streamable HTTP endpoints and in-process
// servers; a Hub keeps connected clients by server name for workflow
// actions.
package client
