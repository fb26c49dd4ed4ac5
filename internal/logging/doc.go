// Package logging configures slog for conceptrank: JSON records written to a
// size-rotated file under ~/.conceptrank/logs, optionally mirrored to stderr,
// plus a small viewer used by 'conceptrank logs'.
//
// In MCP mode nothing is written to stderr or stdout, since stdout carries the
// JSON-RPC stream.
package logging
