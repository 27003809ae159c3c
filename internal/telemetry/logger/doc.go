// Package logger provides structured logging for memgate.
//
// It wraps log/slog with a small Logger interface, a process-wide level
// that can be changed at runtime, and a ReplaceAttr hook that keeps
// invitation tokens and credentials out of log output:
//
//   - logger.go: construction, levels, package-level helpers
//   - context.go: logger and request id propagation through context
//   - redact.go: value masking (mgv_ tokens) and key based redaction
package logger
