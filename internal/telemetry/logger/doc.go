// Package logger provides structured logging for AuthMesh.
//
// It configures log/slog handlers (JSON or text) and, when secure logging
// is on, redacts attributes that carry secrets: the enumeration pepper,
// database connection strings, the identity query, passwords and keys.
//
// Components receive a *slog.Logger; the package-level default is used
// by code that has none injected.
//
//   - logger.go: handler construction and dynamic level
//   - redact.go: secret redaction
//   - context.go: connection-scoped loggers
package logger
