// Package logx configures tickwork's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - A zero value that is safe to use (no-op) inside tick callbacks
package logx
