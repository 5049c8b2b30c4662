// Package storage keeps a journal of finished tasks.
//
// The host appends one Record per terminal scheduler/lerp event. The journal
// is diagnostics only: scheduled work itself is never persisted or restored.
//
// Drivers:
//   - file: JSON Lines, compacted to the newest MaxRecords
//   - sqlite: modernc.org/sqlite (pure Go, no cgo)
package storage
