// Package lerp advances many value interpolations per tick.
//
// A Manager owns the active entries; each Tick moves every entry forward by
// the same delta, pushes the new value through the entry's setter and fires
// timed events whose threshold was crossed. Entries that finish are removed
// after the whole tick has been processed.
//
// Like the scheduler, a Manager is not safe for concurrent use.
package lerp
