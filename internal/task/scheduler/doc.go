// Package scheduler provides a tick-driven cooperative task scheduler.
//
// Nothing here owns a goroutine or reads the wall clock. The host calls Tick
// once per frame with the elapsed delta and every registered task is advanced
// synchronously, in registration order:
//   - deferred actions (delay, frame count, predicate)
//   - periodic actions (fixed duration with an exact final call, predicate-gated, per-tick updates)
//   - sequences of predicate-gated steps sharing one cumulative timeout
//   - calendar triggers (cron / interval specs) evaluated on a virtual clock
//
// A Scheduler is not safe for concurrent use. Schedule*, Cancel and Tick must
// be called from the goroutine that drives the frames (callbacks included).
package scheduler
