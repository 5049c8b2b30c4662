package scheduler

import (
	"time"

	"tickwork/internal/eventbus"
	logx "tickwork/pkg/logx"
)

const (
	DefaultEpsilon         = time.Microsecond
	DefaultSequenceTimeout = 60 * time.Second
	DefaultHistorySize     = 200
)

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

func WithBus(bus eventbus.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithActive gates every Schedule* call on the owning context being active.
// While fn reports false, scheduling is a no-op returning ErrInactive.
func WithActive(fn func() bool) Option {
	return func(s *Scheduler) { s.active = fn }
}

// WithEpsilon sets the tolerance under which a delay counts as zero.
func WithEpsilon(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.epsilon = d
		}
	}
}

// WithSequenceTimeout sets the budget used by sequences scheduled with timeout <= 0.
func WithSequenceTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.seqTimeout = d
		}
	}
}

func WithHistorySize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithEpoch sets the origin of the virtual clock used by calendar triggers.
func WithEpoch(t time.Time) Option {
	return func(s *Scheduler) {
		if !t.IsZero() {
			s.clock = t
		}
	}
}

// ScheduleOption tunes a single Schedule* call.
type ScheduleOption func(*scheduleConfig)

type scheduleConfig struct {
	name   string
	skip   int
	active func() bool
}

// WithName labels the task in logs, events and history.
func WithName(name string) ScheduleOption {
	return func(c *scheduleConfig) { c.name = name }
}

// WithSkipTicks makes periodic callbacks fire once every n+1 ticks.
func WithSkipTicks(n int) ScheduleOption {
	return func(c *scheduleConfig) { c.skip = n }
}

// WhenActive gates this call on fn, in addition to the scheduler-level gate.
func WhenActive(fn func() bool) ScheduleOption {
	return func(c *scheduleConfig) { c.active = fn }
}
