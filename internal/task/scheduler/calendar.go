package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	logx "tickwork/pkg/logx"
)

// ScheduleCron fires action whenever the virtual clock (see Now) passes the
// next activation of a cron expression. It fires at most once per tick: the
// following activation is computed from the one that just fired, and
// activations the clock already passed are skipped rather than replayed.
// Runs until cancelled.
//
// Supported forms: "*/5 * * * *", "0 */10 * * * *" (with seconds), "@hourly",
// "@every 90s".
func (s *Scheduler) ScheduleCron(spec string, action func(at time.Time), opts ...ScheduleOption) (Handle, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Handle{}, fmt.Errorf("%w: cron spec required", ErrInvalidArgument)
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.scheduleCalendar(spec, sched, action, opts)
}

// ScheduleSpec accepts anything ParseSchedule understands: cron expressions,
// Go durations ("55m") and HH:MM intervals ("02:30").
func (s *Scheduler) ScheduleSpec(spec string, action func(at time.Time), opts ...ScheduleOption) (Handle, error) {
	ps, err := ParseSchedule(spec)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	switch ps.Kind {
	case SpecCron:
		return s.ScheduleCron(ps.Cron, action, opts...)
	case SpecInterval:
		return s.scheduleCalendar("@every "+ps.Every.String(), everySchedule{every: ps.Every}, action, opts)
	default:
		return Handle{}, fmt.Errorf("%w: unsupported schedule kind", ErrInvalidArgument)
	}
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether ScheduleSpec would accept spec, including
// cron syntax.
func ValidateSpec(spec string) error {
	ps, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	if ps.Kind == SpecCron {
		if _, err := cronParser.Parse(ps.Cron); err != nil {
			return err
		}
	}
	return nil
}

// everySchedule is a constant-delay schedule on the virtual clock.
// cron.Every rounds to whole seconds, which is too coarse for sub-second intervals.
type everySchedule struct {
	every time.Duration
}

func (e everySchedule) Next(t time.Time) time.Time { return t.Add(e.every) }

var _ cron.Schedule = everySchedule{}

func (s *Scheduler) scheduleCalendar(spec string, sched cron.Schedule, action func(at time.Time), opts []ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if action == nil {
		return Handle{}, fmt.Errorf("%w: action is nil", ErrInvalidArgument)
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}

	t := s.newTask(KindPeriodic, cfg)
	t.next = sched.Next(s.clock)
	if t.next.IsZero() {
		return Handle{}, fmt.Errorf("%w: schedule %q never fires", ErrInvalidArgument, spec)
	}
	t.step = func(delta time.Duration) bool {
		t.elapsed += delta
		if s.clock.Before(t.next) {
			return false
		}
		at := t.next
		action(at)
		t.next = sched.Next(at)
		if !t.next.IsZero() && !t.next.After(s.clock) {
			t.next = sched.Next(s.clock)
		}
		return t.next.IsZero()
	}

	h := s.register(t)
	s.log.Debug("schedule registered", logx.String("task", t.name), logx.String("spec", spec), logx.String("next", previewNext(sched, s.clock, 3)))
	return h, nil
}

func previewNext(sched cron.Schedule, from time.Time, n int) string {
	var b strings.Builder
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format(time.RFC3339))
	}
	return b.String()
}
