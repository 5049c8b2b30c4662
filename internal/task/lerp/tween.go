package lerp

import (
	"fmt"
	"time"

	"tickwork/internal/task/scheduler"
)

// Tween moves a single value from one point to another on a scheduler,
// without a Manager. set receives the value every tick; the last call
// carries exactly to (for curves with curve(1) == 1), then onEnd runs.
func Tween(s *scheduler.Scheduler, from, to Value, duration time.Duration, curve Curve, set func(Value), onEnd func(), opts ...scheduler.ScheduleOption) (scheduler.Handle, error) {
	if len(from) == 0 || len(from) != len(to) {
		return scheduler.Handle{}, fmt.Errorf("%w: from/to must be non-empty and the same size", ErrInvalidArgument)
	}
	if set == nil {
		return scheduler.Handle{}, fmt.Errorf("%w: setter is nil", ErrInvalidArgument)
	}
	if curve == nil {
		curve = Linear
	}
	from, to = from.Clone(), to.Clone()
	return s.SchedulePeriodic(duration, func(elapsed time.Duration) {
		frac := 1.0
		if duration > 0 {
			frac = clamp01(float64(elapsed) / float64(duration))
		}
		set(Interpolate(from, to, curve(frac)))
	}, onEnd, opts...)
}
