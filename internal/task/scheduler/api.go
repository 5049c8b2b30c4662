package scheduler

import (
	"fmt"
	"time"

	"tickwork/internal/eventbus"
	logx "tickwork/pkg/logx"
)

// ScheduleDeferred runs action once, on the first tick where the accumulated
// delta reaches delay. A delay within epsilon of zero runs action before
// ScheduleDeferred returns, and the handle is already Completed.
func (s *Scheduler) ScheduleDeferred(delay time.Duration, action func(), opts ...ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if action == nil {
		return Handle{}, fmt.Errorf("%w: deferred action is nil", ErrInvalidArgument)
	}
	if delay < 0 {
		return Handle{}, fmt.Errorf("%w: negative delay %s", ErrInvalidArgument, delay)
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}

	t := s.newTask(KindDeferred, cfg)
	if delay <= s.epsilon {
		return s.runNow(t, action), nil
	}
	t.step = func(delta time.Duration) bool {
		t.elapsed += delta
		if t.elapsed < delay {
			return false
		}
		action()
		return true
	}
	return s.register(t), nil
}

// ScheduleAfterFrames runs action once, on the frames-th tick from now.
// Zero frames runs action synchronously.
func (s *Scheduler) ScheduleAfterFrames(frames int, action func(), opts ...ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if action == nil {
		return Handle{}, fmt.Errorf("%w: action is nil", ErrInvalidArgument)
	}
	if frames < 0 {
		return Handle{}, fmt.Errorf("%w: negative frame count %d", ErrInvalidArgument, frames)
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}

	t := s.newTask(KindDeferred, cfg)
	if frames == 0 {
		return s.runNow(t, action), nil
	}
	seen := 0
	t.step = func(delta time.Duration) bool {
		t.elapsed += delta
		seen++
		if seen < frames {
			return false
		}
		action()
		return true
	}
	return s.register(t), nil
}

// ScheduleWhen checks predicate every tick and runs action once, on the first
// tick it reports true.
func (s *Scheduler) ScheduleWhen(predicate func() bool, action func(), opts ...ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if predicate == nil || action == nil {
		return Handle{}, fmt.Errorf("%w: predicate and action are required", ErrInvalidArgument)
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}

	t := s.newTask(KindDeferred, cfg)
	t.step = func(delta time.Duration) bool {
		t.elapsed += delta
		if !predicate() {
			return false
		}
		action()
		return true
	}
	return s.register(t), nil
}

// DoNowOrWhen runs action immediately when cond already holds, otherwise it
// behaves like ScheduleWhen.
func (s *Scheduler) DoNowOrWhen(cond func() bool, action func(), opts ...ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if cond == nil || action == nil {
		return Handle{}, fmt.Errorf("%w: condition and action are required", ErrInvalidArgument)
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}
	if cond() {
		return s.runNow(s.newTask(KindDeferred, cfg), action), nil
	}
	return s.ScheduleWhen(cond, action, opts...)
}

// SchedulePeriodic calls perTick with the accumulated elapsed time on every
// tick (or every skip+1 ticks, see WithSkipTicks) while elapsed < duration.
// On the tick elapsed reaches duration, perTick is called exactly once more
// with elapsed clamped to duration, then onComplete (optional) runs.
func (s *Scheduler) SchedulePeriodic(duration time.Duration, perTick func(elapsed time.Duration), onComplete func(), opts ...ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if perTick == nil {
		return Handle{}, fmt.Errorf("%w: per-tick callback is nil", ErrInvalidArgument)
	}
	if duration < 0 {
		return Handle{}, fmt.Errorf("%w: negative duration %s", ErrInvalidArgument, duration)
	}
	if cfg.skip < 0 {
		return Handle{}, fmt.Errorf("%w: negative skip ticks %d", ErrInvalidArgument, cfg.skip)
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}

	t := s.newTask(KindPeriodic, cfg)
	gate := newSkipGate(cfg.skip)
	t.step = func(delta time.Duration) bool {
		t.elapsed += delta
		if t.elapsed < duration {
			if gate.ready() {
				perTick(t.elapsed)
			}
			return false
		}
		t.elapsed = duration
		perTick(duration)
		if t.state.terminal() || onComplete == nil {
			return true
		}
		onComplete()
		return true
	}
	return s.register(t), nil
}

// SchedulePeriodicWhile calls action every tick (or every skip+1 ticks) while
// predicate holds. The first tick predicate reports false ends the task
// without calling action.
func (s *Scheduler) SchedulePeriodicWhile(predicate func() bool, action func(), opts ...ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if predicate == nil || action == nil {
		return Handle{}, fmt.Errorf("%w: predicate and action are required", ErrInvalidArgument)
	}
	if cfg.skip < 0 {
		return Handle{}, fmt.Errorf("%w: negative skip ticks %d", ErrInvalidArgument, cfg.skip)
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}

	t := s.newTask(KindPeriodic, cfg)
	gate := newSkipGate(cfg.skip)
	t.step = func(delta time.Duration) bool {
		t.elapsed += delta
		if !predicate() {
			return true
		}
		if gate.ready() {
			action()
		}
		return false
	}
	return s.register(t), nil
}

// ScheduleUpdate calls update with every tick's delta until cancelled.
func (s *Scheduler) ScheduleUpdate(update func(delta time.Duration), opts ...ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if update == nil {
		return Handle{}, fmt.Errorf("%w: update callback is nil", ErrInvalidArgument)
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}

	t := s.newTask(KindPeriodic, cfg)
	t.step = func(delta time.Duration) bool {
		t.elapsed += delta
		update(delta)
		return false
	}
	return s.register(t), nil
}

// ScheduleSequence runs steps in order. Each tick, the current step's
// predicate is checked; when it holds, its action runs and the next step is
// checked within the same tick. Every tick that ends blocked on a step adds
// delta to one wait counter shared by the whole sequence (it is not reset
// between steps). Once that counter exceeds timeout the sequence aborts: the
// remaining steps never run, a warning is logged and the handle ends
// Cancelled with ErrSequenceTimeout. timeout <= 0 selects the scheduler
// default (WithSequenceTimeout).
func (s *Scheduler) ScheduleSequence(steps []Step, timeout time.Duration, opts ...ScheduleOption) (Handle, error) {
	cfg := buildConfig(opts)
	if len(steps) == 0 {
		return Handle{}, fmt.Errorf("%w: empty sequence", ErrInvalidArgument)
	}
	for i, st := range steps {
		if st.Predicate == nil || st.Action == nil {
			return Handle{}, fmt.Errorf("%w: step %d needs a predicate and an action", ErrInvalidArgument, i)
		}
	}
	if !s.eligible(cfg) {
		return Handle{}, ErrInactive
	}
	if timeout <= 0 {
		timeout = s.seqTimeout
	}

	t := s.newTask(KindSequence, cfg)
	steps = append([]Step(nil), steps...)
	idx := 0
	var waited time.Duration
	t.step = func(delta time.Duration) bool {
		t.elapsed += delta
		for idx < len(steps) {
			st := steps[idx]
			if !st.Predicate() {
				waited += delta
				if waited > timeout {
					s.abortSequence(t, idx, len(steps), waited, timeout)
				}
				return false
			}
			st.Action()
			idx++
			if t.state.terminal() {
				return true
			}
		}
		return true
	}
	return s.register(t), nil
}

func (s *Scheduler) abortSequence(t *task, idx, total int, waited, timeout time.Duration) {
	t.err = ErrSequenceTimeout
	s.log.Warn("sequence timed out",
		logx.String("task", t.name),
		logx.Int("step", idx),
		logx.Int("steps", total),
		logx.Duration("waited", waited),
		logx.Duration("timeout", timeout),
	)
	s.finishWith(eventbus.SequenceAborted, t, StateCancelled)
}
