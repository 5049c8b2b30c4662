package scheduler

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"tickwork/internal/eventbus"
	logx "tickwork/pkg/logx"
)

func TestPeriodicFinalCallIsClampedToDuration(t *testing.T) {
	t.Parallel()

	s := New()
	var got []time.Duration
	completed := 0
	h, err := s.SchedulePeriodic(time.Second, func(e time.Duration) { got = append(got, e) }, func() { completed++ })
	if err != nil {
		t.Fatalf("SchedulePeriodic error: %v", err)
	}

	for i := 0; i < 4; i++ {
		s.Tick(300 * time.Millisecond)
	}

	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 900 * time.Millisecond, time.Second}
	if len(got) != len(want) {
		t.Fatalf("got %d calls (%v), want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: elapsed = %v, want %v", i, got[i], want[i])
		}
	}
	if completed != 1 {
		t.Fatalf("onComplete called %d times, want 1", completed)
	}
	if h.State() != StateCompleted || h.Elapsed() != time.Second {
		t.Fatalf("handle state=%v elapsed=%v", h.State(), h.Elapsed())
	}

	s.Tick(300 * time.Millisecond)
	if len(got) != 4 || completed != 1 {
		t.Fatalf("callbacks fired after completion")
	}
	if s.Len() != 0 {
		t.Fatalf("expected completed task to be pruned, Len=%d", s.Len())
	}
}

func TestPeriodicLargeOvershootStillReportsDuration(t *testing.T) {
	t.Parallel()

	s := New()
	var got []time.Duration
	if _, err := s.SchedulePeriodic(2*time.Second, func(e time.Duration) { got = append(got, e) }, nil); err != nil {
		t.Fatalf("SchedulePeriodic error: %v", err)
	}
	s.Tick(5 * time.Second)
	if len(got) != 1 || got[0] != 2*time.Second {
		t.Fatalf("got %v, want single call at 2s", got)
	}
}

func TestPeriodicSkipTicks(t *testing.T) {
	t.Parallel()

	s := New()
	var got []time.Duration
	_, err := s.SchedulePeriodic(time.Second, func(e time.Duration) { got = append(got, e) }, nil, WithSkipTicks(1))
	if err != nil {
		t.Fatalf("SchedulePeriodic error: %v", err)
	}
	for i := 0; i < 5; i++ {
		s.Tick(250 * time.Millisecond)
	}
	// 250 skipped, 500 fires, 750 skipped, 1000 final.
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDeferredZeroDelayRunsSynchronously(t *testing.T) {
	t.Parallel()

	s := New()
	ran := false
	h, err := s.ScheduleDeferred(0, func() { ran = true })
	if err != nil {
		t.Fatalf("ScheduleDeferred error: %v", err)
	}
	if !ran {
		t.Fatalf("expected action to run before ScheduleDeferred returned")
	}
	if !h.Valid() || h.State() != StateCompleted {
		t.Fatalf("expected completed valid handle, got valid=%v state=%v", h.Valid(), h.State())
	}
	if s.Frame() != 0 || s.Len() != 0 {
		t.Fatalf("expected no ticks and no active tasks")
	}
}

func TestDeferredFiresOnceWhenDelayReached(t *testing.T) {
	t.Parallel()

	s := New()
	calls := 0
	if _, err := s.ScheduleDeferred(time.Second, func() { calls++ }); err != nil {
		t.Fatalf("ScheduleDeferred error: %v", err)
	}
	s.Tick(500 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("fired early")
	}
	s.Tick(500 * time.Millisecond)
	s.Tick(500 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestScheduleRejectsInvalidArguments(t *testing.T) {
	t.Parallel()

	s := New()
	noop := func() {}
	cases := []struct {
		name string
		call func() (Handle, error)
	}{
		{"deferred nil action", func() (Handle, error) { return s.ScheduleDeferred(time.Second, nil) }},
		{"deferred negative delay", func() (Handle, error) { return s.ScheduleDeferred(-time.Second, noop) }},
		{"periodic nil callback", func() (Handle, error) { return s.SchedulePeriodic(time.Second, nil, nil) }},
		{"periodic negative duration", func() (Handle, error) {
			return s.SchedulePeriodic(-time.Second, func(time.Duration) {}, nil)
		}},
		{"periodic negative skip", func() (Handle, error) {
			return s.SchedulePeriodic(time.Second, func(time.Duration) {}, nil, WithSkipTicks(-1))
		}},
		{"while nil predicate", func() (Handle, error) { return s.SchedulePeriodicWhile(nil, noop) }},
		{"sequence empty", func() (Handle, error) { return s.ScheduleSequence(nil, time.Second) }},
		{"sequence nil step", func() (Handle, error) {
			return s.ScheduleSequence([]Step{{Predicate: func() bool { return true }}}, time.Second)
		}},
		{"frames negative", func() (Handle, error) { return s.ScheduleAfterFrames(-1, noop) }},
		{"when nil action", func() (Handle, error) { return s.ScheduleWhen(func() bool { return true }, nil) }},
		{"update nil", func() (Handle, error) { return s.ScheduleUpdate(nil) }},
		{"cron garbage", func() (Handle, error) { return s.ScheduleCron("not a cron", func(time.Time) {}) }},
	}
	for _, tc := range cases {
		h, err := tc.call()
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: err = %v, want ErrInvalidArgument", tc.name, err)
		}
		if h.Valid() {
			t.Fatalf("%s: expected invalid handle", tc.name)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("rejected calls registered %d tasks", s.Len())
	}
}

func TestInactiveContextIsNoop(t *testing.T) {
	t.Parallel()

	active := false
	s := New(WithActive(func() bool { return active }))
	ran := false
	h, err := s.ScheduleDeferred(0, func() { ran = true })
	if !errors.Is(err, ErrInactive) || h.Valid() || ran {
		t.Fatalf("expected inactive no-op, err=%v valid=%v ran=%v", err, h.Valid(), ran)
	}

	active = true
	h, err = s.ScheduleDeferred(time.Second, func() {}, WhenActive(func() bool { return false }))
	if !errors.Is(err, ErrInactive) || h.Valid() {
		t.Fatalf("expected per-call gate to reject, err=%v", err)
	}
	if _, err := s.ScheduleDeferred(time.Second, func() {}); err != nil {
		t.Fatalf("expected active scheduling to succeed: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestCancelStopsFurtherCallbacks(t *testing.T) {
	t.Parallel()

	s := New()
	calls := 0
	completed := false
	h, _ := s.SchedulePeriodic(time.Second, func(time.Duration) { calls++ }, func() { completed = true })

	s.Tick(250 * time.Millisecond)
	s.Tick(250 * time.Millisecond)
	if !s.Cancel(h) {
		t.Fatalf("expected Cancel to stop a running task")
	}
	if h.State() != StateCancelled {
		t.Fatalf("state = %v, want cancelled", h.State())
	}
	s.Tick(250 * time.Millisecond)
	s.Tick(250 * time.Millisecond)

	if calls != 2 || completed {
		t.Fatalf("calls=%d completed=%v after cancel", calls, completed)
	}
	if s.Cancel(h) || s.Cancel(Handle{}) {
		t.Fatalf("expected repeated and zero-handle cancel to be no-ops")
	}
}

func TestCancelFromInsideCallback(t *testing.T) {
	t.Parallel()

	s := New()
	var h Handle
	calls := 0
	completed := false
	h, _ = s.SchedulePeriodic(time.Second, func(time.Duration) {
		calls++
		s.Cancel(h)
	}, func() { completed = true })

	s.Tick(2 * time.Second)
	s.Tick(time.Second)
	if calls != 1 || completed {
		t.Fatalf("calls=%d completed=%v, want 1/false", calls, completed)
	}
	if h.State() != StateCancelled {
		t.Fatalf("state = %v", h.State())
	}
}

func TestCancelOtherTaskDuringTickPreservesOrder(t *testing.T) {
	t.Parallel()

	s := New()
	var order []string
	var b Handle
	_, _ = s.ScheduleUpdate(func(time.Duration) {
		order = append(order, "a")
		s.Cancel(b)
	})
	b, _ = s.ScheduleUpdate(func(time.Duration) { order = append(order, "b") })
	_, _ = s.ScheduleUpdate(func(time.Duration) { order = append(order, "c") })

	s.Tick(time.Millisecond)
	s.Tick(time.Millisecond)
	if got := strings.Join(order, ""); got != "acac" {
		t.Fatalf("order = %q, want %q", got, "acac")
	}
}

func TestTasksAddedDuringTickStartNextTick(t *testing.T) {
	t.Parallel()

	s := New()
	inner := 0
	_, _ = s.ScheduleDeferred(time.Millisecond, func() {
		_, _ = s.ScheduleUpdate(func(time.Duration) { inner++ })
	})
	s.Tick(time.Millisecond)
	if inner != 0 {
		t.Fatalf("task added during tick ran in the same tick")
	}
	s.Tick(time.Millisecond)
	if inner != 1 {
		t.Fatalf("inner = %d, want 1", inner)
	}
}

func TestPeriodicWhileStopsSilently(t *testing.T) {
	t.Parallel()

	s := New()
	left := 3
	calls := 0
	h, _ := s.SchedulePeriodicWhile(func() bool { return left > 0 }, func() { calls++; left-- })
	for i := 0; i < 6; i++ {
		s.Tick(10 * time.Millisecond)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if h.State() != StateCompleted {
		t.Fatalf("state = %v, want completed", h.State())
	}
}

func TestSequenceCumulativeTimeoutAbort(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(WithLogger(logx.NewJSON(&buf, "debug")), WithBus(bus))
	step1, step2 := 0, 0
	h, err := s.ScheduleSequence([]Step{
		{Predicate: func() bool { return true }, Action: func() { step1++ }},
		{Predicate: func() bool { return false }, Action: func() { step2++ }},
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("ScheduleSequence error: %v", err)
	}

	for i := 1; i <= 5; i++ {
		s.Tick(time.Second)
		if h.Done() {
			t.Fatalf("aborted too early on tick %d", i)
		}
	}
	if step1 != 1 {
		t.Fatalf("step1 ran %d times, want 1", step1)
	}
	s.Tick(time.Second)
	if !h.Done() || h.State() != StateCancelled || !errors.Is(h.Err(), ErrSequenceTimeout) {
		t.Fatalf("expected timeout abort, state=%v err=%v", h.State(), h.Err())
	}
	for i := 0; i < 3; i++ {
		s.Tick(time.Second)
	}
	if step2 != 0 {
		t.Fatalf("step2 ran after abort")
	}
	if n := strings.Count(buf.String(), "sequence timed out"); n != 1 {
		t.Fatalf("abort logged %d times, want 1", n)
	}

	aborted := 0
	for len(events) > 0 {
		if e := <-events; e.Type == eventbus.SequenceAborted {
			aborted++
		}
	}
	if aborted != 1 {
		t.Fatalf("sequence.aborted published %d times, want 1", aborted)
	}
}

func TestSequenceTimeoutIsSharedAcrossSteps(t *testing.T) {
	t.Parallel()

	s := New()
	tick := 0
	ran := []int{}
	h, _ := s.ScheduleSequence([]Step{
		{Predicate: func() bool { return tick >= 3 }, Action: func() { ran = append(ran, 1) }},
		{Predicate: func() bool { return tick >= 6 }, Action: func() { ran = append(ran, 2) }},
	}, 4*time.Second)

	// Blocked on ticks 1-2, step 1 fires on tick 3, still blocked through tick 5: 5s > 4s.
	for tick = 1; tick <= 6; tick++ {
		s.Tick(time.Second)
	}
	if len(ran) != 1 || !errors.Is(h.Err(), ErrSequenceTimeout) {
		t.Fatalf("ran=%v err=%v, want only step 1 and a timeout", ran, h.Err())
	}
}

func TestSequenceChainsReadyStepsInOneTick(t *testing.T) {
	t.Parallel()

	s := New()
	ran := 0
	yes := func() bool { return true }
	h, _ := s.ScheduleSequence([]Step{
		{Predicate: yes, Action: func() { ran++ }},
		{Predicate: yes, Action: func() { ran++ }},
		{Predicate: yes, Action: func() { ran++ }},
	}, 0)
	s.Tick(time.Millisecond)
	if ran != 3 || h.State() != StateCompleted {
		t.Fatalf("ran=%d state=%v", ran, h.State())
	}
}

func TestPanickingCallbackIsContained(t *testing.T) {
	t.Parallel()

	s := New()
	other := 0
	h, _ := s.ScheduleUpdate(func(time.Duration) { panic("boom") })
	_, _ = s.ScheduleUpdate(func(time.Duration) { other++ })

	s.Tick(time.Millisecond)
	s.Tick(time.Millisecond)

	if h.State() != StateCancelled || !errors.Is(h.Err(), ErrPanicked) {
		t.Fatalf("state=%v err=%v", h.State(), h.Err())
	}
	if other != 2 {
		t.Fatalf("other task ran %d times, want 2", other)
	}
}

func TestAfterFramesWhenAndDoNowOrWhen(t *testing.T) {
	t.Parallel()

	s := New()
	frames := 0
	_, _ = s.ScheduleAfterFrames(3, func() { frames++ })

	ready := false
	when := 0
	_, _ = s.ScheduleWhen(func() bool { return ready }, func() { when++ })

	now := 0
	h, _ := s.DoNowOrWhen(func() bool { return true }, func() { now++ })
	if now != 1 || h.State() != StateCompleted {
		t.Fatalf("DoNowOrWhen did not run synchronously")
	}

	s.Tick(time.Millisecond)
	s.Tick(time.Millisecond)
	if frames != 0 {
		t.Fatalf("after-frames fired early")
	}
	ready = true
	s.Tick(time.Millisecond)
	s.Tick(time.Millisecond)
	if frames != 1 || when != 1 {
		t.Fatalf("frames=%d when=%d, want 1/1", frames, when)
	}
}

func TestCronTriggersOnVirtualClock(t *testing.T) {
	t.Parallel()

	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithEpoch(epoch))
	var fired []time.Time
	if _, err := s.ScheduleCron("*/10 * * * * *", func(at time.Time) { fired = append(fired, at) }); err != nil {
		t.Fatalf("ScheduleCron error: %v", err)
	}
	for i := 0; i < 25; i++ {
		s.Tick(time.Second)
	}
	if len(fired) != 2 {
		t.Fatalf("fired %d times (%v), want 2", len(fired), fired)
	}
	if !fired[0].Equal(epoch.Add(10*time.Second)) || !fired[1].Equal(epoch.Add(20*time.Second)) {
		t.Fatalf("unexpected fire times %v", fired)
	}

	// A large delta fires at most once.
	s.Tick(time.Minute)
	if len(fired) != 3 {
		t.Fatalf("fired %d times after a large delta, want 3", len(fired))
	}
}

func TestScheduleSpecInterval(t *testing.T) {
	t.Parallel()

	s := New(WithEpoch(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	n := 0
	h, err := s.ScheduleSpec("every:250ms", func(time.Time) { n++ }, WithName("poll"))
	if err != nil {
		t.Fatalf("ScheduleSpec error: %v", err)
	}
	for i := 0; i < 10; i++ {
		s.Tick(100 * time.Millisecond)
	}
	if n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}
	if h.Name() != "poll" {
		t.Fatalf("name = %q", h.Name())
	}
	snap := s.Snapshot()
	if snap.Active != 1 || snap.Tasks[0].Next.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSnapshotHistoryIsBounded(t *testing.T) {
	t.Parallel()

	s := New(WithHistorySize(3))
	for i := 0; i < 5; i++ {
		_, _ = s.ScheduleDeferred(0, func() {})
	}
	snap := s.Snapshot()
	if len(snap.History) != 3 {
		t.Fatalf("history len = %d, want 3", len(snap.History))
	}
	if snap.History[2].ID != 5 {
		t.Fatalf("expected newest entry last, got id %d", snap.History[2].ID)
	}
}
