package loop

import (
	"context"
	"strings"
	"testing"
	"time"

	"tickwork/internal/eventbus"
	"tickwork/internal/task/scheduler"
	logx "tickwork/pkg/logx"
)

type recorder struct {
	name  string
	trace *[]string
}

func (r recorder) Tick(time.Duration) { *r.trace = append(*r.trace, r.name) }

func TestStepRunsPostedThenTargetsInOrder(t *testing.T) {
	t.Parallel()

	var trace []string
	l := New(Config{}, logx.Nop(), nil, recorder{"a", &trace}, recorder{"b", &trace})
	if err := l.Do(func() { trace = append(trace, "post") }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = l.Do(func() { panic("ignored") })

	l.Step(time.Millisecond)
	l.Step(time.Millisecond)
	if got := strings.Join(trace, ","); got != "post,a,b,a,b" {
		t.Fatalf("trace = %q", got)
	}
	if l.Frames() != 2 {
		t.Fatalf("frames = %d", l.Frames())
	}
}

func TestClampReportsStall(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	l := New(Config{TickRate: 100, MaxDelta: 50 * time.Millisecond}, logx.Nop(), bus)
	if d := l.clamp(20 * time.Millisecond); d != 20*time.Millisecond {
		t.Fatalf("clamp(20ms) = %v", d)
	}
	if d := l.clamp(-time.Second); d != 0 {
		t.Fatalf("clamp(negative) = %v", d)
	}
	if d := l.clamp(time.Second); d != 50*time.Millisecond {
		t.Fatalf("clamp(1s) = %v", d)
	}
	if l.Stalls() != 1 {
		t.Fatalf("stalls = %d", l.Stalls())
	}
	select {
	case e := <-events:
		if e.Type != eventbus.LoopStalled {
			t.Fatalf("event type = %q", e.Type)
		}
	default:
		t.Fatalf("expected a stall event")
	}
}

func TestApplyDefaultsAndRate(t *testing.T) {
	t.Parallel()

	l := New(Config{}, logx.Nop(), nil)
	if c := l.Config(); c.TickRate != DefaultTickRate || c.MaxDelta != DefaultMaxDelta {
		t.Fatalf("defaults not applied: %+v", c)
	}
	l.Apply(Config{TickRate: 20})
	if l.Config().TickRate != 20 {
		t.Fatalf("tick rate not applied")
	}
	if got := l.limiter.Limit(); got < 19.9 || got > 20.1 {
		t.Fatalf("limiter limit = %v, want 20/s", got)
	}
}

func TestRunDrivesSchedulerUntilCancelled(t *testing.T) {
	t.Parallel()

	s := scheduler.New()
	l := New(Config{TickRate: 200}, logx.Nop(), nil, s)

	fired := make(chan struct{})
	if err := l.Do(func() {
		_, _ = s.ScheduleAfterFrames(3, func() { close(fired) })
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-fired:
	case <-ctx.Done():
		t.Fatalf("scheduler task did not fire")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
