package scheduler

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"tickwork/internal/eventbus"
	logx "tickwork/pkg/logx"
)

type task struct {
	owner *Scheduler

	id      uint64
	name    string
	kind    Kind
	state   State
	elapsed time.Duration
	err     error

	// step advances the task by one tick and reports whether it finished.
	step func(delta time.Duration) bool
	// next is the upcoming fire time of a calendar trigger.
	next time.Time
}

// Scheduler advances registered tasks once per Tick.
type Scheduler struct {
	log logx.Logger
	bus eventbus.Bus

	active      func() bool
	epsilon     time.Duration
	seqTimeout  time.Duration
	historySize int

	parser cron.Parser

	seq     uint64
	frame   uint64
	clock   time.Time
	ticking bool

	tasks   []*task
	history []HistoryItem
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		epsilon:     DefaultEpsilon,
		seqTimeout:  DefaultSequenceTimeout,
		historySize: DefaultHistorySize,
		clock:       time.Now(),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cronParser,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Tick advances every running task by delta, in registration order.
//
// Tasks registered from inside a callback first run on the next Tick.
// Tasks that finish or are cancelled during the tick are pruned once every
// task has been advanced. Negative deltas are treated as zero.
func (s *Scheduler) Tick(delta time.Duration) {
	if s.ticking {
		s.log.Warn("reentrant tick ignored", logx.Uint64("frame", s.frame))
		return
	}
	if delta < 0 {
		delta = 0
	}
	s.frame++
	s.clock = s.clock.Add(delta)

	s.ticking = true
	n := len(s.tasks)
	for i := 0; i < n; i++ {
		t := s.tasks[i]
		if t.state.terminal() {
			continue
		}
		if t.state == StatePending {
			t.state = StateRunning
		}
		if s.advance(t, delta) {
			s.finish(t, StateCompleted)
		}
	}
	s.ticking = false
	s.prune()
}

// Cancel stops the task behind h. No callback of that task fires after Cancel
// returns. Cancelling an invalid, finished or foreign handle is a no-op; the
// result reports whether the task was actually stopped.
func (s *Scheduler) Cancel(h Handle) bool {
	t := h.t
	if t == nil || t.owner != s || t.state.terminal() {
		return false
	}
	s.finish(t, StateCancelled)
	if !s.ticking {
		s.prune()
	}
	return true
}

// Len returns the number of tasks that have not finished yet.
func (s *Scheduler) Len() int {
	n := 0
	for _, t := range s.tasks {
		if !t.state.terminal() {
			n++
		}
	}
	return n
}

// Frame returns the number of ticks processed so far.
func (s *Scheduler) Frame() uint64 { return s.frame }

// Now returns the virtual clock: the epoch plus every delta seen by Tick.
func (s *Scheduler) Now() time.Time { return s.clock }

func (s *Scheduler) newTask(kind Kind, cfg scheduleConfig) *task {
	s.seq++
	name := strings.TrimSpace(cfg.name)
	if name == "" {
		name = kind.String() + "#" + strconv.FormatUint(s.seq, 10)
	}
	return &task{owner: s, id: s.seq, name: name, kind: kind}
}

func (s *Scheduler) register(t *task) Handle {
	s.tasks = append(s.tasks, t)
	s.log.Debug("task scheduled", logx.Uint64("id", t.id), logx.String("task", t.name), logx.String("kind", t.kind.String()))
	s.publish(eventbus.TaskScheduled, t)
	return Handle{t: t}
}

// runNow executes fn synchronously for a task that never enters the active set.
func (s *Scheduler) runNow(t *task, fn func()) Handle {
	t.state = StateRunning
	if s.guard(t, func() bool { fn(); return true }) {
		s.finish(t, StateCompleted)
	}
	return Handle{t: t}
}

func (s *Scheduler) advance(t *task, delta time.Duration) bool {
	return s.guard(t, func() bool { return t.step(delta) })
}

// guard runs fn and converts a callback panic into a cancelled task.
func (s *Scheduler) guard(t *task, fn func() bool) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("%w: %v", ErrPanicked, r)
			s.log.Error("task.panic", logx.String("task", t.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			s.finishWith(eventbus.TaskPanicked, t, StateCancelled)
			done = false
		}
	}()
	return fn()
}

func (s *Scheduler) finish(t *task, state State) {
	typ := eventbus.TaskCompleted
	if state == StateCancelled {
		typ = eventbus.TaskCancelled
	}
	s.finishWith(typ, t, state)
}

func (s *Scheduler) finishWith(typ string, t *task, state State) {
	if t.state.terminal() {
		return
	}
	t.state = state

	item := HistoryItem{ID: t.id, Name: t.name, Kind: t.kind, State: state, Elapsed: t.elapsed, Frame: s.frame, Finished: s.clock}
	if t.err != nil {
		item.Error = t.err.Error()
	}
	s.history = append(s.history, item)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}

	if state == StateCompleted {
		s.log.Debug("task completed", logx.String("task", t.name), logx.Duration("elapsed", t.elapsed), logx.Uint64("frame", s.frame))
	} else {
		s.log.Debug("task cancelled", logx.String("task", t.name), logx.Duration("elapsed", t.elapsed), logx.Err(t.err))
	}
	s.publish(typ, t)
}

func (s *Scheduler) publish(typ string, t *task) {
	if s.bus == nil {
		return
	}
	ev := TaskEvent{
		ID:      t.id,
		Name:    t.name,
		Kind:    t.kind.String(),
		State:   t.state.String(),
		Elapsed: t.elapsed,
		Frame:   s.frame,
		Clock:   s.clock,
	}
	if t.err != nil {
		ev.Error = t.err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

// prune drops finished tasks while keeping registration order.
func (s *Scheduler) prune() {
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.state.terminal() {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = kept
}

func (s *Scheduler) eligible(cfg scheduleConfig) bool {
	if s.active != nil && !s.active() {
		return false
	}
	if cfg.active != nil && !cfg.active() {
		return false
	}
	return true
}

func buildConfig(opts []ScheduleOption) scheduleConfig {
	var cfg scheduleConfig
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return cfg
}

// skipGate implements "run once every skip+1 ticks".
type skipGate struct {
	skip  int
	count int
}

func newSkipGate(skip int) *skipGate { return &skipGate{skip: skip, count: 1} }

func (g *skipGate) ready() bool {
	if g.count > g.skip {
		g.count = 1
		return true
	}
	g.count++
	return false
}
