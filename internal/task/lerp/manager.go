package lerp

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"tickwork/internal/eventbus"
	"tickwork/internal/task/scheduler"
	logx "tickwork/pkg/logx"
)

var (
	ErrInvalidArgument = errors.New("lerp: invalid argument")
	ErrPanicked        = errors.New("lerp: callback panicked")
)

// TimedEvent fires once when progression crosses Threshold.
//
// Threshold is a fraction of the entry's duration: 0 is the start, 0.5 the
// midpoint, 1 the end. Thresholds outside [0,1] never fire. Events crossed
// in the same tick fire in ascending threshold order; equal thresholds keep
// their order in Entry.Events.
type TimedEvent struct {
	Threshold float64
	Callback  func(progress time.Duration)
}

// Entry describes one interpolation from Source to Target.
type Entry struct {
	Name     string
	Source   Value
	Target   Value
	Duration time.Duration
	Curve    Curve // nil means Linear
	Reverse  bool
	Set      func(Value)
	Events   []TimedEvent
	OnDone   func()
}

// Event is published on the bus when an entry finishes.
type Event struct {
	ID       uint64        `json:"id"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	// Progress is the time reached before the entry finished. It equals
	// Duration unless the entry was removed early.
	Progress time.Duration `json:"progress"`
	Removed  bool          `json:"removed,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type entry struct {
	Entry

	id       uint64
	progress time.Duration
	started  bool
	fired    []bool
	done     bool
	removed  bool
	err      error
}

func (e *entry) finished() bool { return e.done || e.removed }

// Handle refers to an entry added to a Manager. The zero Handle is invalid.
type Handle struct {
	e *entry
	m *Manager
}

func (h Handle) Valid() bool { return h.e != nil }

func (h Handle) ID() uint64 {
	if h.e == nil {
		return 0
	}
	return h.e.id
}

func (h Handle) Name() string {
	if h.e == nil {
		return ""
	}
	return h.e.Name
}

// Done reports whether the entry reached its duration.
func (h Handle) Done() bool { return h.e != nil && h.e.done }

// Removed reports whether the entry was removed before finishing.
func (h Handle) Removed() bool { return h.e != nil && h.e.removed }

// Progress is the accumulated time, clamped to the duration.
func (h Handle) Progress() time.Duration {
	if h.e == nil {
		return 0
	}
	return h.e.progress
}

func (h Handle) Err() error {
	if h.e == nil {
		return nil
	}
	return h.e.err
}

type Option func(*Manager)

func WithLogger(log logx.Logger) Option { return func(m *Manager) { m.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(m *Manager) { m.bus = bus } }

// Manager advances interpolation entries.
type Manager struct {
	log logx.Logger
	bus eventbus.Bus

	seq     uint64
	ticking bool
	entries []*entry
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{}
	for _, o := range opts {
		o(m)
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	return m
}

// Add registers an interpolation. It starts moving on the next Tick.
func (m *Manager) Add(e Entry) (Handle, error) {
	if len(e.Source) == 0 || len(e.Target) == 0 {
		return Handle{}, fmt.Errorf("%w: source and target are required", ErrInvalidArgument)
	}
	if len(e.Source) != len(e.Target) {
		return Handle{}, fmt.Errorf("%w: source has %d components, target has %d", ErrInvalidArgument, len(e.Source), len(e.Target))
	}
	if e.Duration <= 0 {
		return Handle{}, fmt.Errorf("%w: duration must be > 0, got %s", ErrInvalidArgument, e.Duration)
	}
	if e.Set == nil {
		return Handle{}, fmt.Errorf("%w: setter is nil", ErrInvalidArgument)
	}
	for i, te := range e.Events {
		if te.Callback == nil {
			return Handle{}, fmt.Errorf("%w: timed event %d has no callback", ErrInvalidArgument, i)
		}
	}
	if e.Curve == nil {
		e.Curve = Linear
	}
	e.Source = e.Source.Clone()
	e.Target = e.Target.Clone()
	e.Events = append([]TimedEvent(nil), e.Events...)
	sort.SliceStable(e.Events, func(i, j int) bool { return e.Events[i].Threshold < e.Events[j].Threshold })

	m.seq++
	if strings.TrimSpace(e.Name) == "" {
		e.Name = "lerp#" + strconv.FormatUint(m.seq, 10)
	}
	en := &entry{Entry: e, id: m.seq, fired: make([]bool, len(e.Events))}
	m.entries = append(m.entries, en)
	m.log.Debug("lerp added", logx.String("lerp", e.Name), logx.Duration("duration", e.Duration), logx.Int("components", len(e.Source)), logx.Bool("reverse", e.Reverse))
	return Handle{e: en, m: m}, nil
}

// Remove stops an entry mid-flight: its setter and events are not called
// again. Removing a finished or foreign entry is a no-op.
func (m *Manager) Remove(h Handle) bool {
	if h.e == nil || h.m != m || h.e.finished() {
		return false
	}
	h.e.removed = true
	m.publish(h.e)
	if !m.ticking {
		m.prune()
	}
	return true
}

// Len returns the number of entries still moving.
func (m *Manager) Len() int {
	n := 0
	for _, e := range m.entries {
		if !e.finished() {
			n++
		}
	}
	return n
}

// Tick advances every active entry by delta. Entries added during the tick
// start on the next one; finished entries are removed once all entries
// have been advanced.
func (m *Manager) Tick(delta time.Duration) {
	if m.ticking {
		m.log.Warn("reentrant lerp tick ignored")
		return
	}
	if delta < 0 {
		delta = 0
	}
	m.ticking = true
	n := len(m.entries)
	for i := 0; i < n; i++ {
		e := m.entries[i]
		if e.finished() {
			continue
		}
		m.guard(e, func() { m.advance(e, delta) })
	}
	m.ticking = false
	m.prune()
}

// Attach drives the manager from a scheduler: every scheduler tick advances
// the manager with the same delta. Cancel the returned handle to detach.
func (m *Manager) Attach(s *scheduler.Scheduler) (scheduler.Handle, error) {
	return s.ScheduleUpdate(m.Tick, scheduler.WithName("lerp.manager"))
}

func (m *Manager) advance(e *entry, delta time.Duration) {
	prev := e.progress
	first := !e.started
	e.started = true

	e.progress += delta
	reached := e.progress >= e.Duration
	if reached {
		e.progress = e.Duration
	}

	dur := float64(e.Duration)
	frac := float64(e.progress) / dur
	if e.Reverse {
		frac = float64(e.Duration-e.progress) / dur
	}
	e.Set(Interpolate(e.Source, e.Target, e.Curve(frac)))
	if e.removed {
		return
	}

	for i, te := range e.Events {
		if e.fired[i] || te.Threshold < 0 || te.Threshold > 1 {
			continue
		}
		at := time.Duration(te.Threshold * dur)
		if at > e.progress || at < prev || (at == prev && !first) {
			continue
		}
		e.fired[i] = true
		te.Callback(e.progress)
		if e.removed {
			return
		}
	}

	if !reached {
		return
	}
	e.done = true
	m.log.Debug("lerp finished", logx.String("lerp", e.Name), logx.Duration("duration", e.Duration))
	m.publish(e)
	if e.OnDone != nil {
		e.OnDone()
	}
}

func (m *Manager) guard(e *entry, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.err = fmt.Errorf("%w: %v", ErrPanicked, r)
			e.removed = true
			m.log.Error("lerp.panic", logx.String("lerp", e.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			m.publish(e)
		}
	}()
	fn()
}

func (m *Manager) publish(e *entry) {
	if m.bus == nil {
		return
	}
	ev := Event{ID: e.id, Name: e.Name, Duration: e.Duration, Progress: e.progress, Removed: e.removed}
	if e.err != nil {
		ev.Error = e.err.Error()
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.LerpFinished, Time: time.Now(), Data: ev})
}

func (m *Manager) prune() {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !e.finished() {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(m.entries); i++ {
		m.entries[i] = nil
	}
	m.entries = kept
}
