package scheduler

import "time"

// Kind is the family a task belongs to.
type Kind int

const (
	KindDeferred Kind = iota
	KindPeriodic
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindDeferred:
		return "deferred"
	case KindPeriodic:
		return "periodic"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// State is the lifecycle state of a task.
//
// Completed and Cancelled are terminal: once reached, no callback of that
// task fires again.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s State) terminal() bool { return s == StateCompleted || s == StateCancelled }

// Step is one stage of a sequence. Action runs once, on the first tick
// Predicate reports true.
type Step struct {
	Predicate func() bool
	Action    func()
}

// Handle refers to a scheduled task. The zero Handle is invalid.
//
// A Handle stays queryable after its task has been pruned from the active set.
type Handle struct {
	t *task
}

func (h Handle) Valid() bool { return h.t != nil }

func (h Handle) ID() uint64 {
	if h.t == nil {
		return 0
	}
	return h.t.id
}

func (h Handle) Name() string {
	if h.t == nil {
		return ""
	}
	return h.t.name
}

func (h Handle) Kind() Kind {
	if h.t == nil {
		return KindDeferred
	}
	return h.t.kind
}

// State is meaningful only for a valid handle.
func (h Handle) State() State {
	if h.t == nil {
		return StatePending
	}
	return h.t.state
}

// Done reports whether the task reached a terminal state.
func (h Handle) Done() bool { return h.t != nil && h.t.state.terminal() }

// Elapsed is the sum of the deltas the task has observed.
// Fixed-duration periodic tasks report exactly their duration once finished.
func (h Handle) Elapsed() time.Duration {
	if h.t == nil {
		return 0
	}
	return h.t.elapsed
}

// Err explains an abnormal end: ErrSequenceTimeout or ErrPanicked (wrapped).
func (h Handle) Err() error {
	if h.t == nil {
		return nil
	}
	return h.t.err
}

// TaskEvent is published on the event bus for task lifecycle events.
type TaskEvent struct {
	ID      uint64        `json:"id"`
	Name    string        `json:"name"`
	Kind    string        `json:"kind"`
	State   string        `json:"state"`
	Elapsed time.Duration `json:"elapsed"`
	Frame   uint64        `json:"frame"`
	Clock   time.Time     `json:"clock"`
	Error   string        `json:"error,omitempty"`
}

// HistoryItem records a finished task.
type HistoryItem struct {
	ID       uint64
	Name     string
	Kind     Kind
	State    State
	Elapsed  time.Duration
	Frame    uint64
	Finished time.Time // virtual clock
	Error    string
}

// TaskInfo describes an active task.
type TaskInfo struct {
	ID      uint64
	Name    string
	Kind    Kind
	State   State
	Elapsed time.Duration
	Next    time.Time // calendar triggers only
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Frame   uint64
	Clock   time.Time
	Active  int
	ByKind  map[string]int
	Tasks   []TaskInfo
	History []HistoryItem
}
