package host

import (
	"encoding/json"
	"sort"
	"time"

	"tickwork/internal/config"
	"tickwork/internal/eventbus"
	"tickwork/internal/task/scheduler"
	logx "tickwork/pkg/logx"
)

// ScheduleFiring is the payload of "schedule.fired" events.
type ScheduleFiring struct {
	Name    string          `json:"name"`
	Spec    string          `json:"spec"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// scheduleSet keeps configured schedules registered on the scheduler.
// Only the loop goroutine touches it.
type scheduleSet struct {
	sched   *scheduler.Scheduler
	bus     eventbus.Bus
	log     logx.Logger
	handles map[string]scheduler.Handle
}

func newScheduleSet(s *scheduler.Scheduler, bus eventbus.Bus, log logx.Logger) *scheduleSet {
	return &scheduleSet{sched: s, bus: bus, log: log, handles: map[string]scheduler.Handle{}}
}

// sync re-registers the named schedules from cfgs. A nil names list means
// every configured or currently registered schedule.
func (s *scheduleSet) sync(cfgs map[string]config.ScheduleConfig, names []string) {
	if names == nil {
		seen := map[string]bool{}
		for name := range cfgs {
			seen[name] = true
		}
		for name := range s.handles {
			seen[name] = true
		}
		for name := range seen {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	for _, name := range names {
		if h, ok := s.handles[name]; ok {
			s.sched.Cancel(h)
			delete(s.handles, name)
			s.log.Info("schedule removed", logx.String("schedule", name))
		}
		sc, ok := cfgs[name]
		if !ok || !sc.Enabled {
			continue
		}
		h, err := s.sched.ScheduleSpec(sc.Spec, s.fire(name, sc), scheduler.WithName("schedule."+name))
		if err != nil {
			s.log.Warn("schedule rejected", logx.String("schedule", name), logx.String("spec", sc.Spec), logx.Err(err))
			continue
		}
		s.handles[name] = h
		s.log.Info("schedule registered", logx.String("schedule", name), logx.String("spec", sc.Spec))
	}
}

func (s *scheduleSet) fire(name string, sc config.ScheduleConfig) func(at time.Time) {
	return func(at time.Time) {
		s.log.Debug("schedule fired", logx.String("schedule", name), logx.Time("at", at))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleFired, Data: ScheduleFiring{Name: name, Spec: sc.Spec, At: at, Payload: sc.Payload}})
		}
	}
}

func (s *scheduleSet) names() []string {
	out := make([]string, 0, len(s.handles))
	for name := range s.handles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *scheduleSet) cancelAll() {
	for name, h := range s.handles {
		s.sched.Cancel(h)
		delete(s.handles, name)
	}
}
