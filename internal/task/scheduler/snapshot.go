package scheduler

func (s *Scheduler) Snapshot() Snapshot {
	byKind := map[string]int{}
	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.state.terminal() {
			continue
		}
		byKind[t.kind.String()]++
		tasks = append(tasks, TaskInfo{ID: t.id, Name: t.name, Kind: t.kind, State: t.state, Elapsed: t.elapsed, Next: t.next})
	}
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)

	return Snapshot{
		Frame:   s.frame,
		Clock:   s.clock,
		Active:  len(tasks),
		ByKind:  byKind,
		Tasks:   tasks,
		History: hist,
	}
}
