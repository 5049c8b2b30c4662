package host

import (
	"context"
	"time"

	"tickwork/internal/eventbus"
	"tickwork/internal/storage"
	"tickwork/internal/task/lerp"
	"tickwork/internal/task/scheduler"
	logx "tickwork/pkg/logx"
)

const (
	journalBuffer       = 512
	journalWriteTimeout = 2 * time.Second
)

// recordFromEvent maps terminal task and interpolation events onto journal
// records. Other events are not journaled.
func recordFromEvent(e eventbus.Event) (storage.Record, bool) {
	switch d := e.Data.(type) {
	case scheduler.TaskEvent:
		if e.Type == eventbus.TaskScheduled {
			return storage.Record{}, false
		}
		return storage.Record{
			At:        e.Time,
			Type:      e.Type,
			TaskID:    d.ID,
			Name:      d.Name,
			Kind:      d.Kind,
			State:     d.State,
			ElapsedMS: d.Elapsed.Milliseconds(),
			Frame:     d.Frame,
			Error:     d.Error,
		}, true
	case lerp.Event:
		state := "completed"
		if d.Removed {
			state = "removed"
		}
		return storage.Record{
			At:        e.Time,
			Type:      e.Type,
			TaskID:    d.ID,
			Name:      d.Name,
			Kind:      "lerp",
			State:     state,
			ElapsedMS: d.Progress.Milliseconds(),
			Error:     d.Error,
		}, true
	default:
		return storage.Record{}, false
	}
}

// runJournal appends finished tasks to the store until ctx is done.
func runJournal(ctx context.Context, bus eventbus.Bus, store storage.Store, log logx.Logger) error {
	ch, unsub := bus.Subscribe(journalBuffer)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			rec, ok := recordFromEvent(e)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
			err := store.AppendRecord(wctx, rec)
			cancel()
			if err != nil {
				log.Warn("journal append failed", logx.String("type", rec.Type), logx.String("task", rec.Name), logx.Err(err))
			}
		}
	}
}
