package host

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tickwork/internal/eventbus"
	"tickwork/internal/storage"
	"tickwork/internal/task/lerp"
	"tickwork/internal/task/scheduler"
	logx "tickwork/pkg/logx"
)

func TestRecordFromEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		event eventbus.Event
		ok    bool
		want  storage.Record
	}{
		{
			name:  "completed task",
			event: eventbus.Event{Type: eventbus.TaskCompleted, Time: at, Data: scheduler.TaskEvent{ID: 3, Name: "fade", Kind: "periodic", State: "completed", Elapsed: 1500 * time.Millisecond, Frame: 9}},
			ok:    true,
			want:  storage.Record{At: at, Type: eventbus.TaskCompleted, TaskID: 3, Name: "fade", Kind: "periodic", State: "completed", ElapsedMS: 1500, Frame: 9},
		},
		{
			name:  "scheduled is skipped",
			event: eventbus.Event{Type: eventbus.TaskScheduled, Data: scheduler.TaskEvent{ID: 1}},
		},
		{
			name:  "removed lerp",
			event: eventbus.Event{Type: eventbus.LerpFinished, Time: at, Data: lerp.Event{ID: 2, Name: "alpha", Duration: 2 * time.Second, Progress: 700 * time.Millisecond, Removed: true}},
			ok:    true,
			want:  storage.Record{At: at, Type: eventbus.LerpFinished, TaskID: 2, Name: "alpha", Kind: "lerp", State: "removed", ElapsedMS: 700},
		},
		{
			name:  "unrelated",
			event: eventbus.Event{Type: eventbus.LoopStalled, Data: "x"},
		},
	}
	for _, tt := range tests {
		got, ok := recordFromEvent(tt.event)
		if ok != tt.ok {
			t.Fatalf("%s: ok = %v, want %v", tt.name, ok, tt.ok)
		}
		if ok && got != tt.want {
			t.Fatalf("%s: record = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestRunJournalAppendsFinishedTasks(t *testing.T) {
	t.Parallel()

	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runJournal(ctx, bus, store, logx.Nop()) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		bus.Publish(eventbus.Event{Type: eventbus.TaskCancelled, Data: scheduler.TaskEvent{ID: 1, Name: "seq", State: "cancelled", Error: "timeout"}})
		time.Sleep(10 * time.Millisecond)
		recs, err := store.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(recs) > 0 {
			if recs[0].Name != "seq" || recs[0].Error != "timeout" {
				t.Fatalf("record = %+v", recs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("nothing journaled")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runJournal: %v", err)
	}
}
