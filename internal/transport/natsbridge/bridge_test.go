package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"tickwork/internal/eventbus"
	logx "tickwork/pkg/logx"
)

type fakePub struct {
	mu   sync.Mutex
	subs []string
	msgs [][]byte
	err  error
	got  chan struct{}
}

func (f *fakePub) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subs = append(f.subs, subject)
	f.msgs = append(f.msgs, data)
	if f.got != nil {
		select {
		case f.got <- struct{}{}:
		default:
		}
	}
	return nil
}

func TestForwardFiltersAndMarshals(t *testing.T) {
	t.Parallel()

	pub := &fakePub{}
	b := New(pub, eventbus.Nop(), logx.Nop(), Options{SubjectPrefix: "tw.", Filter: "task."})

	b.forward(eventbus.Event{Type: eventbus.TaskCompleted, Data: map[string]int{"id": 7}})
	b.forward(eventbus.Event{Type: eventbus.LoopStalled})

	if len(pub.subs) != 1 || pub.subs[0] != "tw.task.completed" {
		t.Fatalf("subjects = %v", pub.subs)
	}
	var m struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(pub.msgs[0], &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Type != eventbus.TaskCompleted || m.Data["id"] != 7 {
		t.Fatalf("message = %+v", m)
	}
}

func TestForwardCountsFailures(t *testing.T) {
	t.Parallel()

	pub := &fakePub{err: errors.New("down")}
	b := New(pub, eventbus.Nop(), logx.Nop(), Options{})
	b.forward(eventbus.Event{Type: eventbus.TaskCancelled})
	if b.failed != 1 || b.sent != 0 {
		t.Fatalf("sent=%d failed=%d", b.sent, b.failed)
	}
	if got := b.Subject("x"); got != "tickwork.x" {
		t.Fatalf("default subject = %q", got)
	}
}

func TestRunForwardsFromBus(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	pub := &fakePub{got: make(chan struct{}, 1)}
	b := New(pub, bus, logx.Nop(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// Publish until the subscription is live.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for received := false; !received; {
		select {
		case <-pub.got:
			received = true
		case <-tick.C:
			bus.Publish(eventbus.Event{Type: eventbus.ScheduleFired})
		case <-deadline:
			t.Fatalf("no event forwarded")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
