package host

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tickwork/internal/config"
	"tickwork/internal/eventbus"
)

const appYAML = `
logging:
  level: error
  console: false
loop:
  tick_rate: 200
scheduler:
  epoch: "2024-01-01T00:00:00Z"
schedules:
  beat:
    enabled: true
    spec: "every:10ms"
storage:
  driver: file
  path: JOURNAL
`

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tickd.yaml")
	body := []byte(strings.Replace(appYAML, "JOURNAL", filepath.Join(dir, "journal"), 1))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfgm := config.NewConfigManager(path)
	if _, err := cfgm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, err := New(cfgm)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, path
}

func TestAppRunFiresConfiguredSchedule(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	events, unsub := a.Bus().Subscribe(256)
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	for fired := false; !fired; {
		select {
		case e := <-events:
			fired = e.Type == eventbus.ScheduleFired
		case <-ctx.Done():
			t.Fatalf("schedule never fired")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestApplyConfigHotReload(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	defer a.Close()

	old := a.cfgm.Get()
	a.loop.Step(0) // registers nothing yet; drains the queue
	a.schedules.sync(old.Schedules, nil)

	next := *old
	next.Loop.TickRate = 50
	next.Schedules = map[string]config.ScheduleConfig{
		"beat":  {Enabled: false, Spec: "every:10ms"},
		"daily": {Enabled: true, Spec: "daily:07:00"},
	}
	a.applyConfig(old, &next)

	if a.loop.Config().TickRate != 50 {
		t.Fatalf("tick rate = %d", a.loop.Config().TickRate)
	}
	a.loop.Step(0) // runs the queued schedule sync
	names := a.schedules.names()
	if len(names) != 1 || names[0] != "daily" {
		t.Fatalf("schedules = %v", names)
	}
}

func TestNewRejectsBadScheduleSpec(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tickd.json")
	body := `{"schedules":{"x":{"enabled":true,"spec":"every:nope"}},"logging":{"level":"error"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfgm := config.NewConfigManager(path)
	if _, err := cfgm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := New(cfgm); err == nil {
		t.Fatalf("expected New to reject the schedule")
	}
}
