package host

import (
	"context"
	"strings"
	"testing"
	"time"

	"tickwork/internal/config"
	"tickwork/internal/loop"
	"tickwork/internal/task/scheduler"
)

func TestLoopConfigDefaults(t *testing.T) {
	t.Parallel()

	lc, err := loopConfig(config.LoopConfig{TickRate: 30})
	if err != nil {
		t.Fatalf("loopConfig: %v", err)
	}
	if lc.TickRate != 30 || lc.MaxDelta != loop.DefaultMaxDelta {
		t.Fatalf("loop config = %+v", lc)
	}
	if _, err := loopConfig(config.LoopConfig{MaxDelta: "soon"}); err == nil {
		t.Fatalf("expected an error for a bad max_delta")
	}
}

func TestSchedulerOptionsPinEpoch(t *testing.T) {
	t.Parallel()

	opts, err := schedulerOptions(config.SchedulerConfig{Epoch: "2024-03-01T08:00:00Z", SequenceTimeout: "5s"})
	if err != nil {
		t.Fatalf("schedulerOptions: %v", err)
	}
	s := scheduler.New(opts...)
	want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if !s.Now().Equal(want) {
		t.Fatalf("clock = %v, want %v", s.Now(), want)
	}
	if _, err := schedulerOptions(config.SchedulerConfig{Timezone: "Mars/Olympus"}); err == nil {
		t.Fatalf("expected an error for an unknown timezone")
	}
}

func TestStorageConfig(t *testing.T) {
	t.Parallel()

	sc, err := storageConfig(nil)
	if err != nil || sc.Driver != "" {
		t.Fatalf("nil storage = %+v, %v", sc, err)
	}
	sc, err = storageConfig(&config.StorageConfig{Driver: "sqlite", Path: "j.db", BusyTimeout: "3s"})
	if err != nil {
		t.Fatalf("storageConfig: %v", err)
	}
	if sc.BusyTimeout != 3*time.Second || sc.Path != "j.db" {
		t.Fatalf("storage config = %+v", sc)
	}
}

func TestValidateSchedules(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Schedules: map[string]config.ScheduleConfig{
		"ok":       {Enabled: true, Spec: "every:1s"},
		"bad":      {Enabled: true, Spec: "cron:not a cron"},
		"disabled": {Enabled: false, Spec: "garbage"},
	}}
	err := validateSchedules(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(err.Error(), "schedules.bad.spec") || strings.Contains(err.Error(), "disabled") {
		t.Fatalf("unexpected error: %v", err)
	}
}
