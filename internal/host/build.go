package host

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"tickwork/internal/config"
	"tickwork/internal/loop"
	"tickwork/internal/storage"
	"tickwork/internal/task/scheduler"
	logx "tickwork/pkg/logx"
)

func loggingConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

func loopConfig(c config.LoopConfig) (loop.Config, error) {
	maxDelta, err := config.ParseDurationOrDefault("loop.max_delta", c.MaxDelta, loop.DefaultMaxDelta)
	if err != nil {
		return loop.Config{}, err
	}
	return loop.Config{TickRate: c.TickRate, MaxDelta: maxDelta}, nil
}

func schedulerOptions(c config.SchedulerConfig) ([]scheduler.Option, error) {
	eps, err := config.ParseDurationOrDefault("scheduler.epsilon", c.Epsilon, scheduler.DefaultEpsilon)
	if err != nil {
		return nil, err
	}
	seq, err := config.ParseDurationOrDefault("scheduler.sequence_timeout", c.SequenceTimeout, scheduler.DefaultSequenceTimeout)
	if err != nil {
		return nil, err
	}
	loc, err := config.LoadLocation("scheduler.timezone", c.Timezone)
	if err != nil {
		return nil, err
	}
	epoch, err := config.ParseTimeField("scheduler.epoch", c.Epoch, loc)
	if err != nil {
		return nil, err
	}
	if epoch.IsZero() {
		epoch = timeNow().In(loc)
	}
	return []scheduler.Option{
		scheduler.WithEpsilon(eps),
		scheduler.WithSequenceTimeout(seq),
		scheduler.WithHistorySize(c.HistorySize),
		scheduler.WithEpoch(epoch),
	}, nil
}

func storageConfig(c *config.StorageConfig) (storage.Config, error) {
	if c == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: busy}, nil
}

// validateSchedules rejects configs whose enabled schedules don't parse.
// Installed as the config manager's validator so a bad reload is never
// published.
func validateSchedules(_ context.Context, cfg *config.Config) error {
	names := make([]string, 0, len(cfg.Schedules))
	for name := range cfg.Schedules {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		sc := cfg.Schedules[name]
		if !sc.Enabled {
			continue
		}
		if err := scheduler.ValidateSpec(sc.Spec); err != nil {
			errs = append(errs, fmt.Errorf("schedules.%s.spec: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
