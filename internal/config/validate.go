package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const maxTickRate = 1000

// Validate checks the fields that can be checked without building services.
// It returns every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if r := cfg.Loop.TickRate; r < 0 || r > maxTickRate {
		add(fmt.Errorf("loop.tick_rate: must be within 0..%d, got %d", maxTickRate, r))
	}
	_, err := ParseDurationField("loop.max_delta", cfg.Loop.MaxDelta)
	add(err)

	_, err = ParseDurationField("scheduler.epsilon", cfg.Scheduler.Epsilon)
	add(err)
	_, err = ParseDurationField("scheduler.sequence_timeout", cfg.Scheduler.SequenceTimeout)
	add(err)
	if cfg.Scheduler.HistorySize < 0 {
		add(fmt.Errorf("scheduler.history_size: must be >= 0"))
	}
	loc, err := LoadLocation("scheduler.timezone", cfg.Scheduler.Timezone)
	add(err)
	if err == nil {
		_, err = ParseTimeField("scheduler.epoch", cfg.Scheduler.Epoch, loc)
		add(err)
	}

	for name, sc := range cfg.Schedules {
		if strings.TrimSpace(name) == "" {
			add(fmt.Errorf("schedules: empty schedule name"))
		}
		if sc.Enabled && strings.TrimSpace(sc.Spec) == "" {
			add(fmt.Errorf("schedules.%s.spec: required when enabled", name))
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q (use file or sqlite)", s.Driver))
		}
		_, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}

	if n := cfg.NATS; n != nil && n.Enabled && strings.TrimSpace(n.URL) == "" {
		add(fmt.Errorf("nats.url: required when nats is enabled"))
	}

	_, err = ParseDurationField("systemd.watchdog_every", cfg.Systemd.WatchdogEvery)
	add(err)

	if d := cfg.Debug; d.Enabled && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(d.Addr)); err != nil {
			add(fmt.Errorf("debug.addr: %w", err))
		}
	}

	return errors.Join(errs...)
}
