package host

import (
	"context"
	"slices"
	"strings"

	"tickwork/internal/config"
	"tickwork/internal/eventbus"
	logx "tickwork/pkg/logx"
)

// Sections that are only read at startup.
var restartSections = []string{"scheduler", "storage", "nats", "systemd", "debug"}

func (a *App) applyLoop(ctx context.Context) error {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)

	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-ch:
			if !ok {
				return nil
			}
			a.applyConfig(prev, cfg)
			prev = cfg
		}
	}
}

// applyConfig hot-applies log level, frame pacing and schedules.
func (a *App) applyConfig(old, cfg *config.Config) {
	changed, attrs, schedNames := config.SummarizeConfigChange(old, cfg)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config reloaded", append(attrs, logx.String("changed", strings.Join(changed, ",")))...)
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: changed})

	if slices.Contains(changed, "logging") {
		a.logSvc.Apply(loggingConfig(cfg.Logging))
	}
	if slices.Contains(changed, "loop") {
		lc, err := loopConfig(cfg.Loop)
		if err != nil {
			a.log.Warn("loop config ignored", logx.Err(err))
		} else {
			a.loop.Apply(lc)
		}
	}
	if len(schedNames) > 0 {
		schedules := cfg.Schedules
		if err := a.loop.Do(func() { a.schedules.sync(schedules, schedNames) }); err != nil {
			a.log.Warn("schedule update dropped", logx.Err(err))
		}
	}

	var pending []string
	for _, s := range restartSections {
		if slices.Contains(changed, s) {
			pending = append(pending, s)
		}
	}
	if len(pending) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.String("sections", strings.Join(pending, ",")))
	}
}
