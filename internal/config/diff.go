package config

import (
	"sort"
	"strings"

	logx "tickwork/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes connection URLs),
// and (3) the names of schedules that were added, removed or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Loop.TickRate != newCfg.Loop.TickRate || strings.TrimSpace(oldCfg.Loop.MaxDelta) != strings.TrimSpace(newCfg.Loop.MaxDelta) {
		changed = append(changed, "loop")
		attrs = append(attrs,
			logx.Int("loop.tick_rate", newCfg.Loop.TickRate),
			logx.String("loop.max_delta", strings.TrimSpace(newCfg.Loop.MaxDelta)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.epsilon", newCfg.Scheduler.Epsilon),
			logx.String("scheduler.sequence_timeout", newCfg.Scheduler.SequenceTimeout),
			logx.Int("scheduler.history_size", newCfg.Scheduler.HistorySize),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}

	schedChanged := diffSchedules(oldCfg.Schedules, newCfg.Schedules)
	if len(schedChanged) > 0 {
		changed = append(changed, "schedules")
		attrs = append(attrs,
			logx.Int("schedules.changed_count", len(schedChanged)),
			logx.Int("schedules.enabled_count", countEnabled(newCfg.Schedules)),
		)
	}

	// Storage. Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if s := oldCfg.Storage; s != nil {
		oDriver, oBusy, oPathSet = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path) != ""
	}
	if s := newCfg.Storage; s != nil {
		nDriver, nBusy, nPathSet = strings.TrimSpace(s.Driver), strings.TrimSpace(s.BusyTimeout), strings.TrimSpace(s.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// NATS (never log the URL: it may carry credentials)
	oN, nN := derefNATS(oldCfg.NATS), derefNATS(newCfg.NATS)
	if oN != nN {
		changed = append(changed, "nats")
		attrs = append(attrs,
			logx.Bool("nats.enabled", nN.Enabled),
			logx.Bool("nats.url_set", strings.TrimSpace(nN.URL) != ""),
			logx.String("nats.subject_prefix", nN.SubjectPrefix),
			logx.String("nats.filter", nN.Filter),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.String("systemd.watchdog_every", newCfg.Systemd.WatchdogEvery),
		)
	}

	// Debug (never log the token)
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs, schedChanged
}

func derefNATS(n *NATSConfig) NATSConfig {
	if n == nil {
		return NATSConfig{}
	}
	return *n
}

func countEnabled(m map[string]ScheduleConfig) int {
	n := 0
	for _, v := range m {
		if v.Enabled {
			n++
		}
	}
	return n
}

func diffSchedules(oldM, newM map[string]ScheduleConfig) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, oOK := oldM[name]
		n, nOK := newM[name]
		if oOK != nOK || o.Enabled != n.Enabled || strings.TrimSpace(o.Spec) != strings.TrimSpace(n.Spec) ||
			canonicalHashJSON(o.Payload) != canonicalHashJSON(n.Payload) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
