package config

import (
	"bytes"
	"encoding/json"
)

// Config is the tickd process configuration.
//
// All durations are Go duration strings (e.g. "250ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Loop      LoopConfig      `json:"loop"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Schedules are named calendar triggers registered on the scheduler's
	// virtual clock. Each firing publishes a "schedule.fired" bus event.
	Schedules map[string]ScheduleConfig `json:"schedules,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
	NATS    *NATSConfig    `json:"nats,omitempty"`
	Systemd SystemdConfig  `json:"systemd"`
	Debug   DebugConfig    `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoopConfig controls frame pacing.
//
// Defaults (when fields are omitted/zero):
//   - tick_rate: 60 (frames per second)
//   - max_delta: "250ms" (longer stalls are reported as this delta)
type LoopConfig struct {
	TickRate int    `json:"tick_rate,omitempty"`
	MaxDelta string `json:"max_delta,omitempty"`
}

// SchedulerConfig tunes the cooperative scheduler.
//
// Defaults:
//   - epsilon: "1us"
//   - sequence_timeout: "60s"
//   - history_size: 200
//   - epoch: process start (RFC3339 to pin the virtual clock)
//   - timezone: Local (IANA TZ, e.g. "Asia/Jakarta"), used for the epoch
type SchedulerConfig struct {
	Epsilon         string `json:"epsilon,omitempty"`
	SequenceTimeout string `json:"sequence_timeout,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
	Epoch           string `json:"epoch,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
}

// ScheduleConfig is one configured calendar trigger.
//
// Example:
//
//	"schedules": { "heartbeat": { "enabled": true, "spec": "every:30s" } }
type ScheduleConfig struct {
	Enabled bool            `json:"enabled"`
	Spec    string          `json:"spec"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UnmarshalJSON disallows unknown fields so typos inside a schedule block are
// caught on reload.
func (s *ScheduleConfig) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Spec    string          `json:"spec"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*s = ScheduleConfig{Enabled: t.Enabled, Spec: t.Spec, Payload: t.Payload}
	return nil
}

// StorageConfig controls the task journal.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tickwork_journal" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// NATSConfig controls forwarding of bus events to NATS.
//
// Subjects are SubjectPrefix + "." + event type, e.g. "tickwork.task.completed".
type NATSConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix,omitempty"` // default: "tickwork"
	Filter        string `json:"filter,omitempty"`         // event type prefix, default: all
	Name          string `json:"name,omitempty"`           // client connection name
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
	// WatchdogEvery overrides the keep-alive interval. Empty uses half of
	// WATCHDOG_USEC when systemd sets it.
	WatchdogEvery string `json:"watchdog_every,omitempty"`
}

// DebugConfig controls the HTTP debug server (pprof and JSON views).
//
// A non-loopback addr requires token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
