package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

const DefaultMaxRecords = 10000

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxRecords  int           // retention; 0 means DefaultMaxRecords
}

func (c Config) maxRecords() int {
	if c.MaxRecords <= 0 {
		return DefaultMaxRecords
	}
	return c.MaxRecords
}

// Record is one journal line: a task or interpolation that reached a
// terminal state. Keep it compact and schema-stable.
type Record struct {
	At        time.Time `json:"at"`
	Type      string    `json:"type"`
	TaskID    uint64    `json:"task_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"`
	State     string    `json:"state,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Frame     uint64    `json:"frame,omitempty"`
	Error     string    `json:"error,omitempty"`
}
