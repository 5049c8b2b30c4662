// Package countdown implements a tick-driven countdown timer with threshold
// and end actions.
package countdown

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tickwork/internal/task/scheduler"
	logx "tickwork/pkg/logx"
)

var (
	ErrInvalidArgument = errors.New("countdown: invalid argument")
	ErrRunning         = errors.New("countdown: already running")
)

// Mode selects how Format renders the remaining time.
type Mode int

const (
	HHMMSS   Mode = iota // 01:02:03
	HHMMSStt             // 01:02:03.45
	MMSS                 // 62:03
	MMSStt               // 62:03.45
	SS                   // 3723
	SStt                 // 3723.45
)

// ParseMode accepts the mode names case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HHMMSS", "":
		return HHMMSS, nil
	case "HHMMSSTT":
		return HHMMSStt, nil
	case "MMSS":
		return MMSS, nil
	case "MMSSTT":
		return MMSStt, nil
	case "SS":
		return SS, nil
	case "SSTT":
		return SStt, nil
	default:
		return HHMMSS, fmt.Errorf("%w: unknown display mode %q", ErrInvalidArgument, s)
	}
}

type threshold struct {
	at    time.Duration
	fn    func()
	fired bool
}

// Countdown counts from Total down to zero as its scheduler ticks.
type Countdown struct {
	s    *scheduler.Scheduler
	log  logx.Logger
	name string

	total     time.Duration
	remaining time.Duration
	paused    bool
	ended     bool

	thresholds []*threshold
	onEnd      []func()

	tick     scheduler.Handle
	end      scheduler.Handle
	observed time.Duration
}

func New(s *scheduler.Scheduler, name string, total time.Duration, log logx.Logger) (*Countdown, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: scheduler is nil", ErrInvalidArgument)
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total must be > 0, got %s", ErrInvalidArgument, total)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Countdown{s: s, log: log, name: name, total: total, remaining: total}, nil
}

// At registers fn to run once, on the first tick where the remaining time
// is at or below remaining.
func (c *Countdown) At(remaining time.Duration, fn func()) error {
	if fn == nil || remaining < 0 {
		return fmt.Errorf("%w: threshold needs an action and a non-negative time", ErrInvalidArgument)
	}
	c.thresholds = append(c.thresholds, &threshold{at: remaining, fn: fn})
	return nil
}

// OnEnd registers fn to run once when the countdown reaches zero.
func (c *Countdown) OnEnd(fn func()) {
	if fn != nil {
		c.onEnd = append(c.onEnd, fn)
	}
}

// Start begins counting on the next tick.
func (c *Countdown) Start() error {
	if c.tick.Valid() && !c.tick.Done() {
		return ErrRunning
	}
	c.observed = 0
	c.ended = false

	var err error
	c.tick, err = c.s.SchedulePeriodicWhile(func() bool { return c.remaining > 0 }, c.step, scheduler.WithName(c.name+".tick"))
	if err != nil {
		return err
	}
	c.end, err = c.s.ScheduleWhen(func() bool { return c.remaining <= 0 }, c.fireEnd, scheduler.WithName(c.name+".end"))
	if err != nil {
		c.s.Cancel(c.tick)
		return err
	}
	c.log.Debug("countdown started", logx.String("countdown", c.name), logx.Duration("remaining", c.remaining))
	return nil
}

// Stop cancels the countdown without running end actions.
func (c *Countdown) Stop() {
	c.s.Cancel(c.tick)
	c.s.Cancel(c.end)
}

func (c *Countdown) Pause()  { c.paused = true }
func (c *Countdown) Resume() { c.paused = false }

// Reset rewinds to Total and re-arms every threshold. A running countdown
// keeps running; a finished one must be started again.
func (c *Countdown) Reset() {
	c.remaining = c.total
	c.ended = false
	for _, th := range c.thresholds {
		th.fired = false
	}
}

func (c *Countdown) Remaining() time.Duration { return c.remaining }
func (c *Countdown) Paused() bool             { return c.paused }
func (c *Countdown) Ended() bool              { return c.ended }

func (c *Countdown) step() {
	// The scheduler has already added this tick's delta to the handle.
	elapsed := c.tick.Elapsed()
	delta := elapsed - c.observed
	c.observed = elapsed
	if c.paused {
		return
	}

	c.remaining -= delta
	if c.remaining < 0 {
		c.remaining = 0
	}
	for _, th := range c.thresholds {
		if !th.fired && c.remaining <= th.at {
			th.fired = true
			th.fn()
		}
	}
}

// fireEnd finishes the tick task before the end actions run, so they may
// Reset and Start the countdown again.
func (c *Countdown) fireEnd() {
	c.s.Cancel(c.tick)
	c.ended = true
	c.log.Debug("countdown ended", logx.String("countdown", c.name), logx.Duration("total", c.total))
	for _, fn := range c.onEnd {
		fn()
	}
}

// Format renders the remaining time in the given mode. Fractions are
// truncated, never rounded up.
func (c *Countdown) Format(mode Mode) string { return Format(c.remaining, mode) }

func Format(d time.Duration, mode Mode) string {
	if d < 0 {
		d = 0
	}
	hundredths := int64(d/(10*time.Millisecond)) % 100
	secs := int64(d / time.Second)
	switch mode {
	case HHMMSStt:
		return fmt.Sprintf("%02d:%02d:%02d.%02d", secs/3600, secs/60%60, secs%60, hundredths)
	case MMSS:
		return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
	case MMSStt:
		return fmt.Sprintf("%02d:%02d.%02d", secs/60, secs%60, hundredths)
	case SS:
		return fmt.Sprintf("%02d", secs)
	case SStt:
		return fmt.Sprintf("%02d.%02d", secs, hundredths)
	default:
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	}
}
