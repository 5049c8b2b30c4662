// Package loop is the host frame loop. Each paced frame ticks every target
// exactly once, in order, with the measured wall-clock delta.
package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"tickwork/internal/eventbus"
	logx "tickwork/pkg/logx"
)

const (
	DefaultTickRate = 60
	DefaultMaxDelta = 250 * time.Millisecond
	postQueueSize   = 256
)

var ErrQueueFull = errors.New("loop: post queue full")

// Ticker is advanced once per frame. *scheduler.Scheduler and *lerp.Manager
// both satisfy it.
type Ticker interface {
	Tick(delta time.Duration)
}

type Config struct {
	TickRate int           // frames per second
	MaxDelta time.Duration // deltas above this are clamped (and reported as a stall)
}

func (c Config) withDefaults() Config {
	if c.TickRate <= 0 {
		c.TickRate = DefaultTickRate
	}
	if c.MaxDelta <= 0 {
		c.MaxDelta = DefaultMaxDelta
	}
	return c
}

func (c Config) interval() time.Duration { return time.Second / time.Duration(c.TickRate) }

// StallEvent is published when a frame arrives later than MaxDelta.
type StallEvent struct {
	Frame    uint64        `json:"frame"`
	Measured time.Duration `json:"measured"`
	Applied  time.Duration `json:"applied"`
}

type Loop struct {
	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	targets []Ticker
	posted  chan func()
	now     func() time.Time

	frames  atomic.Uint64
	stalls  atomic.Uint64
	running atomic.Bool
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, targets ...Ticker) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Loop{
		log:     log,
		bus:     bus,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.interval()), 1),
		targets: targets,
		posted:  make(chan func(), postQueueSize),
		now:     time.Now,
	}
}

// Apply changes pacing at runtime. Safe to call from any goroutine.
func (l *Loop) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	l.mu.Lock()
	old := l.cfg
	l.cfg = cfg
	l.mu.Unlock()
	if old.TickRate != cfg.TickRate {
		l.limiter.SetLimit(rate.Every(cfg.interval()))
		l.log.Info("tick rate changed", logx.Int("from", old.TickRate), logx.Int("to", cfg.TickRate))
	}
}

func (l *Loop) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Do queues fn to run on the loop goroutine before the next frame's ticks.
// It is the only way for other goroutines to touch the scheduler safely.
func (l *Loop) Do(fn func()) error {
	if fn == nil {
		return nil
	}
	select {
	case l.posted <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Frames returns how many frames have been stepped.
func (l *Loop) Frames() uint64 { return l.frames.Load() }

// Stalls returns how many frames had their delta clamped.
func (l *Loop) Stalls() uint64 { return l.stalls.Load() }

// Step runs one frame with an explicit delta: queued Do funcs first, then
// every target in order. Run uses it with measured deltas; tests and
// replays call it directly.
func (l *Loop) Step(delta time.Duration) {
	l.drain()
	for _, t := range l.targets {
		t.Tick(delta)
	}
	l.frames.Add(1)
}

// Run paces frames until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("loop: already running")
	}
	defer l.running.Store(false)

	cfg := l.Config()
	l.log.Info("loop started", logx.Int("tick_rate", cfg.TickRate), logx.Duration("max_delta", cfg.MaxDelta))

	last := l.now()
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				l.log.Info("loop stopped", logx.Uint64("frames", l.Frames()))
				return nil
			}
			return fmt.Errorf("loop: limiter: %w", err)
		}
		now := l.now()
		delta := l.clamp(now.Sub(last))
		last = now
		l.Step(delta)
	}
}

func (l *Loop) clamp(measured time.Duration) time.Duration {
	if measured < 0 {
		return 0
	}
	maxDelta := l.Config().MaxDelta
	if measured <= maxDelta {
		return measured
	}
	l.stalls.Add(1)
	frame := l.Frames() + 1
	l.log.Warn("frame stalled; delta clamped", logx.Uint64("frame", frame), logx.Duration("measured", measured), logx.Duration("applied", maxDelta))
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: eventbus.LoopStalled, Time: time.Now(), Data: StallEvent{Frame: frame, Measured: measured, Applied: maxDelta}})
	}
	return maxDelta
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.posted:
			l.runPosted(fn)
		default:
			return
		}
	}
}

func (l *Loop) runPosted(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop.post.panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	fn()
}
