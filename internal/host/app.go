// Package host wires the scheduling core into a process: config, logging,
// the frame loop, the task journal, NATS forwarding and systemd readiness.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"tickwork/internal/config"
	"tickwork/internal/eventbus"
	"tickwork/internal/loop"
	"tickwork/internal/runtime/supervisor"
	"tickwork/internal/storage"
	"tickwork/internal/task/lerp"
	"tickwork/internal/task/scheduler"
	"tickwork/internal/transport/natsbridge"
	logx "tickwork/pkg/logx"
	"tickwork/pkg/systemd"
)

const stopTimeout = 10 * time.Second

var timeNow = time.Now

type App struct {
	cfgm   *config.ConfigManager
	logSvc *logx.Service
	log    logx.Logger

	bus   eventbus.Bus
	sched *scheduler.Scheduler
	lerp  *lerp.Manager
	loop  *loop.Loop

	store  storage.Store
	nc     *nats.Conn
	bridge *natsbridge.Bridge
	notify *systemd.Notifier
	wdog   time.Duration

	schedules *scheduleSet
}

// New builds every component from the manager's current config.
// cfgm must already be loaded.
func New(cfgm *config.ConfigManager) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("host: config not loaded")
	}
	if err := validateSchedules(context.Background(), cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(loggingConfig(cfg.Logging))
	a := &App{cfgm: cfgm, logSvc: logSvc, log: log, bus: eventbus.New()}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateSchedules)

	schedOpts, err := schedulerOptions(cfg.Scheduler)
	if err != nil {
		return nil, a.fail(err)
	}
	a.sched = scheduler.New(append(schedOpts,
		scheduler.WithLogger(log.With(logx.String("comp", "scheduler"))),
		scheduler.WithBus(a.bus),
	)...)
	a.lerp = lerp.NewManager(lerp.WithLogger(log.With(logx.String("comp", "lerp"))), lerp.WithBus(a.bus))

	lc, err := loopConfig(cfg.Loop)
	if err != nil {
		return nil, a.fail(err)
	}
	a.loop = loop.New(lc, log.With(logx.String("comp", "loop")), a.bus, a.sched, a.lerp)
	a.schedules = newScheduleSet(a.sched, a.bus, log.With(logx.String("comp", "schedules")))

	sc, err := storageConfig(cfg.Storage)
	if err != nil {
		return nil, a.fail(err)
	}
	if a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
		return nil, a.fail(fmt.Errorf("storage: %w", err))
	}

	if n := cfg.NATS; n != nil && n.Enabled {
		nc, err := natsbridge.Dial(n.URL, n.Name, log.With(logx.String("comp", "nats")))
		if err != nil {
			return nil, a.fail(err)
		}
		a.nc = nc
		a.bridge = natsbridge.New(nc, a.bus, log, natsbridge.Options{SubjectPrefix: n.SubjectPrefix, Filter: n.Filter})
	}

	a.notify = systemd.NewNotifier(cfg.Systemd.Notify, log.With(logx.String("comp", "systemd")))
	if cfg.Systemd.Notify {
		override, err := config.ParseDurationField("systemd.watchdog_every", cfg.Systemd.WatchdogEvery)
		if err != nil {
			return nil, a.fail(err)
		}
		if every, ok := systemd.WatchdogInterval(override); ok {
			a.wdog = every
		}
	}
	return a, nil
}

func (a *App) Bus() eventbus.Bus               { return a.bus }
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Lerp() *lerp.Manager             { return a.lerp }
func (a *App) Loop() *loop.Loop                { return a.loop }
func (a *App) Logger() logx.Logger             { return a.log }

// Do runs fn on the loop goroutine, where scheduler and lerp calls are safe.
func (a *App) Do(fn func()) error { return a.loop.Do(fn) }

// Run starts every component and blocks until ctx is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	cfg := a.cfgm.Get()
	if err := a.loop.Do(func() { a.schedules.sync(cfg.Schedules, nil) }); err != nil {
		return a.fail(err)
	}

	sup.Go("loop", a.loop.Run)
	sup.Go("config.apply", a.applyLoop)
	sup.GoRestart("config.watch", a.cfgm.Watch)
	if a.store != nil {
		sup.Go("journal", func(ctx context.Context) error { return runJournal(ctx, a.bus, a.store, a.log) })
	}
	if a.bridge != nil {
		sup.GoRestart("natsbridge", a.bridge.Run)
	}
	if cfg.Debug.Enabled {
		sup.GoRestart("debug.http", a.debugServer(cfg.Debug, sup).Run, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}
	if a.wdog > 0 {
		frames := a.loop.Frames()
		sup.Go("watchdog", func(ctx context.Context) error {
			return a.notify.RunWatchdog(ctx, a.wdog, func() bool {
				// Healthy while frames keep advancing.
				cur := a.loop.Frames()
				ok := cur != frames
				frames = cur
				return ok
			})
		})
	}

	a.notify.Ready()
	a.log.Info("tickd started", logx.String("config", a.cfgm.Path()), logx.Int("schedules", len(cfg.Schedules)))

	<-sup.Context().Done()
	a.notify.Stopping()
	a.log.Info("tickd stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := sup.Stop(stopCtx)
	a.schedules.cancelAll()
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases external resources. Safe after a failed New.
func (a *App) Close() error {
	var errs []error
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
		a.nc = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
		a.store = nil
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
	return errors.Join(errs...)
}

func (a *App) fail(err error) error {
	_ = a.Close()
	return err
}
