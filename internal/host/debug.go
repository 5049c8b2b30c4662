package host

import (
	"context"
	"fmt"

	"tickwork/internal/config"
	"tickwork/internal/loop"
	"tickwork/internal/observability/debughttp"
	"tickwork/internal/runtime/supervisor"
	"tickwork/internal/storage"
	logx "tickwork/pkg/logx"
)

const journalViewSize = 100

// LoopStatus is the "loop" debug view.
type LoopStatus struct {
	Frames    uint64   `json:"frames"`
	Stalls    uint64   `json:"stalls"`
	TickRate  int      `json:"tick_rate"`
	MaxDelta  string   `json:"max_delta"`
	Lerps     int      `json:"lerps"`
	Schedules []string `json:"schedules"`
}

func (a *App) debugServer(cfg config.DebugConfig, sup *supervisor.Supervisor) *debughttp.Server {
	srv := debughttp.New(debughttp.Config{Addr: cfg.Addr, Token: cfg.Token, AllowInsecure: cfg.AllowInsecure}, a.log.With(logx.String("comp", "debug")))

	srv.Handle("snapshot", func(ctx context.Context) (any, error) {
		return onLoop(ctx, a.loop, a.sched.Snapshot)
	})
	srv.Handle("loop", func(ctx context.Context) (any, error) {
		return onLoop(ctx, a.loop, func() LoopStatus {
			lc := a.loop.Config()
			return LoopStatus{
				Frames:    a.loop.Frames(),
				Stalls:    a.loop.Stalls(),
				TickRate:  lc.TickRate,
				MaxDelta:  lc.MaxDelta.String(),
				Lerps:     a.lerp.Len(),
				Schedules: a.schedules.names(),
			}
		})
	})
	srv.Handle("workers", func(context.Context) (any, error) {
		return sup.Stats(), nil
	})
	if store := a.store; store != nil {
		srv.Handle("journal", func(ctx context.Context) (any, error) {
			recs, err := store.Recent(ctx, journalViewSize)
			if recs == nil {
				recs = []storage.Record{}
			}
			return recs, err
		})
	}
	return srv
}

// onLoop evaluates fn on the loop goroutine and waits for the result.
func onLoop[T any](ctx context.Context, l *loop.Loop, fn func() T) (T, error) {
	out := make(chan T, 1)
	var zero T
	if err := l.Do(func() { out <- fn() }); err != nil {
		return zero, err
	}
	select {
	case v := <-out:
		return v, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("loop did not respond: %w", ctx.Err())
	}
}
