// Package systemd speaks the sd_notify protocol for Type=notify units:
// readiness, stopping, status lines and watchdog keep-alives.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "tickwork/pkg/logx"
)

// Notifier sends sd_notify messages. Without NOTIFY_SOCKET (not running
// under systemd) every call is a silent no-op.
type Notifier struct {
	enabled bool
	log     logx.Logger
}

func NewNotifier(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{enabled: enabled, log: log}
}

func (n *Notifier) Ready() bool    { return n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Watchdog() bool { return n.send(daemon.SdNotifyWatchdog) }
func (n *Notifier) Status(msg string) bool {
	return n.send("STATUS=" + msg)
}

func (n *Notifier) send(state string) bool {
	if n == nil || !n.enabled {
		return false
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

// WatchdogInterval returns how often keep-alives should be sent: override
// when positive, else half of WATCHDOG_USEC. ok is false when no watchdog
// is configured.
func WatchdogInterval(override time.Duration) (every time.Duration, ok bool) {
	if override > 0 {
		return override, true
	}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d / 2, true
}

// RunWatchdog pings systemd every interval while healthy reports true.
// A missed ping lets systemd restart a wedged process.
func (n *Notifier) RunWatchdog(ctx context.Context, every time.Duration, healthy func() bool) error {
	if every <= 0 {
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				n.log.Warn("watchdog ping withheld: unhealthy")
				continue
			}
			n.Watchdog()
		}
	}
}
