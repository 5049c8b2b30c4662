// Package natsbridge forwards bus events to NATS subjects.
package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"tickwork/internal/eventbus"
	logx "tickwork/pkg/logx"
)

const (
	DefaultSubjectPrefix = "tickwork"
	subscribeBuffer      = 256
)

// Publisher is the subset of *nats.Conn the bridge needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Options struct {
	SubjectPrefix string
	// Filter is an event type prefix ("task."); empty forwards everything.
	Filter string
}

// Message is the JSON body published for each event.
type Message struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type Bridge struct {
	pub  Publisher
	bus  eventbus.Bus
	log  logx.Logger
	opts Options

	sent   uint64
	failed uint64
}

func New(pub Publisher, bus eventbus.Bus, log logx.Logger, opts Options) *Bridge {
	if log.IsZero() {
		log = logx.Nop()
	}
	opts.SubjectPrefix = strings.Trim(strings.TrimSpace(opts.SubjectPrefix), ".")
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	return &Bridge{pub: pub, bus: bus, log: log.With(logx.String("comp", "natsbridge")), opts: opts}
}

// Subject maps an event type onto a NATS subject.
func (b *Bridge) Subject(eventType string) string {
	return b.opts.SubjectPrefix + "." + eventType
}

// Run forwards events until ctx is done. It owns its bus subscription.
func (b *Bridge) Run(ctx context.Context) error {
	if b.pub == nil || b.bus == nil {
		return errors.New("natsbridge: missing publisher or bus")
	}
	ch, unsub := b.bus.Subscribe(subscribeBuffer)
	defer unsub()

	b.log.Info("nats bridge started", logx.String("prefix", b.opts.SubjectPrefix), logx.String("filter", b.opts.Filter))
	for {
		select {
		case <-ctx.Done():
			b.log.Info("nats bridge stopped", logx.Uint64("sent", b.sent), logx.Uint64("failed", b.failed))
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(e)
		}
	}
}

func (b *Bridge) forward(e eventbus.Event) {
	if !eventbus.Matches(b.opts.Filter, e.Type) {
		return
	}
	body, err := json.Marshal(Message{Type: e.Type, Time: e.Time, Data: e.Data})
	if err != nil {
		b.failed++
		b.log.Warn("nats bridge: marshal failed", logx.String("type", e.Type), logx.Err(err))
		return
	}
	if err := b.pub.Publish(b.Subject(e.Type), body); err != nil {
		b.failed++
		b.log.Warn("nats bridge: publish failed", logx.String("type", e.Type), logx.Err(err))
		return
	}
	b.sent++
}

// Dial connects with reconnect handling logged through log.
func Dial(url, name string, log logx.Logger) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		url = nats.DefaultURL
	}
	if name == "" {
		name = "tickd"
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("natsbridge: connect: %w", err)
	}
	return nc, nil
}
